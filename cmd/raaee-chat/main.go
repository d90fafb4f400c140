// Command raaee-chat is the terminal voice chat for Raa'ee. It records a
// question from the configured capture source, uploads it to the backend and
// plays the spoken reply.
//
// Keys (followed by Enter):
//
//	r or empty  start or stop recording
//	h           show or hide the usage guide
//	q           quit
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/MrWong99/raaee/internal/config"
	"github.com/MrWong99/raaee/internal/device"
	"github.com/MrWong99/raaee/internal/voicechat"
	"github.com/MrWong99/raaee/internal/voiceclient"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the config")
	source := flag.String("source", "", "recorded question to use as the microphone (overrides client.microphone.source)")
	endpoint := flag.String("endpoint", "", "backend /process_audio URL (overrides client.endpoint)")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "raaee-chat: load %s: %v\n", *envPath, err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "raaee-chat: %v\n", err)
		return 1
	}
	cc := cfg.Client
	if *source != "" {
		cc.Microphone.Source = *source
	}
	if *endpoint != "" {
		cc.Endpoint = *endpoint
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	client, err := voiceclient.New(cc)
	if err != nil {
		slog.Error("failed to create backend client", "err", err)
		return 1
	}
	machine, err := voicechat.New(voicechat.Deps{
		Microphone:  device.NewFileMicrophone(cc.Microphone),
		Uploader:    client,
		Synthesizer: client,
		Player:      device.NewFilePlayer(cc.Playback),
		// The alert text itself is part of the redrawn screen.
		Alerter: voicechat.AlerterFunc(func(string) { fmt.Fprint(os.Stderr, "\a") }),
	})
	if err != nil {
		slog.Error("failed to create voice chat", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	states := machine.Subscribe()
	done := make(chan error, 1)
	go func() { done <- machine.Run(ctx) }()
	go readKeys(os.Stdin, machine, cancel)

	for s := range states {
		draw(os.Stdout, s)
	}

	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("voice chat stopped", "err", err)
		return 1
	}
	return 0
}

// loadConfig reads path when it exists and falls back to the defaults
// otherwise; the client needs no provider credentials.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

// controls is the part of [voicechat.Machine] driven by the keyboard.
type controls interface {
	Toggle()
	ToggleHelp()
}

// readKeys maps input lines onto machine events. Only "q" quits; after r is
// exhausted the client keeps running until a signal arrives, so piped input
// does not cut off an upload or a reply.
func readKeys(r io.Reader, m controls, quit context.CancelFunc) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		switch strings.ToLower(strings.TrimSpace(sc.Text())) {
		case "", "r":
			m.Toggle()
		case "h", "?":
			m.ToggleHelp()
		case "q":
			quit()
			return
		}
	}
	if err := sc.Err(); err != nil {
		slog.Warn("reading keys stopped", "err", err)
	}
}

func draw(w io.Writer, s voicechat.State) {
	// Clear the terminal and home the cursor.
	fmt.Fprint(w, "\033[H\033[2J")
	fmt.Fprintln(w, voicechat.Render(s))
	fmt.Fprintln(w, "[Enter] record/stop   [h] help   [q] quit")
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogError:
		lvl = slog.LevelError
	default:
		// The screen owns stdout; keep stderr quiet unless asked.
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
