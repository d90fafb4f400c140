package voicechat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/raaee/pkg/api"
	"github.com/MrWong99/raaee/pkg/types"
)

// ErrAlreadyRunning is returned by a second call to [Machine.Run].
var ErrAlreadyRunning = errors.New("voicechat: machine already running")

const (
	eventBuffer      = 64
	subscriberBuffer = 16
)

// Deps are the collaborators a [Machine] drives. Alerter is optional and
// defaults to logging the message.
type Deps struct {
	Microphone  Microphone
	Uploader    Uploader
	Synthesizer Synthesizer
	Player      Player
	Alerter     Alerter
}

// Option configures a [Machine].
type Option func(*Machine)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.log = l }
}

// captureSession is one press-to-release recording. Sessions outlive the
// Capturing phase until their capture reports CaptureStopped.
type captureSession struct {
	id        uint64
	capture   Capture
	cancel    context.CancelFunc
	buffer    [][]byte
	mediaType string

	// stopRequested is set when the user stops before the microphone opened.
	stopRequested bool
}

// Machine is the voice-chat client state machine. All methods are safe for
// concurrent use; state is only mutated by the goroutine running [Machine.Run].
type Machine struct {
	mic      Microphone
	uploader Uploader
	synth    Synthesizer
	player   Player
	alert    Alerter
	log      *slog.Logger

	events  chan Event
	done    chan struct{}
	running atomic.Bool

	mu     sync.Mutex
	state  State
	subs   []chan State
	closed bool

	// Owned by the event loop.
	ctx          context.Context
	cur          State
	lastSession  uint64
	active       *captureSession
	sessions     map[uint64]*captureSession
	uploads      int
	generation   uint64
	speechCancel context.CancelFunc
}

// New returns a machine in the Idle phase. Microphone, Uploader, Synthesizer
// and Player are required.
func New(deps Deps, opts ...Option) (*Machine, error) {
	if deps.Microphone == nil {
		return nil, errors.New("voicechat: microphone must not be nil")
	}
	if deps.Uploader == nil {
		return nil, errors.New("voicechat: uploader must not be nil")
	}
	if deps.Synthesizer == nil {
		return nil, errors.New("voicechat: synthesizer must not be nil")
	}
	if deps.Player == nil {
		return nil, errors.New("voicechat: player must not be nil")
	}
	m := &Machine{
		mic:      deps.Microphone,
		uploader: deps.Uploader,
		synth:    deps.Synthesizer,
		player:   deps.Player,
		alert:    deps.Alerter,
		log:      slog.Default(),
		events:   make(chan Event, eventBuffer),
		done:     make(chan struct{}),
		sessions: make(map[uint64]*captureSession),
	}
	for _, o := range opts {
		o(m)
	}
	if m.alert == nil {
		log := m.log
		m.alert = AlerterFunc(func(msg string) { log.Warn("voicechat: alert", "message", msg) })
	}
	return m, nil
}

// Run processes events until ctx is cancelled. On return every in-flight
// capture, upload and speech request is cancelled and subscriber channels
// are closed. Run may only be called once.
func (m *Machine) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	m.ctx = ctx
	defer func() {
		cancel()
		m.shutdown()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-m.events:
			m.handle(ev)
			m.publish()
		}
	}
}

// Dispatch posts ev to the event loop. Events posted after Run has returned
// are dropped.
func (m *Machine) Dispatch(ev Event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

// Toggle posts a [Toggle] event.
func (m *Machine) Toggle() { m.Dispatch(Toggle{}) }

// ToggleHelp posts a [ToggleHelp] event.
func (m *Machine) ToggleHelp() { m.Dispatch(ToggleHelp{}) }

// Snapshot returns the state after the most recently handled event.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe returns a channel that first receives the current state and then
// every changed state. A slow reader misses intermediate states but always
// sees the latest one. The channel is closed when Run returns.
func (m *Machine) Subscribe() <-chan State {
	ch := make(chan State, subscriberBuffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		close(ch)
		return ch
	}
	ch <- m.state
	m.subs = append(m.subs, ch)
	return ch
}

func (m *Machine) handle(ev Event) {
	switch ev := ev.(type) {
	case Toggle:
		m.onToggle()
	case ToggleHelp:
		m.cur.HelpVisible = !m.cur.HelpVisible
	case PermissionResult:
		m.onPermission(ev)
	case Fragment:
		m.onFragment(ev)
	case CaptureStopped:
		m.onCaptureStopped(ev)
	case UploadResult:
		m.onUpload(ev)
	case SynthesisResult:
		m.onSynthesis(ev)
	default:
		m.log.Warn("voicechat: unknown event", "type", fmt.Sprintf("%T", ev))
	}
}

func (m *Machine) onToggle() {
	m.cur.Alert = ""
	switch m.cur.Phase {
	case Idle:
		m.startSession()
	case Starting:
		s := m.active
		m.active = nil
		m.cur.Phase = Idle
		s.stopRequested = true
		m.log.Debug("voicechat: stop requested while microphone permission is pending", "session", s.id)
	case Capturing:
		s := m.active
		m.active = nil
		m.cur.Phase = Idle
		m.log.Debug("voicechat: stopping capture", "session", s.id)
		s.capture.Stop()
	}
}

func (m *Machine) startSession() {
	m.cancelSpeech()
	m.cur.Transcription = ""
	m.cur.Reply = ""
	m.cur.Phase = Starting

	m.lastSession++
	ctx, cancel := context.WithCancel(m.ctx)
	s := &captureSession{id: m.lastSession, cancel: cancel, mediaType: api.DefaultMediaType}
	m.sessions[s.id] = s
	m.active = s
	m.log.Debug("voicechat: requesting microphone", "session", s.id)

	go func() {
		res := PermissionResult{Session: s.id}
		defer func() {
			if r := recover(); r != nil {
				res.Capture = nil
				res.Err = fmt.Errorf("microphone panicked: %v", r)
			}
			m.Dispatch(res)
		}()
		res.Capture, res.Err = m.mic.Open(ctx)
	}()
}

func (m *Machine) onPermission(ev PermissionResult) {
	s, ok := m.sessions[ev.Session]
	if !ok {
		if ev.Capture != nil {
			ev.Capture.Stop()
		}
		return
	}
	if ev.Err == nil && ev.Capture == nil {
		ev.Err = fmt.Errorf("%w: no capture returned", ErrPermissionDenied)
	}
	if ev.Err != nil {
		m.log.Error("voicechat: microphone access denied", "session", s.id, "err", ev.Err)
		m.raise(PermissionDeniedAlert)
		s.cancel()
		delete(m.sessions, s.id)
		if m.active == s {
			m.active = nil
			m.cur.Phase = Idle
		}
		return
	}

	s.capture = ev.Capture
	if mt := ev.Capture.MediaType(); mt != "" {
		s.mediaType = mt
	}
	if s.stopRequested {
		// Whatever the capture already buffered is still uploaded once it ends.
		m.log.Info("voicechat: microphone opened after stop, ending capture", "session", s.id)
		ev.Capture.Stop()
		go m.pump(s.id, ev.Capture)
		return
	}
	m.cur.Phase = Capturing
	m.log.Info("voicechat: recording", "session", s.id)
	go m.pump(s.id, ev.Capture)
}

// raise shows msg on screen until the next toggle and passes it to the
// alerter.
func (m *Machine) raise(msg string) {
	m.cur.Alert = msg
	m.alert.Alert(msg)
}

// pump forwards a capture's fragments and its end to the event loop.
func (m *Machine) pump(id uint64, c Capture) {
	for data := range c.Fragments() {
		m.Dispatch(Fragment{Session: id, Data: data})
	}
	m.Dispatch(CaptureStopped{Session: id})
}

func (m *Machine) onFragment(ev Fragment) {
	s, ok := m.sessions[ev.Session]
	if !ok {
		m.log.Debug("voicechat: fragment from superseded session dropped", "session", ev.Session)
		return
	}
	if len(ev.Data) == 0 {
		return
	}
	s.buffer = append(s.buffer, ev.Data)
}

func (m *Machine) onCaptureStopped(ev CaptureStopped) {
	s, ok := m.sessions[ev.Session]
	if !ok {
		return
	}
	delete(m.sessions, s.id)
	s.cancel()
	if m.active == s {
		m.log.Info("voicechat: capture ended on its own", "session", s.id)
		m.active = nil
		m.cur.Phase = Idle
	}
	m.finalize(s)
}

// finalize assembles the session's fragments and uploads them.
func (m *Machine) finalize(s *captureSession) {
	if len(s.buffer) == 0 {
		m.log.Info("voicechat: nothing captured, skipping upload", "session", s.id)
		return
	}
	clip := types.Clip{
		Data:      bytes.Join(s.buffer, nil),
		MediaType: s.mediaType,
		Filename:  api.DefaultFilename,
	}
	s.buffer = nil

	m.uploads++
	m.cur.Loading = true
	m.log.Info("voicechat: uploading recording", "session", s.id, "bytes", len(clip.Data))

	ctx, id := m.ctx, s.id
	go func() {
		res := UploadResult{Session: id}
		defer func() {
			if r := recover(); r != nil {
				res.Response = api.ProcessResponse{}
				res.Err = fmt.Errorf("%w: uploader panicked: %v", ErrUploadFailed, r)
			}
			m.Dispatch(res)
		}()
		res.Response, res.Err = m.uploader.Upload(ctx, clip)
	}()
}

func (m *Machine) onUpload(ev UploadResult) {
	if m.uploads > 0 {
		m.uploads--
	}
	m.cur.Loading = m.uploads > 0

	if ev.Session != m.lastSession {
		m.log.Debug("voicechat: result of superseded session dropped", "session", ev.Session)
		return
	}
	if ev.Err != nil {
		err := ev.Err
		if !errors.Is(err, ErrUploadFailed) {
			err = fmt.Errorf("%w: %w", ErrUploadFailed, err)
		}
		m.log.Error("voicechat: sending audio", "session", ev.Session, "err", err)
		m.cur.Reply = UploadErrorReply
	} else {
		m.cur.Transcription = ev.Response.Transcription
		m.cur.Reply = ev.Response.Response
	}
	if m.cur.Reply != "" {
		m.speak(m.cur.Reply)
	}
}

// speak starts a new speech generation, cancelling the previous one.
func (m *Machine) speak(text string) {
	m.cancelSpeech()
	m.generation++
	gen := m.generation
	ctx, cancel := context.WithCancel(m.ctx)
	m.speechCancel = cancel
	m.cur.Speaking = true

	go func() {
		res := SynthesisResult{Generation: gen}
		defer func() {
			if r := recover(); r != nil {
				res.Err = fmt.Errorf("%w: panic: %v", ErrSpeechSynthesisFailed, r)
			}
			m.Dispatch(res)
		}()
		audio, err := m.synth.Synthesize(ctx, text)
		if err != nil {
			res.Err = err
			return
		}
		res.Err = m.player.Play(ctx, audio)
	}()
}

func (m *Machine) cancelSpeech() {
	if m.speechCancel == nil {
		return
	}
	m.speechCancel()
	m.speechCancel = nil
	m.generation++
	m.cur.Speaking = false
}

func (m *Machine) onSynthesis(ev SynthesisResult) {
	if ev.Generation != m.generation {
		m.log.Debug("voicechat: superseded speech finished", "generation", ev.Generation)
		return
	}
	m.speechCancel()
	m.speechCancel = nil
	m.cur.Speaking = false

	if ev.Err == nil || errors.Is(ev.Err, context.Canceled) {
		return
	}
	err := ev.Err
	if !errors.Is(err, ErrSpeechSynthesisFailed) {
		err = fmt.Errorf("%w: %w", ErrSpeechSynthesisFailed, err)
	}
	m.log.Warn("voicechat: speaking reply", "generation", ev.Generation, "err", err)
}

func (m *Machine) publish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == m.state {
		return
	}
	m.state = m.cur
	for _, ch := range m.subs {
		select {
		case ch <- m.state:
		default:
			// Drop the oldest queued state so the latest always arrives.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- m.state:
			default:
			}
		}
	}
}

func (m *Machine) shutdown() {
	m.cancelSpeech()
	for id, s := range m.sessions {
		s.cancel()
		if s.capture != nil {
			s.capture.Stop()
		}
		delete(m.sessions, id)
	}
	m.active = nil
	m.uploads = 0
	m.cur.Phase = Idle
	m.cur.Loading = false
	m.publish()

	close(m.done)
	m.mu.Lock()
	m.closed = true
	for _, ch := range m.subs {
		close(ch)
	}
	m.subs = nil
	m.mu.Unlock()
}
