// Package pipeline answers one recorded question: speech to text, English
// translation, crop lookup, advisor reply, then journaling and archiving.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/raaee/internal/advisor"
	"github.com/MrWong99/raaee/internal/archive"
	"github.com/MrWong99/raaee/internal/knowledge"
	"github.com/MrWong99/raaee/internal/observe"
	"github.com/MrWong99/raaee/pkg/memory"
	"github.com/MrWong99/raaee/pkg/provider/stt"
	"github.com/MrWong99/raaee/pkg/types"
)

// NoSpeechReply is shown when the recording contained no recognisable speech.
const NoSpeechReply = "آواز کو پہچانا نہیں جا سکا۔ براہ کرم واضح طور پر بولیں۔"

var (
	// ErrEmptyAudio is returned for a clip without data.
	ErrEmptyAudio = errors.New("pipeline: empty audio")

	// ErrTranscription is returned when the speech service failed outright.
	ErrTranscription = errors.New("pipeline: transcription failed")
)

// Result is the outcome of one processed clip.
type Result struct {
	// ID identifies the journaled exchange. Empty when nothing was recorded.
	ID string

	Transcription string
	Translation   string
	Reply         string

	// Match is the crop entry the reply was grounded on, nil when none.
	Match *knowledge.Match

	AudioDuration time.Duration

	// AdvisorErr is set when Reply is a fallback message.
	AdvisorErr error
}

// Answer is the text-only part of a [Result], produced by [Pipeline.Answer].
type Answer struct {
	Reply string
	Match *knowledge.Match
	Err   error
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithJournal records every answered exchange.
func WithJournal(j memory.ExchangeLog) Option { return func(p *Pipeline) { p.journal = j } }

// WithArchive stores uploaded clips. Failures are logged, never returned.
func WithArchive(a archive.Archiver) Option { return func(p *Pipeline) { p.archive = a } }

// WithLanguage sets the spoken language passed to the speech service.
func WithLanguage(lang string) Option { return func(p *Pipeline) { p.language = lang } }

// WithMetrics records pipeline metrics.
func WithMetrics(m *observe.Metrics) Option { return func(p *Pipeline) { p.metrics = m } }

// WithClock overrides time.Now. Intended for tests.
func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

// WithIDs overrides the exchange ID generator. Intended for tests.
func WithIDs(next func() string) Option { return func(p *Pipeline) { p.newID = next } }

// Pipeline is safe for concurrent use.
type Pipeline struct {
	stt      stt.Provider
	finder   *knowledge.Finder
	advisor  *advisor.Advisor
	journal  memory.ExchangeLog
	archive  archive.Archiver
	metrics  *observe.Metrics
	language string
	now      func() time.Time
	newID    func() string
}

// New wires a pipeline. speech, finder and adv are required.
func New(speech stt.Provider, finder *knowledge.Finder, adv *advisor.Advisor, opts ...Option) (*Pipeline, error) {
	if speech == nil {
		return nil, errors.New("pipeline: speech-to-text provider must not be nil")
	}
	if finder == nil {
		return nil, errors.New("pipeline: finder must not be nil")
	}
	if adv == nil {
		return nil, errors.New("pipeline: advisor must not be nil")
	}
	p := &Pipeline{
		stt:      speech,
		finder:   finder,
		advisor:  adv,
		language: "ur",
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Process answers one uploaded clip.
func (p *Pipeline) Process(ctx context.Context, clip types.Clip) (res Result, err error) {
	if len(clip.Data) == 0 {
		return Result{}, ErrEmptyAudio
	}

	id := p.newID()
	ctx = observe.WithExchangeID(ctx, id)
	ctx, span := observe.StartSpan(ctx, "pipeline.process")
	defer span.End()
	log := observe.Logger(ctx)

	start := time.Now()
	status := "ok"
	if p.metrics != nil {
		p.metrics.ActiveExchanges.Add(ctx, 1)
		p.metrics.UploadSize.Record(ctx, int64(len(clip.Data)))
		defer func() {
			p.metrics.ActiveExchanges.Add(ctx, -1)
			p.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds())
			p.metrics.RecordExchange(ctx, status)
		}()
	}

	res.AudioDuration = clipDuration(clip)

	urdu, english, err := p.transcribe(ctx, clip)
	if errors.Is(err, stt.ErrNoSpeech) {
		status = "no_speech"
		log.Info("no speech recognised", "bytes", len(clip.Data))
		res.Transcription = NoSpeechReply
		res.Reply = NoSpeechReply
		return res, nil
	}
	if err != nil {
		status = "error"
		span.RecordError(err)
		return Result{}, err
	}
	res.Transcription = urdu
	res.Translation = english

	query := english
	if query == "" {
		query = urdu
	}
	ans := p.Answer(ctx, query)
	res.Reply, res.Match, res.AdvisorErr = ans.Reply, ans.Match, ans.Err
	if ans.Err != nil {
		status = "fallback"
		log.Warn("advisor failed, sending fallback reply", "err", ans.Err)
	}

	res.ID = id
	p.record(ctx, res, clip)
	return res, nil
}

// Answer resolves a text question against the knowledge base and asks the
// advisor. It never fails: Answer.Err carries the advisor error and Reply
// holds the fallback text in that case.
func (p *Pipeline) Answer(ctx context.Context, question string) Answer {
	var match *knowledge.Match
	if m, ok := p.finder.Find(ctx, question); ok {
		match = &m
		observe.Logger(ctx).Debug("crop matched", "crop", m.Crop, "method", m.Method, "score", m.Score)
	}
	reply, err := p.advisor.Ask(ctx, question, match)
	return Answer{Reply: reply, Match: match, Err: err}
}

// transcribe runs the Urdu transcription and the English translation in
// parallel. A failed or empty translation is not an error.
func (p *Pipeline) transcribe(ctx context.Context, clip types.Clip) (urdu, english string, err error) {
	req := stt.Request{
		Audio:     clip.Data,
		MediaType: clip.MediaType,
		Filename:  clip.Filename,
		Language:  p.language,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		t, err := p.stt.Transcribe(gctx, req)
		p.recordSTT(gctx, "transcribe", start, err)
		if err != nil {
			return err
		}
		urdu = strings.TrimSpace(t.Text)
		return nil
	})
	g.Go(func() error {
		tr := req
		tr.Translate = true
		start := time.Now()
		t, err := p.stt.Transcribe(gctx, tr)
		p.recordSTT(gctx, "translate", start, err)
		if err != nil {
			if !errors.Is(err, stt.ErrNoSpeech) && gctx.Err() == nil {
				observe.Logger(ctx).Warn("translation failed, using Urdu transcript for lookup", "err", err)
			}
			return nil
		}
		english = strings.TrimSpace(t.Text)
		return nil
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, stt.ErrNoSpeech) {
			return "", "", err
		}
		return "", "", fmt.Errorf("%w: %w", ErrTranscription, err)
	}
	if urdu == "" {
		return "", "", stt.ErrNoSpeech
	}
	return urdu, english, nil
}

func (p *Pipeline) recordSTT(ctx context.Context, op string, start time.Time, err error) {
	if p.metrics == nil {
		return
	}
	p.metrics.STTDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("op", op)))
	if err != nil && !errors.Is(err, stt.ErrNoSpeech) {
		p.metrics.RecordProviderError(ctx, op, "stt")
		p.metrics.RecordProviderRequest(ctx, op, "stt", "error")
		return
	}
	p.metrics.RecordProviderRequest(ctx, op, "stt", "ok")
}

// record journals the exchange and archives the clip. Both are best effort.
func (p *Pipeline) record(ctx context.Context, res Result, clip types.Clip) {
	log := observe.Logger(ctx)
	at := p.now()
	ex := types.Exchange{
		ID:            res.ID,
		Transcription: res.Transcription,
		Translation:   res.Translation,
		Reply:         res.Reply,
		AudioBytes:    len(clip.Data),
		AudioDuration: res.AudioDuration,
		CreatedAt:     at,
	}
	if res.Match != nil {
		ex.Crop = res.Match.Crop
	}

	if p.archive != nil {
		key, err := p.archive.Put(ctx, res.ID, clip, at)
		if err != nil {
			log.Warn("archive clip failed", "id", res.ID, "err", err)
		} else {
			ex.AudioKey = key
		}
	}
	if p.journal != nil {
		if err := p.journal.Record(ctx, ex); err != nil {
			log.Warn("journal exchange failed", "id", res.ID, "err", err)
		}
	}
}

// clipDuration measures WAV clips. Other containers report zero.
func clipDuration(clip types.Clip) time.Duration {
	if !isWAV(clip) {
		return 0
	}
	dec := wav.NewDecoder(bytes.NewReader(clip.Data))
	if !dec.IsValidFile() {
		return 0
	}
	d, err := dec.Duration()
	if err != nil {
		slog.Debug("measure wav duration", "err", err)
		return 0
	}
	return d
}

func isWAV(clip types.Clip) bool {
	switch strings.ToLower(clip.MediaType) {
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return true
	}
	if strings.EqualFold(path.Ext(clip.Filename), ".wav") {
		return true
	}
	return len(clip.Data) >= 12 && string(clip.Data[:4]) == "RIFF" && string(clip.Data[8:12]) == "WAVE"
}
