package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/raaee/internal/observe"
	"github.com/MrWong99/raaee/internal/pipeline"
	"github.com/MrWong99/raaee/internal/speech"
	"github.com/MrWong99/raaee/pkg/api"
	"github.com/MrWong99/raaee/pkg/memory"
	"github.com/MrWong99/raaee/pkg/provider/tts"
	"github.com/MrWong99/raaee/pkg/types"
)

// Client-facing error texts of /process_audio.
const (
	errNoAudio     = "No audio file received"
	errNoFilename  = "No file selected"
	errEmptyAudio  = "Empty audio file"
	errTooLarge    = "Audio file too large"
	errServerUrdu  = "سرور میں مسئلہ ہوا۔"
	maxRecentLimit = 100
)

// multipartMemory is how much of an upload is kept in memory before
// spilling to a temporary file.
const multipartMemory = 8 << 20

func (s *Server) handleProcessAudio(w http.ResponseWriter, r *http.Request) {
	log := observe.Logger(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, errTooLarge, "")
			return
		}
		writeError(w, http.StatusBadRequest, errNoAudio, "")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(api.AudioField)
	if err != nil {
		// A part without a filename is parsed as a plain form value.
		if _, ok := r.MultipartForm.Value[api.AudioField]; ok {
			writeError(w, http.StatusBadRequest, errNoFilename, "")
			return
		}
		writeError(w, http.StatusBadRequest, errNoAudio, "")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errServerUrdu, err.Error())
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, errEmptyAudio, "")
		return
	}

	clip := types.Clip{
		Data:      data,
		MediaType: header.Header.Get("Content-Type"),
		Filename:  header.Filename,
	}
	log.Info("received audio", "filename", clip.Filename, "media_type", clip.MediaType, "bytes", len(data))

	res, err := s.proc.Process(r.Context(), clip)
	if errors.Is(err, pipeline.ErrEmptyAudio) {
		writeError(w, http.StatusBadRequest, errEmptyAudio, "")
		return
	}
	if err != nil {
		log.Error("process audio failed", "err", err)
		writeError(w, http.StatusInternalServerError, errServerUrdu, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, api.ProcessResponse{
		ID:            res.ID,
		Transcription: res.Transcription,
		Response:      res.Reply,
		Status:        api.StatusSuccess,
	})
}

func (s *Server) decodeSpeech(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req api.SpeechRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSpeechBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err.Error())
		return "", false
	}
	return req.Text, true
}

// speechStatus maps proxy errors onto HTTP statuses.
func speechStatus(err error) int {
	switch {
	case errors.Is(err, tts.ErrEmptyText), errors.Is(err, speech.ErrTextTooLong):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	text, ok := s.decodeSpeech(w, r)
	if !ok {
		return
	}
	audio, err := s.speaker.Synthesize(r.Context(), text)
	if err != nil {
		observe.Logger(r.Context()).Warn("speech synthesis failed", "err", err)
		writeError(w, speechStatus(err), err.Error(), "")
		return
	}
	mediaType := audio.MediaType
	if mediaType == "" {
		mediaType = "audio/mpeg"
	}
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Length", strconv.Itoa(len(audio.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(audio.Data)
}

func (s *Server) handleSpeechStream(w http.ResponseWriter, r *http.Request) {
	text, ok := s.decodeSpeech(w, r)
	if !ok {
		return
	}
	chunks, err := s.speaker.Stream(r.Context(), text)
	if err != nil {
		observe.Logger(r.Context()).Warn("speech stream failed", "err", err)
		writeError(w, speechStatus(err), err.Error(), "")
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)
	for c := range chunks {
		if _, err := w.Write(c); err != nil {
			// Client went away; the proxy stops once the request context ends.
			for range chunks {
			}
			return
		}
		_ = rc.Flush()
	}
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := s.speaker.Voices(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error(), "")
		return
	}
	out := make([]api.Voice, 0, len(voices))
	for _, v := range voices {
		out = append(out, api.Voice{ID: v.ID, Name: v.Name, Provider: v.Provider, Metadata: v.Metadata})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExchanges(w http.ResponseWriter, r *http.Request) {
	limit := memory.DefaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", "")
			return
		}
		limit = min(n, maxRecentLimit)
	}
	exs, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "journal unavailable", err.Error())
		return
	}
	out := make([]api.ExchangeRecord, 0, len(exs))
	for _, ex := range exs {
		out = append(out, exchangeRecord(ex))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	ex, err := s.journal.Get(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, memory.ErrNotFound):
		writeError(w, http.StatusNotFound, "exchange not found", "")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "journal unavailable", err.Error())
	default:
		writeJSON(w, http.StatusOK, exchangeRecord(ex))
	}
}

func exchangeRecord(ex types.Exchange) api.ExchangeRecord {
	return api.ExchangeRecord{
		ID:              ex.ID,
		Transcription:   ex.Transcription,
		Translation:     ex.Translation,
		Response:        ex.Reply,
		Crop:            ex.Crop,
		AudioKey:        ex.AudioKey,
		AudioBytes:      ex.AudioBytes,
		AudioDurationMS: ex.AudioDuration.Milliseconds(),
		CreatedAt:       ex.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}
