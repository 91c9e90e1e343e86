package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrWong99/visionvoice/internal/capture"
	"github.com/MrWong99/visionvoice/internal/command"
	"github.com/MrWong99/visionvoice/internal/observe"
)

// maxClassifyBody caps the size of a /v1/classify request body.
const maxClassifyBody = 64 << 10

// StateView is the JSON form of a [capture.State].
type StateView struct {
	Phase          string `json:"phase"`
	RequestID      uint64 `json:"request_id"`
	Transcript     string `json:"transcript"`
	IsRecording    bool   `json:"is_recording"`
	IsProcessing   bool   `json:"is_processing"`
	IsTranscribing bool   `json:"is_transcribing"`
}

func newStateView(st capture.State) StateView {
	return StateView{
		Phase:          st.Phase.String(),
		RequestID:      st.RequestID,
		Transcript:     st.Transcript,
		IsRecording:    st.IsRecording,
		IsProcessing:   st.IsProcessing,
		IsTranscribing: st.IsTranscribing,
	}
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Command    string `json:"command"`
	Normalized string `json:"normalized"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.dispatch(r, s.recorder.RequestStart)
	writeJSON(w, http.StatusAccepted, newStateView(s.recorder.State()))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.dispatch(r, s.recorder.RequestStop)
	writeJSON(w, http.StatusAccepted, newStateView(s.recorder.State()))
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.recorder.ResetTranscription()
	writeJSON(w, http.StatusOK, newStateView(s.recorder.State()))
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newStateView(s.recorder.State()))
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxClassifyBody))
	if err := dec.Decode(&req); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	cmd := s.classifier.Classify(req.Text)
	s.metrics.RecordCommand(r.Context(), string(cmd))
	writeJSON(w, http.StatusOK, classifyResponse{
		Command:    string(cmd),
		Normalized: command.Normalize(req.Text),
	})
}

// dispatch applies a press or release before the response is written, so
// requests take effect in the order they were answered. The rest of the
// operation runs detached from the request's cancellation so the cycle is
// not cut short when the client disconnects. Trace context is kept.
func (s *Server) dispatch(r *http.Request, request func(context.Context) func()) {
	ctx := context.WithoutCancel(r.Context())
	run := request(ctx)
	if run == nil {
		observe.Logger(ctx).Debug("server: request ignored in current phase", "route", r.Pattern)
		return
	}
	s.ops.Add(1)
	go func() {
		defer s.ops.Done()
		run()
	}()
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
