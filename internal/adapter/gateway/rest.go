package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"agentverse/internal/domain"
)

const maxBodyBytes = 1 << 20

func readBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, domain.NewDomainError("gateway.readBody", domain.ErrValidation, err.Error())
	}
	return body, nil
}

// rest adapts an op to an HTTP handler answering 200.
func (s *Server) rest(fn op) http.HandlerFunc {
	return s.restStatus(http.StatusOK, fn)
}

func (s *Server) restStatus(status int, fn op) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(w, r)
		if err != nil {
			writeError(w, s.logger, r, err)
			return
		}
		out, err := fn(r.Context(), body)
		if err != nil {
			writeError(w, s.logger, r, err)
			return
		}
		writeJSON(w, status, out)
	}
}

// withID binds the {id} URL parameter into an op.
func (s *Server) withID(fn func(ctx context.Context, id string, payload json.RawMessage) (any, error)) http.HandlerFunc {
	return s.rest(func(ctx context.Context, payload json.RawMessage) (any, error) {
		return fn(ctx, chi.URLParamFromCtx(ctx, "id"), payload)
	})
}

func (s *Server) handleListFlows(w http.ResponseWriter, r *http.Request) {
	out, _ := s.listFlows(r.Context(), nil)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleInvokeFlow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.rest(func(ctx context.Context, payload json.RawMessage) (any, error) {
		return s.invokeFlow(ctx, name, payload)
	})(w, r)
}

func (s *Server) handleRenameTeam(w http.ResponseWriter, r *http.Request) {
	s.withID(s.renameTeam)(w, r)
}

func (s *Server) handleRemoveTeam(w http.ResponseWriter, r *http.Request) {
	s.withID(func(ctx context.Context, id string, _ json.RawMessage) (any, error) {
		return s.removeTeam(ctx, id)
	})(w, r)
}

func (s *Server) handleRunTeam(w http.ResponseWriter, r *http.Request) {
	s.withID(s.runTeam)(w, r)
}

type healthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Time: time.Now().UTC()})
}
