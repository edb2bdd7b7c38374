package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rfontaine/sundog/internal/job"
	"github.com/rfontaine/sundog/internal/router"
	"github.com/rfontaine/sundog/internal/runner"
)

// errorResponse is the JSON body of every non-2xx analysis response.
type errorResponse struct {
	Error string `json:"error"`
}

// handleStart serves POST /v1/analyses: a fresh analysis, or a resume
// when job_id is set in the body.
func (g *Gateway) handleStart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req router.StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		res, err := g.router.Start(r.Context(), req)
		if err != nil {
			g.writeRouterError(w, err)
			return
		}

		status := http.StatusOK
		if res.Job.Status == job.StatusRunning || res.Job.Status == job.StatusPending {
			status = http.StatusAccepted
		}
		writeJSON(w, status, res)
	}
}

// handlePoll serves GET /v1/analyses/{id}.
func (g *Gateway) handlePoll() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := g.router.Poll(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			g.writeRouterError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// handleCancel serves DELETE /v1/analyses/{id}.
func (g *Gateway) handleCancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := g.router.Cancel(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			g.writeRouterError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// writeRouterError maps router and runner errors onto HTTP statuses.
func (g *Gateway) writeRouterError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, router.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, router.ErrJobRunning), errors.Is(err, runner.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, runner.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		g.logger.Error("request failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
