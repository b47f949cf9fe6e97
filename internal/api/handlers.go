package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vincentruan/telegram-spring-bot/internal/command"
	"github.com/vincentruan/telegram-spring-bot/internal/sender"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxBodyBytes     = 1 << 20
)

var methodPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,63}$`)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	stats := s.sender.Stats()
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Sender:        stats,
	}
	code := http.StatusOK
	if stats.State != sender.StateRunning.String() {
		resp.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, resp)
}

// handleSend handles POST /commands/{method}.
// The body, if any, is passed to the Bot API method as its parameters.
// With ?wait=<duration> the handler waits for the outcome instead of
// returning as soon as the command is queued.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")
	if !methodPattern.MatchString(method) {
		s.writeError(w, http.StatusBadRequest, "invalid method name")
		return
	}

	body, err := readParams(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var params any
	if body != nil {
		params = body
	}

	wait, err := s.parseWait(r.URL.Query().Get("wait"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		cmd     command.Command
		results chan command.Result
	)
	if wait > 0 {
		results = make(chan command.Result, 1)
		cmd = command.NewCall(method, params, func(res command.Result) { results <- res })
	} else {
		cmd = command.NewCall(method, params, nil)
	}

	if err := s.sender.Offer(r.Context(), cmd); err != nil {
		s.writeOfferError(w, cmd, err)
		return
	}

	resp := SendResponse{CommandID: cmd.ID(), Status: "queued", Method: method}
	if wait == 0 {
		respondJSON(w, http.StatusAccepted, resp)
		return
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case res := <-results:
		if res.Err != nil {
			resp.Status = "failed"
			resp.Error = res.Err.Error()
			respondJSON(w, http.StatusBadGateway, resp)
			return
		}
		resp.Status = "succeeded"
		resp.Result = res.Value
		respondJSON(w, http.StatusOK, resp)
	case <-timer.C:
		respondJSON(w, http.StatusAccepted, resp)
	case <-r.Context().Done():
	}
}

func readParams(r *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, errors.New("failed to read body")
	}
	if len(body) > maxBodyBytes {
		return nil, errors.New("body too large")
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	if body[0] != '{' || !json.Valid(body) {
		return nil, errors.New("body must be a JSON object")
	}
	return json.RawMessage(body), nil
}

func (s *Server) parseWait(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, errors.New("wait must be a non-negative duration")
	}
	if d > s.config.MaxWait {
		d = s.config.MaxWait
	}
	return d, nil
}

func (s *Server) writeOfferError(w http.ResponseWriter, cmd command.Command, err error) {
	switch {
	case errors.Is(err, sender.ErrInvalidCommand):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, sender.ErrQueueFull):
		w.Header().Set("Retry-After", "1")
		s.writeError(w, http.StatusServiceUnavailable, "command queue full")
	case errors.Is(err, sender.ErrNotRunning):
		s.writeError(w, http.StatusServiceUnavailable, "sender not running")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusServiceUnavailable, "request cancelled before command was queued")
	default:
		s.logger.Error("failed to queue command", "command_id", cmd.ID(), "method", cmd.Name(), "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to queue command")
	}
}

// handleListCommands handles GET /commands?limit=N.
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeError(w, http.StatusNotFound, "journal disabled")
		return
	}

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read journal", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read journal")
		return
	}
	counts, err := s.journal.Counts(r.Context())
	if err != nil {
		s.logger.Error("failed to count journal entries", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read journal")
		return
	}

	respondJSON(w, http.StatusOK, CommandListResponse{Commands: entries, Counts: counts})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc())
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
