package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/filtersense/filtersense/internal/filter"
	"github.com/filtersense/filtersense/internal/ruleset"
	"github.com/filtersense/filtersense/internal/store"
)

type textRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

type ruleRequest struct {
	Pattern    string `json:"pattern"`
	Severity   string `json:"severity"`
	IgnoreCase bool   `json:"ignore_case"`
}

type errorResponse struct {
	Error string   `json:"error"`
	Rules []string `json:"rules,omitempty"`
}

// decodeText reads a text request. A missing source falls back to the
// X-Source header, then to "api".
func (s *Server) decodeText(w http.ResponseWriter, r *http.Request) (textRequest, bool) {
	var req textRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return req, false
	}
	if req.Source == "" {
		req.Source = r.Header.Get("X-Source")
	}
	if req.Source == "" {
		req.Source = "api"
	}
	return req, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks, blocked := s.svc.Totals()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"rules":   len(s.svc.Rules()),
		"checks":  checks,
		"blocked": blocked,
	})
}

// handleCheck returns the full check result.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeText(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Check(r.Context(), req.Source, req.Text))
}

// handleClassify returns the allowed/restricted verdict.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeText(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Classify(r.Context(), req.Source, req.Text))
}

// handleEnsure answers 204 for safe text and 422 for blocked text.
func (s *Server) handleEnsure(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeText(w, r)
	if !ok {
		return
	}

	err := s.svc.EnsureSafe(r.Context(), req.Source, req.Text)
	if err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var blocked *filter.BlockedError
	if errors.As(err, &blocked) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: blocked.Error(), Rules: blocked.Rules})
		return
	}
	s.logger.Error("ensure safe", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

// handleRedact returns the cleaned text with matches replaced.
func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeText(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Redact(r.Context(), req.Source, req.Text))
}

// handleListRules returns the rules in evaluation order.
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Rules())
}

// handlePutRule adds a rule, or replaces the rule with that name.
func (s *Server) handlePutRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	spec := ruleset.RuleSpec{
		Name:       r.PathValue("name"),
		Pattern:    req.Pattern,
		Severity:   req.Severity,
		IgnoreCase: req.IgnoreCase,
	}
	if err := s.svc.AddSpec(spec); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Rules())
}

// handleDeleteRule removes a rule. Missing rules are not an error.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	s.svc.RemoveRule(r.PathValue("name"))
	w.WriteHeader(http.StatusNoContent)
}

// handleListChecks returns recorded checks as JSON.
func (s *Server) handleListChecks(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "check log not enabled", http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	qf := store.QueryFilter{
		Source:    q.Get("source"),
		Operation: q.Get("operation"),
		Severity:  q.Get("severity"),
		Label:     q.Get("label"),
		Trigger:   q.Get("trigger"),
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		qf.Limit, _ = strconv.Atoi(limitStr)
	}
	if offsetStr := q.Get("offset"); offsetStr != "" {
		qf.Offset, _ = strconv.Atoi(offsetStr)
	}
	if sinceStr := q.Get("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "since must be RFC 3339"})
			return
		}
		qf.Since = &since
	}

	records, err := s.store.Query(r.Context(), qf)
	if err != nil {
		s.logger.Error("query checks", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleGetCheck returns a single recorded check.
func (s *Server) handleGetCheck(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "check log not enabled", http.StatusNotFound)
		return
	}

	rec, err := s.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("get check", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleStats returns check log statistics as JSON.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "check log not enabled", http.StatusNotFound)
		return
	}

	stats, err := s.store.Stats(r.Context(), r.URL.Query().Get("source"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleSSE streams check records and rule changes as they happen.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if s.eventBus == nil {
		http.Error(w, "events not enabled", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	subID := fmt.Sprintf("sse-%d", time.Now().UnixNano())
	ch, unsub := s.eventBus.Subscribe(subID)
	defer unsub()

	ruleCh, ruleUnsub := s.eventBus.SubscribeRules(subID + "-rules")
	defer ruleUnsub()

	// Subscribed before the headers go out, so a client that has seen
	// the response start will not miss later events.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(w, "check", rec); err != nil {
				s.logger.Error("write SSE event", "error", err)
				continue
			}
			flusher.Flush()

		case ev, ok := <-ruleCh:
			if !ok {
				return
			}
			if err := writeEvent(w, "rules", ev); err != nil {
				s.logger.Error("write SSE event", "error", err)
				continue
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "event: %s\n", event)
	fmt.Fprintf(&b, "data: %s\n\n", data)
	_, err = w.Write([]byte(b.String()))
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
