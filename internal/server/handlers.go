package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/raaihank/log-redactor/internal/audit"
	"github.com/raaihank/log-redactor/internal/redact"
	"github.com/raaihank/log-redactor/internal/reload"
	"go.uber.org/zap"
)

type redactRequest struct {
	Text  *string  `json:"text"`
	Texts []string `json:"texts"`
}

type redactBatchResponse struct {
	Results []redact.Result `json:"results"`
}

type ruleView struct {
	Index         int    `json:"index"`
	Description   string `json:"description,omitempty"`
	Trigger       string `json:"trigger,omitempty"`
	Search        string `json:"search"`
	CaseSensitive bool   `json:"caseSensitive"`
}

type rulesResponse struct {
	Source   string     `json:"source"`
	Version  int        `json:"version,omitempty"`
	Checksum string     `json:"checksum"`
	Count    int        `json:"count"`
	Rules    []ruleView `json:"rules"`
}

// configErrorView is the JSON form of a *redact.ConfigError
type configErrorView struct {
	Kind    redact.ErrorKind `json:"kind"`
	Source  string           `json:"source,omitempty"`
	Rule    *int             `json:"rule,omitempty"`
	Field   string           `json:"field,omitempty"`
	Line    int              `json:"line,omitempty"`
	Column  int              `json:"column,omitempty"`
	Message string           `json:"message"`
}

type reloadErrorResponse struct {
	Error   string           `json:"error"`
	Details *configErrorView `json:"details,omitempty"`
	Event   reload.Event     `json:"event"`
}

type historyResponse struct {
	Reloads []audit.Record `json:"reloads"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.manager.Engine().Configured() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unconfigured"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":              Name,
		"version":           Version,
		"rules_source":      s.manager.Source().Name(),
		"status":            s.Status(),
		"websocket_enabled": s.hub != nil,
		"audit_enabled":     s.history != nil,
	}
	if ev, ok := s.manager.Last(); ok {
		info["last_reload"] = ev
	}
	writeJSON(w, http.StatusOK, info)
}

// handleRedact redacts one text or a batch of texts
func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	engine := s.manager.Engine()
	if !engine.Configured() {
		writeError(w, http.StatusServiceUnavailable, redact.ErrUnconfigured.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes)
	var req redactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	switch {
	case req.Text != nil && req.Texts != nil:
		writeError(w, http.StatusBadRequest, `use either "text" or "texts", not both`)
	case req.Text != nil:
		res := engine.RedactDetailed(*req.Text)
		s.count(res)
		writeJSON(w, http.StatusOK, res)
	case req.Texts != nil:
		out := redactBatchResponse{Results: make([]redact.Result, len(req.Texts))}
		for i, text := range req.Texts {
			out.Results[i] = engine.RedactDetailed(text)
			s.count(out.Results[i])
		}
		writeJSON(w, http.StatusOK, out)
	default:
		writeError(w, http.StatusBadRequest, `request needs "text" or "texts"`)
	}
}

func (s *Server) count(res redact.Result) {
	s.stats.redactions.Add(1)
	if res.Changed {
		s.stats.changed.Add(1)
	}
}

// handleRules lists the bound rules
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	rs := s.manager.Engine().RuleSet()
	if rs == nil {
		writeError(w, http.StatusServiceUnavailable, redact.ErrUnconfigured.Error())
		return
	}

	resp := rulesResponse{
		Source:   rs.Source(),
		Version:  rs.Version(),
		Checksum: rs.Checksum(),
		Count:    rs.Len(),
		Rules:    make([]ruleView, 0, rs.Len()),
	}
	for i, rule := range rs.Rules() {
		resp.Rules = append(resp.Rules, ruleView{
			Index:         i,
			Description:   rule.Description(),
			Trigger:       rule.Trigger(),
			Search:        rule.Search(),
			CaseSensitive: rule.CaseSensitive(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReload reloads the rules from the configured source
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	ev, err := s.manager.Reload(r.Context(), reload.TriggerAPI)
	if err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Warn("Reload requested over API failed", zap.Error(err))
		resp := reloadErrorResponse{Error: err.Error(), Event: ev}
		var cfgErr *redact.ConfigError
		if errors.As(err, &cfgErr) {
			resp.Details = newConfigErrorView(cfgErr)
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// handleReloads returns the audit history
func (s *Server) handleReloads(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "reload history is not enabled")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to read reload history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read reload history")
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Reloads: records})
}

func newConfigErrorView(e *redact.ConfigError) *configErrorView {
	v := &configErrorView{
		Kind:    e.Kind,
		Source:  e.Source,
		Field:   e.Field,
		Line:    e.Line,
		Column:  e.Column,
		Message: e.Msg,
	}
	if e.Index >= 0 {
		idx := e.Index
		v.Rule = &idx
	}
	if e.Err != nil {
		v.Message += ": " + e.Err.Error()
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
