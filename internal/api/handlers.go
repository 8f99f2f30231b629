package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"

	"github.com/FocuswithJustin/sefer/core/citation"
	"github.com/FocuswithJustin/sefer/core/errors"
	"github.com/FocuswithJustin/sefer/internal/logging"
	"github.com/FocuswithJustin/sefer/internal/lookup"
	"github.com/FocuswithJustin/sefer/internal/sefaria"
	"github.com/FocuswithJustin/sefer/internal/validation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthInfo is the health check response.
type HealthInfo struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Uptime       string `json:"uptime"`
	CachedItems  int    `json:"cached_items"`
	WebSocketsUp int64  `json:"websockets"`
}

// ParseResult is the response of the parse endpoint.
type ParseResult struct {
	Input      string             `json:"input"`
	Citation   *citation.Citation `json:"citation"`
	SectionRef string             `json:"section_ref"`
}

// BatchItem is one entry of a multi-citation response.
type BatchItem struct {
	Input   string          `json:"input"`
	Passage *lookup.Passage `json:"passage,omitempty"`
	Error   *APIError       `json:"error,omitempty"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]any{
		"name":    "sefer",
		"version": s.cfg.Version,
		"endpoints": []string{
			"GET /health",
			"GET /metrics",
			"GET /api/v1/parse?q=",
			"GET /api/v1/texts?q=",
			"GET /api/v1/texts/{ref}",
			"WS /api/v1/ws",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, HealthInfo{
		Status:       "healthy",
		Version:      s.cfg.Version,
		Uptime:       time.Since(s.started).Truncate(time.Second).String(),
		CachedItems:  s.passages.Len(),
		WebSocketsUp: s.clients.Load(),
	})
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if err := validation.ValidateCitation(q); err != nil {
		respondErr(w, err)
		return
	}
	c, err := citation.Parse(q)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, ParseResult{Input: q, Citation: c, SectionRef: c.SectionRef()})
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	ref := mux.Vars(r)["ref"]
	opts := s.lookupOptions(r)
	if strings.Contains(r.Header.Get("Cache-Control"), "no-cache") {
		s.passages.Delete(cacheKey(ref, opts))
	}

	p, hit, err := s.lookup(r.Context(), ref, opts)
	if err != nil {
		respondErr(w, err)
		return
	}
	if hit {
		w.Header().Set("X-Cache", "hit")
	} else {
		w.Header().Set("X-Cache", "miss")
	}
	respond(w, http.StatusOK, p)
}

// handleTexts resolves several ';'-separated citations. Each entry carries
// its own passage or error.
func (s *Server) handleTexts(w http.ResponseWriter, r *http.Request) {
	inputs := validation.SplitCitations(r.URL.Query().Get("q"))
	if err := validation.ValidateBatch(inputs); err != nil {
		respondErr(w, err)
		return
	}
	opts := s.lookupOptions(r)

	items := make([]BatchItem, len(inputs))
	var misses []int
	for i, in := range inputs {
		items[i].Input = in
		if p, ok := s.passages.Get(cacheKey(in, opts)); ok {
			s.metrics.cacheEvents.WithLabelValues("hit").Inc()
			items[i].Passage = p
			continue
		}
		misses = append(misses, i)
	}

	if len(misses) > 0 {
		pending := make([]string, len(misses))
		for j, i := range misses {
			pending[j] = inputs[i]
		}
		for j, res := range s.lookups.LookupAll(r.Context(), pending, opts) {
			i := misses[j]
			s.metrics.cacheEvents.WithLabelValues("miss").Inc()
			s.metrics.observeLookup(res.Err)
			if res.Err != nil {
				items[i].Error = &APIError{Code: errorCode(res.Err), Message: res.Err.Error()}
				continue
			}
			s.passages.Set(cacheKey(inputs[i], opts), res.Passage)
			items[i].Passage = res.Passage
		}
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    items,
		Meta:    &APIMeta{Total: len(items), Timestamp: now()},
	})
}

// lookup resolves one citation through the passage cache.
func (s *Server) lookup(ctx context.Context, input string, opts lookup.Options) (*lookup.Passage, bool, error) {
	p, hit, err := s.passages.GetOrLoad(cacheKey(input, opts), func() (*lookup.Passage, error) {
		p, err := s.lookups.Lookup(ctx, input, opts)
		s.metrics.observeLookup(err)
		return p, err
	})
	if hit {
		s.metrics.cacheEvents.WithLabelValues("hit").Inc()
	} else {
		s.metrics.cacheEvents.WithLabelValues("miss").Inc()
	}
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			logging.ErrorContext(ctx, "lookup failed", "input", input, "error", err)
		} else {
			logging.DebugContext(ctx, "lookup failed", "input", input, "error", err)
		}
	}
	return p, hit, err
}

// lookupOptions reads lang, numbers, ven and vhe from the query string.
func (s *Server) lookupOptions(r *http.Request) lookup.Options {
	q := r.URL.Query()
	opts := lookup.Options{
		ShowNumbers: true,
		Hebrew:      s.cfg.Hebrew,
		Versions: sefaria.TextOptions{
			EnglishVersion: q.Get("ven"),
			HebrewVersion:  q.Get("vhe"),
		},
	}
	switch strings.ToLower(q.Get("lang")) {
	case "he":
		opts.Hebrew = true
	case "en":
		opts.Hebrew = false
	}
	if v := q.Get("numbers"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			opts.ShowNumbers = b
		}
	}
	return opts
}

func cacheKey(input string, opts lookup.Options) string {
	return strings.Join([]string{
		strconv.FormatBool(opts.Hebrew),
		strconv.FormatBool(opts.ShowNumbers),
		opts.Versions.EnglishVersion,
		opts.Versions.HebrewVersion,
		strings.Join(strings.Fields(input), " "),
	}, "\x00")
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	switch {
	case validation.Is(err), errors.Is(err, errors.ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrOutOfRange), errors.Is(err, errors.ErrLengthMismatch), errors.Is(err, errors.ErrEmptyInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errors.ErrUnavailable), errors.Is(err, errors.ErrUnexpectedShape):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorCode maps an error to a stable machine-readable code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, errors.ErrMalformed):
		return "MALFORMED_CITATION"
	case validation.Is(err):
		return "INVALID_INPUT"
	case errors.Is(err, errors.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, errors.ErrOutOfRange):
		return "OUT_OF_RANGE"
	case errors.Is(err, errors.ErrLengthMismatch):
		return "LENGTH_MISMATCH"
	case errors.Is(err, errors.ErrEmptyInput):
		return "EMPTY_INPUT"
	case errors.Is(err, errors.ErrUnexpectedShape):
		return "UNEXPECTED_SHAPE"
	case errors.Is(err, errors.ErrUnavailable):
		return "UPSTREAM_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func respond(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Timestamp: now()},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    &APIMeta{Timestamp: now()},
	})
}

func respondErr(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), errorCode(err), err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("encode response failed", "error", err)
	}
}
