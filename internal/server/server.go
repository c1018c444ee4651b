package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"github.com/hanpama/mongoview/internal/eventbus"
	"github.com/hanpama/mongoview/internal/events"
	"github.com/hanpama/mongoview/internal/graph"
	"github.com/hanpama/mongoview/internal/logger"
	"github.com/hanpama/mongoview/internal/reqid"
	"github.com/hanpama/mongoview/internal/view"
)

// Handler is an http.Handler that triggers view runs.
//
//	GET  /views                         list views
//	POST /views/{name}/materialize      full materialization
//	POST /views/{name}/recompute        {"type": T, "id": X} or {"filter": <extended JSON>}
//	GET  /views/{name}/filter?type=&id= reverse filter for a changed document
//	GET  /metrics                       when a metrics handler is configured
type Handler struct {
	views *view.Set
	mux   *http.ServeMux
	opt   Options
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler

	Logger logger.Logger
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option       { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                       { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option          { return func(o *Options) { o.MaxBodyBytes = n } }
func WithMetricsHandler(h http.Handler) Option { return func(o *Options) { o.Metrics = h } }
func WithLogger(l logger.Logger) Option        { return func(o *Options) { o.Logger = l } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates a trigger handler serving the views of set.
func New(set *view.Set, opts ...Option) (*Handler, error) {
	if set == nil {
		return nil, errors.New("server: nil view set")
	}
	op := Options{Timeout: 10 * time.Minute, MaxBodyBytes: 1 << 20, Logger: logger.NewNoopLogger()}
	for _, f := range opts {
		f(&op)
	}
	h := &Handler{views: set, mux: http.NewServeMux(), opt: op}
	h.mux.HandleFunc("GET /views", h.handle(h.list))
	h.mux.HandleFunc("POST /views/{name}/materialize", h.handle(h.materialize))
	h.mux.HandleFunc("POST /views/{name}/recompute", h.handle(h.recompute))
	h.mux.HandleFunc("GET /views/{name}/filter", h.handle(h.filter))
	if op.Metrics != nil {
		h.mux.Handle("GET /metrics", op.Metrics)
	}
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}
	ctx, _ = reqid.NewContext(ctx)
	r = r.WithContext(ctx)

	_, route := h.mux.Handler(r)
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r, Route: route})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, Route: route, Status: sw.status, Duration: time.Since(start)})
	}()

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(sw, r, h.opt.CORS)
	}
	if r.Method == http.MethodOptions {
		sw.WriteHeader(http.StatusNoContent)
		return
	}
	h.mux.ServeHTTP(sw, r)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// ------------------ Routes ------------------

type routeFunc func(r *http.Request) (any, error)

// httpError carries a status for errors caused by the request itself.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &httpError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func (h *Handler) handle(fn routeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := fn(r)
		if err != nil {
			status := statusOf(err)
			if status >= http.StatusInternalServerError {
				h.opt.Logger.ErrorWithContext(r.Context(), "trigger request failed",
					zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
			}
			writeJSON(w, status, errorBody{Error: err.Error()}, h.opt.Pretty)
			return
		}
		writeJSON(w, http.StatusOK, res, h.opt.Pretty)
	}
}

func statusOf(err error) int {
	var he *httpError
	switch {
	case errors.As(err, &he):
		return he.status
	case errors.Is(err, view.ErrUnknownView):
		return http.StatusNotFound
	case errors.Is(err, graph.ErrUnknownType):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error string `json:"error"`
}

type viewInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type listResult struct {
	Views []viewInfo `json:"views"`
}

type runResult struct {
	View      string `json:"view"`
	Documents int    `json:"documents"`
}

type filterResult struct {
	View   string          `json:"view"`
	Type   string          `json:"type"`
	Filter json.RawMessage `json:"filter"`
}

func (h *Handler) list(r *http.Request) (any, error) {
	out := listResult{Views: []viewInfo{}}
	for _, name := range h.views.Names() {
		v, err := h.views.Get(name)
		if err != nil {
			return nil, err
		}
		out.Views = append(out.Views, viewInfo{Name: name, Type: v.Plan().Type})
	}
	return out, nil
}

func (h *Handler) materialize(r *http.Request) (any, error) {
	v, err := h.views.Get(r.PathValue("name"))
	if err != nil {
		return nil, err
	}
	n, err := v.MaterializeAll(r.Context())
	if err != nil {
		return nil, err
	}
	return runResult{View: v.Name(), Documents: n}, nil
}

type recomputeRequest struct {
	Type   string          `json:"type,omitempty"`
	ID     json.RawMessage `json:"id,omitempty"`
	Filter json.RawMessage `json:"filter,omitempty"`
}

func (h *Handler) recompute(r *http.Request) (any, error) {
	v, err := h.views.Get(r.PathValue("name"))
	if err != nil {
		return nil, err
	}
	req, err := h.parseRecompute(r)
	if err != nil {
		return nil, err
	}

	var n int
	switch {
	case len(req.Filter) > 0:
		var f bson.M
		if err := bson.UnmarshalExtJSON(req.Filter, false, &f); err != nil {
			return nil, badRequest("invalid filter: %v", err)
		}
		n, err = v.Recompute(r.Context(), f)
	case req.Type != "" && len(req.ID) > 0:
		id, perr := parseID(req.ID)
		if perr != nil {
			return nil, perr
		}
		n, err = v.RecomputeFor(r.Context(), req.Type, id)
	default:
		return nil, badRequest("either filter or type and id are required")
	}
	if err != nil {
		return nil, err
	}
	return runResult{View: v.Name(), Documents: n}, nil
}

func (h *Handler) parseRecompute(r *http.Request) (recomputeRequest, error) {
	var req recomputeRequest
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" && !strings.HasPrefix(ct, "application/json;") {
		return req, &httpError{status: http.StatusUnsupportedMediaType, msg: "unsupported Content-Type"}
	}
	reader := io.Reader(r.Body)
	if h.opt.MaxBodyBytes > 0 {
		reader = io.LimitReader(r.Body, h.opt.MaxBodyBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return req, badRequest("failed to read body")
	}
	defer r.Body.Close()
	if h.opt.MaxBodyBytes > 0 && int64(len(body)) > h.opt.MaxBodyBytes {
		return req, &httpError{status: http.StatusRequestEntityTooLarge, msg: "body too large"}
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, badRequest("invalid JSON")
	}
	return req, nil
}

func (h *Handler) filter(r *http.Request) (any, error) {
	v, err := h.views.Get(r.PathValue("name"))
	if err != nil {
		return nil, err
	}
	typ, id := r.URL.Query().Get("type"), r.URL.Query().Get("id")
	if typ == "" || id == "" {
		return nil, badRequest("type and id are required")
	}
	f, err := v.FilterFor(typ, id)
	if err != nil {
		return nil, err
	}
	raw, err := bson.MarshalExtJSON(f, false, false)
	if err != nil {
		return nil, err
	}
	return filterResult{View: v.Name(), Type: typ, Filter: raw}, nil
}

// parseID accepts a JSON string or number, or an extended JSON value such as
// {"$oid": "..."}. Integral numbers become int64.
func parseID(raw json.RawMessage) (any, error) {
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		return parseExtJSONID(trimmed)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, badRequest("invalid id")
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, badRequest("invalid id")
		}
		return f, nil
	}
	return nil, badRequest("id must be a string, a number or an extended JSON value")
}

func parseExtJSONID(raw []byte) (any, error) {
	var doc struct {
		ID bson.RawValue `bson:"id"`
	}
	wrapped := append(append([]byte(`{"id":`), raw...), '}')
	if err := bson.UnmarshalExtJSON(wrapped, false, &doc); err != nil {
		return nil, badRequest("invalid id: %v", err)
	}
	switch doc.ID.Type {
	case bson.TypeEmbeddedDocument, bson.TypeArray:
		return nil, badRequest("id must be a string, a number or an extended JSON value")
	}
	var id any
	if err := doc.ID.Unmarshal(&id); err != nil {
		return nil, badRequest("invalid id: %v", err)
	}
	return id, nil
}

// ------------------ Response formatting ------------------

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
