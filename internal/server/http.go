package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/nainya/boardstore/internal/events"
	"github.com/nainya/boardstore/internal/logger"
	"github.com/nainya/boardstore/internal/metrics"
	"github.com/nainya/boardstore/pkg/api"
	"github.com/nainya/boardstore/pkg/board"
	"github.com/nainya/boardstore/pkg/export"
	"github.com/nainya/boardstore/pkg/store"
)

// MaxBodyBytes bounds request bodies
const MaxBodyBytes = 32 << 20

// API serves the whiteboard HTTP interface
type API struct {
	store     store.Store
	hub       *events.Hub
	validator *requestValidator
	limiter   *IPRateLimit
	log       *logger.Logger
	metrics   *metrics.Metrics
	mux       *http.ServeMux
}

// NewAPI builds the HTTP handler. hub and limiter may be nil.
func NewAPI(st store.Store, hub *events.Hub, limiter *IPRateLimit, log *logger.Logger, m *metrics.Metrics) *API {
	a := &API{
		store:     st,
		hub:       hub,
		validator: newRequestValidator(),
		limiter:   limiter,
		log:       log.Component("http"),
		metrics:   m,
		mux:       http.NewServeMux(),
	}

	a.mux.HandleFunc("GET /whiteboard/get", a.handleList)
	a.mux.HandleFunc("POST /whiteboard/create", a.handleCreate)
	a.mux.HandleFunc("GET /whiteboard/get/{id}", a.handleGet)
	a.mux.HandleFunc("PUT /whiteboard/update/{id}", a.handleUpdate)
	a.mux.HandleFunc("GET /whiteboard/get/{id}/versions", a.handleVersions)
	a.mux.HandleFunc("GET /whiteboard/get/{id}/restore/{index}", a.handleRestore)
	a.mux.HandleFunc("POST /whiteboard/get/{id}/restore/{index}", a.handleRestore)
	a.mux.HandleFunc("GET /whiteboard/get/{id}/export.pdf", a.handleExport)
	if hub != nil {
		a.mux.HandleFunc("GET /whiteboard/ws/{id}", a.handleFeed)
	}
	return a
}

// ServeHTTP implements http.Handler
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	route := "unmatched"
	if a.limiter != nil && !a.limiter.Allow(a.limiter.ClientIP(r)) {
		a.metrics.RateLimitedTotal.Inc()
		writeError(rec, http.StatusTooManyRequests, api.CodeRateLimited, "too many requests")
		route = "rate_limited"
	} else {
		ctx := r.Context()
		if user := r.Header.Get(api.HeaderUserID); user != "" {
			ctx = board.WithAuthor(ctx, user)
		}
		if tenant := r.Header.Get(api.HeaderTenantID); tenant != "" {
			ctx = board.WithTenant(ctx, tenant)
		}
		req := r.WithContext(ctx)
		a.mux.ServeHTTP(rec, req)
		if req.Pattern != "" {
			route = req.Pattern
		}
	}

	duration := time.Since(start)
	a.metrics.RecordHTTPRequest(route, rec.status, duration)
	a.log.LogHTTPRequest(r.Method, route, rec.status, duration)
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := a.store.List(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	if list == nil {
		list = []board.Summary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req api.CreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	name, err := a.validator.Name(req.Name)
	if err != nil {
		a.fail(w, err)
		return
	}

	wb, err := a.store.Create(r.Context(), name, board.TenantFrom(r.Context()))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, api.FromWhiteboard(wb, false))
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	wb, err := a.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromWhiteboard(wb, true))
}

func (a *API) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateRequest
	if !a.decode(w, r, &req) {
		return
	}

	v, err := a.store.PutCurrent(r.Context(), r.PathValue("id"), req.Data)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.WriteResponse{Success: true, Version: api.FromVersion(v, false)})
}

func (a *API) handleVersions(w http.ResponseWriter, r *http.Request) {
	withData, _ := strconv.ParseBool(r.URL.Query().Get("payload"))

	versions, err := a.store.ListVersions(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	out := make([]api.Version, len(versions))
	for i := range versions {
		out[i] = api.FromVersion(&versions[i], withData)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleRestore(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, api.CodeInvalidRequest, "version index must be an integer")
		return
	}

	withData, _ := strconv.ParseBool(r.URL.Query().Get("payload"))

	v, err := a.store.Restore(r.Context(), r.PathValue("id"), index)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.WriteResponse{Success: true, Version: api.FromVersion(v, withData)})
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	wb, err := a.store.Get(ctx, id)
	if err != nil {
		a.fail(w, err)
		return
	}

	page := export.SnapshotPage(wb)
	filename := wb.ID + ".pdf"
	if raw := r.URL.Query().Get("version"); raw != "" {
		index, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, api.CodeInvalidRequest, "version must be an integer")
			return
		}
		versions, err := a.store.ListVersions(ctx, id)
		if err != nil {
			a.fail(w, err)
			return
		}
		if index < 0 || index >= len(versions) {
			a.fail(w, fmt.Errorf("%w: %d not in [0, %d)", board.ErrOutOfRange, index, len(versions)))
			return
		}
		page = export.VersionPage(wb, &versions[index])
		filename = fmt.Sprintf("%s-v%d.pdf", wb.ID, index)
	}

	var buf bytes.Buffer
	if err := export.WritePDF(&buf, page); err != nil {
		a.fail(w, err)
		return
	}
	a.metrics.ExportsTotal.Inc()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (a *API) handleFeed(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := a.store.Get(r.Context(), id); err != nil {
		a.fail(w, err)
		return
	}
	a.hub.Serve(unwrap(w), r, id)
}

// decode reads and validates a JSON body, writing the error response itself
func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, api.CodeInvalidRequest, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, api.CodeInvalidRequest, "malformed JSON body: "+err.Error())
		return false
	}
	if err := a.validator.Check(dst); err != nil {
		a.fail(w, err)
		return false
	}
	return true
}

// fail maps err onto a status code and error body
func (a *API) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, board.ErrNotFound):
		writeError(w, http.StatusNotFound, api.CodeNotFound, err.Error())
	case errors.Is(err, board.ErrOutOfRange):
		writeError(w, http.StatusBadRequest, api.CodeOutOfRange, err.Error())
	case errors.Is(err, board.ErrInvalidInput), errors.Is(err, board.ErrDecode):
		writeError(w, http.StatusBadRequest, api.CodeInvalidRequest, err.Error())
	case errors.Is(err, board.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, api.CodeStoreUnavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, api.CodeStoreUnavailable, err.Error())
	default:
		a.log.Error("Unhandled request error").Err(err).Send()
		writeError(w, http.StatusInternalServerError, api.CodeInternal, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, errCode, msg string) {
	writeJSON(w, code, api.ErrorResponse{Error: msg, Code: errCode})
}

// statusRecorder captures the response code for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wrote {
		s.status = code
		s.wrote = true
	}
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// unwrap returns the writer the websocket upgrader can hijack
func unwrap(w http.ResponseWriter) http.ResponseWriter {
	if rec, ok := w.(*statusRecorder); ok {
		rec.status = http.StatusSwitchingProtocols
		return rec.ResponseWriter
	}
	return w
}
