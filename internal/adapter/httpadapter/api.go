package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/couchcryptid/coastal-risk-service/internal/alert"
	"github.com/couchcryptid/coastal-risk-service/internal/domain"
	"github.com/couchcryptid/coastal-risk-service/internal/pipeline"
)

// maxBodyBytes bounds run option bodies.
const maxBodyBytes = 64 << 10

// Pipeline runs and inspects parcel pipelines.
type Pipeline interface {
	Run(ctx context.Context, identifier string, opts pipeline.Options) (pipeline.Result, error)
	RunQuick(ctx context.Context, identifier string, opts pipeline.Options) (pipeline.QuickResult, error)
	Status(ctx context.Context, identifier string) (pipeline.Status, error)
}

// Dispatcher processes recent source events.
type Dispatcher interface {
	ProcessRecent(ctx context.Context) (alert.Summary, error)
}

// Inbox reads a user's alerts.
type Inbox interface {
	List(ctx context.Context, userID string, limit int) ([]alert.InboxItem, error)
	Stats(ctx context.Context, userID string) (alert.Stats, error)
}

// API holds the JSON endpoint handlers.
type API struct {
	pipeline   Pipeline
	dispatcher Dispatcher
	inbox      Inbox
	logger     *slog.Logger
}

// NewAPI creates the API handlers.
func NewAPI(p Pipeline, d Dispatcher, inbox Inbox, logger *slog.Logger) *API {
	return &API{pipeline: p, dispatcher: d, inbox: inbox, logger: logger}
}

func (a *API) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/pipeline/run/{identifier}", a.handleRun)
	mux.HandleFunc("POST /api/pipeline/quick/{identifier}", a.handleQuick)
	mux.HandleFunc("GET /api/pipeline/status/{identifier}", a.handleStatus)
	mux.HandleFunc("POST /api/alerts/process", a.handleProcess)
	mux.HandleFunc("GET /api/alerts/inbox/{userId}", a.handleInbox)
	mux.HandleFunc("GET /api/alerts/stats/{userId}", a.handleStats)
}

type errorBody struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Result any    `json:"result,omitempty"`
}

func (a *API) handleRun(w http.ResponseWriter, r *http.Request) {
	req, err := runRequest(w, r)
	if err != nil {
		a.writeError(w, r, err, nil)
		return
	}
	res, err := a.pipeline.Run(r.Context(), req.Identifier, req.Options())
	if err != nil {
		a.writeError(w, r, err, res)
		return
	}
	writeJSON(w, resultStatus(res.Success), res)
}

func (a *API) handleQuick(w http.ResponseWriter, r *http.Request) {
	req, err := runRequest(w, r)
	if err != nil {
		a.writeError(w, r, err, nil)
		return
	}
	res, err := a.pipeline.RunQuick(r.Context(), req.Identifier, req.Options())
	if err != nil {
		a.writeError(w, r, err, res)
		return
	}
	writeJSON(w, resultStatus(res.Success), res)
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := a.pipeline.Status(r.Context(), r.PathValue("identifier"))
	if err != nil {
		a.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) handleProcess(w http.ResponseWriter, r *http.Request) {
	summary, err := a.dispatcher.ProcessRecent(r.Context())
	if err != nil {
		a.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleInbox(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			a.writeError(w, r, fmt.Errorf("%w: limit must be an integer", domain.ErrValidation), nil)
			return
		}
		limit = n
	}
	items, err := a.inbox.List(r.Context(), r.PathValue("userId"), limit)
	if err != nil {
		a.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": items, "count": len(items)})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.inbox.Stats(r.Context(), r.PathValue("userId"))
	if err != nil {
		a.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// runRequest builds a run request from the path and an optional JSON body
// carrying timeWindowHrs and audience.
func runRequest(w http.ResponseWriter, r *http.Request) (pipeline.RunRequest, error) {
	var req pipeline.RunRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return req, fmt.Errorf("%w: read body: %w", domain.ErrValidation, err)
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return req, fmt.Errorf("%w: decode run options: %w", domain.ErrValidation, err)
		}
	}
	req.Identifier = r.PathValue("identifier")
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

func resultStatus(success bool) int {
	if success {
		return http.StatusOK
	}
	return http.StatusUnprocessableEntity
}

// StatusFor maps the error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPreconditionFailed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error, result any) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: domain.Kind(err), Result: result})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}
