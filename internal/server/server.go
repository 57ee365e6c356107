// Package server exposes the engine over HTTP. It parses GET, POST and
// batched GraphQL requests, runs the executor, and renders responses per the
// GraphQL over HTTP conventions.
package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	config "github.com/dalsh/lighthouse/internal/config"
	eventbus "github.com/dalsh/lighthouse/internal/eventbus"
	events "github.com/dalsh/lighthouse/internal/events"
	executor "github.com/dalsh/lighthouse/internal/executor"
	reqid "github.com/dalsh/lighthouse/internal/reqid"
	response "github.com/dalsh/lighthouse/internal/response"
)

// Handler is an http.Handler that serves a GraphQL endpoint. Server behavior
// (timeout, body limit, CORS, pretty printing, debug rendering) follows the
// live configuration in the holder.
type Handler struct {
	exec   *executor.Executor
	holder *config.Holder
	bus    *eventbus.Bus
	logger zerolog.Logger
}

// New creates a new GraphQL HTTP handler.
func New(exec *executor.Executor, holder *config.Holder, bus *eventbus.Bus, logger zerolog.Logger) *Handler {
	return &Handler{exec: exec, holder: holder, bus: bus, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := h.holder.Get()

	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && cfg.Server.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Server.Timeout)
		defer cancel()
	}

	ctx, rid := reqid.NewContext(ctx)
	w.Header().Set("X-Request-Id", rid)

	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, h.bus, events.HTTPStart{Request: r})
	defer func() {
		eventbus.Publish(ctx, h.bus, events.HTTPFinish{Request: r, Status: status, Duration: time.Since(start)})
	}()

	if r.Method == http.MethodOptions {
		if len(cfg.Server.CORSOrigins) > 0 {
			setCORSHeaders(w, r, cfg.Server.CORSOrigins)
		}
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, messageResponse("method not allowed"), cfg.Server.Pretty)
		return
	}

	req, batch, perr := parseRequest(r, cfg.Server.MaxBodyBytes)
	if perr != nil {
		status = http.StatusBadRequest
		if perr.Error() == errBodyTooLargeMessage {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, messageResponse(perr.Error()), cfg.Server.Pretty)
		return
	}

	if len(cfg.Server.CORSOrigins) > 0 {
		setCORSHeaders(w, r, cfg.Server.CORSOrigins)
	}

	if batch != nil {
		out := make([]any, len(batch))
		for i := range batch {
			res, err := h.executeOne(ctx, cfg, batch[i])
			if err != nil {
				h.failRequest(ctx, w, err, cfg.Server.Pretty, &status)
				return
			}
			out[i] = res
		}
		writeJSON(w, status, out, cfg.Server.Pretty)
		return
	}

	res, err := h.executeOne(ctx, cfg, req)
	if err != nil {
		h.failRequest(ctx, w, err, cfg.Server.Pretty, &status)
		return
	}
	writeJSON(w, status, res, cfg.Server.Pretty)
}

// executeOne runs one request and formats it. The error return carries only
// fatal conditions (schema build failure, broken handler chain), which the
// transport renders as a non-200 failure.
func (h *Handler) executeOne(ctx context.Context, cfg *config.Config, req GraphQLRequest) (*response.Response, error) {
	result, err := h.exec.Execute(ctx, executor.Request{
		Query:         req.Query,
		OperationName: req.OperationName,
		Variables:     req.Variables,
	})
	if err != nil {
		return nil, err
	}
	flags, ferr := response.ParseFlags(cfg.Debug.Flags)
	if ferr != nil {
		// Validated at load time; a bad live edit degrades to no debug output.
		h.logger.Warn().Err(ferr).Msg("ignoring invalid debug flags")
	}
	return response.Format(result, cfg.Debug.Enabled, flags), nil
}

func (h *Handler) failRequest(ctx context.Context, w http.ResponseWriter, err error, pretty bool, status *int) {
	rid, _ := reqid.FromContext(ctx)
	h.logger.Error().Err(err).Str("request_id", rid).Msg("request failed fatally")
	*status = http.StatusInternalServerError
	writeJSON(w, *status, messageResponse("internal server error"), pretty)
}

// ------------------ Request parsing ------------------

// GraphQLRequest is the wire shape of one GraphQL HTTP request.
type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

type parseError struct{ msg string }

func (e *parseError) Error() string { return e.msg }

func parseRequest(r *http.Request, maxBody int64) (GraphQLRequest, []GraphQLRequest, error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return GraphQLRequest{}, nil, &parseError{"missing 'query'"}
		}
		vars := map[string]any{}
		if v := r.URL.Query().Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &vars); err != nil {
				return GraphQLRequest{}, nil, &parseError{"invalid 'variables' JSON"}
			}
		}
		op := r.URL.Query().Get("operationName")
		return GraphQLRequest{Query: q, Variables: vars, OperationName: op}, nil, nil
	}

	// POST
	ct := r.Header.Get("Content-Type")
	if ct == "" || ct == "application/json" || strings.HasPrefix(ct, "application/json;") {
		reader := io.Reader(r.Body)
		if maxBody > 0 {
			reader = io.LimitReader(r.Body, maxBody+1)
		}
		body, err := io.ReadAll(reader)
		if err != nil {
			return GraphQLRequest{}, nil, &parseError{"failed to read body"}
		}
		defer r.Body.Close()
		if maxBody > 0 && int64(len(body)) > maxBody {
			return GraphQLRequest{}, nil, &parseError{errBodyTooLargeMessage}
		}

		// Try array (batch)
		if len(body) > 0 && body[0] == '[' {
			var arr []GraphQLRequest
			if err := json.Unmarshal(body, &arr); err != nil {
				return GraphQLRequest{}, nil, &parseError{"invalid JSON"}
			}
			if len(arr) == 0 {
				return GraphQLRequest{}, nil, &parseError{"empty batch"}
			}
			return GraphQLRequest{}, arr, nil
		}
		// Single
		var req GraphQLRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return GraphQLRequest{}, nil, &parseError{"invalid JSON"}
		}
		if req.Query == "" {
			return GraphQLRequest{}, nil, &parseError{"missing 'query'"}
		}
		if req.Variables == nil {
			req.Variables = map[string]any{}
		}
		return req, nil, nil
	}

	return GraphQLRequest{}, nil, &parseError{"unsupported Content-Type"}
}

// ------------------ Response formatting ------------------

func messageResponse(msg string) *response.Response {
	return &response.Response{Errors: []response.Error{{Message: msg}}}
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

const errBodyTooLargeMessage = "body too large"

func setCORSHeaders(w http.ResponseWriter, r *http.Request, allowedOrigins []string) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range allowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(allowedOrigins, "*") {
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
