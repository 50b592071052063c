package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/soyeahso/taskweaver/internal/billing"
	"github.com/soyeahso/taskweaver/internal/runner"
	"github.com/soyeahso/taskweaver/internal/store"
	"github.com/soyeahso/taskweaver/internal/taskexec"
)

// maxBodyBytes caps request bodies; data source content is the largest.
const maxBodyBytes = 4 << 20

// defaultUserID scopes requests that carry no X-User-ID header.
const defaultUserID = "local"

// Envelope is the shape of every response body.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Envelope{Error: &ErrorBody{Code: code, Message: message}})
}

// writeResult sends a service Result. Provider failures map to 502 with
// the classified error kind as the code.
func writeResult[T any](w http.ResponseWriter, res taskexec.Result[T]) {
	if res.Success {
		writeData(w, http.StatusOK, res.Data)
		return
	}
	body := &ErrorBody{Code: string(res.Error.Kind), Message: res.Error.Message}
	if res.Error.Details != "" {
		body.Details = res.Error.Details
	}
	writeJSON(w, http.StatusBadGateway, Envelope{Error: body})
}

// writeErr maps domain errors to HTTP statuses. Anything unrecognized is
// logged and reported as an internal error without its message.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var limit *billing.LimitError
	switch {
	case errors.As(err, &limit):
		writeJSON(w, http.StatusForbidden, Envelope{Error: &ErrorBody{
			Code:    "limit_reached",
			Message: fmt.Sprintf("Your %s plan allows %d %s.", limit.Plan, limit.Limit, strings.ReplaceAll(string(limit.Resource), "_", " ")),
			Details: limit,
		}})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, taskexec.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_request", strings.TrimPrefix(err.Error(), taskexec.ErrInvalidArgument.Error()+": "))
	case errors.Is(err, runner.ErrAgentInactive):
		writeError(w, http.StatusConflict, "agent_inactive", err.Error())
	case errors.Is(err, runner.ErrAgentBusy), errors.Is(err, runner.ErrNotPending), errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		s.log.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", requestIDFrom(r.Context())).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// decodeBody reads a JSON request body into dst. An empty body leaves dst
// untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid JSON body: %v", taskexec.ErrInvalidArgument, err)
	}
	return nil
}

// userHeader selects the user scope for requests made with the shared token
// or with auth disabled.
const userHeader = "X-User-ID"

// userID returns the caller's user scope: the user bound to the token, else
// the X-User-ID header, else the local user.
func userID(r *http.Request) string {
	if id, _ := r.Context().Value(userKey).(string); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.Header.Get(userHeader)); id != "" {
		return id
	}
	return defaultUserID
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{taskexec.ErrInvalidArgument}, args...)...)
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not_found", "no route for "+r.Method+" "+r.URL.Path)
}
