// Package shared holds the response envelope helpers every handler uses so
// error payloads stay uniform across modules.
package shared

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	dErrors "formalitys/pkg/domain-errors"
	"formalitys/pkg/requestcontext"
)

// ErrorBody is the wire shape of every error response.
type ErrorBody struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Reasons []string `json:"reasons,omitempty"`
}

// WriteJSON writes a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a domain error to its HTTP status and envelope. Internal
// errors are logged with the request ID and answered with a generic message so
// causes never leak to clients.
func WriteError(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		if logger != nil {
			logger.ErrorContext(ctx, "request failed",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		message = "internal error"
	}
	WriteJSON(w, status, ErrorBody{
		Error:   message,
		Code:    string(code),
		Reasons: dErrors.ReasonsOf(err),
	})
}

// DecodeJSON decodes a request body, rejecting unknown fields.
func DecodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}

// AuthenticatedUserID parses the authenticated user ID set by RequireAuth.
func AuthenticatedUserID(ctx context.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(requestcontext.UserID(ctx))
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeUnauthorized, "invalid authenticated user")
	}
	return id, nil
}

// PathUUID parses a UUID path parameter.
func PathUUID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "invalid id in path")
	}
	return id, nil
}
