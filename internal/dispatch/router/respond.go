package router

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/shepherdvovkes/reyestr/internal/dispatch/service"
)

var validate = validator.New()

// errorEnvelope is the JSON failure body shared by every endpoint.
type errorEnvelope struct {
	Kind    service.Kind `json:"kind"`
	Message string       `json:"message"`
	Details string       `json:"details,omitempty"`
}

func statusForKind(k service.Kind) int {
	switch k {
	case service.KindBadRequest:
		return http.StatusBadRequest
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	case service.KindTimeout:
		return http.StatusRequestTimeout
	case service.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := service.KindOf(err)

	env := errorEnvelope{Kind: kind, Message: err.Error()}
	var se *service.Error
	if errors.As(err, &se) {
		env.Message = se.Message
		env.Details = se.Details
	}

	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	respondJSON(w, status, env)
}

// decodeValid decodes the request body into dst and runs struct validation.
// Unknown body fields are ignored so older workers keep working.
func decodeValid(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &service.Error{
			Kind:    service.KindBadRequest,
			Message: "invalid request body",
			Details: err.Error(),
		}
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" failed "+fe.Tag())
			}
			return &service.Error{
				Kind:    service.KindBadRequest,
				Message: "validation failed",
				Details: strings.Join(fields, "; "),
			}
		}
		return &service.Error{Kind: service.KindBadRequest, Message: "validation failed", Details: err.Error()}
	}
	return nil
}
