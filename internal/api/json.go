package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/twhost/internal/apperr"
	"github.com/starford/twhost/internal/twfile"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps service errors onto HTTP statuses. Unexpected errors are
// logged with op and answered with a generic 500.
func writeError(w http.ResponseWriter, err error, op string, attrs ...slog.Attr) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrInvalid):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrTooLarge), errors.As(err, &maxErr):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("document too large"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("site already exists"))
	case errors.Is(err, apperr.ErrEncrypted):
		writeJSON(w, http.StatusConflict, errorBody("site is encrypted"))
	case errors.Is(err, twfile.ErrDuplicateTiddler):
		slog.Error(op+" failed", append(attrAny(attrs), slog.String("error", err.Error()))...)
		writeJSON(w, http.StatusInternalServerError, errorBody("duplicate tiddler"))
	default:
		slog.Error(op+" failed", append(attrAny(attrs), slog.String("error", err.Error()))...)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func attrAny(attrs []slog.Attr) []any {
	out := make([]any, 0, len(attrs)+1)
	for _, a := range attrs {
		out = append(out, a)
	}
	return out
}
