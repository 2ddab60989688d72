package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/playperu/tourcast/internal/audiotour"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// ErrorResponse is returned for all error responses. Validation failures
// carry Fields; conflicts list the Tours and Stops still referencing the
// target.
type ErrorResponse struct {
	Error  string                 `json:"error"`
	Fields []audiotour.FieldError `json:"fields,omitempty"`
	Tours  []audiotour.Ref        `json:"tours,omitempty"`
	Stops  []audiotour.Ref        `json:"stops,omitempty"`
}

// writeServiceError maps a domain error to its HTTP status. Unknown errors
// are logged and reported as 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var verr *audiotour.ValidationError
	var cerr *audiotour.ConflictError
	switch {
	case errors.Is(err, errBadBody):
		writeError(w, http.StatusBadRequest, errBadBody.Error())
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Fields: verr.Fields})
	case errors.As(err, &cerr):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: cerr.Message, Tours: cerr.Tours, Stops: cerr.Stops})
	case errors.Is(err, audiotour.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, audiotour.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, audiotour.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, audiotour.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
