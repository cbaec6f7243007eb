package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/mailer-backend/internal/errors"
)

type ctxKey int

const userIDKey ctxKey = iota

// RequireUser reads the caller from X-User-ID. Authentication itself happens
// upstream of this service.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(r.Header.Get("X-User-ID"))
		if err != nil || id <= 0 {
			writeError(w, r, http.StatusUnauthorized, "missing or invalid X-User-ID")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, id)))
	})
}

func userID(r *http.Request) int {
	id, _ := r.Context().Value(userIDKey).(int)
	return id
}

func pathID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	return id, err == nil && id > 0
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps domain errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case appErrors.IsNotFound(err):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, appErrors.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, appErrors.ErrOutsideWindow):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, appErrors.ErrInvalidPeriodicity),
		errors.Is(err, appErrors.ErrInvalidStatus),
		errors.Is(err, appErrors.ErrInvalidWindow),
		errors.Is(err, appErrors.ErrValidation):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		logrus.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid body")
		return false
	}
	return true
}
