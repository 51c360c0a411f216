package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jermoo/realms-core/internal/realmdomain"
	"github.com/jermoo/realms-core/internal/realms"
	"github.com/jermoo/realms-core/internal/token"
	"github.com/jermoo/realms-core/internal/wellknown"
)

// writeError renders an error's propagation policy: domain rejections
// render as 400/409 (404 for RealmNotFound), token errors as 401,
// AccessDenied as 403, timeouts as 504, internal errors as 500.
func writeError(w http.ResponseWriter, fallback int, err error) {
	status, body := classify(err)
	if status == 0 {
		status = fallback
	}
	writeJSON(w, status, body)
}

func classify(err error) (int, map[string]any) {
	var invalidToken *token.InvalidAccessToken
	if errors.As(err, &invalidToken) || errors.Is(err, token.ErrInvalidFormat) {
		return http.StatusUnauthorized, errorBody(err)
	}

	var incorrectRev realmdomain.IncorrectRev
	if errors.As(err, &incorrectRev) {
		return http.StatusConflict, errorBody(err)
	}

	var rejection realmdomain.Rejection
	if errors.As(err, &rejection) {
		if errors.Is(rejection, realmdomain.RealmNotFound) {
			return http.StatusNotFound, errorBody(err)
		}
		return http.StatusBadRequest, errorBody(err)
	}

	var wkRejection wellknown.Rejection
	if errors.As(err, &wkRejection) {
		return http.StatusBadRequest, errorBody(err)
	}

	var accessDenied realms.AccessDenied
	if errors.As(err, &accessDenied) {
		return http.StatusForbidden, errorBody(err)
	}

	var timedOut realms.OperationTimedOut
	if errors.As(err, &timedOut) {
		return http.StatusGatewayTimeout, errorBody(err)
	}

	var internal realms.InternalError
	if errors.As(err, &internal) {
		return http.StatusInternalServerError, errorBody(err)
	}

	return 0, nil
}

func errorBody(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
