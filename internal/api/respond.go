package api

import (
	"bytes"
	"io"
	"net/http"

	json "github.com/goccy/go-json"

	"example.com/matchday/internal/auth"
	"example.com/matchday/internal/domain"
	"example.com/matchday/internal/logging"
	"example.com/matchday/internal/validation"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Type   string                  `json:"type"`
	Detail string                  `json:"detail"`
	Fields []validation.FieldError `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, ErrorResponse{Type: code, Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error().Err(err).Msg("encode response")
	}
}

func statusForClass(class domain.ErrorClass) int {
	switch class {
	case domain.ClassNotFound, domain.ClassNotParticipant:
		return http.StatusNotFound
	case domain.ClassConflict:
		return http.StatusConflict
	case domain.ClassPrecondition:
		return http.StatusUnprocessableEntity
	case domain.ClassInvalid:
		return http.StatusBadRequest
	case domain.ClassForbidden:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// writeDomainError maps classified failures onto statuses. Anything else is
// logged and reported as a generic 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if de, ok := domain.AsError(err); ok {
		writeError(w, statusForClass(de.Class), de.Code, err.Error())
		return
	}
	logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "server_error", "internal server error")
}

func writeAuthError(w http.ResponseWriter, _ *http.Request, status int, err error) {
	code := "unauthorized"
	if status == http.StatusForbidden {
		code = "forbidden"
	}
	writeError(w, status, code, err.Error())
}

// decode parses the JSON body into dst and validates its tags. It writes the
// error response itself and reports whether the handler may continue.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to read body")
		return false
	}
	// An empty body leaves dst at its zero value.
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, dst); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return false
		}
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Type: "validation_failed", Detail: verr.Error(), Fields: verr.Fields})
		return false
	}
	return true
}

func actorFrom(r *http.Request) domain.Actor {
	claims, _ := auth.FromContext(r.Context())
	return claims.Actor()
}
