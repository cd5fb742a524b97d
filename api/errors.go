package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/oriser/tramper/request"
)

type errorDetails struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type errorBody struct {
	Error errorDetails `json:"error"`
}

var statusByKind = map[request.Kind]int{
	request.KindValidation:    http.StatusBadRequest,
	request.KindAuthorization: http.StatusForbidden,
	request.KindState:         http.StatusConflict,
	request.KindNotFound:      http.StatusNotFound,
	request.KindConflict:      http.StatusConflict,
}

// writeError renders err as a structured error. Internal failures are logged and
// reported without details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := request.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		log.Printf("Error handling %s %s: %v\n", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetails{Kind: string(request.KindInternal), Message: "internal error"}})
		return
	}

	details := errorDetails{Kind: string(kind), Message: domainMessage(err)}
	var validationErr *request.ValidationError
	if errors.As(err, &validationErr) {
		details.Field = validationErr.Field
	}
	writeJSON(w, status, errorBody{Error: details})
}

// domainMessage strips infrastructure context wrapped around a domain error.
func domainMessage(err error) string {
	var (
		validationErr    *request.ValidationError
		authorizationErr *request.AuthorizationError
		stateErr         *request.StateError
		notFoundErr      *request.NotFoundError
		conflictErr      *request.ConflictError
	)
	switch {
	case errors.As(err, &validationErr):
		return validationErr.Error()
	case errors.As(err, &authorizationErr):
		return authorizationErr.Error()
	case errors.As(err, &stateErr):
		return stateErr.Error()
	case errors.As(err, &notFoundErr):
		return notFoundErr.Error()
	case errors.As(err, &conflictErr):
		return "conflict: " + conflictErr.Reason
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error writing response: %v\n", err)
	}
}

func decodeBody(r *http.Request, target interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return &request.ValidationError{Reason: "malformed request body: " + err.Error()}
	}
	return nil
}
