package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"token-vetting/internal/domain"
	"token-vetting/internal/storage"
)

const (
	// kindNotFound is reported when no verdict is stored for a token.
	kindNotFound   domain.ErrorKind = "not_found"
	kindBadRequest domain.ErrorKind = "bad_request"
)

// errBadRequest marks malformed query parameters.
var errBadRequest = errors.New("bad request")

// ErrorBody is the machine-readable failure in an envelope.
type ErrorBody struct {
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

// ErrorResponse is the envelope of every failed request.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

// statusFor maps an engine error to its HTTP status and kind.
func statusFor(err error) (int, domain.ErrorKind) {
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound, kindNotFound
	}
	if errors.Is(err, errBadRequest) {
		return http.StatusBadRequest, kindBadRequest
	}
	kind := domain.KindOf(err)
	switch kind {
	case domain.KindDataUnavailable:
		return http.StatusNotFound, kind
	case domain.KindProviderError:
		return http.StatusBadGateway, kind
	case domain.KindTimeout:
		return http.StatusGatewayTimeout, kind
	case domain.KindInsufficientData:
		return http.StatusUnprocessableEntity, kind
	case domain.KindInvalidToken:
		return http.StatusBadRequest, kind
	default:
		return http.StatusInternalServerError, kind
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the failure envelope for err. Internal errors are not
// echoed to the caller.
func writeError(w http.ResponseWriter, err error) {
	status, kind := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{Kind: kind, Message: msg}})
}

func writeProblem(w http.ResponseWriter, status int, kind domain.ErrorKind, msg string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{Kind: kind, Message: msg}})
}
