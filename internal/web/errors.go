// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/pkg/errutil"
)

// Client-facing error messages.
const (
	msgInvalidInput         = "Invalid input"
	msgUserExists           = "User already exists"
	msgIncorrectCredentials = "Incorrect credentials"
	msgMissingToken         = "Missing auth token"
	msgInvalidToken         = "Invalid auth token"
	msgUnexpected           = "Unexpected error"
	msgMalformedBody        = "Malformed JSON body"
	msgUnprocessableBody    = "Request body does not match the expected shape"
	msgBodyTooLarge         = "Request body too large"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps a service error to an HTTP status and a client-safe message.
// Backend failures are checked first so that a wrapped cause can never be
// mistaken for a client error.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrUnexpected):
		return http.StatusInternalServerError, msgUnexpected
	case errors.Is(err, auth.ErrInvalidInput):
		return http.StatusBadRequest, errutil.PublicMessage(err, msgInvalidInput)
	case errors.Is(err, auth.ErrAlreadyExists):
		return http.StatusConflict, msgUserExists
	case errors.Is(err, auth.ErrIncorrectCredentials):
		return http.StatusUnauthorized, msgIncorrectCredentials
	case errors.Is(err, auth.ErrMissingToken):
		return http.StatusBadRequest, msgMissingToken
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, msgInvalidToken
	default:
		return http.StatusInternalServerError, msgUnexpected
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
