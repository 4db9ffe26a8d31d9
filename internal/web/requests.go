// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/samber/oops"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 64 << 10

type signupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Requires2FA bool   `json:"requires2FA"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verify2FARequest struct {
	Email          string `json:"email"`
	LoginAttemptID string `json:"loginAttemptId"`
	TwoFACode      string `json:"2FACode"`
}

type verifyTokenRequest struct {
	Token string `json:"token"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type challengeResponse struct {
	Message        string `json:"message"`
	LoginAttemptID string `json:"loginAttemptId"`
}

// schemaValidator is satisfied by a compiled *jschema.Schema.
type schemaValidator interface {
	Validate(v any) error
}

// requestSchemas holds the compiled schema for each request body.
type requestSchemas struct {
	signup      *jschema.Schema
	login       *jschema.Schema
	verify2FA   *jschema.Schema
	verifyToken *jschema.Schema
}

// GenerateRequestSchemas returns the JSON Schema of every request body,
// keyed by route.
func GenerateRequestSchemas() (map[string][]byte, error) {
	out := make(map[string][]byte, 4)
	for route, v := range map[string]any{
		"signup":       &signupRequest{},
		"login":        &loginRequest{},
		"verify-2fa":   &verify2FARequest{},
		"verify-token": &verifyTokenRequest{},
	} {
		data, err := reflectSchema(v)
		if err != nil {
			return nil, oops.With("route", route).Wrap(err)
		}
		out[route] = data
	}
	return out, nil
}

func compileRequestSchemas() (*requestSchemas, error) {
	signup, err := compileSchema("signup", &signupRequest{})
	if err != nil {
		return nil, err
	}
	login, err := compileSchema("login", &loginRequest{})
	if err != nil {
		return nil, err
	}
	verify2FA, err := compileSchema("verify-2fa", &verify2FARequest{})
	if err != nil {
		return nil, err
	}
	verifyToken, err := compileSchema("verify-token", &verifyTokenRequest{})
	if err != nil {
		return nil, err
	}
	return &requestSchemas{
		signup:      signup,
		login:       login,
		verify2FA:   verify2FA,
		verifyToken: verifyToken,
	}, nil
}

// reflectSchema builds the schema for v. Every field without omitempty is
// required and unknown properties are allowed.
func reflectSchema(v any) ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:            true,
		Anonymous:                 true,
		AllowAdditionalProperties: true,
	}
	data, err := json.Marshal(r.Reflect(v))
	if err != nil {
		return nil, oops.Code("SCHEMA_GENERATE_FAILED").Wrap(err)
	}
	return data, nil
}

func compileSchema(name string, v any) (*jschema.Schema, error) {
	data, err := reflectSchema(v)
	if err != nil {
		return nil, err
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
	}

	resource := name + ".json"
	c := jschema.NewCompiler()
	if err := c.AddResource(resource, doc); err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
	}
	sch, err := c.Compile(resource)
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
	}
	return sch, nil
}

// bodyError is a request body rejected before it reached the service.
type bodyError struct {
	status int
	msg    string
	cause  error
}

func (e *bodyError) Error() string {
	return e.msg + ": " + e.cause.Error()
}

func (e *bodyError) Unwrap() error {
	return e.cause
}

// decodeBody reads r's body, checks it against sch and decodes it into dst.
// Malformed JSON is a 400; well-formed JSON of the wrong shape is a 422.
func decodeBody(w http.ResponseWriter, r *http.Request, sch schemaValidator, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &bodyError{status: http.StatusRequestEntityTooLarge, msg: msgBodyTooLarge, cause: err}
		}
		return &bodyError{status: http.StatusBadRequest, msg: msgMalformedBody, cause: err}
	}

	doc, err := jschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return &bodyError{status: http.StatusBadRequest, msg: msgMalformedBody, cause: err}
	}
	if err := sch.Validate(doc); err != nil {
		return &bodyError{status: http.StatusUnprocessableEntity, msg: msgUnprocessableBody, cause: err}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &bodyError{status: http.StatusUnprocessableEntity, msg: msgUnprocessableBody, cause: err}
	}
	return nil
}
