// internal/schema/validator.go
// Package schema provides JSON schema validation for inbound request bodies.
// It rejects malformed payloads at the edge before any handler logic runs.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schema names for the payloads validated at the edge.
const (
	AddMovie      = "movie.add"
	UpdateMovie   = "movie.update"
	Register      = "auth.register"
	Login         = "auth.login"
	ResetPassword = "auth.resetPassword"
	PosterUpload  = "poster.upload"
)

// Validator validates request payloads against JSON schemas.
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// NewValidator creates a validator with all request schemas compiled.
func NewValidator() (*Validator, error) {
	v := &Validator{
		schemas: make(map[string]*gojsonschema.Schema),
	}
	if err := v.loadSchemas(); err != nil {
		return nil, fmt.Errorf("failed to load schemas: %w", err)
	}
	return v, nil
}

// loadSchemas compiles the JSON schemas for every validated payload.
// Ratings use the canonical 0 to 5 scale, watch times are RFC 3339 strings.
func (v *Validator) loadSchemas() error {
	addMovieSchema := `{"type":"object","required":["tmdbId","title","watchTime","rating"],"properties":{
		"tmdbId":{"type":"string","minLength":1},
		"title":{"type":"string","minLength":1,"maxLength":512},
		"posterPath":{"type":"string","maxLength":1024},
		"description":{"type":"string","maxLength":4096},
		"watchTime":{"type":"string","format":"date-time"},
		"rating":{"type":"number","minimum":0,"maximum":5}}}`
	if err := v.loadSchema(AddMovie, addMovieSchema); err != nil {
		return fmt.Errorf("failed to load add-movie schema: %w", err)
	}

	updateMovieSchema := `{"type":"object","properties":{
		"title":{"type":"string","minLength":1,"maxLength":512},
		"posterPath":{"type":"string","maxLength":1024},
		"description":{"type":"string","maxLength":4096},
		"watchTime":{"type":"string","format":"date-time"},
		"rating":{"type":"number","minimum":0,"maximum":5}}}`
	if err := v.loadSchema(UpdateMovie, updateMovieSchema); err != nil {
		return fmt.Errorf("failed to load update-movie schema: %w", err)
	}

	registerSchema := `{"type":"object","required":["name","email","password"],"properties":{
		"name":{"type":"string","minLength":1,"maxLength":128},
		"email":{"type":"string","format":"email","maxLength":256},
		"password":{"type":"string","minLength":8,"maxLength":128}}}`
	if err := v.loadSchema(Register, registerSchema); err != nil {
		return fmt.Errorf("failed to load register schema: %w", err)
	}

	loginSchema := `{"type":"object","required":["email","password"],"properties":{
		"email":{"type":"string","format":"email","maxLength":256},
		"password":{"type":"string","minLength":1,"maxLength":128}}}`
	if err := v.loadSchema(Login, loginSchema); err != nil {
		return fmt.Errorf("failed to load login schema: %w", err)
	}

	resetSchema := `{"type":"object","required":["email","code","newPassword"],"properties":{
		"email":{"type":"string","format":"email","maxLength":256},
		"code":{"type":"string","pattern":"^[0-9]{6}$"},
		"newPassword":{"type":"string","minLength":8,"maxLength":128}}}`
	if err := v.loadSchema(ResetPassword, resetSchema); err != nil {
		return fmt.Errorf("failed to load reset-password schema: %w", err)
	}

	posterSchema := `{"type":"object","required":["mimeType","size"],"properties":{
		"mimeType":{"type":"string","minLength":1},
		"size":{"type":"integer","minimum":1},
		"filename":{"type":"string","maxLength":256}}}`
	if err := v.loadSchema(PosterUpload, posterSchema); err != nil {
		return fmt.Errorf("failed to load poster-upload schema: %w", err)
	}

	return nil
}

// loadSchema parses and compiles a single JSON schema.
func (v *Validator) loadSchema(name, schemaJSON string) error {
	loader := gojsonschema.NewStringLoader(schemaJSON)
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return fmt.Errorf("invalid schema %s: %w", name, err)
	}
	v.schemas[name] = schema
	return nil
}

// Validate checks a decoded payload against the named schema. It returns nil
// when the payload conforms, or an error listing every violation.
func (v *Validator) Validate(name string, payload map[string]interface{}) error {
	schema, exists := v.schemas[name]
	if !exists {
		return fmt.Errorf("schema not found: %s", name)
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(payloadJSON))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return fmt.Errorf("validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
