// Package schema is the format-validation oracle: it answers whether an
// opaque payload matches a declared JSON Schema.
package schema

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidSchema is returned when the declared schema does not compile.
var ErrInvalidSchema = errors.New("schema: invalid declared schema")

// Validator compiles declared schemas once and caches them by content.
type Validator struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

func NewValidator() *Validator {
	return &Validator{compiled: make(map[string]*jsonschema.Schema)}
}

// Validate reports whether payload is a JSON document matching declared.
// A payload that is not JSON, or does not match, yields false with a nil
// error; errors are reserved for schemas that cannot be compiled.
func (v *Validator) Validate(_ context.Context, declared string, payload []byte) (bool, error) {
	s, err := v.compile(declared)
	if err != nil {
		return false, err
	}

	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return false, nil
	}
	if err := s.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (v *Validator) compile(declared string) (*jsonschema.Schema, error) {
	sum := sha256.Sum256([]byte(declared))
	key := hex.EncodeToString(sum[:])

	v.mu.Lock()
	defer v.mu.Unlock()
	if s, ok := v.compiled[key]; ok {
		return s, nil
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://verity.schemas.local/%s.schema.json", key)
	if err := c.AddResource(url, strings.NewReader(declared)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	v.compiled[key] = s
	return s, nil
}
