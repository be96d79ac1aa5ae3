package schema_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/verity/schema"
)

const scoreSchema = `{
  "type": "object",
  "required": ["home", "away"],
  "properties": {
    "home": {"type": "integer", "minimum": 0},
    "away": {"type": "integer", "minimum": 0}
  }
}`

func TestValidate(t *testing.T) {
	v := schema.NewValidator()
	ctx := context.Background()

	tests := []struct {
		name    string
		payload string
		want    bool
	}{
		{"matches", `{"home": 2, "away": 1}`, true},
		{"missing field", `{"home": 2}`, false},
		{"wrong type", `{"home": "two", "away": 1}`, false},
		{"negative", `{"home": -1, "away": 1}`, false},
		{"not json", `home=2`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := v.Validate(ctx, scoreSchema, []byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestValidateInvalidSchema(t *testing.T) {
	v := schema.NewValidator()
	_, err := v.Validate(context.Background(), `{"type": 12}`, []byte(`{}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, schema.ErrInvalidSchema))
}

func TestValidateCachesCompiledSchema(t *testing.T) {
	v := schema.NewValidator()
	for range 3 {
		ok, err := v.Validate(context.Background(), scoreSchema, []byte(`{"home":0,"away":0}`))
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
