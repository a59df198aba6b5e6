package oracle

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sqlPayload struct {
	SQL *string `json:"sql"`
}

func TestDecode(t *testing.T) {
	t.Parallel()

	var p sqlPayload
	require.NoError(t, Decode("```json\n{\"sql\": \"SELECT 1\"}\n```", &p))
	require.NotNil(t, p.SQL)
	assert.Equal(t, "SELECT 1", *p.SQL)
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
	}{
		{"prose", "Sure! Here is your query: SELECT 1"},
		{"unknown field", `{"sql": "SELECT 1", "explanation": "counts"}`},
		{"trailing data", `{"sql": "SELECT 1"} {"sql": "SELECT 2"}`},
		{"wrong type", `{"sql": 42}`},
		{"truncated", `{"sql": "SELECT`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var p sqlPayload
			err := Decode(tt.in, &p)
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrMalformedOutput))
		})
	}
}

func TestDecode_EmptyYieldsEmptyObject(t *testing.T) {
	t.Parallel()

	var p sqlPayload
	require.NoError(t, Decode("", &p))
	assert.Nil(t, p.SQL, "required fields are checked by the caller")
}

func TestMissing(t *testing.T) {
	t.Parallel()

	err := Missing("is_valid", "dashboard")
	assert.True(t, eris.Is(err, ErrMalformedOutput))
	assert.Contains(t, err.Error(), "is_valid")
}
