package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type createThingInput struct {
	Name     string `json:"name" validate:"required"`
	Priority int    `json:"priority,omitempty" validate:"gte=0,lte=5"`
	Strategy string `json:"strategy,omitempty" validate:"omitempty,oneof=fast careful"`
}

func TestReflectSchemaMarksRequiredAndBounds(t *testing.T) {
	s := New[createThingInput]()
	w := s.Wire()
	require.NotNil(t, w)
	assert.Equal(t, "object", w.Type)
	assert.Contains(t, w.Required, "name")
	assert.NotContains(t, w.Required, "priority")

	priority, ok := w.Properties["priority"]
	require.True(t, ok)
	require.NotNil(t, priority.Maximum)
	assert.Equal(t, float64(5), *priority.Maximum)

	strategy, ok := w.Properties["strategy"]
	require.True(t, ok)
	assert.ElementsMatch(t, []any{"fast", "careful"}, strategy.Enum)
}

func TestParseRejectsMissingRequiredField(t *testing.T) {
	s := New[createThingInput]()
	_, err := s.Parse(json.RawMessage(`{"priority": 1}`))
	assert.Error(t, err)
}

func TestParseRejectsOutOfBounds(t *testing.T) {
	s := New[createThingInput]()
	_, err := s.Parse(json.RawMessage(`{"name": "x", "priority": 99}`))
	assert.Error(t, err)
}

func TestParseAcceptsValidInput(t *testing.T) {
	s := New[createThingInput]()
	v, err := s.Parse(json.RawMessage(`{"name": "x", "priority": 2, "strategy": "fast"}`))
	require.NoError(t, err)
	assert.Equal(t, "x", v.Name)
	assert.Equal(t, 2, v.Priority)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	s := New[createThingInput]()
	_, err := s.Parse(json.RawMessage(`{"name": "x", "bogus": true}`))
	assert.Error(t, err)
}

func TestParseDefaultsEmptyRawToEmptyObject(t *testing.T) {
	type noRequired struct {
		Label string `json:"label,omitempty"`
	}
	s := New[noRequired]()
	v, err := s.Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, "", v.Label)
}
