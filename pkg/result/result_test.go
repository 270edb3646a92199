package result

import (
	"testing"

	"github.com/lushly-dev/afd/pkg/result/errcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccessFailureAreMutuallyExclusive(t *testing.T) {
	ok := Success(42)
	require.NoError(t, ok.Validate())
	assert.True(t, ok.Success)
	assert.Nil(t, ok.Error)

	bad := Failure[int](errcode.NotFound, "no such thing")
	require.NoError(t, bad.Validate())
	assert.False(t, bad.Success)
	require.NotNil(t, bad.Error)
	assert.Equal(t, errcode.NotFound, bad.Error.Code)
}

func TestValidateRejectsSuccessWithError(t *testing.T) {
	r := Success(1)
	r.Error = &CommandError{Code: errcode.Internal, Message: "oops"}
	assert.Error(t, r.Validate())
}

func TestValidateRejectsFailureWithoutError(t *testing.T) {
	r := Result[int]{Success: false}
	assert.Error(t, r.Validate())
}

func TestConfidenceMustBeInUnitRange(t *testing.T) {
	ok := Success(1, WithConfidence[int](0.5))
	assert.NoError(t, ok.Validate())

	tooHigh := Success(1, WithConfidence[int](1.5))
	assert.Error(t, tooHigh.Validate())

	tooLow := Success(1, WithConfidence[int](-0.1))
	assert.Error(t, tooLow.Validate())
}

func TestFailureOptionsApply(t *testing.T) {
	r := Failure[string](errcode.RateLimited, "slow down",
		WithSuggestion("retry after backoff"),
		WithRetryable(true),
		WithDetails(map[string]any{"retryAfterMs": 500}),
	)
	require.NotNil(t, r.Error)
	assert.Equal(t, "retry after backoff", r.Error.Suggestion)
	assert.True(t, r.Error.Retryable)
	assert.Equal(t, 500, r.Error.Details["retryAfterMs"])
}

func TestSuccessOptionsApply(t *testing.T) {
	r := Success("done",
		WithReasoning[string]("matched the only candidate"),
		WithPlan[string](PlanStep{ID: 1, Title: "step one", Status: PlanCompleted}),
		WithWarnings[string](Warning{Code: "SOMETHING", Message: "heads up"}),
		WithSuggestions[string]("try X next"),
		WithUndo[string]("todo-delete", map[string]any{"id": "abc"}),
	)
	assert.Equal(t, "matched the only candidate", r.Reasoning)
	require.Len(t, r.Plan, 1)
	assert.Equal(t, PlanCompleted, r.Plan[0].Status)
	require.Len(t, r.Warnings, 1)
	require.Len(t, r.Suggestions, 1)
	assert.Equal(t, "todo-delete", r.UndoCommand)
}

func TestCommandErrorImplementsError(t *testing.T) {
	var ce *CommandError
	assert.Equal(t, "", ce.Error())

	ce = &CommandError{Code: errcode.Conflict, Message: "already exists"}
	assert.Equal(t, "CONFLICT: already exists", ce.Error())
}
