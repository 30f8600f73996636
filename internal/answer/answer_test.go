package answer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubService_Answer(t *testing.T) {
	svc := NewStubService("test-model")
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	resp, err := svc.Answer(context.Background(), Request{Question: "why"})
	require.NoError(t, err)
	assert.Equal(t, "test-model", resp.Model)
	assert.Contains(t, resp.Answer, `"why"`)
	assert.Equal(t, 2026, resp.Timestamp.Year())
}

func TestStubService_EmptyQuestion(t *testing.T) {
	svc := NewStubService("")

	_, err := svc.Answer(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestStubService_Evaluate(t *testing.T) {
	svc := NewStubService("")

	result, err := svc.Evaluate(context.Background(), EvaluationRequest{})
	require.NoError(t, err)
	assert.Equal(t, "default", result.Dataset)
	assert.Equal(t, 100, result.Evaluated)

	result, err = svc.Evaluate(context.Background(), EvaluationRequest{Dataset: "golden", Limit: 25})
	require.NoError(t, err)
	assert.Equal(t, "golden", result.Dataset)
	assert.Equal(t, 25, result.Evaluated)
}
