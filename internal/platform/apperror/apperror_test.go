package apperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validation("op", "bad %s", "input"), KindValidation},
		{"state", State("op", "nope"), KindState},
		{"conflict wrapped", fmt.Errorf("outer: %w", Conflict("op", "dup")), KindConflict},
		{"not found", NotFound("op", "missing"), KindNotFound},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"plain", errors.New("boom"), KindUnknown},
		{"nil", nil, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(Conflict("op", "race lost")))
	assert.True(t, Retryable(Timeout("op", context.DeadlineExceeded)))
	assert.False(t, Retryable(State("op", "terminal")))
	assert.False(t, Retryable(Validation("op", "bad")))
	assert.False(t, Retryable(NotFound("op", "gone")))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap("op", nil))

	classified := State("queue.start", "entry is done")
	assert.Same(t, classified, Wrap("outer", classified))

	timeout := Wrap("queue.insert", fmt.Errorf("exec: %w", context.DeadlineExceeded))
	assert.Equal(t, KindTimeout, KindOf(timeout))

	plain := Wrap("queue.insert", errors.New("connection reset"))
	assert.Equal(t, KindUnknown, KindOf(plain))
	assert.Contains(t, plain.Error(), "queue.insert")
}

func TestToHTTP(t *testing.T) {
	he := ToHTTP(Conflict("queue.enqueue", "patient already in this doctor's queue"))
	assert.Equal(t, http.StatusConflict, he.Code)
	body := he.Message.(map[string]interface{})
	assert.Equal(t, "patient already in this doctor's queue", body["error"])
	assert.Equal(t, "conflict", body["kind"])
	assert.Equal(t, true, body["retryable"])

	he = ToHTTP(errors.New("driver exploded"))
	assert.Equal(t, http.StatusInternalServerError, he.Code)
	assert.Equal(t, "internal error", he.Message.(map[string]interface{})["error"])
}
