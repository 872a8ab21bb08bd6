package apperr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/studyflow/internal/apperr"
)

func TestKindsAreDistinguishable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"invalid input", apperr.InvalidInput("Grade", "bad outcome %q", "maybe"), apperr.ErrInvalidInput},
		{"not found", apperr.NotFound("Load", "lesson %d", 42), apperr.ErrNotFound},
		{"invariant", apperr.InvariantViolation("Start", "live snapshot"), apperr.ErrInvariantViolation},
		{"transient", apperr.Transient("Save", errors.New("database is locked")), apperr.ErrTransientStore},
	}

	all := []error{apperr.ErrInvalidInput, apperr.ErrNotFound, apperr.ErrInvariantViolation, apperr.ErrTransientStore}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range all {
				assert.Equal(t, k == tt.kind, errors.Is(tt.err, k), "errors.Is(%v, %v)", tt.err, k)
			}
		})
	}
}

func TestErrorKeepsDetail(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := apperr.Transient("SaveSnapshot", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "SaveSnapshot")
	assert.Contains(t, err.Error(), "disk I/O error")

	var target *apperr.Error
	if assert.True(t, errors.As(err, &target)) {
		assert.Equal(t, "SaveSnapshot", target.Op)
	}
}

func TestTransientNil(t *testing.T) {
	assert.NoError(t, apperr.Transient("noop", nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, apperr.IsRetryable(apperr.Transient("op", errors.New("busy"))))
	assert.False(t, apperr.IsRetryable(apperr.NotFound("op", "missing")))
	assert.False(t, apperr.IsRetryable(errors.New("plain")))
}
