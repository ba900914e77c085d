package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validation(CodeInvalidDate, "bad date"), KindValidation},
		{"wrapped capacity", fmt.Errorf("join: %w", Capacity(CodeTeamFull, "full")), KindCapacity},
		{"plain error", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestWrapKeepsClassifiedErrors(t *testing.T) {
	orig := Conflict(CodeAlreadyRegistered, "already in a team")
	assert.Same(t, orig, Wrap("join team", orig))

	cause := errors.New("connection reset")
	wrapped := Wrap("join team", cause)
	assert.Equal(t, KindInternal, KindOf(wrapped))
	assert.ErrorIs(t, wrapped, cause)
	assert.Nil(t, Wrap("noop", nil))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeTeamFull, CodeOf(Capacity(CodeTeamFull, "full")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("x")))
	assert.True(t, Is(NotFound(CodeTeamNotFound, "no team"), KindNotFound))
	assert.False(t, Is(nil, KindNotFound))
}
