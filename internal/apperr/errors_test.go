package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	cause := errors.New("duplicate key")

	tests := []struct {
		name string
		err  error
		kind error
		text string
	}{
		{"not found", NotFound("posts.get", "post %s not found", "p1"), ErrNotFound, "posts.get: post p1 not found"},
		{"conflict", Conflict("posts.create", "slug %q taken", "hello"), ErrConflict, `posts.create: slug "hello" taken`},
		{"validation", Validation("revisions.diff", "different posts"), ErrValidation, "revisions.diff: different posts"},
		{"wrapped", Wrap("posts.update", ErrConflict, cause, "slug taken"), ErrConflict, "posts.update: slug taken: duplicate key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.kind)
			assert.Equal(t, tt.text, tt.err.Error())
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("outer: %w", Wrap("op", ErrNotFound, cause, ""))

	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.Equal(t, "not found", Message(err))
}
