package errs

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesKindAndCause(t *testing.T) {
	base := errors.New("disk full")
	err := Wrap(NoSpace, base, "write_page")
	assert.True(t, Is(err, NoSpace))
	assert.False(t, Is(err, IoError))
	assert.Equal(t, NoSpace, KindOf(err))
	assert.Contains(t, err.Error(), "disk full")
}

func TestNewAndKindOf(t *testing.T) {
	err := New(RecordNotFound, "rid not live")
	assert.Equal(t, RecordNotFound, KindOf(err))
}

func TestKindOfUnclassifiedIsInternal(t *testing.T) {
	assert.Equal(t, Internal, KindOf(errors.New("plain")))
	assert.Equal(t, Internal, KindOf(nil))
}

func TestWrapNilIsNil(t *testing.T) {
	assert.Nil(t, Wrap(Internal, nil, "noop"))
}
