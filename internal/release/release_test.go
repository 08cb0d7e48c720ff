package release

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReleaseReverseOrder(t *testing.T) {
	var order []string
	s := &Stack{}
	for _, name := range []string{"instance", "device", "swapchain", "views", "pipeline"} {
		name := name
		s.Push(name, func() { order = append(order, name) })
	}
	require.Equal(t, 5, s.Len())
	assert.Equal(t, []string{"instance", "device", "swapchain", "views", "pipeline"}, s.Names())

	s.Release()

	assert.Equal(t, []string{"pipeline", "views", "swapchain", "device", "instance"}, order)
	assert.Zero(t, s.Len())
}

func TestReleaseIsIdempotent(t *testing.T) {
	calls := 0
	s := &Stack{}
	s.Push("semaphore", func() { calls++ })

	s.Release()
	s.Release()

	assert.Equal(t, 1, calls)
}

func TestReleaseOnError(t *testing.T) {
	build := func(failAt int) (released []string, err error) {
		s := &Stack{}
		defer s.ReleaseOnError(&err)

		for i, name := range []string{"layout", "pool", "sets"} {
			if i == failAt {
				return released, errors.Newf("create %s", name)
			}
			name := name
			s.Push(name, func() { released = append(released, name) })
		}
		return released, nil
	}

	released, err := build(2)
	require.Error(t, err)
	assert.Equal(t, []string{"pool", "layout"}, released)

	released, err = build(0)
	require.Error(t, err)
	assert.Empty(t, released)

	released, err = build(-1)
	require.NoError(t, err)
	assert.Empty(t, released)
}

func TestReleaseDuringReleasePush(t *testing.T) {
	// A destroy function that pushes must not be lost or loop forever.
	var order []string
	s := &Stack{}
	s.Push("outer", func() {
		order = append(order, "outer")
	})
	s.Push("inner", func() {
		order = append(order, "inner")
		s.Push("late", func() { order = append(order, "late") })
	})

	s.Release()

	assert.Equal(t, []string{"inner", "late", "outer"}, order)
}
