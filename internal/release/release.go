// Package release tracks native resources as they are created so they can be
// destroyed in exact reverse order, both on normal shutdown and when a
// constructor fails halfway through.
package release

import (
	"golang.org/x/exp/slog"
)

type entry struct {
	name    string
	destroy func()
}

// Stack is a LIFO list of destroy functions. The zero value is ready to use.
// It is not safe for concurrent use.
type Stack struct {
	entries []entry
	logger  *slog.Logger
}

// NewStack returns a Stack that logs each release at debug level.
func NewStack(logger *slog.Logger) *Stack {
	return &Stack{logger: logger}
}

// Push records a destroy function for a resource that was just created.
func (s *Stack) Push(name string, destroy func()) {
	s.entries = append(s.entries, entry{name: name, destroy: destroy})
}

// Len reports how many resources are still held.
func (s *Stack) Len() int {
	return len(s.entries)
}

// Names lists the held resources in creation order.
func (s *Stack) Names() []string {
	names := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		names = append(names, e.name)
	}
	return names
}

// Release destroys every held resource, newest first. Calling it again is a
// no-op.
func (s *Stack) Release() {
	for len(s.entries) > 0 {
		last := len(s.entries) - 1
		e := s.entries[last]
		s.entries = s.entries[:last]

		if s.logger != nil {
			s.logger.Debug("release", slog.String("resource", e.name))
		}
		e.destroy()
	}
}

// ReleaseOnError releases the stack if *errp is non-nil. It is meant to be
// deferred by constructors so that a partially built component unwinds.
func (s *Stack) ReleaseOnError(errp *error) {
	if *errp != nil {
		s.Release()
	}
}
