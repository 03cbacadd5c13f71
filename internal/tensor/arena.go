package tensor

import (
	"errors"
	"io"
	"sync"
)

// Arena collects resources allocated while processing one frame so they can
// be released together. An Arena is safe for concurrent use.
type Arena struct {
	mu      sync.Mutex
	closers []io.Closer
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// Track registers c to be closed on Release and returns it.
func (a *Arena) Track(c io.Closer) io.Closer {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, c)
	return c
}

// Alloc allocates a tensor owned by the arena. Its data is dropped on Release.
func (a *Arena) Alloc(shape ...int) *Tensor {
	t := New(shape...)
	a.Track(closerFunc(func() error {
		t.Data = nil
		return nil
	}))
	return t
}

// Live returns the number of resources not yet released.
func (a *Arena) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.closers)
}

// Release closes every tracked resource in reverse order of registration.
// All resources are closed even if some fail; failures are joined.
func (a *Arena) Release() error {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
