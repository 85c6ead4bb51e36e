// Package circlelock serializes all mutations touching one circle.
// Each circle is the unit of serialization: joins, leaves, status
// changes, and timer-driven phase transitions for a circle are
// linearized behind its lock, while circles never block each other.
package circlelock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ErrBusy is returned when the lock cannot be acquired within the
// bounded wait; callers surface it as a retryable conflict.
var ErrBusy = errors.New("circle_busy")

const DefaultWait = 3 * time.Second

// Registry hands out per-circle mutexes keyed by circle ID. Entries
// are reference counted so idle circles hold no memory.
type Registry struct {
	mu   sync.Mutex
	held map[snowflake.ID]*entry
	wait time.Duration
}

type entry struct {
	sem  chan struct{}
	refs int
}

func NewRegistry(wait time.Duration) *Registry {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &Registry{
		held: make(map[snowflake.ID]*entry),
		wait: wait,
	}
}

// Acquire takes the circle's lock, waiting at most the registry's
// bounded wait. The returned release function must be called exactly
// once.
func (r *Registry) Acquire(ctx context.Context, circleID snowflake.ID) (func(), error) {
	r.mu.Lock()
	e := r.held[circleID]
	if e == nil {
		e = &entry{sem: make(chan struct{}, 1)}
		r.held[circleID] = e
	}
	e.refs++
	r.mu.Unlock()

	timer := time.NewTimer(r.wait)
	defer timer.Stop()

	select {
	case e.sem <- struct{}{}:
		return func() { r.release(circleID, e) }, nil
	case <-timer.C:
		r.drop(circleID, e)
		return nil, ErrBusy
	case <-ctx.Done():
		r.drop(circleID, e)
		return nil, ctx.Err()
	}
}

func (r *Registry) release(circleID snowflake.ID, e *entry) {
	<-e.sem
	r.drop(circleID, e)
}

func (r *Registry) drop(circleID snowflake.ID, e *entry) {
	r.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(r.held, circleID)
	}
	r.mu.Unlock()
}
