// Package geo abstracts the positioning hardware used during collection.
// Devices differ (built-in GNSS, external receivers, none at all), so the
// collection service depends only on the Provider interface here.
package geo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultTimeout bounds every position request. A fix that takes longer than
// this is treated as unavailable; collection must not block on the radio.
const DefaultTimeout = 10 * time.Second

// ErrUnavailable is returned when no positioning source can produce a fix.
var ErrUnavailable = errors.New("geo: position unavailable")

// Position is a single fix.
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

// Options tunes a position request.
type Options struct {
	// HighAccuracy asks the source for its best fix at the cost of time and
	// battery.
	HighAccuracy bool
	// Timeout bounds the request. Zero means DefaultTimeout; values above
	// DefaultTimeout are clamped to it.
	Timeout time.Duration
	// MaximumAge permits a cached fix no older than this. Zero requires a
	// fresh fix.
	MaximumAge time.Duration
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 || o.Timeout > DefaultTimeout {
		return DefaultTimeout
	}
	return o.Timeout
}

// Provider produces position fixes.
type Provider interface {
	// Current returns one fix, waiting at most the effective timeout.
	Current(ctx context.Context, opts Options) (Position, error)
	// Watch invokes fn for each new fix until the returned Watch is stopped
	// or ctx is cancelled. Errors from the source are delivered through
	// errFn; a nil errFn drops them.
	Watch(ctx context.Context, opts Options, fn func(Position), errFn func(error)) (*Watch, error)
}

// Watch is a handle on a running watch session.
type Watch struct {
	stop     context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// Stop terminates the watch and waits for its goroutine to exit. Safe to call
// more than once.
func (w *Watch) Stop() {
	w.stopOnce.Do(w.stop)
	<-w.done
}

// FuncProvider adapts a fix-producing function into a Provider. The function
// runs in its own goroutine; Current abandons it when the timeout elapses.
type FuncProvider struct {
	// Fix produces one position. It receives a context bounded by the
	// effective timeout.
	Fix func(ctx context.Context, opts Options) (Position, error)
	// Interval is the watch polling cadence. Zero means one second.
	Interval time.Duration
}

// Current returns one fix bounded by the effective timeout.
func (p *FuncProvider) Current(ctx context.Context, opts Options) (Position, error) {
	if p.Fix == nil {
		return Position{}, ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()

	type result struct {
		pos Position
		err error
	}
	ch := make(chan result, 1)
	go func() {
		pos, err := p.Fix(ctx, opts)
		ch <- result{pos: pos, err: err}
	}()
	select {
	case res := <-ch:
		if res.err != nil {
			return Position{}, res.err
		}
		return res.pos, nil
	case <-ctx.Done():
		return Position{}, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	}
}

// Watch polls Fix on the configured interval, delivering each successful fix
// to fn.
func (p *FuncProvider) Watch(ctx context.Context, opts Options, fn func(Position), errFn func(error)) (*Watch, error) {
	if p.Fix == nil {
		return nil, ErrUnavailable
	}
	if fn == nil {
		return nil, fmt.Errorf("geo: watch callback required")
	}
	interval := p.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	w := &Watch{stop: cancel, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			pos, err := p.Current(ctx, opts)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				if errFn != nil {
					errFn(err)
				}
			} else {
				fn(pos)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return w, nil
}

// StaticProvider returns a fixed position, useful for tests and for manual
// entry on devices without a receiver.
type StaticProvider struct {
	Position Position
	Err      error
}

func (p *StaticProvider) Current(_ context.Context, _ Options) (Position, error) {
	if p.Err != nil {
		return Position{}, p.Err
	}
	pos := p.Position
	if pos.Timestamp.IsZero() {
		pos.Timestamp = time.Now().UTC()
	}
	return pos, nil
}

func (p *StaticProvider) Watch(ctx context.Context, opts Options, fn func(Position), errFn func(error)) (*Watch, error) {
	fp := &FuncProvider{
		Fix:      func(ctx context.Context, opts Options) (Position, error) { return p.Current(ctx, opts) },
		Interval: 10 * time.Millisecond,
	}
	return fp.Watch(ctx, opts, fn, errFn)
}

var (
	_ Provider = (*FuncProvider)(nil)
	_ Provider = (*StaticProvider)(nil)
)
