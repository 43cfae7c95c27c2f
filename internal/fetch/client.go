// Package fetch is a keyed query cache for asynchronous loads driven from a
// bubbletea update loop. Each key moves through Idle, Pending and one of the
// terminal states; results carry a generation so a late answer for a
// cancelled load never lands.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

type Status int

const (
	StatusIdle Status = iota
	StatusPending
	StatusSuccess
	StatusUnauthorized
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusUnauthorized:
		return "unauthorized"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the cached state of one key.
type Result[T any] struct {
	Status       Status
	Data         T
	Err          error
	FailureCount int
	Fetching     bool
	UpdatedAt    time.Time
}

// Msg is delivered to the update loop when a load finishes.
type Msg[K comparable, T any] struct {
	Key      K
	Gen      uint64
	Data     T
	Err      error
	Failures int
}

type Loader[K comparable, T any] func(ctx context.Context, key K) (T, error)

// RetryFunc decides whether to retry after failureCount earlier failures.
type RetryFunc func(failureCount int, err error) bool

const defaultRetryLimit = 3

// DefaultRetry retries every error up to three times.
func DefaultRetry(failureCount int, _ error) bool {
	return failureCount < defaultRetryLimit
}

// DefaultRetryDelay doubles from one second up to thirty. The first retry
// is called with a failure count of zero.
func DefaultRetryDelay(failureCount int) time.Duration {
	d := time.Second << failureCount
	if d <= 0 || d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

type Options struct {
	Retry      RetryFunc
	RetryDelay func(failureCount int) time.Duration
	// Unauthorized marks errors that end in StatusUnauthorized. Those keys
	// are never loaded again until invalidated.
	Unauthorized   func(err error) bool
	RefetchOnMount RefetchPolicy
	StaleTime      time.Duration
	Now            func() time.Time
	Logger         *zerolog.Logger
	Name           string
}

type entry[T any] struct {
	result Result[T]
	gen    uint64
	cancel context.CancelFunc
}

type Client[K comparable, T any] struct {
	load  Loader[K, T]
	opts  Options
	group singleflight.Group

	mu      sync.Mutex
	entries map[K]*entry[T]
	gen     uint64
}

func NewClient[K comparable, T any](load Loader[K, T], opts Options) *Client[K, T] {
	if opts.Retry == nil {
		opts.Retry = DefaultRetry
	}
	if opts.RetryDelay == nil {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Unauthorized == nil {
		opts.Unauthorized = func(error) bool { return false }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	return &Client[K, T]{
		load:    load,
		opts:    opts,
		entries: make(map[K]*entry[T]),
	}
}

// Get returns the cached result for key; unknown keys are Idle.
func (c *Client[K, T]) Get(key K) Result[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.result
	}
	return Result[T]{}
}

// Mount is called when a consumer of key becomes visible. It returns a
// command only when a load has to start.
func (c *Client[K, T]) Mount(key K) tea.Cmd {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(key)
	switch e.result.Status {
	case StatusIdle:
	case StatusPending, StatusUnauthorized, StatusError:
		return nil
	case StatusSuccess:
		if e.result.Fetching || !c.opts.RefetchOnMount.refetch(e.result.UpdatedAt, c.opts.StaleTime, c.opts.Now()) {
			return nil
		}
	}
	return c.startLocked(key, e)
}

// Refetch starts a load regardless of the mount policy. Unauthorized keys
// stay terminal.
func (c *Client[K, T]) Refetch(key K) tea.Cmd {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(key)
	if e.result.Status == StatusUnauthorized {
		return nil
	}
	if e.cancel != nil {
		e.cancel()
	}
	if e.result.Status == StatusError {
		e.result.Status = StatusIdle
	}
	return c.startLocked(key, e)
}

// Unmount abandons an in-flight load for key. A result that arrives later
// is ignored by Resolve.
func (c *Client[K, T]) Unmount(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.cancel == nil {
		return
	}
	e.cancel()
	e.cancel = nil
	c.gen++
	e.gen = c.gen
	e.result.Fetching = false
	if e.result.Status == StatusPending {
		e.result.Status = StatusIdle
	}
	c.opts.Logger.Debug().Str("query", c.opts.Name).Interface("key", key).Msg("abandoned in-flight load")
}

// Resolve applies a finished load. It reports false when msg belongs to an
// abandoned or superseded load.
func (c *Client[K, T]) Resolve(msg Msg[K, T]) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[msg.Key]
	if !ok || e.gen != msg.Gen || e.cancel == nil {
		return false
	}
	e.cancel()
	e.cancel = nil
	e.result.Fetching = false
	e.result.FailureCount = msg.Failures

	switch {
	case msg.Err == nil:
		e.result.Status = StatusSuccess
		e.result.Data = msg.Data
		e.result.Err = nil
		e.result.UpdatedAt = c.opts.Now()
	case c.opts.Unauthorized(msg.Err):
		var zero T
		e.result.Status = StatusUnauthorized
		e.result.Data = zero
		e.result.Err = msg.Err
	case e.result.Status == StatusSuccess:
		// keep the previous data after a failed background refetch
		e.result.Err = msg.Err
	default:
		e.result.Status = StatusError
		e.result.Err = msg.Err
	}
	return true
}

// Update rewrites the cached data of a successful key in place, for example
// after a mutation the caller already persisted. It reports false for keys
// without data.
func (c *Client[K, T]) Update(key K, fn func(T) T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.result.Status != StatusSuccess {
		return false
	}
	e.result.Data = fn(e.result.Data)
	return true
}

// Invalidate drops key from the cache and cancels its load.
func (c *Client[K, T]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		if e.cancel != nil {
			e.cancel()
		}
		delete(c.entries, key)
	}
}

// Reset drops every entry.
func (c *Client[K, T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if e.cancel != nil {
			e.cancel()
		}
		delete(c.entries, key)
	}
}

// Load returns cached data for key or loads it directly, sharing any load of
// the same key already running. It does not touch the cache state.
func (c *Client[K, T]) Load(ctx context.Context, key K) (T, error) {
	if res := c.Get(key); res.Status == StatusSuccess {
		return res.Data, nil
	}
	data, _, err := c.loadWithRetry(ctx, key)
	return data, err
}

func (c *Client[K, T]) entryLocked(key K) *entry[T] {
	e, ok := c.entries[key]
	if !ok {
		e = &entry[T]{}
		c.entries[key] = e
	}
	return e
}

func (c *Client[K, T]) startLocked(key K, e *entry[T]) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	c.gen++
	e.gen = c.gen
	e.cancel = cancel
	e.result.Fetching = true
	if e.result.Status != StatusSuccess {
		e.result.Status = StatusPending
	}
	gen := e.gen
	return func() tea.Msg {
		data, failures, err := c.loadWithRetry(ctx, key)
		return Msg[K, T]{Key: key, Gen: gen, Data: data, Err: err, Failures: failures}
	}
}

func (c *Client[K, T]) loadWithRetry(ctx context.Context, key K) (T, int, error) {
	failures := 0
	for {
		data, err := c.loadShared(ctx, key)
		if err == nil {
			return data, failures, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return data, failures, ctxErr
		}
		if c.opts.Unauthorized(err) || !c.opts.Retry(failures, err) {
			c.opts.Logger.Warn().Err(err).Str("query", c.opts.Name).Interface("key", key).
				Int("failures", failures+1).Msg("load failed")
			return data, failures + 1, err
		}
		delay := c.opts.RetryDelay(failures)
		failures++
		c.opts.Logger.Debug().Err(err).Str("query", c.opts.Name).Interface("key", key).
			Int("attempt", failures).Dur("delay", delay).Msg("retrying load")
		if err := sleep(ctx, delay); err != nil {
			var zero T
			return zero, failures, err
		}
	}
}

// loadShared coalesces concurrent loads of one key. A cancelled caller stops
// waiting; the shared load finishes for the others.
func (c *Client[K, T]) loadShared(ctx context.Context, key K) (T, error) {
	ch := c.group.DoChan(fmt.Sprint(key), func() (any, error) {
		return c.load(context.WithoutCancel(ctx), key)
	})
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		data, ok := res.Val.(T)
		if !ok {
			return zero, errors.New("fetch: unexpected shared result type")
		}
		return data, nil
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
