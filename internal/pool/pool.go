// Package pool manages long-lived MongoDB client sessions keyed by target
// connection string.
//
// A handle is leased to exactly one caller at a time. Acquire reuses an
// idle handle for the same target when one exists, creates a new session
// while the pool has capacity, and otherwise evicts the least-recently-used
// idle handle across all targets to make room. A background sweeper closes
// handles that have been idle past the configured timeout; in-use handles
// are never swept.
//
// The handle table is the only shared mutable state in the execution core;
// every mutation happens under the pool mutex.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/jagadeesh52423/mongo-mcp/internal/log"
	"github.com/jagadeesh52423/mongo-mcp/internal/security"
)

var (
	// ErrConnectionFailed indicates session establishment or the liveness
	// ping failed. The wrapped message carries the masked target only.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrPoolClosed indicates the pool has been shut down.
	ErrPoolClosed = errors.New("pool is closed")
)

// closeTimeout bounds the asynchronous disconnect of an evicted session.
const closeTimeout = 10 * time.Second

// Config holds pool sizing and reaping knobs.
type Config struct {
	// MaxSize is the maximum number of handles across all targets.
	// Default 10.
	MaxSize int

	// IdleTimeout is the inactivity window after which the sweeper closes
	// a handle. Default 5 minutes.
	IdleTimeout time.Duration

	// SweepInterval is how often the sweeper runs. Default 60 seconds.
	SweepInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxSize <= 0 {
		c.MaxSize = 10
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 60 * time.Second
	}
}

// Handle is a leased client session. It is owned by exactly one caller
// between Acquire and Release; the pool does not touch a handle while it
// is in use.
type Handle struct {
	key      string
	client   *mongo.Client
	lastUsed time.Time
	inUse    bool
}

// Client returns the live driver client bound to this handle.
func (h *Handle) Client() *mongo.Client {
	return h.client
}

// Target returns the masked target identifier, safe for logs.
func (h *Handle) Target() string {
	return security.MaskURI(h.key)
}

// connectFunc establishes and liveness-checks one session. Injectable so
// tests can observe establishment without a running server.
type connectFunc func(ctx context.Context, uri string) (*mongo.Client, error)

func defaultConnect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		// Best effort: the client never becomes visible, but its
		// monitoring goroutines must not leak.
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return client, nil
}

// Pool owns the handle table and the idle sweeper.
type Pool struct {
	cfg     Config
	logger  log.Logger
	connect connectFunc

	mu      sync.Mutex
	cond    *sync.Cond
	handles []*Handle
	closed  bool

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// New creates a pool and starts its background sweeper.
// Call Shutdown to release all sessions and stop the sweeper.
func New(cfg Config, logger log.Logger) *Pool {
	return newWithConnect(cfg, logger, defaultConnect)
}

func newWithConnect(cfg Config, logger log.Logger, connect connectFunc) *Pool {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		cfg:       cfg,
		logger:    logger,
		connect:   connect,
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	go p.sweepLoop()
	return p
}

// Acquire returns a ready, live handle bound to uri. The caller must
// Release it when done, regardless of outcome.
//
// Resolution order:
//  1. reuse an idle handle for the same target
//  2. create a new handle while the pool has capacity
//  3. evict the least-recently-used idle handle (any target) and create
//  4. block until a handle is released or ctx is done
func (p *Pool) Acquire(ctx context.Context, uri string) (*Handle, error) {
	// Wake blocked acquires when the caller's context ends.
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer stop()

	p.mu.Lock()
	for {
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		if err := ctx.Err(); err != nil {
			p.mu.Unlock()
			return nil, fmt.Errorf("acquiring %s: %w", security.MaskURI(uri), err)
		}

		// 1. Idle handle for the same target.
		if h := p.takeIdleLocked(uri); h != nil {
			p.mu.Unlock()
			return h, nil
		}

		// 2. Capacity available: create.
		if len(p.handles) < p.cfg.MaxSize {
			return p.createLocked(ctx, uri)
		}

		// 3. Evict the LRU idle handle to make room. The eviction plus
		// creation pair is retried once on creation failure.
		if evicted := p.evictLRULocked(); evicted {
			h, err := p.createLocked(ctx, uri)
			if err == nil {
				return h, nil
			}
			p.mu.Lock()
			if p.evictLRULocked() {
				return p.createLocked(ctx, uri)
			}
			p.mu.Unlock()
			return nil, err
		}

		// 4. At capacity with nothing idle: wait for a release.
		p.cond.Wait()
	}
}

// takeIdleLocked leases the most recently used idle handle for key, if any.
func (p *Pool) takeIdleLocked(key string) *Handle {
	var best *Handle
	for _, h := range p.handles {
		if h.inUse || h.key != key {
			continue
		}
		if best == nil || h.lastUsed.After(best.lastUsed) {
			best = h
		}
	}
	if best != nil {
		best.inUse = true
		best.lastUsed = time.Now()
	}
	return best
}

// createLocked reserves a table slot, then establishes the session with the
// mutex released. The reservation holds the slot against concurrent
// acquires; it is removed if establishment fails, so a broken target never
// registers a handle. Unlocks p.mu in all paths.
func (p *Pool) createLocked(ctx context.Context, uri string) (*Handle, error) {
	h := &Handle{key: uri, inUse: true, lastUsed: time.Now()}
	p.handles = append(p.handles, h)
	p.mu.Unlock()

	client, err := p.connect(ctx, uri)

	p.mu.Lock()
	if err != nil {
		p.removeLocked(h)
		p.cond.Broadcast()
		p.mu.Unlock()
		p.logger.Warn("connection establishment failed",
			"target", security.MaskURI(uri),
			"error", err)
		return nil, fmt.Errorf("%w: %s: %v", ErrConnectionFailed, security.MaskURI(uri), err)
	}

	if p.closed {
		// Shutdown raced the creation; do not leak the session.
		p.removeLocked(h)
		p.mu.Unlock()
		p.closeAsync(client, uri)
		return nil, ErrPoolClosed
	}

	h.client = client
	h.lastUsed = time.Now()
	p.mu.Unlock()

	p.logger.Debug("connection established", "target", security.MaskURI(uri))
	return h, nil
}

// evictLRULocked removes the least-recently-used idle handle from the table
// and closes its session asynchronously. Returns false if nothing is idle.
// In-use handles are never candidates.
func (p *Pool) evictLRULocked() bool {
	var lru *Handle
	for _, h := range p.handles {
		if h.inUse || h.client == nil {
			continue
		}
		if lru == nil || h.lastUsed.Before(lru.lastUsed) {
			lru = h
		}
	}
	if lru == nil {
		return false
	}

	p.removeLocked(lru)
	p.logger.Debug("evicting idle connection", "target", security.MaskURI(lru.key))
	p.closeAsync(lru.client, lru.key)
	return true
}

// removeLocked deletes h from the handle table.
func (p *Pool) removeLocked(h *Handle) {
	for i, other := range p.handles {
		if other == h {
			p.handles = append(p.handles[:i], p.handles[i+1:]...)
			return
		}
	}
}

// closeAsync disconnects a session off the caller's path.
func (p *Pool) closeAsync(client *mongo.Client, key string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := client.Disconnect(ctx); err != nil {
			p.logger.Warn("closing connection failed",
				"target", security.MaskURI(key),
				"error", err)
		}
	}()
}

// Release returns a handle to the idle set. It is idempotent and a no-op
// for handles the pool no longer tracks (swept or evicted concurrently is
// impossible while in use, but a double release after shutdown is not).
func (p *Pool) Release(h *Handle) {
	if h == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, other := range p.handles {
		if other == h {
			if h.inUse {
				h.inUse = false
				h.lastUsed = time.Now()
				p.cond.Broadcast()
			}
			return
		}
	}
}

// sweepLoop closes idle handles whose inactivity exceeds the idle timeout.
// Runs until Shutdown.
func (p *Pool) sweepLoop() {
	defer close(p.sweepDone)

	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.sweepStop:
			return
		case <-ticker.C:
			p.sweepIdle()
		}
	}
}

// sweepIdle collects expired idle handles under the lock, then closes them
// outside it.
func (p *Pool) sweepIdle() {
	cutoff := time.Now().Add(-p.cfg.IdleTimeout)

	p.mu.Lock()
	var expired []*Handle
	for _, h := range p.handles {
		if !h.inUse && h.client != nil && h.lastUsed.Before(cutoff) {
			expired = append(expired, h)
		}
	}
	for _, h := range expired {
		p.removeLocked(h)
	}
	p.mu.Unlock()

	for _, h := range expired {
		p.logger.Info("closing idle connection",
			"target", security.MaskURI(h.key),
			"idle_since", h.lastUsed)
		p.closeAsync(h.client, h.key)
	}
}

// Shutdown stops the sweeper and closes every handle, in use or not.
// Individual close failures are logged and do not abort the remaining
// cleanup. Subsequent calls return nil without touching anything.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	handles := p.handles
	p.handles = nil
	p.cond.Broadcast()
	p.mu.Unlock()

	close(p.sweepStop)
	<-p.sweepDone

	var errs []error
	for _, h := range handles {
		if h.client == nil {
			continue
		}
		if err := h.client.Disconnect(ctx); err != nil {
			p.logger.Warn("shutdown: closing connection failed",
				"target", security.MaskURI(h.key),
				"error", err)
			errs = append(errs, err)
		}
	}

	p.logger.Info("pool shut down", "closed_handles", len(handles))
	return errors.Join(errs...)
}

// Stats reports current table occupancy. Used by tests and diagnostics.
func (p *Pool) Stats() (total, inUse int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.handles {
		if h.inUse {
			inUse++
		}
	}
	return len(p.handles), inUse
}
