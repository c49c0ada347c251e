package detections

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultPoolSize Pool configuration
	DefaultPoolSize   = 4
	AcquireTimeout    = 5 * time.Second
	HealthCheckPeriod = 60 * time.Second
)

var (
	ErrPoolClosed     = errors.New("pool is closed")
	ErrAcquireTimeout = errors.New("timeout waiting for available session")
)

// SessionFactory creates a fresh inference session.
type SessionFactory func() (Session, error)

// SessionPool hands out at most size sessions. live counts every session the
// pool owns, idle or in use, and is guarded by mu.
type SessionPool struct {
	sessions   chan Session
	size       int
	factory    SessionFactory
	logger     *zap.Logger
	mu         sync.Mutex
	closed     bool
	live       int
	done       chan struct{}
	metrics    *PoolMetrics
	lastErrors []error

	acquireTimeout time.Duration
}

type PoolMetrics struct {
	mu              sync.RWMutex
	inUse           int
	totalAcquired   int64
	totalReleased   int64
	acquireFailures int64
	waitTime        time.Duration
}

// PoolStats is a point-in-time copy of the pool metrics.
type PoolStats struct {
	PoolSize        int           `json:"pool_size"`
	Live            int           `json:"sessions_live"`
	InUse           int           `json:"sessions_in_use"`
	TotalAcquired   int64         `json:"total_acquired"`
	TotalReleased   int64         `json:"total_released"`
	AcquireFailures int64         `json:"acquire_failures"`
	WaitTime        time.Duration `json:"wait_time_ns"`
	RecentErrors    []string      `json:"recent_errors,omitempty"`
}

func NewSessionPool(size int, factory SessionFactory, logger *zap.Logger) (*SessionPool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}

	pool := &SessionPool{
		sessions:       make(chan Session, size),
		size:           size,
		factory:        factory,
		logger:         logger.Named("pool"),
		done:           make(chan struct{}),
		metrics:        &PoolMetrics{},
		acquireTimeout: AcquireTimeout,
	}

	for i := 0; i < size; i++ {
		session, err := factory()
		if err != nil {
			pool.Destroy()
			return nil, fmt.Errorf("failed to initialize session %d: %w", i, err)
		}
		pool.sessions <- session
		pool.live++
	}

	go pool.healthCheck()

	return pool, nil
}

func (p *SessionPool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *SessionPool) Acquire(ctx context.Context) (Session, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}

	start := time.Now()
	defer func() {
		p.metrics.mu.Lock()
		p.metrics.waitTime += time.Since(start)
		p.metrics.mu.Unlock()
	}()

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case session, ok := <-p.sessions:
		if !ok {
			return nil, ErrPoolClosed
		}
		p.metrics.mu.Lock()
		p.metrics.inUse++
		p.metrics.totalAcquired++
		p.metrics.mu.Unlock()
		return session, nil
	case <-timer.C:
		p.metrics.mu.Lock()
		p.metrics.acquireFailures++
		p.metrics.mu.Unlock()
		return nil, ErrAcquireTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *SessionPool) Release(session Session) {
	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalReleased++
	p.metrics.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.putLocked(session)
}

// putLocked returns session to the idle channel, or destroys it when the pool
// is closed or already full. Callers hold p.mu.
func (p *SessionPool) putLocked(session Session) {
	if p.closed {
		p.live--
		session.Destroy()
		return
	}
	select {
	case p.sessions <- session:
	default:
		p.live--
		session.Destroy()
		p.logger.Warn("pool full, session destroyed")
	}
}

// Discard drops a session that failed mid-inference. The health check
// replaces it.
func (p *SessionPool) Discard(session Session, cause error) {
	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalReleased++
	p.metrics.mu.Unlock()

	p.mu.Lock()
	p.live--
	p.mu.Unlock()

	session.Destroy()
	p.recordError(cause)
	p.logger.Warn("session discarded", zap.Error(cause))
}

func (p *SessionPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.done)
	close(p.sessions)

	for session := range p.sessions {
		p.live--
		session.Destroy()
	}
}

func (p *SessionPool) healthCheck() {
	ticker := time.NewTicker(HealthCheckPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.replenish()
		}
	}
}

// replenish recreates sessions that were discarded. Slots are reserved in live
// before the factory runs, so concurrent callers never overfill the pool.
func (p *SessionPool) replenish() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	missing := p.size - p.live
	if missing <= 0 {
		p.mu.Unlock()
		return
	}
	p.live += missing
	p.mu.Unlock()

	for i := 0; i < missing; i++ {
		session, err := p.factory()
		if err != nil {
			p.mu.Lock()
			p.live--
			p.mu.Unlock()
			p.recordError(err)
			p.logger.Error("replenish session", zap.Error(err))
			continue
		}

		p.mu.Lock()
		p.putLocked(session)
		p.mu.Unlock()
	}
}

func (p *SessionPool) recordError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErrors = append(p.lastErrors, err)
	if len(p.lastErrors) > 10 {
		p.lastErrors = p.lastErrors[1:]
	}
}

func (p *SessionPool) Stats() PoolStats {
	p.mu.Lock()
	recent := make([]string, 0, len(p.lastErrors))
	for _, err := range p.lastErrors {
		recent = append(recent, err.Error())
	}
	live := p.live
	p.mu.Unlock()

	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()
	return PoolStats{
		PoolSize:        p.size,
		Live:            live,
		InUse:           p.metrics.inUse,
		TotalAcquired:   p.metrics.totalAcquired,
		TotalReleased:   p.metrics.totalReleased,
		AcquireFailures: p.metrics.acquireFailures,
		WaitTime:        p.metrics.waitTime,
		RecentErrors:    recent,
	}
}
