// Package worker provides the pinned, serial-executor pool the rest of
// this module assumes: a fixed number of workers, each owning its own
// connection cache, so the cache never needs a mutex around the map
// itself. Submitting work acquires one worker for the call's duration;
// within that worker every LDAP operation runs strictly sequentially.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/go-broker/ldapauth/pkg/ldapauth/directory"
	"github.com/go-broker/ldapauth/pkg/ldapauth/pool"
	"github.com/go-broker/ldapauth/pkg/ldapauth/session"
)

// Worker is one serial executor: its own connection cache and the runner
// built on top of it.
type Worker struct {
	Cache  *pool.Cache
	Runner *session.Runner
}

// Pool is the fixed-size worker set a backend submits directory work to.
// available is both the capacity limit and the mutual-exclusion
// mechanism: a worker sits in the channel only while nobody holds it, so
// a Submit can never be handed a worker a previous, still-running Submit
// also holds — unlike gating on a semaphore and picking a worker by a
// free-running counter, which only bounds concurrency, not which worker a
// caller gets.
type Pool struct {
	workers   []*Worker
	available chan *Worker
}

// NewPool builds size workers, each dialing servers with opts and evicting
// idle connections after idle.
func NewPool(size int, servers []string, opts directory.Options, idle time.Duration, log *zerolog.Logger) *Pool {
	if size <= 0 {
		size = 64
	}
	workers := make([]*Worker, size)
	available := make(chan *Worker, size)
	for i := range workers {
		cache := pool.NewCache(idle)
		w := &Worker{
			Cache: cache,
			Runner: &session.Runner{
				Cache:   cache,
				Servers: servers,
				Options: opts,
				Log:     log,
			},
		}
		workers[i] = w
		available <- w
	}
	return &Pool{
		workers:   workers,
		available: available,
	}
}

// SetDial overrides every worker's connection-cache dialer. Production
// callers never need this — NewPool's default already points at
// directory.Open — but it lets a test drive Submit against a fake
// directory.Directory without a live server.
func (p *Pool) SetDial(dial func(servers []string, opts directory.Options) (directory.Directory, error)) {
	for _, w := range p.workers {
		w.Cache.Dial = dial
	}
}

// Submit checks out one worker and runs fn against that worker's runner,
// returning it to the pool before Submit returns. fn holds the worker for
// as long as it runs, matching the "serial executor" model: everything fn
// does against the directory happens on one worker, in order, and no
// other Submit call can be handed that same worker until this one is
// done with it.
func (p *Pool) Submit(ctx context.Context, fn func(*session.Runner) error) error {
	select {
	case w := <-p.available:
		defer func() { p.available <- w }()
		return fn(w.Runner)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears down every worker's cached connections.
func (p *Pool) Close() error {
	var first error
	for _, w := range p.workers {
		if err := w.Cache.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
