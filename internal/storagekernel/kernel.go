// Package storagekernel owns the single dedicated connection to BuildPulse's
// embedded relational cache. Every statement is serialized onto one worker
// goroutine so the rest of the codebase never has to reason about SQLite
// locking contention; callers submit closures and await their result over a
// channel and wait for the worker to hand back a value or error.
package storagekernel

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/gofrs/flock"
	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

func init() {
	// Registered once, process-wide, for every connection the driver opens —
	// tag patterns and view expressions both need a REGEXP operator at the
	// SQL layer.
	sqlite3.AutoExtension(func(c *sqlite3.Conn) error {
		return c.CreateFunction("regexp", 2, 0, regexpFunc)
	})
}

// request is a closure submitted to the worker: given a live connection,
// produce a value or an error.
type request struct {
	ctx   context.Context
	fn    func(ctx context.Context, conn *sql.Conn) (any, error)
	reply chan response
}

type response struct {
	val any
	err error
}

// Kernel is the cloneable handle returned by Open. It is safe to share
// across goroutines; all mutation is funneled through the worker.
type Kernel struct {
	db    *sql.DB
	lock  *flock.Flock
	reqs  chan request
	once  sync.Once
	stopc chan struct{}
}

// Open executes a create-if-missing for every table (via the migration
// chain registered in storage/migrations) and returns a live Kernel. A
// gofrs/flock advisory lock on "<path>.lock" is acquired first and held for
// the process lifetime; it is the guard against a second buildpulse
// invocation racing this one, since the cache assumes a single writer
// process at a time.
func Open(ctx context.Context, path string, migrate func(ctx context.Context, conn *sql.Conn) error) (*Kernel, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("storagekernel: acquiring lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("storagekernel: cache %q is locked by another buildpulse process", path)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("storagekernel: opening %q: %w", path, err)
	}
	// A single open connection gives the worker goroutine below exclusive,
	// deterministic ownership of the one physical SQLite connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	k := &Kernel{
		db:    db,
		lock:  lock,
		reqs:  make(chan request),
		stopc: make(chan struct{}),
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("storagekernel: acquiring connection: %w", err)
	}
	if migrate != nil {
		if err := migrate(ctx, conn); err != nil {
			_ = conn.Close()
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("storagekernel: migrating schema: %w", err)
		}
	}
	_ = conn.Close()

	go k.run()
	return k, nil
}

func (k *Kernel) run() {
	for {
		select {
		case req := <-k.reqs:
			conn, err := k.db.Conn(req.ctx)
			if err != nil {
				req.reply <- response{err: fmt.Errorf("storagekernel: acquiring connection: %w", err)}
				continue
			}
			val, err := req.fn(req.ctx, conn)
			_ = conn.Close()
			req.reply <- response{val: val, err: err}
		case <-k.stopc:
			return
		}
	}
}

// Submit awaits the worker's execution of fn on the single live connection.
// Calls are never reordered relative to other Submit/Transact calls made by
// the same goroutine in sequence — strict serial execution through the one
// worker goroutine gives every caller a linearizable view of the cache.
func Submit[T any](ctx context.Context, k *Kernel, fn func(ctx context.Context, conn *sql.Conn) (T, error)) (T, error) {
	var zero T
	reply := make(chan response, 1)
	req := request{
		ctx: ctx,
		fn: func(ctx context.Context, conn *sql.Conn) (any, error) {
			return fn(ctx, conn)
		},
		reply: reply,
	}
	select {
	case k.reqs <- req:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case res := <-reply:
		if res.err != nil {
			return zero, res.err
		}
		v, _ := res.val.(T)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Transact runs fn inside a BEGIN/COMMIT pair on the worker connection,
// rolling back on any returned error. fn receives the same *sql.Conn it
// should issue all statements against.
func Transact[T any](ctx context.Context, k *Kernel, fn func(ctx context.Context, conn *sql.Conn) (T, error)) (T, error) {
	return Submit(ctx, k, func(ctx context.Context, conn *sql.Conn) (T, error) {
		var zero T
		if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
			return zero, fmt.Errorf("storagekernel: begin transaction: %w", err)
		}
		v, err := fn(ctx, conn)
		if err != nil {
			if _, rerr := conn.ExecContext(ctx, "ROLLBACK"); rerr != nil {
				return zero, fmt.Errorf("storagekernel: rollback after %w: %v", err, rerr)
			}
			return zero, err
		}
		if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
			return zero, fmt.Errorf("storagekernel: commit transaction: %w", err)
		}
		return v, nil
	})
}

// Close stops the worker. Submitting after Close is a programming error —
// the channel send will block forever, since nothing is left reading the
// request channel once the worker goroutine has returned.
func (k *Kernel) Close() error {
	k.once.Do(func() {
		close(k.stopc)
	})
	err := k.db.Close()
	if lerr := k.lock.Unlock(); lerr != nil && err == nil {
		err = lerr
	}
	return err
}
