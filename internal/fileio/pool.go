// Package fileio runs blocking file-system calls on a fixed set of worker
// goroutines so that the number of concurrent file operations is bounded
// independently of the number of open connections.
package fileio

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned by Do after Close has been called.
var ErrPoolClosed = errors.New("fileio: pool closed")

type job struct {
	ctx  context.Context
	fn   func()
	done chan struct{}
}

// Pool is a bounded set of workers. The zero value is not usable; call NewPool.
type Pool struct {
	jobs     chan *job
	quit     chan struct{}
	wg       sync.WaitGroup
	inflight atomic.Int64
	once     sync.Once
}

// NewPool starts workers goroutines fed by a queue of the given depth. A
// non-positive queue depth defaults to the worker count.
func NewPool(workers, queue int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = workers
	}
	p := &Pool{
		jobs: make(chan *job, queue),
		quit: make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case j := <-p.jobs:
			// Work queued for a request that has since gone away is dropped.
			if j.ctx.Err() == nil {
				p.inflight.Add(1)
				j.fn()
				p.inflight.Add(-1)
			}
			close(j.done)
		}
	}
}

// Do runs fn on a worker and waits for it. It returns early with the
// context's error if ctx is done first; fn may then still be running or may
// never run at all, so fn must not touch state the caller reuses.
func (p *Pool) Do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j := &job{ctx: ctx, fn: fn, done: make(chan struct{})}
	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrPoolClosed
	}
	select {
	case <-j.done:
		// A skipped job closes done without running fn.
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrPoolClosed
	}
}

// InFlight reports how many operations are executing right now.
func (p *Pool) InFlight() int64 {
	return p.inflight.Load()
}

// Close stops the workers and waits for running operations to finish.
// Queued operations are abandoned.
func (p *Pool) Close() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
}

// Open opens name for reading on the pool. If the caller gives up before the
// open completes the file is closed by the worker.
func (p *Pool) Open(ctx context.Context, name string) (*os.File, error) {
	var (
		mu        sync.Mutex
		abandoned bool
		f         *os.File
		openErr   error
	)
	err := p.Do(ctx, func() {
		file, e := os.Open(name)
		mu.Lock()
		defer mu.Unlock()
		if abandoned {
			if file != nil {
				file.Close()
			}
			return
		}
		f, openErr = file, e
	})
	if err != nil {
		mu.Lock()
		abandoned = true
		if f != nil {
			f.Close()
			f = nil
		}
		mu.Unlock()
		return nil, err
	}
	return f, openErr
}

// Stat runs os.Stat on the pool.
func (p *Pool) Stat(ctx context.Context, name string) (fs.FileInfo, error) {
	var fi fs.FileInfo
	var statErr error
	if err := p.Do(ctx, func() { fi, statErr = os.Stat(name) }); err != nil {
		return nil, err
	}
	return fi, statErr
}

// FileStat runs f.Stat on the pool.
func (p *Pool) FileStat(ctx context.Context, f *os.File) (fs.FileInfo, error) {
	var fi fs.FileInfo
	var statErr error
	if err := p.Do(ctx, func() { fi, statErr = f.Stat() }); err != nil {
		return nil, err
	}
	return fi, statErr
}

// ReadFile runs os.ReadFile on the pool.
func (p *Pool) ReadFile(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	var readErr error
	if err := p.Do(ctx, func() { data, readErr = os.ReadFile(name) }); err != nil {
		return nil, err
	}
	return data, readErr
}

// ReadDir runs os.ReadDir on the pool.
func (p *Pool) ReadDir(ctx context.Context, name string) ([]fs.DirEntry, error) {
	var entries []fs.DirEntry
	var readErr error
	if err := p.Do(ctx, func() { entries, readErr = os.ReadDir(name) }); err != nil {
		return nil, err
	}
	return entries, readErr
}

type reader struct {
	ctx context.Context
	p   *Pool
	r   io.Reader
}

// NewReader returns a reader whose every Read runs on the pool and stops
// with the context's error once ctx is done. After such an error the buffer
// passed to the abandoned Read must not be reused.
func (p *Pool) NewReader(ctx context.Context, r io.Reader) io.Reader {
	return &reader{ctx: ctx, p: p, r: r}
}

func (r *reader) Read(b []byte) (int, error) {
	var n int
	var readErr error
	if err := r.p.Do(r.ctx, func() { n, readErr = r.r.Read(b) }); err != nil {
		return 0, err
	}
	return n, readErr
}
