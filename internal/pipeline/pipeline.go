// Package pipeline implements the bounded, ordered worker pool shared by
// the multi-threaded XZ and LZIP coordinators (spec §5): work units
// submitted in order are processed concurrently by a lazily-grown pool
// of workers, and results are handed back to the caller strictly in
// submission order regardless of completion order.
package pipeline

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// MaxWorkers is the hard cap on worker goroutines a Pool will ever
// spawn (spec §5: "a pool of worker threads, grown lazily up to
// max_workers (capped at 256)").
const MaxWorkers = 256

// Func does the work for one unit: transform in into the bytes that
// should be emitted at its sequence position. A non-nil error is
// sticky for the whole Pool (spec §7's "first fatal error is sticky"
// extended to the MT coordinator).
type Func func(ctx context.Context, in []byte) (out []byte, err error)

// Pool runs a Func over a stream of submitted units, handing results
// back through Next and TryNext in submission order. It is not safe for concurrent
// use by multiple goroutines calling Submit/CloseAndWait at once; a
// single coordinator goroutine drives it, matching the "coordinator is
// the sole writer to the sink" design in spec §5.
type Pool struct {
	fn         Func
	maxWorkers int
	log        *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	taskCh chan task

	mu        sync.Mutex
	pending   map[int64]chan result
	reorder   map[int64]result
	submitSeq int64
	workers   int

	out chan result

	errOnce sync.Once
	sticky  error
}

type task struct {
	seq int64
	in  []byte
}

type result struct {
	seq int64
	out []byte
	err error
}

// New creates a Pool that applies fn to submitted units, using at most
// maxWorkers goroutines (clamped to [1, MaxWorkers]). log may be nil,
// in which case a disabled logger is used.
func New(ctx context.Context, fn Func, maxWorkers int, log *logrus.Entry) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if maxWorkers > MaxWorkers {
		maxWorkers = MaxWorkers
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(nopWriter{})
		log = logrus.NewEntry(l)
	}
	cctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(cctx)
	p := &Pool{
		fn:         fn,
		maxWorkers: maxWorkers,
		log:        log,
		ctx:        gctx,
		cancel:     cancel,
		group:      group,
		taskCh:     make(chan task, maxWorkers),
		pending:    make(map[int64]chan result),
		reorder:    make(map[int64]result),
		out:        make(chan result, maxWorkers),
	}
	go p.collect()
	return p
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// Submit hands the next unit of work to the pool. A new worker is
// spawned only while the pool is below maxWorkers, and only when no
// worker exists yet or the task queue's buffer (maxWorkers units deep)
// is already full of pending work; otherwise the unit waits in the
// queue for an existing worker. Whether the existing workers are busy
// is not tracked.
func (p *Pool) Submit(in []byte) {
	p.mu.Lock()
	seq := p.submitSeq
	p.submitSeq++
	full := len(p.taskCh) >= cap(p.taskCh) || p.workers == 0
	grow := full && p.workers < p.maxWorkers
	if grow {
		p.workers++
		p.log.WithField("worker_count", p.workers).Debug("pipeline: spawning worker")
		p.group.Go(func() error { return p.work() })
	}
	p.mu.Unlock()

	select {
	case p.taskCh <- task{seq: seq, in: in}:
	case <-p.ctx.Done():
	}
}

func (p *Pool) work() error {
	for {
		select {
		case <-p.ctx.Done():
			return nil
		case t, ok := <-p.taskCh:
			if !ok {
				return nil
			}
			out, err := p.fn(p.ctx, t.in)
			select {
			case p.out <- result{seq: t.seq, out: out, err: err}:
			case <-p.ctx.Done():
				return nil
			}
			if err != nil {
				p.log.WithError(err).WithField("seq", t.seq).Warn("pipeline: worker error")
				return err
			}
		}
	}
}

// collect drains completed results from workers: a result whose
// sequence number a Next call is already waiting on is handed straight
// to it, and every other result is kept in the reorder buffer, keyed by
// sequence number, until Next or TryNext asks for it.
func (p *Pool) collect() {
	for r := range p.out {
		p.mu.Lock()
		ch := p.pending[r.seq]
		delete(p.pending, r.seq)
		if ch == nil {
			p.reorder[r.seq] = r
		}
		p.mu.Unlock()
		if ch != nil {
			ch <- r
			close(ch)
		}
	}
}

// Next blocks until the result for the given sequence number is ready,
// honoring submission order (spec §4.6/§5's ordering guarantee).
// Results must be requested with strictly increasing seq starting at 0.
func (p *Pool) Next(seq int64) ([]byte, error) {
	p.mu.Lock()
	if rr, ok := p.reorder[seq]; ok {
		delete(p.reorder, seq)
		p.mu.Unlock()
		return rr.out, rr.err
	}
	ch := make(chan result, 1)
	p.pending[seq] = ch
	p.mu.Unlock()

	select {
	case rr := <-ch:
		return rr.out, rr.err
	case <-p.ctx.Done():
		return nil, p.ctx.Err()
	}
}

// TryNext returns the result for seq without blocking: ok is false if
// that sequence hasn't completed yet, in which case the caller should
// come back later (or fall back to Next) instead of waiting here. Used
// by coordinators that want to drain whatever is ready in between
// submissions rather than buffering every result until the end.
func (p *Pool) TryNext(seq int64) (out []byte, err error, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rr, ok := p.reorder[seq]
	if !ok {
		return nil, nil, false
	}
	delete(p.reorder, seq)
	return rr.out, rr.err, true
}

// CloseAndWait closes the task queue, waits for every worker to drain,
// and returns the first worker error observed, if any (sticky per spec
// §7's error-propagation policy).
func (p *Pool) CloseAndWait() error {
	close(p.taskCh)
	err := p.group.Wait()
	close(p.out)
	if err != nil {
		p.errOnce.Do(func() { p.sticky = err })
	}
	return p.sticky
}

// Cancel aborts all outstanding work immediately; used when the
// coordinator itself hits a fatal error and must stop feeding workers.
func (p *Pool) Cancel() { p.cancel() }
