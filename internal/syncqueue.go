package internal

import (
	"context"
	"errors"
	"sync"
	"time"
)

// errWriterClosed is reported to removals still queued when the writer stops
var errWriterClosed = errors.New("remote writer closed")

// upsertJob is one pending remote write. A job with a non-nil done channel
// is a removal; it is applied regardless of generation and reports its
// result on done.
type upsertJob struct {
	id         SessionIdentity
	state      *RepositoryState
	generation uint64
	done       chan error
}

// remoteWriter applies remote upserts and removals in issuance order on a
// single worker goroutine. Upsert callers never wait on it; Flush exists
// for shutdown and tests.
type remoteWriter struct {
	remote  RemoteTier
	store   *TieredStore
	current func(SessionIdentity) uint64
	timeout time.Duration

	mu      sync.Mutex
	queue   []upsertJob
	wake    chan struct{}
	pending sync.WaitGroup
	done    chan struct{}
	closed  bool
}

func newRemoteWriter(remote RemoteTier, store *TieredStore, current func(SessionIdentity) uint64, timeout time.Duration) *remoteWriter {
	w := &remoteWriter{
		remote:  remote,
		store:   store,
		current: current,
		timeout: timeout,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// enqueue schedules a job. It reports false once the writer is closed.
func (w *remoteWriter) enqueue(job upsertJob) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.pending.Add(1)
	w.queue = append(w.queue, job)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

// remove deletes the session's remote state after every upsert issued
// before it, including one already in flight, and waits for the result
func (w *remoteWriter) remove(ctx context.Context, id SessionIdentity) error {
	done := make(chan error, 1)
	if !w.enqueue(upsertJob{id: id, done: done}) {
		return errWriterClosed
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *remoteWriter) jobContext() (context.Context, context.CancelFunc) {
	if w.timeout > 0 {
		return context.WithTimeout(context.Background(), w.timeout)
	}
	return context.WithCancel(context.Background())
}

func (w *remoteWriter) run() {
	for {
		select {
		case <-w.done:
			return
		case <-w.wake:
		}
		for {
			w.mu.Lock()
			if len(w.queue) == 0 {
				w.mu.Unlock()
				break
			}
			job := w.queue[0]
			w.queue = w.queue[1:]
			w.mu.Unlock()

			w.apply(job)
			w.pending.Done()
		}
	}
}

func (w *remoteWriter) apply(job upsertJob) {
	if job.done != nil {
		ctx, cancel := w.jobContext()
		defer cancel()
		job.done <- w.remote.Remove(ctx, job.id.ID)
		return
	}
	if w.current(job.id) != job.generation {
		LogDebug("Dropping remote upsert for %s: session was reset", job.id)
		return
	}

	ctx, cancel := w.jobContext()
	defer cancel()

	version, ok := w.store.Version(job.id)
	if !ok {
		version = w.bootstrapVersion(ctx, job.id)
	}

	next, err := w.remote.Upsert(ctx, job.id.ID, job.state, version)
	if err != nil {
		LogWarn("Remote upsert for %s failed: %v", job.id, err)
		return
	}

	if w.current(job.id) != job.generation {
		LogDebug("Discarding remote version %d for %s: session was reset", next, job.id)
		return
	}
	if !w.store.AdoptVersion(job.id, next) {
		LogDebug("Ignoring remote version %d for %s: cached version is newer", next, job.id)
	}
}

// bootstrapVersion learns the canonical version before the first upsert of
// a process, falling back to the identity's version or zero
func (w *remoteWriter) bootstrapVersion(ctx context.Context, id SessionIdentity) int64 {
	vs, err := w.remote.FetchVersioned(ctx, id.ID)
	if err == nil {
		w.store.AdoptVersion(id, vs.Version)
		return vs.Version
	}
	LogWarn("Failed to fetch remote version for %s: %v", id, err)
	if id.Version != nil {
		return *id.Version
	}
	return 0
}

// flush waits until every queued job has been applied or ctx ends
func (w *remoteWriter) flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting jobs. Queued jobs are discarded.
func (w *remoteWriter) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	for _, job := range w.queue {
		if job.done != nil {
			job.done <- errWriterClosed
		}
		w.pending.Done()
	}
	w.queue = nil
	w.mu.Unlock()
	close(w.done)
}
