package signal

import "sync"

// trackingStack holds the Effect currently executing its run function.
// It is one process-wide stack, not per goroutine. hang's concurrency model runs
// each subsystem's Effect synchronously on the goroutine that owns it
// — there is no parallel read of two signals from the same Effect — so
// a single mutex-guarded stack (rather than true goroutine-local
// storage) is sufficient and mirrors the reference implementation's
// single-threaded ambient-context tracking.
var (
	trackingMu    sync.Mutex
	trackingStack []*Effect
)

func pushTracking(e *Effect) {
	trackingMu.Lock()
	trackingStack = append(trackingStack, e)
	trackingMu.Unlock()
}

func popTracking() {
	trackingMu.Lock()
	trackingStack = trackingStack[:len(trackingStack)-1]
	trackingMu.Unlock()
}

func currentEffect() *Effect {
	trackingMu.Lock()
	defer trackingMu.Unlock()
	if len(trackingStack) == 0 {
		return nil
	}
	return trackingStack[len(trackingStack)-1]
}

func trackRead(s changeWaiter) {
	e := currentEffect()
	if e == nil {
		return
	}
	e.recordRead(s)
}

// Cleanup is a function registered during an Effect's run, invoked in
// LIFO order the next time the Effect re-runs or is disposed.
type Cleanup func()

// Effect re-executes its run function whenever any Signal read during
// the previous run changes, and owns a LIFO stack of cleanup closures
// registered during that run. Its owner Close()s it on teardown.
type Effect struct {
	run func(*Effect)

	mu        sync.Mutex
	cleanups  []Cleanup
	reads     []<-chan struct{} // change channels of the Signals read in the last run
	watchStop chan struct{} // closed to stop the background watch goroutine
	closed    bool
	children  []*Effect // nested effects, disposed with the parent
}

// NewEffect creates and immediately runs an Effect, then starts watching
// its dependency set for changes. Call Close to stop it.
func NewEffect(run func(*Effect)) *Effect {
	e := &Effect{run: run, watchStop: make(chan struct{})}
	e.execute()
	go e.watch()
	return e
}

// Defer registers a cleanup to run, in LIFO order, before the next
// re-run or on Close. Must be called from within the Effect's run
// function (directly, or via a nested Effect created inside it).
func (e *Effect) Defer(fn Cleanup) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cleanups = append(e.cleanups, fn)
}

// Nested creates a child Effect owned by e: it is disposed (and its
// own cleanups run) whenever e re-runs or closes, before e's own
// cleanups fire — matching the teacher's LIFO resource-release
// discipline applied recursively.
func (e *Effect) Nested(run func(*Effect)) *Effect {
	child := &Effect{run: run, watchStop: make(chan struct{})}
	child.execute()
	go child.watch()

	e.mu.Lock()
	e.children = append(e.children, child)
	e.mu.Unlock()
	return child
}

// Spawn runs fn on a new goroutine and passes it done, the Effect's
// "cancel future": done is closed when e next re-runs or is closed.
// fn should select on done.
func (e *Effect) Spawn(fn func(done <-chan struct{})) {
	done := make(chan struct{})
	e.Defer(func() { close(done) })
	go fn(done)
}

// Timer schedules cb after d unless the Effect is disposed first.
// Returns nothing; cancellation is automatic via Defer.
func (e *Effect) Timer(d func() <-chan struct{}, cb func()) {
	e.Spawn(func(done <-chan struct{}) {
		select {
		case <-d():
			cb()
		case <-done:
		}
	})
}

// recordRead subscribes to s at read time and appends the change
// channel to this run's dependency set, so a change made before the
// watch loop starts waiting is not missed. Each run starts with a
// fresh slice.
func (e *Effect) recordRead(s changeWaiter) {
	ch := s.subscribe()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reads = append(e.reads, ch)
}

// execute disposes the previous run's children and cleanups (LIFO),
// then invokes run with this Effect registered as the ambient tracking
// target, recording every Signal read along the way.
func (e *Effect) execute() {
	e.disposeChildrenAndCleanups()

	e.mu.Lock()
	e.reads = nil
	e.mu.Unlock()

	pushTracking(e)
	defer popTracking()
	if e.run != nil {
		e.run(e)
	}
}

func (e *Effect) disposeChildrenAndCleanups() {
	e.mu.Lock()
	children := e.children
	e.children = nil
	cleanups := e.cleanups
	e.cleanups = nil
	e.mu.Unlock()

	for i := len(children) - 1; i >= 0; i-- {
		children[i].Close()
	}
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}

// watch blocks until any signal read by the last run changes, then
// re-executes. Exits once Close is called. A per-iteration "round"
// channel releases the goroutines watching each individual dependency
// as soon as one fires or the Effect closes, so a long-lived Effect
// with many re-runs never accumulates stale watcher goroutines.
func (e *Effect) watch() {
	for {
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return
		}
		reads := e.reads
		stop := e.watchStop
		e.mu.Unlock()

		if len(reads) == 0 {
			// Nothing to watch: this Effect never re-runs; wait for
			// Close.
			<-stop
			return
		}

		round := make(chan struct{})
		changed := make(chan struct{})
		var once sync.Once
		fire := func() { once.Do(func() { close(changed) }) }

		for _, ch := range reads {
			go func(ch <-chan struct{}) {
				select {
				case <-ch:
					fire()
				case <-round:
				case <-stop:
				}
			}(ch)
		}

		select {
		case <-changed:
			close(round)
			e.execute()
		case <-stop:
			close(round)
			return
		}
	}
}

// Close disposes the Effect: its children and cleanups run in LIFO
// order, and the background watch loop exits.
func (e *Effect) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	stop := e.watchStop
	e.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	e.disposeChildrenAndCleanups()
}

// Root is a thin alias of Effect for a top-level effect that its owner
// closes at teardown. The audio, video, catalog and broadcast packages
// do not create Effects; they read and set Signal values directly.
type Root = Effect

// NewRoot is an alias for NewEffect, for call sites that create a
// top-level effect.
func NewRoot(run func(*Effect)) *Root { return NewEffect(run) }
