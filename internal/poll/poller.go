// Package poll drives the client side of a verification task: it asks
// the registry for snapshots on an interval, surfaces progress, and
// resolves to exactly one terminal callback.
package poll

import (
	"errors"
	"sync"
	"time"

	"github.com/citewatch/citewatch/internal/model"
)

var (
	// ErrPollTimeout is reported through OnFailure when a task does not
	// reach a terminal state within the poller's maximum wait.
	ErrPollTimeout = errors.New("polling timed out before task finished")

	// ErrTaskTimedOut is reported through OnFailure when the task itself
	// hit its deadline. The task snapshot still exists and carries every
	// partial outcome; callers that want them fetch it once more.
	ErrTaskTimedOut = errors.New("task timed out")
)

// StatusFunc fetches the current snapshot for a task. Registry.Snapshot
// satisfies it directly; over HTTP the client adapter does.
type StatusFunc func(taskID string) (model.TaskSnapshot, error)

// Callbacks receive poll events. Any field may be nil. OnProgress fires
// on every successful poll of a still-running task; exactly one of
// OnComplete or OnFailure fires per poll, never both, and nothing fires
// after Stop returns.
type Callbacks struct {
	OnProgress func(snapshot model.TaskSnapshot)
	OnComplete func(snapshot model.TaskSnapshot)
	OnFailure  func(taskID string, err error)
}

// Poller watches one task at a time. Starting a new poll stops the
// previous one. Safe for concurrent use.
type Poller struct {
	status   StatusFunc
	interval time.Duration
	maxWait  time.Duration

	mu      sync.Mutex
	current *watch
}

// watch is one polling session. The stopped flag is checked under the
// mutex before every callback, which is what makes Stop synchronous:
// once Stop returns, no further callback can fire.
type watch struct {
	mu      sync.Mutex
	stopped bool
	cancel  chan struct{}
}

func (w *watch) stop() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.cancel)
	}
	w.mu.Unlock()
}

// emit runs fn unless the watch was stopped. Holding the lock across fn
// means Stop blocks until an in-flight callback returns.
func (w *watch) emit(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || fn == nil {
		return
	}
	fn()
}

// NewPoller creates a poller with the configured cadence. Zero values
// fall back to a 2s interval and 60s maximum wait.
func NewPoller(status StatusFunc, cfg model.PollConfig) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	maxWait := cfg.MaxWait
	if maxWait <= 0 {
		maxWait = 60 * time.Second
	}
	return &Poller{status: status, interval: interval, maxWait: maxWait}
}

// Start begins polling taskID. Any previous poll is stopped first; its
// callbacks stop firing before the new session begins.
func (p *Poller) Start(taskID string, cbs Callbacks) {
	w := &watch{cancel: make(chan struct{})}

	p.mu.Lock()
	prev := p.current
	p.current = w
	p.mu.Unlock()

	if prev != nil {
		prev.stop()
	}

	go p.loop(taskID, w, cbs)
}

// Stop halts the active poll. Synchronous: when Stop returns, no
// callback from the stopped session will run.
func (p *Poller) Stop() {
	p.mu.Lock()
	w := p.current
	p.current = nil
	p.mu.Unlock()

	if w != nil {
		w.stop()
	}
}

func (p *Poller) loop(taskID string, w *watch, cbs Callbacks) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(p.maxWait)
	defer deadline.Stop()

	for {
		select {
		case <-w.cancel:
			return
		case <-deadline.C:
			// Exactly one terminal callback: stop first so a tick racing
			// the deadline cannot also report.
			w.emit(func() {
				if cbs.OnFailure != nil {
					cbs.OnFailure(taskID, ErrPollTimeout)
				}
			})
			w.stop()
			return
		case <-ticker.C:
			snap, err := p.status(taskID)
			if err != nil {
				w.emit(func() {
					if cbs.OnFailure != nil {
						cbs.OnFailure(taskID, err)
					}
				})
				w.stop()
				return
			}

			switch snap.Status {
			case model.TaskRunning:
				w.emit(func() {
					if cbs.OnProgress != nil {
						cbs.OnProgress(snap)
					}
				})
			case model.TaskCompleted:
				w.emit(func() {
					if cbs.OnComplete != nil {
						cbs.OnComplete(snap)
					}
				})
				w.stop()
				return
			case model.TaskTimedOut:
				w.emit(func() {
					if cbs.OnFailure != nil {
						cbs.OnFailure(taskID, ErrTaskTimedOut)
					}
				})
				w.stop()
				return
			case model.TaskFailed:
				w.emit(func() {
					if cbs.OnFailure != nil {
						cbs.OnFailure(taskID, errors.New(snap.Error))
					}
				})
				w.stop()
				return
			}
		}
	}
}
