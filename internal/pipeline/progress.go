package pipeline

import (
	"sync"

	"fjacquet/statement-ingest/internal/models"
)

// State is the session state machine:
//
//	idle -> uploading -> parsing -> (passwordRequired <-> parsing) -> complete | error
//
// Cancelling from passwordRequired returns to idle.
type State string

const (
	StateIdle             State = "idle"
	StateUploading        State = "uploading"
	StateParsing          State = "parsing"
	StatePasswordRequired State = "passwordRequired"
	StateComplete         State = "complete"
	StateError            State = "error"
)

// TotalSteps is the number of progress steps of one invocation.
const TotalSteps = 5

// Event is one progress notification.
type Event struct {
	State    State                     `json:"state"`
	Progress models.ProcessingProgress `json:"progress"`
}

// Observer receives progress events. Implementations must not block for long:
// they run on the pipeline goroutine.
type Observer interface {
	OnProgress(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnProgress implements Observer.
func (f ObserverFunc) OnProgress(e Event) {
	f(e)
}

// ChannelObserver delivers events on a buffered channel. Events that do not
// fit are dropped rather than stalling the pipeline.
type ChannelObserver struct {
	C chan Event

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewChannelObserver creates an observer with a buffer of size events.
func NewChannelObserver(size int) *ChannelObserver {
	return &ChannelObserver{C: make(chan Event, size)}
}

// OnProgress implements Observer.
func (o *ChannelObserver) OnProgress(e Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	select {
	case o.C <- e:
	default:
		o.dropped++
	}
}

// Dropped returns the number of events lost to a full buffer.
func (o *ChannelObserver) Dropped() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

// Close closes the channel. Later events are discarded.
func (o *ChannelObserver) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.C)
	}
}

type step struct {
	index   int
	percent int
	label   string
}

var (
	stepSelect     = step{1, 10, "Selecting document"}
	stepRead       = step{2, 30, "Reading document"}
	stepUnlock     = step{3, 50, "Checking for password protection"}
	stepUnlockPW   = step{3, 60, "Unlocking PDF with password"}
	stepRecognize  = step{3, 65, "Recognizing text"}
	stepDetect     = step{4, 70, "Detecting bank format"}
	stepExtract    = step{5, 80, "Extracting transactions"}
	stepDone       = step{5, 100, "Complete"}
	stepPassword   = step{3, 50, "Password required"}
	stepFailed     = step{0, 0, "Failed"}
	stepCancelled  = step{0, 0, "Cancelled"}
)

// tracker emits events with a non-decreasing percentage until reset.
type tracker struct {
	observer Observer
	last     int
	lastStep int
}

func newTracker(observer Observer) *tracker {
	return &tracker{observer: observer}
}

func (t *tracker) reset() {
	t.last = 0
	t.lastStep = 0
}

func (t *tracker) emit(state State, stage models.Stage, s step) {
	percent := s.percent
	if percent < t.last {
		percent = t.last
	}
	index := s.index
	if index < t.lastStep {
		index = t.lastStep
	}
	t.last, t.lastStep = percent, index

	if t.observer == nil {
		return
	}
	t.observer.OnProgress(Event{
		State: state,
		Progress: models.ProcessingProgress{
			Stage:            stage,
			Progress:         percent,
			CurrentStep:      s.label,
			TotalSteps:       TotalSteps,
			CurrentStepIndex: index,
		},
	})
}

// idle reports the return to idle after a cancelled password prompt. It
// ends the invocation, so the percentage restarts from zero.
func (t *tracker) idle() {
	t.reset()
	if t.observer == nil {
		return
	}
	t.observer.OnProgress(Event{
		State: StateIdle,
		Progress: models.ProcessingProgress{
			Stage:       models.StageUploading,
			CurrentStep: stepCancelled.label,
			TotalSteps:  TotalSteps,
		},
	})
}
