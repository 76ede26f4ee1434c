package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fjacquet/statement-ingest/internal/logging"
	"fjacquet/statement-ingest/internal/metrics"
	"fjacquet/statement-ingest/internal/models"
	"fjacquet/statement-ingest/internal/parsererror"
)

// ErrBusy is returned when a session step starts while another is running.
var ErrBusy = errors.New("session is already processing a document")

// Session is one interactive invocation: it remembers the state machine
// position and the password attempt counter between steps. Sessions share
// nothing with each other.
type Session struct {
	svc     *Service
	inv     *invocation
	tracker *tracker

	mu      sync.Mutex
	state   State
	attempt int
	busy    bool
	cancel  context.CancelFunc
	result  *models.DocumentParsingResult
}

// NewSession validates opts and prepares a session for uri in the idle state.
func (s *Service) NewSession(uri string, opts models.ParseOptions, observer Observer) (*Session, error) {
	inv, err := s.newInvocation(uri, opts)
	if err != nil {
		return nil, err
	}
	return &Session{svc: s, inv: inv, tracker: newTracker(observer), state: StateIdle}, nil
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempt returns the number of the pending password challenge, or 0.
func (s *Session) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// Result returns the terminal result, if the session reached one.
func (s *Session) Result() *models.DocumentParsingResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// InvocationID identifies the current invocation in logs and results.
func (s *Session) InvocationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inv.meta.InvocationID
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Start begins a new invocation. It is allowed from idle and from the
// terminal states; progress and the attempt counter start over.
func (s *Session) Start(ctx context.Context) (*models.DocumentParsingResult, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	if s.state == StatePasswordRequired {
		s.mu.Unlock()
		return nil, fmt.Errorf("cannot start while a password is pending: submit one or cancel")
	}
	if s.state != StateIdle {
		s.inv.restart()
	}
	s.attempt = 0
	s.result = nil
	s.tracker.reset()
	s.mu.Unlock()

	return s.step(ctx, "", false)
}

// SubmitPassword retries the pending document with password.
func (s *Session) SubmitPassword(ctx context.Context, password string) (*models.DocumentParsingResult, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	if s.state != StatePasswordRequired {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("no password is pending (state %s)", state)
	}
	s.mu.Unlock()

	return s.step(ctx, password, true)
}

// Cancel abandons the session. A pending password prompt returns the
// session to idle; a running step is interrupted and its temporary files are
// removed before it returns.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy && s.cancel != nil {
		s.cancel()
		return
	}
	if s.state == StatePasswordRequired {
		s.state = StateIdle
		s.attempt = 0
		s.tracker.idle()
		s.svc.metrics.ObserveParse(string(s.inv.opts.Format), metrics.OutcomeCancelled)
		s.svc.logger.Info("Password prompt cancelled",
			logging.F(logging.FieldInvocationID, s.inv.meta.InvocationID))
	}
}

func (s *Session) step(ctx context.Context, password string, resume bool) (*models.DocumentParsingResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.busy = true
	s.cancel = cancel
	previous := s.attempt
	s.mu.Unlock()

	result, err := s.svc.run(ctx, s.inv, password, previous, resume, s.tracker, s.setState)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	s.cancel = nil

	if challenge, ok := AsPasswordChallenge(err); ok {
		s.attempt = challenge.Attempt.AttemptNumber
		return nil, challenge
	}
	if err != nil {
		s.state = StateIdle
		s.attempt = 0
		s.tracker.idle()
		return nil, err
	}
	s.attempt = 0
	s.result = result
	return result, nil
}

// Run drives the session to a terminal state, asking prompter for a
// password on every challenge. A declined prompt cancels the session and
// returns parsererror.ErrCancelled.
func (s *Session) Run(ctx context.Context, prompter Prompter) (*models.DocumentParsingResult, error) {
	result, err := s.Start(ctx)
	for {
		challenge, ok := AsPasswordChallenge(err)
		if !ok {
			return result, err
		}
		if prompter == nil {
			s.Cancel()
			return nil, challenge
		}
		password, accepted, promptErr := prompter.PromptPassword(ctx, challenge)
		if promptErr != nil {
			s.Cancel()
			return nil, fmt.Errorf("password prompt failed: %w", promptErr)
		}
		if !accepted {
			s.Cancel()
			return nil, parsererror.ErrCancelled
		}
		result, err = s.SubmitPassword(ctx, password)
	}
}
