package bsurf

import (
	"context"
	"slices"
	"sync"

	"honnef.co/go/curve"
)

// Session re-evaluates a fixed set of sample points whenever the control
// points change. Every call to Trigger starts a new evaluation; results of
// evaluations that have been superseded by a newer trigger by the time they
// finish are discarded, so the displayed positions always belong to the most
// recent request.
type Session struct {
	ev      *Evaluator
	samples []curve.Point

	// OnUpdate, if set, is called with every published result. It must not
	// call back into the session.
	OnUpdate func(gen uint64, positions []curve.Point)

	wg sync.WaitGroup

	mu        sync.Mutex
	surface   *Surface
	requested uint64
	shown     uint64
	positions []curve.Point
	err       error
	discarded int
}

func NewSession(ev *Evaluator, samples []curve.Point) *Session {
	return &Session{
		ev:      ev,
		samples: slices.Clone(samples),
	}
}

// Prepare precomputes the UV coordinates and basis values of the session's
// samples, so that triggered evaluations only run the sum stage.
func (s *Session) Prepare(ctx context.Context) error {
	surface, err := s.ev.Prepare(ctx, s.samples)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.surface = surface
	s.mu.Unlock()
	return nil
}

// Trigger snapshots ctrl and starts an evaluation in the background. It
// returns the generation of the new request.
func (s *Session) Trigger(ctx context.Context, ctrl []curve.Point) uint64 {
	snapshot := slices.Clone(ctrl)

	s.mu.Lock()
	s.requested++
	gen := s.requested
	surface := s.surface
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var positions []curve.Point
		var err error
		if surface != nil {
			positions, err = surface.Evaluate(ctx, snapshot)
		} else {
			positions, err = s.ev.Evaluate(ctx, s.samples, snapshot)
		}
		s.publish(gen, positions, err)
	}()
	return gen
}

func (s *Session) publish(gen uint64, positions []curve.Point, err error) {
	s.mu.Lock()
	if gen != s.requested || gen <= s.shown {
		s.discarded++
		latest := s.requested
		s.mu.Unlock()
		s.ev.logger.Warn("discarding superseded evaluation", "generation", gen, "latest", latest)
		return
	}
	if err != nil {
		s.err = err
		s.mu.Unlock()
		return
	}
	s.shown = gen
	s.positions = positions
	s.err = nil
	fn := s.OnUpdate
	s.mu.Unlock()

	if fn != nil {
		fn(gen, positions)
	}
}

// Wait blocks until all triggered evaluations have finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Positions returns the most recently published positions and the
// generation they belong to. The slice must not be modified.
func (s *Session) Positions() (uint64, []curve.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shown, s.positions
}

// Err returns the error of the most recent request, if it failed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Discarded returns the number of results that were dropped because a newer
// request existed when they finished.
func (s *Session) Discarded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discarded
}
