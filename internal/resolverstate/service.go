// Package resolverstate manages the versioned resolver state a local WASM
// resolver evaluates flags against: fetching it from the backend, validating
// it, and installing it into the guest exactly once before first resolution.
package resolverstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Phase is a step of the state lifecycle. Transitions never skip a step and
// Failed is reachable from every step.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseFetching
	PhaseValidating
	PhaseInstalling
	PhaseReady
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseFetching:
		return "fetching"
	case PhaseValidating:
		return "validating"
	case PhaseInstalling:
		return "installing"
	case PhaseReady:
		return "ready"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// ErrNoState is the fetch outcome when the backend stream ended without a
// state message.
var ErrNoState = errors.New("resolverstate: no state received")

// ErrInvalidState is the validation outcome when the fetched bytes do not
// parse as the state schema.
var ErrInvalidState = errors.New("resolverstate: invalid state")

// StateError records which lifecycle step failed and why. A service that
// entered Failed keeps returning it until a fresh Initialize attempt.
type StateError struct {
	Phase Phase
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("resolverstate: %s failed: %v", e.Phase, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }

// Fetcher retrieves the serialized state blob from its source.
type Fetcher interface {
	FetchState(ctx context.Context) ([]byte, error)
}

// Installer hands validated state bytes to the resolver instance.
type Installer interface {
	InstallState(ctx context.Context, state []byte) error
}

// Service drives the state lifecycle:
//
//	Uninitialized -> Fetching -> Validating -> Installing -> Ready
//
// Initialize on a Ready service is a no-op; the state is immutable after
// install and a newer state needs a fresh Initialize, not a mutation.
//
// Phase bookkeeping is guarded separately from the fetch/install round, so
// Ready, Phase, and Err answer immediately while an Initialize is in flight.
// Resolutions issued before Ready therefore always fail fast instead of
// queueing behind the fetch.
type Service struct {
	fetcher   Fetcher
	installer Installer
	log       *slog.Logger

	// initMu serializes fetch/install rounds. Never taken by readers.
	initMu sync.Mutex

	// mu guards phase and lastErr and is only held for field access.
	mu      sync.Mutex
	phase   Phase
	lastErr error
}

func NewService(fetcher Fetcher, installer Installer, log *slog.Logger) *Service {
	return &Service{
		fetcher:   fetcher,
		installer: installer,
		log:       log.With(slog.String("worker", "resolver-state")),
		phase:     PhaseUninitialized,
	}
}

// Initialize runs the lifecycle to Ready. Concurrent callers serialize so
// exactly one fetch/install round runs; the rest observe Ready (or the
// Failed error) when it completes.
func (s *Service) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.Phase() == PhaseReady {
		return nil
	}

	state, err := s.runStep(ctx, PhaseFetching, func(ctx context.Context) ([]byte, error) {
		return s.fetcher.FetchState(ctx)
	})
	if err != nil {
		return err
	}

	if _, err := s.runStep(ctx, PhaseValidating, func(ctx context.Context) ([]byte, error) {
		if verr := ValidateState(state); verr != nil {
			return nil, verr
		}
		return state, nil
	}); err != nil {
		return err
	}

	if _, err := s.runStep(ctx, PhaseInstalling, func(ctx context.Context) ([]byte, error) {
		return nil, s.installer.InstallState(ctx, state)
	}); err != nil {
		return err
	}

	s.setPhase(PhaseReady, nil)
	s.log.Info("resolver state installed", slog.Int("size", len(state)))
	return nil
}

// runStep enters phase, runs the step without holding the field lock, and
// records Failed on error.
func (s *Service) runStep(ctx context.Context, phase Phase, step func(context.Context) ([]byte, error)) ([]byte, error) {
	s.setPhase(phase, nil)
	out, err := step(ctx)
	if err != nil {
		stepErr := &StateError{Phase: phase, Err: err}
		s.setPhase(PhaseFailed, stepErr)
		s.log.Error("resolver state lifecycle failed",
			slog.String("phase", phase.String()),
			"error", err,
		)
		return nil, stepErr
	}
	return out, nil
}

func (s *Service) setPhase(phase Phase, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
	s.lastErr = err
}

// Ready reports whether resolution calls may reach the resolver. It never
// blocks on an in-flight Initialize.
func (s *Service) Ready() bool {
	return s.Phase() == PhaseReady
}

// Phase returns the current lifecycle phase.
func (s *Service) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Err returns the error that moved the service to Failed, or nil.
func (s *Service) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
