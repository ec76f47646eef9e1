package executor

import (
	"errors"
	"fmt"
)

// Sentinel errors for construction failures.
var (
	// ErrResourceUnavailable is returned when the model asset or the
	// requested accelerator cannot be reached.
	ErrResourceUnavailable = errors.New("executor: resource unavailable")

	// ErrIntegrityCheckFailed is returned when the model asset digest does
	// not match the expected value.
	ErrIntegrityCheckFailed = errors.New("executor: integrity check failed")

	// ErrInitialization is returned when the runtime rejects the model or
	// none of the priority accelerations could be set up.
	ErrInitialization = errors.New("executor: initialization error")

	// ErrUnknownTier is returned when parsing an unknown tier name.
	ErrUnknownTier = errors.New("executor: unknown tier")

	// ErrReleased is returned by executors used after Release.
	ErrReleased = errors.New("executor: released")
)

// Kind classifies a construction failure.
type Kind int

const (
	KindInitialization Kind = iota
	KindResourceUnavailable
	KindIntegrityCheckFailed
)

func (k Kind) String() string {
	switch k {
	case KindResourceUnavailable:
		return "resource_unavailable"
	case KindIntegrityCheckFailed:
		return "integrity_check_failed"
	default:
		return "initialization_error"
	}
}

// BuildError wraps a construction failure with tier context.
type BuildError struct {
	Tier Tier
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	return fmt.Sprintf("executor [%s]: %s: %v", e.Tier, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *BuildError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel that corresponds to the error kind, so callers can
// test errors.Is(err, ErrIntegrityCheckFailed) even when the constructor
// returned an unclassified error.
func (e *BuildError) Is(target error) bool {
	switch target {
	case ErrResourceUnavailable:
		return e.Kind == KindResourceUnavailable
	case ErrIntegrityCheckFailed:
		return e.Kind == KindIntegrityCheckFailed
	case ErrInitialization:
		return e.Kind == KindInitialization
	}
	return false
}

// Classify returns the Kind of a constructor error.
// Unrecognised errors are initialization errors.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrIntegrityCheckFailed):
		return KindIntegrityCheckFailed
	case errors.Is(err, ErrResourceUnavailable):
		return KindResourceUnavailable
	default:
		return KindInitialization
	}
}

// WrapBuildError wraps err with tier context. Returns nil for a nil error.
func WrapBuildError(tier Tier, err error) *BuildError {
	if err == nil {
		return nil
	}
	var be *BuildError
	if errors.As(err, &be) {
		return be
	}
	return &BuildError{Tier: tier, Kind: Classify(err), Err: err}
}
