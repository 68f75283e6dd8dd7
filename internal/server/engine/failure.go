package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies an analysis failure
type Kind int

const (
	KindTimeout Kind = iota + 1
	KindProcess
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindProcess:
		return "process_error"
	case KindMalformed:
		return "malformed_output"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against a *Failure
var (
	ErrTimeout   = errors.New("engine timeout")
	ErrProcess   = errors.New("engine process error")
	ErrMalformed = errors.New("malformed engine output")
)

// Failure is the typed outcome of an analysis that produced no result
type Failure struct {
	Kind     Kind
	ExitCode int           // KindProcess
	Stderr   string        // KindProcess
	Raw      string        // KindMalformed
	Timeout  time.Duration // KindTimeout
}

func (f *Failure) Error() string {
	switch f.Kind {
	case KindTimeout:
		return fmt.Sprintf("engine analysis timed out after %s", f.Timeout)
	case KindProcess:
		return fmt.Sprintf("engine exited with code %d: %s", f.ExitCode, strings.TrimSpace(f.Stderr))
	case KindMalformed:
		return fmt.Sprintf("failed to parse engine output: %s", f.Raw)
	default:
		return "engine analysis failed"
	}
}

func (f *Failure) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return f.Kind == KindTimeout
	case ErrProcess:
		return f.Kind == KindProcess
	case ErrMalformed:
		return f.Kind == KindMalformed
	}
	return false
}

// FailureKind returns the kind of err if it is a *Failure, or 0
func FailureKind(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return 0
}
