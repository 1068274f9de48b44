package stage

import (
	"errors"
	"fmt"
)

// Errors reported by the builder. Every one of them is fatal for the build;
// match them with errors.Is.
var (
	ErrMissingVariable = errors.New("missing build variable")
	ErrScriptWrite     = errors.New("cannot write lifecycle script")
	ErrOwnership       = errors.New("cannot set ownership")
	ErrNormalization   = errors.New("cannot normalize staging directory")
	ErrControlWrite    = errors.New("cannot write control files")
	ErrArchiveBuild    = errors.New("cannot build package archive")
)

// Phase names a step of the build.
type Phase string

const (
	PhaseIdentity  Phase = "identity"
	PhaseScripts   Phase = "scripts"
	PhaseNormalize Phase = "normalize"
	PhaseControl   Phase = "control"
	PhaseArchive   Phase = "archive"
)

// PhaseError reports which phase failed, the failure class and the cause.
type PhaseError struct {
	Phase Phase
	Kind  error
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s phase: %v: %v", e.Phase, e.Kind, e.Err)
}

// Unwrap exposes both the failure class and the cause to errors.Is and errors.As.
func (e *PhaseError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func fail(phase Phase, kind error, format string, args ...any) error {
	return &PhaseError{Phase: phase, Kind: kind, Err: fmt.Errorf(format, args...)}
}
