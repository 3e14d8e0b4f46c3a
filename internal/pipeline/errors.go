package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline errors. A Kind is itself an error so it can be
// used as an errors.Is target.
type Kind int

const (
	// KindDecode marks detector output that could not be parsed.
	KindDecode Kind = iota + 1
	// KindRecognition marks a single region that failed to recognize.
	KindRecognition
	// KindPipeline marks an image that could not be processed at all.
	KindPipeline
	// KindInitialization marks engines or models that failed to load.
	KindInitialization
)

func (k Kind) String() string {
	switch k {
	case KindDecode:
		return "decode failure"
	case KindRecognition:
		return "recognition failure"
	case KindPipeline:
		return "pipeline failure"
	case KindInitialization:
		return "initialization failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) Error() string { return k.String() }

// Error is a classified pipeline error.
type Error struct {
	Kind    Kind
	Stage   Stage
	ImageID string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Stage != "" {
		msg += " during " + string(e.Stage)
	}
	if e.ImageID != "" {
		msg += " for image " + e.ImageID
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a Kind target.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

func newError(kind Kind, stage Stage, imageID string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, ImageID: imageID, Err: err}
}

// KindOf returns the Kind of err, or 0 when err is not a pipeline error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}
