package generate

import "errors"

// Kind classifies a generation failure. Every kind is reported to HTTP
// clients the same way; the kind only feeds logs and metrics.
type Kind string

const (
	KindValidation Kind = "validation"
	KindPipeline   Kind = "pipeline"
	KindExport     Kind = "export"
)

// Error is a classified generation failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func validation(err error) error { return &Error{Kind: KindValidation, Err: err} }

// KindOf returns the kind of err, KindPipeline for unclassified errors.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindPipeline
}
