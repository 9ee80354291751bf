package models

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrEmptyCorpus        = errors.New("empty corpus")
	ErrDocumentRead       = errors.New("document read failed")
	ErrIndexNotFound      = errors.New("index not found")
	ErrIndexCorrupt       = errors.New("index snapshot corrupt")
	ErrEmbeddingMismatch  = errors.New("embedding function mismatch")
	ErrInvalidQuery       = errors.New("invalid query")
	ErrInvalidCase        = errors.New("invalid case input")
	ErrExtractionParse    = errors.New("extraction parse error")
	ErrTimeout            = errors.New("inference timeout")
	ErrUnavailable        = errors.New("service unavailable")
	ErrMissingCredential  = errors.New("missing credential")
	ErrMalformedResponse  = errors.New("malformed response")
	ErrArtifactExists     = errors.New("artifact already exists")
	ErrUnsupportedFormat  = errors.New("unsupported file format")
	ErrIterationsExceeded = errors.New("iteration limit exceeded")
)

// DocumentReadError reports one corpus file that could not be loaded.
type DocumentReadError struct {
	Path string
	Err  error
}

func (e *DocumentReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *DocumentReadError) Unwrap() []error { return []error{ErrDocumentRead, e.Err} }

type Stage string

const (
	StageExtraction Stage = "extraction"
	StageRetrieval  Stage = "retrieval"
	StageReasoning  Stage = "reasoning"
	StageReport     Stage = "report"
)

// StageError is the only error shape a pipeline run returns for a failed case.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed (%s): %v", e.Stage, ErrorKind(e.Err), e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ErrorKind buckets an error for users and the run ledger.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrExtractionParse), errors.Is(err, ErrMalformedResponse):
		return "parse"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrIndexNotFound), errors.Is(err, ErrIndexCorrupt),
		errors.Is(err, ErrEmbeddingMismatch), errors.Is(err, ErrMissingCredential):
		return "missing_resource"
	case errors.Is(err, ErrEmptyCorpus), errors.Is(err, ErrInvalidQuery),
		errors.Is(err, ErrInvalidCase), errors.Is(err, ErrUnsupportedFormat):
		return "invalid_input"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrIterationsExceeded):
		return "iteration_limit"
	default:
		return "internal"
	}
}
