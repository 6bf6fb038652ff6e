package core

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the caller should react to it.
type Kind int

const (
	// KindConfig is fatal at load time: missing artifacts, dimension
	// mismatch, misaligned arrays. The process should not serve traffic.
	KindConfig Kind = iota + 1

	// KindInput is a caller-fixable request problem, never retried.
	KindInput

	// KindEvidenceGap marks a valid request with zero qualifying matches.
	// Not a failure; callers render it differently from an error.
	KindEvidenceGap

	// KindUpstream is a transient embedding or generation failure, retried
	// with bounded backoff at the call site before being surfaced.
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindInput:
		return "input"
	case KindEvidenceGap:
		return "evidence_gap"
	case KindUpstream:
		return "upstream"
	}
	return "unknown"
}

var (
	ErrEmptyQuestion    = errors.New("question is empty")
	ErrEmptyQuery       = errors.New("query is empty")
	ErrUnknownProduct   = errors.New("unknown product id")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrUnknownMode      = errors.New("unknown recommendation mode")
	ErrNoEvidence       = errors.New("no reviews matched above the similarity floor")
	ErrSnapshotNotReady = errors.New("index snapshot not loaded")
)

// Error attaches an operation name and a Kind to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("[%s]: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with an operation name and a Kind.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf wraps a formatted error with an operation name and a Kind.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain, or zero when
// the chain carries no classification.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsConfig(err error) bool      { return KindOf(err) == KindConfig }
func IsInput(err error) bool       { return KindOf(err) == KindInput }
func IsEvidenceGap(err error) bool { return KindOf(err) == KindEvidenceGap }
func IsUpstream(err error) bool    { return KindOf(err) == KindUpstream }
