package rag

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so outer layers can map them to responses
// without inspecting error text.
type ErrorKind string

const (
	KindEmbedding  ErrorKind = "embedding"
	KindIndex      ErrorKind = "index"
	KindGeneration ErrorKind = "generation"
	KindIngestion  ErrorKind = "ingestion"
	KindValidation ErrorKind = "validation"
	KindInternal   ErrorKind = "internal"
)

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failed", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf wraps err with a kind and operation. A nil err yields nil.
func Errorf(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost classified error in err's chain,
// or KindInternal when err carries no classification.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
