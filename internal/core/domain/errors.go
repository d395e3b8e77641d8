package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrTemporary    = errors.New("temporary failure")

	// Pipeline stage kinds. The assistant converts each of them into a
	// user-safe envelope; none of them is returned to end users verbatim.
	ErrPlanning       = errors.New("planning error")
	ErrRetrieval      = errors.New("retrieval error")
	ErrComposition    = errors.New("composition error")
	ErrUpstream       = errors.New("upstream error")
	ErrInitialization = errors.New("initialization error")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
