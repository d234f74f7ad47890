package app

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrIngestion       = errors.New("document ingestion failed")
	ErrRetrievalEmpty  = errors.New("no relevant content found")
	ErrExternalService = errors.New("external service failed")
	ErrTimeout         = errors.New("operation timed out")
)

// ValidationError is a user mistake. Message is safe to show to the user.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// classified reports whether err already carries one of the package's kinds.
func classified(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrIngestion) ||
		errors.Is(err, ErrRetrievalEmpty) ||
		errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrTimeout)
}

// classifyExternal tags a failed call to a remote dependency as a timeout or
// a generic external failure.
func classifyExternal(op string, err error) error {
	if err == nil || classified(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrExternalService, err)
}

func ingestionError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	if errors.As(err, &ve) || errors.Is(err, ErrIngestion) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrIngestion, err)
}
