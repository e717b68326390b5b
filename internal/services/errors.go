package services

import "fmt"

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

type RateLimitError struct{ Message string }

func (e *RateLimitError) Error() string { return e.Message }

// RowValidationError rejects one roster row. The import carries on.
type RowValidationError struct {
	Line       int
	Identifier string
	Message    string
}

func (e *RowValidationError) Error() string {
	return fmt.Sprintf("Row %d (%s): %s", e.Line, e.Identifier, e.Message)
}

// JobFatalError stops an import before any row is processed.
type JobFatalError struct {
	Message string
	Err     error
}

func (e *JobFatalError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *JobFatalError) Unwrap() error { return e.Err }
