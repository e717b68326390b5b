package bulkimport

import (
	"errors"
	"fmt"

	"schoolhub-backend/internal/models"
)

// Outcome is how a finished import is presented.
type Outcome int

const (
	// OutcomeNone means no result event was received.
	OutcomeNone Outcome = iota
	OutcomeFullSuccess
	OutcomePartialSuccess
	OutcomeHardFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFullSuccess:
		return "full success"
	case OutcomePartialSuccess:
		return "partial success"
	case OutcomeHardFailure:
		return "hard failure"
	default:
		return "none"
	}
}

func Classify(r *models.ImportResult) Outcome {
	switch {
	case r == nil:
		return OutcomeNone
	case !r.Success:
		return OutcomeHardFailure
	case r.HasErrors:
		return OutcomePartialSuccess
	default:
		return OutcomeFullSuccess
	}
}

var (
	ErrJobInFlight       = errors.New("an import is already running")
	ErrProgressRegressed = errors.New("progress went backwards")
)

// ClientValidationError rejects an upload before any request is made.
type ClientValidationError struct {
	Path    string
	Message string
}

func (e *ClientValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}
