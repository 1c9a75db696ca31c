package domain

import "errors"

// Error taxonomy. Adapters and stages wrap one of these so callers can
// classify failures with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrCollaborator       = errors.New("collaborator failure")
	ErrValidation         = errors.New("validation failure")
	ErrInternal           = errors.New("internal error")
)

// Kind returns the taxonomy label for err. Unclassified errors are internal.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrPreconditionFailed):
		return "PreconditionFailed"
	case errors.Is(err, ErrCollaborator):
		return "CollaboratorFailure"
	case errors.Is(err, ErrValidation):
		return "ValidationFailure"
	default:
		return "Internal"
	}
}
