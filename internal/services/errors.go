package services

import (
	"errors"
	"fmt"
)

// Error taxonomy for the registration pipeline. Handlers map these onto HTTP
// statuses; the scheduler uses them to tell hard rejections from soft retries.
var (
	// ErrValidation marks malformed or incomplete submissions. Surfaced to the
	// caller, never retried.
	ErrValidation = errors.New("validation error")

	// ErrVerification marks a failed challenge or ownership proof. Terminal
	// rejection, surfaced as the rejection reason.
	ErrVerification = errors.New("verification failed")

	// ErrCollaborator marks an unavailable external collaborator (messaging,
	// candidate source, chain client). Logged and retried next cycle; request
	// state is left unchanged.
	ErrCollaborator = errors.New("collaborator unavailable")

	// ErrAlreadyApproved guards against double-approval: the identity already
	// has an agent profile, so no grant or profile is written again.
	ErrAlreadyApproved = errors.New("agent already approved")
)

func missingField(name string) error {
	return fmt.Errorf("%w: missing required field: %s", ErrValidation, name)
}
