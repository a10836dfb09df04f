package coordinator

import (
	"errors"
	"fmt"
)

// Sentinel errors for the onboarding error taxonomy. Fatal errors
// terminate the join attempt; NoHelperAvailable and Timeout are retryable by
// the client after backoff.
var (
	ErrVersionMismatch            = errors.New("coordinator: version mismatch")
	ErrIdentityMismatch           = errors.New("coordinator: identity mismatch")
	ErrAuthenticationFailed       = errors.New("coordinator: authentication failed")
	ErrMembershipRequired         = errors.New("coordinator: membership token required")
	ErrInvalidMembershipToken     = errors.New("coordinator: invalid membership token")
	ErrInvitationExpiredOrInvalid = errors.New("coordinator: invitation expired or invalid")
	ErrNoHelperAvailable          = errors.New("coordinator: no onboarding helper available")
	ErrJoinTimeout                = errors.New("coordinator: join attempt timed out")

	errInvalidJoinTransition = errors.New("coordinator: invalid join state transition")
)

// JoinError annotates one of the above sentinels with the join state it
// occurred in.
type JoinError struct {
	State JoinState
	Cause error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("coordinator: join failed in state %s: %v", e.State, e.Cause)
}

func (e *JoinError) Unwrap() error { return e.Cause }
