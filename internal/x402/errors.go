package x402

import "errors"

// Failure taxonomy. Server-side errors surface as 402 with a reason string;
// client-side errors abort the fetch. Wrap with fmt.Errorf("...: %w", ...)
// and test with errors.Is.
var (
	// ErrMalformedProof marks an X-Payment header that is present but
	// undecodable or missing required fields.
	ErrMalformedProof = errors.New("malformed payment proof")

	// ErrReplayed marks a proof whose transaction hash or authorization
	// nonce was already used for payment credit.
	ErrReplayed = errors.New("payment already used")

	// ErrInsufficient marks a proof whose amount is below the requirement
	// or whose recipient/asset does not match.
	ErrInsufficient = errors.New("insufficient payment")

	// ErrFacilitatorUnavailable marks a failed or timed-out verify/settle
	// call. From the payer's perspective payment simply did not go through.
	ErrFacilitatorUnavailable = errors.New("facilitator unavailable")

	// ErrBudgetExceeded is raised client-side when the required amount is
	// above the caller's ceiling. No payment is attempted.
	ErrBudgetExceeded = errors.New("payment would exceed budget")

	// ErrSigningFailure is raised client-side when no signing credential
	// can be resolved or signing fails.
	ErrSigningFailure = errors.New("payment signing failed")

	// ErrPaymentRejected is raised client-side when the retried request is
	// refused again after a payment proof was attached.
	ErrPaymentRejected = errors.New("payment rejected")
)
