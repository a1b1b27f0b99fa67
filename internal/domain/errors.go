package domain

import "errors"

// Deterministic failures always produce a recorded terminal outcome;
// infrastructure failures never do, and rely on transport redelivery.
var (
	// Malformed input (acknowledged, never retried).
	ErrMalformedEnvelope = errors.New("malformed push envelope")
	ErrMalformedPayload  = errors.New("malformed opportunity payload")

	// Deterministic, terminal.
	ErrUnsupportedStrategy  = errors.New("unsupported strategy")
	ErrInvalidParameters    = errors.New("invalid opportunity parameters")
	ErrEconomicallyUnviable = errors.New("economically unviable at current fees")
	ErrRelayRejected        = errors.New("relay rejected bundle")

	// Infrastructure, transient.
	ErrSecretUnavailable = errors.New("secret unavailable")
	ErrRelayUnreachable  = errors.New("relay unreachable")
	ErrRelayTimeout      = errors.New("relay timeout")
	ErrFeeSnapshot       = errors.New("fee snapshot unavailable")
	ErrClaimHeld         = errors.New("opportunity claim held by another worker")

	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrSigningFailed = errors.New("signing failed")
)

// Retryable reports whether an error belongs to the infrastructure
// category: nothing was recorded, and the transport should redeliver.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrSecretUnavailable),
		errors.Is(err, ErrRelayUnreachable),
		errors.Is(err, ErrRelayTimeout),
		errors.Is(err, ErrFeeSnapshot),
		errors.Is(err, ErrClaimHeld):
		return true
	default:
		return false
	}
}

// Terminal reports whether an error is a deterministic business failure
// that must be recorded as a terminal outcome and never re-executed.
func Terminal(err error) bool {
	switch {
	case errors.Is(err, ErrUnsupportedStrategy),
		errors.Is(err, ErrInvalidParameters),
		errors.Is(err, ErrEconomicallyUnviable),
		errors.Is(err, ErrRelayRejected):
		return true
	default:
		return false
	}
}
