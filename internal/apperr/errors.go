// Package apperr defines the error taxonomy surfaced at the service
// boundary. Handlers map these to HTTP statuses; everything else wraps
// them with %w and checks with errors.Is.
package apperr

import "errors"

var (
	// ErrUnauthenticated means no identity, or no resolved tenant, on a
	// protected operation.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden means a cross-tenant access attempt on a record the
	// caller can name but not touch.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound covers both absent records and records hidden behind
	// another tenant, so the two are indistinguishable to the caller.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput means a missing or malformed payload field.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict means an invariant violation, e.g. blocking the last
	// active author or double-activating a subscription.
	ErrConflict = errors.New("conflict")

	// ErrExternalProvider means a payment-provider call failed.
	ErrExternalProvider = errors.New("payment provider error")

	// ErrInvalidSignature means a webhook payload failed authenticity
	// verification.
	ErrInvalidSignature = errors.New("invalid signature")
)

// HTTPStatus maps a taxonomy error to its HTTP status code. Unknown errors
// map to 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return 401
	case errors.Is(err, ErrForbidden):
		return 403
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidSignature):
		return 400
	case errors.Is(err, ErrConflict):
		return 409
	case errors.Is(err, ErrExternalProvider):
		return 502
	default:
		return 500
	}
}
