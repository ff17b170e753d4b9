package payment

import "errors"

var (
	// ErrInvalidRequest rejects caller mistakes before any external call.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrCheckoutFailed wraps gateway errors from order creation; the local
	// record stays in created and the checkout may be retried.
	ErrCheckoutFailed = errors.New("checkout failed")
	// ErrInvalidSignature is a security-relevant rejection. Remote callers
	// only ever see a generic response for it.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrUnknownOrder marks notifications for orders this system never
	// created. Dropped and logged, never retried.
	ErrUnknownOrder = errors.New("unknown order")
	// ErrNotCancellable rejects cancel attempts on records past created.
	ErrNotCancellable = errors.New("payment no longer cancellable")
)
