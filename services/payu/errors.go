package payu

import "errors"

var (
	ErrGatewayUnavailable = errors.New("payu: gateway unavailable")
	ErrTimeout            = errors.New("payu: request timed out")
	ErrInvalidResponse    = errors.New("payu: invalid response body")
	ErrMissingTxnID       = errors.New("payu: transaction id is required")
)
