// Package httpapi exposes the workflow service over HTTP for hosts that
// trigger invocations with a plain POST. Adapters are provided for gin and
// echo; both read the request body, dispatch it to the service, and map
// workflow error codes to HTTP statuses.
package httpapi

import (
	"net/http"

	creon "github.com/creonlabs/creon-go"
)

// statusFor maps a dispatch response to an HTTP status code.
func statusFor(resp creon.Response) int {
	if resp.OK {
		return http.StatusOK
	}
	if resp.Error == nil {
		return http.StatusInternalServerError
	}
	switch resp.Error.Code {
	case creon.ErrCodeInvalidInput, creon.ErrCodeMissingPaymentProof:
		return http.StatusBadRequest
	case creon.ErrCodeNoEntitlement:
		return http.StatusNotFound
	case creon.ErrCodeReplayDetected, creon.ErrCodeIdempotencyConflict:
		return http.StatusConflict
	case creon.ErrCodeEntitlementExpired, creon.ErrCodeEntitlementRevoked, creon.ErrCodeUsesExceeded:
		return http.StatusForbidden
	case creon.ErrCodeChainError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
