// Package telephony dials agents into conference rooms over the
// public phone network.
package telephony

import "context"

// Gateway places outbound calls and reports their status.
type Gateway interface {
	// PlaceCall dials phone and points the carrier at callbackURL for
	// call instructions. It returns the provider's call SID.
	PlaceCall(ctx context.Context, phone, callbackURL, statusCallbackURL string) (string, error)
	// CallStatus reports the provider's view of an in-flight call.
	CallStatus(ctx context.Context, sid string) (string, error)
}
