package reservation

import "context"

// Submitter sends a booking to the remote service.
//
// A nil error means accepted. Failures carry one of the internaltypes marks:
// ErrTransient (retry), ErrDefinitive (give up), ErrUnauthorized (token
// rejected; the caller drops its cached token and treats it as transient).
type Submitter interface {
	Submit(ctx context.Context, req Request, accessToken string) error
}
