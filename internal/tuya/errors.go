package tuya

import (
	"errors"
	"fmt"
)

// ErrUnreachable indicates the vendor cloud could not be reached at all
// (network failure, timeout). Callers may treat this as transient.
var ErrUnreachable = errors.New("tuya: cloud unreachable")

// ErrAuthentication indicates the vendor rejected our credentials or token.
var ErrAuthentication = errors.New("tuya: authentication failed")

// An APIError is a well-formed vendor response with success=false: the
// request was understood but rejected.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tuya: request rejected: %s (code %d)", e.Msg, e.Code)
}

// vendor codes signaling an invalid or expired access token. These get one
// token refresh and retry before surfacing as ErrAuthentication.
func isTokenError(code int) bool {
	return code == 1010 || code == 1011
}
