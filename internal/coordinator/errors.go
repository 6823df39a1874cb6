package coordinator

import "errors"

// ErrStoreUnavailable indicates a store read or write failed. The whole
// check aborts: per-device failures are isolated, store failures are not.
var ErrStoreUnavailable = errors.New("store unavailable")
