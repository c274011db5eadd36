package journal

import "errors"

// ErrIO wraps every open, write or close failure.
var ErrIO = errors.New("journal io error")
