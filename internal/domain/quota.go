package domain

import (
	"errors"
	"fmt"
	"time"
)

// QuotaWindow is how long an initialized allowance lives before it expires and
// the next check reports QuotaNotExist.
const QuotaWindow = 24 * time.Hour

// QuotaState is the outcome of a quota check-and-consume.
type QuotaState int

const (
	QuotaOK QuotaState = iota + 1
	QuotaExceeded
	QuotaNotExist
)

// ErrQuotaAlreadyInitialized is returned by ledgers when Initialize finds a
// live allowance that it must not overwrite.
var ErrQuotaAlreadyInitialized = errors.New("quota already initialized")

func (s QuotaState) String() string {
	switch s {
	case QuotaOK:
		return "OK"
	case QuotaExceeded:
		return "EXCEEDED"
	case QuotaNotExist:
		return "NOTEXIST"
	default:
		return fmt.Sprintf("QuotaState(%d)", int(s))
	}
}

// ParseQuotaState maps the wire form used by counter stores. Unknown values are
// an error; they must never be read as "allowed".
func ParseQuotaState(s string) (QuotaState, error) {
	switch s {
	case "OK":
		return QuotaOK, nil
	case "EXCEEDED":
		return QuotaExceeded, nil
	case "NOTEXIST":
		return QuotaNotExist, nil
	default:
		return 0, fmt.Errorf("domain: unrecognized quota state %q", s)
	}
}
