package filter

import (
	"errors"
	"strings"
)

// ErrContentBlocked matches any *BlockedError with errors.Is.
var ErrContentBlocked = errors.New("content blocked")

// BlockedError is returned by EnsureSafe when at least one rule matched.
type BlockedError struct {
	// Rules are the matched rule names in evaluation order.
	Rules []string
}

func (e *BlockedError) Error() string {
	return "Text contains unsafe content: " + strings.Join(e.Rules, ", ")
}

func (e *BlockedError) Is(target error) bool {
	return target == ErrContentBlocked
}
