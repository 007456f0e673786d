package future

import (
	"errors"
	"fmt"
)

// BrokenPromise marks a future whose producer faulted (a panic during
// blocking work). It is an executor-level condition, never an op error.
type BrokenPromise struct {
	Value any
	Stack []byte
}

func (b *BrokenPromise) Error() string {
	return fmt.Sprintf("broken promise: blocking task panicked: %v", b.Value)
}

// IsBroken reports whether err carries a BrokenPromise.
func IsBroken(err error) bool {
	var bp *BrokenPromise
	return errors.As(err, &bp)
}
