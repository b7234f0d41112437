package sender

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration is wrapped by every rejected send configuration.
	ErrInvalidConfiguration = errors.New("invalid send configuration")
	// ErrStreamIndexOutOfRange is returned for stream indices outside the
	// registered configuration. The operation has no effect.
	ErrStreamIndexOutOfRange = errors.New("stream index out of range")
	// ErrNoSendConfiguration is returned by operations that need a
	// registered configuration.
	ErrNoSendConfiguration = errors.New("no send configuration registered")
	// ErrNilFrame is returned by AddFrame for a nil frame.
	ErrNilFrame = errors.New("nil frame")
)

// EncodeError carries a raw result code reported by an encoder.
type EncodeError struct {
	Op   string
	Code int
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encoder %s failed with code %d", e.Op, e.Code)
}

func configError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

func rangeError(i, n int) error {
	return fmt.Errorf("%w: %d not in [0,%d)", ErrStreamIndexOutOfRange, i, n)
}
