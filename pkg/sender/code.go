package sender

import (
	"errors"

	"github.com/pion/ion-sender/pkg/framerate"
	"github.com/pion/ion-sender/pkg/temporal"
)

// Numeric result codes for callers that speak the integer contract.
const (
	CodeOK                 = 0
	CodeRangeError         = -1
	CodeConfigurationError = -2
	CodeInsufficientData   = -3
	CodeError              = -10
)

// ResultCode maps an error returned by this package to its result code.
// Encoder codes are passed through unchanged.
func ResultCode(err error) int {
	var encErr *EncodeError
	switch {
	case err == nil:
		return CodeOK
	case errors.As(err, &encErr):
		return encErr.Code
	case errors.Is(err, ErrStreamIndexOutOfRange):
		return CodeRangeError
	case errors.Is(err, ErrInvalidConfiguration), errors.Is(err, temporal.ErrInvalidConfig):
		return CodeConfigurationError
	case errors.Is(err, framerate.ErrInsufficientData):
		return CodeInsufficientData
	}
	return CodeError
}
