package canif

import (
	"errors"

	"github.com/samsamfire/gocanif/pkg/codec"
)

var (
	ErrIllegalArgument = errors.New("error in function arguments")
	ErrIllegalBaudrate = errors.New("illegal baudrate passed to function")
	ErrInvalidState    = errors.New("driver not ready")
	ErrNoMessage       = errors.New("no message received yet")
	// Payload needs more frames than a single buffer can hold
	ErrOperationAborted = codec.ErrOperationAborted
)
