package iolink

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalArgument   = errors.New("error in function arguments")
	ErrInvalidEvent      = errors.New("event not applicable in the current state")
	ErrNotActive         = errors.New("handler is not active")
	ErrBufferSize        = errors.New("data does not fit in message buffer")
	ErrRxMsgLength       = errors.New("wrong receive message length")
	ErrChecksum          = errors.New("checksum does not match")
	ErrMsgType           = errors.New("unexpected m-sequence type")
	ErrUnsupportedDriver = errors.New("unsupported transceiver driver")
	ErrTimeout           = errors.New("function timeout")
	ErrStateConflict     = errors.New("request not allowed in the current state")
)

// ErrorType is an ISDU error reported to the master, a pair of
// error code (high byte) and additional code (low byte)
type ErrorType uint16

const (
	ErrNone              ErrorType = 0x0000
	ErrAppDevice         ErrorType = 0x8000
	ErrIndexNotAvailable ErrorType = 0x8011
	ErrSubindexNotAvail  ErrorType = 0x8012
	ErrServiceNotAvail   ErrorType = 0x8020
	ErrIndexNotWritable  ErrorType = 0x8023
	ErrValueLenOverrun   ErrorType = 0x8033
	ErrValueLenUnderrun  ErrorType = 0x8034
	ErrFuncNotAvailable  ErrorType = 0x8035
	ErrFuncTempUnavail   ErrorType = 0x8036
	ErrParamSetInvalid   ErrorType = 0x8040
	ErrUnspecific        ErrorType = 0x8100
	// Negative response for a read of an absent or rejected parameter
	ErrReadAbort ErrorType = 0x81FF
)

var errorTypeDescriptionMap = map[ErrorType]string{
	ErrAppDevice:         "device application error, no details",
	ErrIndexNotAvailable: "index not available",
	ErrSubindexNotAvail:  "subindex not available",
	ErrServiceNotAvail:   "service temporarily not available",
	ErrIndexNotWritable:  "access denied",
	ErrValueLenOverrun:   "parameter length overrun",
	ErrValueLenUnderrun:  "parameter length underrun",
	ErrFuncNotAvailable:  "function not available",
	ErrFuncTempUnavail:   "function temporarily unavailable",
	ErrParamSetInvalid:   "inconsistent parameter set",
	ErrUnspecific:        "application not ready",
	ErrReadAbort:         "read service aborted",
}

func (e ErrorType) Error() string {
	description, ok := errorTypeDescriptionMap[e]
	if !ok {
		description = "unknown error code"
	}
	return fmt.Sprintf("x%x : %v", uint16(e), description)
}

// Code returns the error code octet sent on the wire
func (e ErrorType) Code() uint8 {
	return uint8(e >> 8)
}

// AdditionalCode returns the additional code octet sent on the wire
func (e ErrorType) AdditionalCode() uint8 {
	return uint8(e & 0xFF)
}
