package dcerpc

import (
	"errors"
	"fmt"
)

var (
	ErrBufferTooSmall = errors.New("buffer too small")
	ErrMalformed      = errors.New("malformed PDU")
	ErrBindFailed     = errors.New("bind failed")
	ErrNotBound       = errors.New("not bound to interface")
	ErrCallMismatch   = errors.New("response for a different call")
)

// Common fault and reject status codes
const (
	StatusAccessDenied        uint32 = 0x00000005
	StatusInvalidParameter    uint32 = 0x00000057
	StatusOpRangeError        uint32 = 0x1C010002
	StatusUnknownIf           uint32 = 0x1C010003
	StatusProtocolError       uint32 = 0x1C01000B
	StatusUnsupportedType     uint32 = 0x1C01000F
	StatusNCAInvalidPresCtxID uint32 = 0x1C00001C
)

var faultNames = map[uint32]string{
	StatusAccessDenied:        "access_denied",
	StatusInvalidParameter:    "invalid_parameter",
	StatusOpRangeError:        "nca_s_op_rng_error",
	StatusUnknownIf:           "nca_s_unk_if",
	StatusProtocolError:       "nca_s_proto_error",
	StatusUnsupportedType:     "nca_s_unsupported_type",
	StatusNCAInvalidPresCtxID: "nca_s_invalid_pres_context_id",
}

// FaultError is returned when the server answers a call with a fault PDU
type FaultError struct {
	Status uint32
}

func (e *FaultError) Error() string {
	if name, ok := faultNames[e.Status]; ok {
		return fmt.Sprintf("RPC fault: %s (0x%08X)", name, e.Status)
	}
	return fmt.Sprintf("RPC fault: status 0x%08X", e.Status)
}

// BindError carries the reason a bind was refused
type BindError struct {
	Nak    bool
	Result uint16
	Reason uint16
}

func (e *BindError) Error() string {
	if e.Nak {
		return fmt.Sprintf("bind rejected: reason %d", e.Reason)
	}
	return fmt.Sprintf("bind context not accepted: result %d reason %d", e.Result, e.Reason)
}

func (e *BindError) Unwrap() error { return ErrBindFailed }

// IsFault reports whether err is a fault with the given status
func IsFault(err error, status uint32) bool {
	var f *FaultError
	return errors.As(err, &f) && f.Status == status
}
