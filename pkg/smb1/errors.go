package smb1

import (
	"errors"
	"fmt"

	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/types"
)

// Common SMB errors
var (
	ErrAuthFailed       = errors.New("authentication failed")
	ErrAccessDenied     = errors.New("access denied")
	ErrNotFound         = errors.New("object not found")
	ErrAlreadyExists    = errors.New("object already exists")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNotConnected     = errors.New("not connected")
	ErrSessionExpired   = errors.New("session expired")
	ErrBadNetworkName   = errors.New("bad network name")
	ErrNotSupported     = errors.New("operation not supported")
	ErrPipeBusy         = errors.New("all pipe instances are busy")
	ErrPipeClosed       = errors.New("pipe is being closed or disconnected")
	ErrPathNotCovered   = errors.New("path is not covered by this server")

	// ErrProtocol reports a response that does not fit the exchange, such
	// as a MID or command mismatch.
	ErrProtocol = errors.New("protocol violation")

	// ErrUnsupportedLevel is returned before sending a query whose
	// information level has no decoder.
	ErrUnsupportedLevel = errors.New("unsupported information level")
)

var statusNames = map[types.NTStatus]string{
	types.StatusSuccess:               "STATUS_SUCCESS",
	types.StatusPending:               "STATUS_PENDING",
	types.StatusNotifyEnumDir:         "STATUS_NOTIFY_ENUM_DIR",
	types.StatusBufferOverflow:        "STATUS_BUFFER_OVERFLOW",
	types.StatusNoMoreFiles:           "STATUS_NO_MORE_FILES",
	types.StatusNotImplemented:        "STATUS_NOT_IMPLEMENTED",
	types.StatusInvalidHandle:         "STATUS_INVALID_HANDLE",
	types.StatusInvalidParameter:      "STATUS_INVALID_PARAMETER",
	types.StatusNoSuchFile:            "STATUS_NO_SUCH_FILE",
	types.StatusMoreProcessingReq:     "STATUS_MORE_PROCESSING_REQUIRED",
	types.StatusAccessDenied:          "STATUS_ACCESS_DENIED",
	types.StatusBufferTooSmall:        "STATUS_BUFFER_TOO_SMALL",
	types.StatusObjectNameInvalid:     "STATUS_OBJECT_NAME_INVALID",
	types.StatusObjectNameNotFound:    "STATUS_OBJECT_NAME_NOT_FOUND",
	types.StatusObjectNameCollision:   "STATUS_OBJECT_NAME_COLLISION",
	types.StatusObjectPathNotFound:    "STATUS_OBJECT_PATH_NOT_FOUND",
	types.StatusSharingViolation:      "STATUS_SHARING_VIOLATION",
	types.StatusLogonFailure:          "STATUS_LOGON_FAILURE",
	types.StatusPasswordExpired:       "STATUS_PASSWORD_EXPIRED",
	types.StatusAccountDisabled:       "STATUS_ACCOUNT_DISABLED",
	types.StatusPipeNotAvailable:      "STATUS_PIPE_NOT_AVAILABLE",
	types.StatusPipeBusy:              "STATUS_PIPE_BUSY",
	types.StatusPipeDisconnected:      "STATUS_PIPE_DISCONNECTED",
	types.StatusIOTimeout:             "STATUS_IO_TIMEOUT",
	types.StatusNotSupported:          "STATUS_NOT_SUPPORTED",
	types.StatusBadNetworkName:        "STATUS_BAD_NETWORK_NAME",
	types.StatusNotFound:              "STATUS_NOT_FOUND",
	types.StatusPathNotCovered:        "STATUS_PATH_NOT_COVERED",
	types.StatusNetworkSessionExpired: "STATUS_NETWORK_SESSION_EXPIRED",
	types.StatusSMBBadUID:             "STATUS_SMB_BAD_UID",
	types.StatusSMBBadTID:             "STATUS_SMB_BAD_TID",
}

// StatusError wraps a server status that has no sentinel.
type StatusError struct {
	Status  types.NTStatus
	Command types.Command
}

// Error implements the error interface
func (e *StatusError) Error() string {
	if e.Command != 0 {
		return fmt.Sprintf("%s: NT status 0x%08X (%s)", e.Command, uint32(e.Status), StatusName(e.Status))
	}
	return fmt.Sprintf("NT status 0x%08X (%s)", uint32(e.Status), StatusName(e.Status))
}

// StatusName returns a human-readable name for the status
func StatusName(status types.NTStatus) string {
	if name, ok := statusNames[status]; ok {
		return name
	}
	return "UNKNOWN"
}

// StatusToError converts an NT status to an appropriate Go error. Success
// and STATUS_BUFFER_OVERFLOW map to nil.
func StatusToError(status types.NTStatus) error {
	if status.IsSuccess() {
		return nil
	}

	switch status {
	case types.StatusAccessDenied:
		return ErrAccessDenied
	case types.StatusNoSuchFile, types.StatusObjectNameNotFound, types.StatusObjectPathNotFound:
		return ErrNotFound
	case types.StatusObjectNameCollision:
		return ErrAlreadyExists
	case types.StatusLogonFailure, types.StatusAccountDisabled, types.StatusPasswordExpired:
		return ErrAuthFailed
	case types.StatusBadNetworkName:
		return ErrBadNetworkName
	case types.StatusNetworkSessionExpired, types.StatusSMBBadUID:
		return ErrSessionExpired
	case types.StatusNotSupported, types.StatusNotImplemented:
		return ErrNotSupported
	case types.StatusInvalidParameter:
		return ErrInvalidParameter
	case types.StatusPipeBusy, types.StatusPipeNotAvailable:
		return ErrPipeBusy
	case types.StatusPipeDisconnected:
		return ErrPipeClosed
	case types.StatusPathNotCovered:
		return ErrPathNotCovered
	default:
		return &StatusError{Status: status}
	}
}

// commandError attaches the command to a status error.
func commandError(cmd types.Command, status types.NTStatus) error {
	err := StatusToError(status)
	if err == nil {
		return nil
	}
	var se *StatusError
	if errors.As(err, &se) {
		se.Command = cmd
		return se
	}
	return fmt.Errorf("%s: %w", cmd, err)
}
