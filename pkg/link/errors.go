// pkg/link/errors.go
package link

import (
	"errors"
	"fmt"
)

// ResultCode is the return code of a controller library call
type ResultCode int16

const (
	CodeInternal   ResultCode = -1
	CodeOK         ResultCode = 0
	CodeNode       ResultCode = 1
	CodeHandFull   ResultCode = 2
	CodeHandle     ResultCode = 3
	CodeData       ResultCode = 4
	CodeFlib       ResultCode = 5
	CodeOption     ResultCode = 6
	CodeBusy       ResultCode = 7
	CodeNoReply    ResultCode = 8
	CodeReject     ResultCode = 9
	CodePara       ResultCode = 10
	CodeMode       ResultCode = 11
	CodeWin32      ResultCode = 12
	CodeWinsock    ResultCode = 13
	CodeProtect    ResultCode = 14
	CodeBuffer     ResultCode = 15
	CodeAlarm      ResultCode = 16
	CodeReset      ResultCode = 17
	CodeFunc       ResultCode = 18
	CodeDisconnect ResultCode = 19
	CodeSearched   ResultCode = 20
)

var codeNames = map[ResultCode]string{
	CodeInternal:   "EM_INTERNAL",
	CodeOK:         "EM_OK",
	CodeNode:       "EM_NODE",
	CodeHandFull:   "EM_HANDFULL",
	CodeHandle:     "EM_HANDLE",
	CodeData:       "EM_DATA",
	CodeFlib:       "EM_FLIB",
	CodeOption:     "EM_OPTION",
	CodeBusy:       "EM_BUSY",
	CodeNoReply:    "EM_NOREPLY",
	CodeReject:     "EM_REJECT",
	CodePara:       "EM_PARA",
	CodeMode:       "EM_MODE",
	CodeWin32:      "EM_WIN32",
	CodeWinsock:    "EM_WINSOCK",
	CodeProtect:    "EM_PROTECT",
	CodeBuffer:     "EM_BUFFER",
	CodeAlarm:      "EM_ALARM",
	CodeReset:      "EM_RESET",
	CodeFunc:       "EM_FUNC",
	CodeDisconnect: "EM_DISCONNECT",
	CodeSearched:   "EM_SEARCHED",
}

func (c ResultCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("EM_(%d)", int16(c))
}

// IsDisconnect reports whether the code requires the handle to be released
func (c ResultCode) IsDisconnect() bool {
	switch c {
	case CodeHandle, CodeWinsock, CodeDisconnect, CodeNoReply:
		return true
	}
	return false
}

// Kind is the control-flow classification of a result code
type Kind int

const (
	KindOK Kind = iota
	KindNoData
	KindDisconnect
	KindWrongBuffer
	KindBusy
	KindOther
)

// Kind classifies the code
func (c ResultCode) Kind() Kind {
	switch {
	case c == CodeOK:
		return KindOK
	case c == CodeData:
		return KindNoData
	case c == CodeBuffer:
		return KindWrongBuffer
	case c == CodeBusy:
		return KindBusy
	case c.IsDisconnect():
		return KindDisconnect
	default:
		return KindOther
	}
}

// Sentinel errors
var (
	ErrRetryDelayed   = errors.New("connection attempt delayed")
	ErrNoValidVersion = errors.New("no valid ProX version")
	ErrConnectFailed  = errors.New("connection failed")
	ErrDisconnect     = errors.New("controller disconnected")
	ErrPartialData    = errors.New("partial tool data")
	ErrFatalAcquire   = errors.New("required tool data unavailable")
	ErrNoData         = errors.New("no data")
	ErrNotSupported   = errors.New("not supported by this protocol version")
)

// Error is a failed controller call
type Error struct {
	Op   string
	Code ResultCode
}

// NewError builds an Error, or returns nil for CodeOK
func NewError(op string, code ResultCode) error {
	if code == CodeOK {
		return nil
	}
	return &Error{Op: op, Code: code}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

// Is matches the sentinel errors implied by the result code
func (e *Error) Is(target error) bool {
	switch target {
	case ErrDisconnect:
		return e.Code.IsDisconnect()
	case ErrNoData:
		return e.Code == CodeData
	}
	return false
}

// CodeOf extracts the result code of err, CodeOK for nil and CodeInternal for foreign errors
func CodeOf(err error) ResultCode {
	if err == nil {
		return CodeOK
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return CodeInternal
}
