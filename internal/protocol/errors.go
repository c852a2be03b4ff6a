package protocol

import (
	"fmt"
	"math"
)

// ErrorCode is the numeric error category hosts report in an SdkError.
type ErrorCode int

const (
	ErrorCodeNotSupportedOnPlatform       ErrorCode = 100
	ErrorCodeInternalError                ErrorCode = 500
	ErrorCodeNotSupportedInCurrentContext ErrorCode = 501
	ErrorCodePermissionDenied             ErrorCode = 1000
	ErrorCodeNetworkError                 ErrorCode = 2000
	ErrorCodeNoHardwareSupport            ErrorCode = 3000
	ErrorCodeInvalidArguments             ErrorCode = 4000
	ErrorCodeUnauthorizedUserOperation    ErrorCode = 5000
	ErrorCodeInsufficientResources        ErrorCode = 6000
	ErrorCodeThrottle                     ErrorCode = 7000
	ErrorCodeUserAbort                    ErrorCode = 8000
	ErrorCodeOperationTimedOut            ErrorCode = 8001
	ErrorCodeOldPlatform                  ErrorCode = 9000
	ErrorCodeFileNotFound                 ErrorCode = 404
	ErrorCodeSizeExceeded                 ErrorCode = 10000
)

// SdkError is the error object hosts put in the first slot of an
// error-or-result response.
type SdkError struct {
	ErrorCode ErrorCode `json:"errorCode"`
	Message   string    `json:"message,omitempty"`
}

func (e *SdkError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("sdk error %d", e.ErrorCode)
	}
	return fmt.Sprintf("sdk error %d: %s", e.ErrorCode, e.Message)
}

// Truthy reports whether v would count as true in a boolean test by the peer
// runtime: nil, false, zero numbers and the empty string are false, everything
// else is true.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0 && !math.IsNaN(t)
	case float32:
		return t != 0 && !math.IsNaN(float64(t))
	case int:
		return t != 0
	case int64:
		return t != 0
	case int32:
		return t != 0
	case uint64:
		return t != 0
	case uint32:
		return t != 0
	case uint:
		return t != 0
	default:
		return true
	}
}
