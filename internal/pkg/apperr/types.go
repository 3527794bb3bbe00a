package apperr

import "fmt"

const (
	invalidArgumentCode = "INVALID_ARGUMENT"
	internalErrorCode   = "INTERNAL_ERROR"
	configCode          = "CONFIG_ERROR"
	providerCode        = "PROVIDER_ERROR"
	scanCode            = "SCAN_ERROR"
)

type messageCause struct {
	Msg string
	Err error
}

func (e *messageCause) Message() string { return e.Msg }
func (e *messageCause) Cause() error    { return e.Err }
func (e *messageCause) Unwrap() error   { return e.Err }

func formatError(code, msg string, cause error) string {
	if cause != nil {
		return fmt.Sprintf("[%s] %s: %v", code, msg, cause)
	}
	return fmt.Sprintf("[%s] %s", code, msg)
}

type InvalidArgErr struct {
	messageCause
}

func NewInvalidArgErr(msg string, cause error) *InvalidArgErr {
	return &InvalidArgErr{messageCause: messageCause{Msg: msg, Err: cause}}
}

func (e *InvalidArgErr) Error() string { return formatError(invalidArgumentCode, e.Msg, e.Err) }
func (e *InvalidArgErr) Code() string  { return invalidArgumentCode }

type InternalErr struct {
	messageCause
}

func NewInternalErr(msg string, cause error) *InternalErr {
	return &InternalErr{messageCause: messageCause{Msg: msg, Err: cause}}
}

func (e *InternalErr) Error() string { return formatError(internalErrorCode, e.Msg, e.Err) }
func (e *InternalErr) Code() string  { return internalErrorCode }

// ConfigErr marks unrecoverable configuration problems. Callers abort the
// process instead of retrying.
type ConfigErr struct {
	messageCause
}

func NewConfigErr(msg string, cause error) *ConfigErr {
	return &ConfigErr{messageCause: messageCause{Msg: msg, Err: cause}}
}

func (e *ConfigErr) Error() string { return formatError(configCode, e.Msg, e.Err) }
func (e *ConfigErr) Code() string  { return configCode }

type ProviderErr struct {
	messageCause
}

func NewProviderErr(msg string, cause error) *ProviderErr {
	return &ProviderErr{messageCause: messageCause{Msg: msg, Err: cause}}
}

func (e *ProviderErr) Error() string { return formatError(providerCode, e.Msg, e.Err) }
func (e *ProviderErr) Code() string  { return providerCode }

type ScanErr struct {
	messageCause
}

func NewScanErr(msg string, cause error) *ScanErr {
	return &ScanErr{messageCause: messageCause{Msg: msg, Err: cause}}
}

func (e *ScanErr) Error() string { return formatError(scanCode, e.Msg, e.Err) }
func (e *ScanErr) Code() string  { return scanCode }
