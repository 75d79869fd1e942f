package opc

import "errors"

// Sentinel errors for server results. Implementations return these (or
// wrap them) so callers can classify with errors.Is.
var (
	ErrFail          = errors.New("E_FAIL")
	ErrNoInterface   = errors.New("E_NOINTERFACE")
	ErrNotImpl       = errors.New("E_NOTIMPL")
	ErrInvalidArg    = errors.New("E_INVALIDARG")
	ErrInvalidItemID = errors.New("OPC_E_INVALIDITEMID")
	ErrUnknownItemID = errors.New("OPC_E_UNKNOWNITEMID")
	ErrUnknownPath   = errors.New("OPC_E_UNKNOWNPATH")
	ErrInvalidHandle = errors.New("OPC_E_INVALIDHANDLE")
	ErrBadRights     = errors.New("OPC_E_BADRIGHTS")
	ErrInvalidPID    = errors.New("OPC_E_INVALID_PID")
	ErrDuplicateName = errors.New("OPC_E_DUPLICATENAME")
)

var sentinels = []error{
	ErrFail, ErrNoInterface, ErrNotImpl, ErrInvalidArg, ErrInvalidItemID,
	ErrUnknownItemID, ErrUnknownPath, ErrInvalidHandle, ErrBadRights,
	ErrInvalidPID, ErrDuplicateName,
}

// Code returns the wire code for err: the name of the first matching
// sentinel, or "E_FAIL" for anything unclassified. nil maps to "".
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return ErrFail.Error()
}

// FromCode maps a wire code back to its sentinel. "" maps to nil and
// unknown codes to ErrFail.
func FromCode(code string) error {
	if code == "" {
		return nil
	}
	for _, s := range sentinels {
		if s.Error() == code {
			return s
		}
	}
	return ErrFail
}
