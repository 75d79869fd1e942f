package unified

// NewSystemError builds a record for a failure raised inside this client
// rather than decoded from a protocol field. The code is
// severity*1000 + category*100.
func NewSystemError(severity Severity, category Category, message, detail, source string) Error {
	code := uint32(severity)*1000 + uint32(category)*100
	original := OriginalError{
		Code:          code,
		Message:       message,
		DetailMessage: detail,
	}
	return New(ProtocolSystem, severity, category, code, message, detail, original, source)
}

// OK is the GOOD record used for a successful item with no quality to report.
func OK(source string) Error {
	return New(ProtocolSystem, SeverityGood, CategoryNone, 0, "", "", OriginalError{}, source)
}
