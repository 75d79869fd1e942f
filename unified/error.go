// Package unified defines the protocol-independent error record used to
// report value quality and internal failures.
//
// An Error is immutable once constructed. It carries the protocol it was
// decoded from, a ranked severity, a category, a deterministic numeric code
// and, when the error came from a protocol field, the original code.
package unified

import (
	"fmt"
	"strings"
	"time"
)

// Protocol identifies where an error originated.
type Protocol uint8

// Protocols.
const (
	ProtocolSystem Protocol = 0
	ProtocolOPCDA  Protocol = 1
	ProtocolOPCUA  Protocol = 2
	ProtocolPISDK  Protocol = 3
)

// String returns the display name.
func (p Protocol) String() string {
	switch p {
	case ProtocolSystem:
		return "SYSTEM"
	case ProtocolOPCDA:
		return "OPC DA"
	case ProtocolOPCUA:
		return "OPC UA"
	case ProtocolPISDK:
		return "PI SDK"
	default:
		return "UNKNOWN"
	}
}

// Severity is ordered: GOOD < INFO < WARNING < UNCERTAIN < ERROR < CRITICAL < FATAL.
type Severity uint8

// Severities.
const (
	SeverityGood      Severity = 0
	SeverityInfo      Severity = 1
	SeverityWarning   Severity = 2
	SeverityUncertain Severity = 3
	SeverityError     Severity = 4
	SeverityCritical  Severity = 5
	SeverityFatal     Severity = 6
)

// String returns the display name.
func (s Severity) String() string {
	switch s {
	case SeverityGood:
		return "GOOD"
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityUncertain:
		return "UNCERTAIN"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	case SeverityFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Category groups errors by subsystem.
type Category uint8

// Categories.
const (
	CategoryNone          Category = 0
	CategoryConnection    Category = 1
	CategorySecurity      Category = 2
	CategoryCommunication Category = 3
	CategoryConfiguration Category = 4
	CategoryDevice        Category = 5
	CategoryTag           Category = 6
	CategoryDataQuality   Category = 7
	CategoryTimeout       Category = 8
	CategoryResource      Category = 9
	CategoryPermission    Category = 10
	CategoryValidation    Category = 11
	CategoryInternal      Category = 12
	CategoryExternal      Category = 13
	CategoryUnknown       Category = 255
)

// String returns the display name.
func (c Category) String() string {
	switch c {
	case CategoryNone:
		return "NO ERROR"
	case CategoryConnection:
		return "CONNECTION"
	case CategorySecurity:
		return "SECURITY"
	case CategoryCommunication:
		return "COMMUNICATION"
	case CategoryConfiguration:
		return "CONFIGURATION"
	case CategoryDevice:
		return "DEVICE"
	case CategoryTag:
		return "TAG"
	case CategoryDataQuality:
		return "DATA QUALITY"
	case CategoryTimeout:
		return "TIMEOUT"
	case CategoryResource:
		return "RESOURCE"
	case CategoryPermission:
		return "PERMISSION"
	case CategoryValidation:
		return "VALIDATION"
	case CategoryInternal:
		return "INTERNAL"
	case CategoryExternal:
		return "EXTERNAL"
	case CategoryUnknown:
		return "UNKNOWN"
	default:
		return "UNCLASSIFIED"
	}
}

// OriginalError preserves the protocol-native code an Error was derived from.
type OriginalError struct {
	Code           uint32 `json:"code"`
	DetailCode     uint32 `json:"detail_code"`
	Message        string `json:"message"`
	DetailMessage  string `json:"detail_message,omitempty"`
	AdditionalInfo string `json:"additional_info,omitempty"`
}

// HasError reports whether the original carries a code or message.
func (o OriginalError) HasError() bool {
	return o.Code != 0 || o.Message != ""
}

// FullMessage renders "message (detail) [additional]", omitting empty parts.
func (o OriginalError) FullMessage() string {
	if !o.HasError() {
		return ""
	}
	var b strings.Builder
	b.WriteString(o.Message)
	if o.DetailMessage != "" {
		fmt.Fprintf(&b, " (%s)", o.DetailMessage)
	}
	if o.AdditionalInfo != "" {
		fmt.Fprintf(&b, " [%s]", o.AdditionalInfo)
	}
	return b.String()
}

// Error is the unified error record. Fields are unexported so records
// cannot be mutated after construction.
type Error struct {
	protocol  Protocol
	severity  Severity
	category  Category
	code      uint32
	message   string
	detail    string
	original  OriginalError
	timestamp time.Time
	source    string
}

// now is the clock used for record timestamps.
var now = time.Now

// New constructs an Error stamped with the current time.
func New(protocol Protocol, severity Severity, category Category, code uint32, message, detail string, original OriginalError, source string) Error {
	return Error{
		protocol:  protocol,
		severity:  severity,
		category:  category,
		code:      code,
		message:   message,
		detail:    detail,
		original:  original,
		timestamp: now(),
		source:    source,
	}
}

// Protocol returns the originating protocol.
func (e Error) Protocol() Protocol { return e.protocol }

// Severity returns the ranked severity.
func (e Error) Severity() Severity { return e.severity }

// Category returns the error category.
func (e Error) Category() Category { return e.category }

// Code returns the deterministic numeric code.
func (e Error) Code() uint32 { return e.code }

// Message returns the primary message.
func (e Error) Message() string { return e.message }

// Detail returns the detail message, possibly empty.
func (e Error) Detail() string { return e.detail }

// Original returns the protocol-native error.
func (e Error) Original() OriginalError { return e.original }

// Timestamp returns the construction time.
func (e Error) Timestamp() time.Time { return e.timestamp }

// Source returns the reporting component or item, possibly empty.
func (e Error) Source() string { return e.source }

// HasError reports severity ERROR or worse.
func (e Error) HasError() bool { return e.severity >= SeverityError }

// HasWarning reports WARNING or UNCERTAIN severity.
func (e Error) HasWarning() bool {
	return e.severity == SeverityWarning || e.severity == SeverityUncertain
}

// IsGood reports GOOD severity.
func (e Error) IsGood() bool { return e.severity == SeverityGood }

// FullMessage renders "message (detail)", or empty if there is no message.
func (e Error) FullMessage() string {
	if e.message == "" {
		return ""
	}
	if e.detail != "" {
		return e.message + " (" + e.detail + ")"
	}
	return e.message
}

// FormattedCode renders PP-CC-SS-CCCCCCCC in upper-case hex.
func (e Error) FormattedCode() string {
	return fmt.Sprintf("%02X-%02X-%02X-%08X", uint8(e.protocol), uint8(e.category), uint8(e.severity), e.code)
}

// String renders the record including the original error when present.
func (e Error) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s: %s (Code: %s)", e.protocol, e.severity, e.category, e.FullMessage(), e.FormattedCode())
	if e.original.HasError() {
		fmt.Fprintf(&b, " | Original: %s (Code: 0x%08X", e.original.FullMessage(), e.original.Code)
		if e.original.DetailCode != 0 {
			fmt.Fprintf(&b, ", Detail: 0x%08X", e.original.DetailCode)
		}
		b.WriteString(")")
	}
	return b.String()
}

// Error implements the error interface so records can travel as errors.
func (e Error) Error() string { return e.String() }

// Report is the serializable view of an Error.
type Report struct {
	Protocol      string        `json:"protocol"`
	Severity      string        `json:"severity"`
	Category      string        `json:"category"`
	Code          uint32        `json:"code"`
	FormattedCode string        `json:"formatted_code"`
	Message       string        `json:"message"`
	Detail        string        `json:"detail,omitempty"`
	Original      OriginalError `json:"original"`
	Timestamp     int64         `json:"timestamp"`
	Source        string        `json:"source,omitempty"`
}

// Report returns the serializable view. Timestamp is epoch milliseconds.
func (e Error) Report() Report {
	return Report{
		Protocol:      e.protocol.String(),
		Severity:      e.severity.String(),
		Category:      e.category.String(),
		Code:          e.code,
		FormattedCode: e.FormattedCode(),
		Message:       e.message,
		Detail:        e.detail,
		Original:      e.original,
		Timestamp:     e.timestamp.UnixMilli(),
		Source:        e.source,
	}
}
