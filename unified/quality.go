package unified

import "github.com/pithecene-io/opcda/types"

// Base codes per top-level status.
const (
	codeGood      uint32 = 0
	codeUncertain uint32 = 3000
	codeBad       uint32 = 4000
	codeUnknown   uint32 = 8000
)

// Limit offsets added on top of the status code.
const (
	offsetLimitLow   uint32 = 10000
	offsetLimitHigh  uint32 = 20000
	offsetLimitConst uint32 = 30000
)

const originalQualityMessage = "OPC Quality Error"

type subStatus struct {
	category Category // CategoryNone keeps the status default
	message  string
	code     uint32
}

var badSubStatus = map[uint16]subStatus{
	types.QualityConfigError:    {CategoryConfiguration, "Configuration Error", 4001},
	types.QualityNotConnected:   {CategoryConnection, "Not Connected", 4002},
	types.QualityDeviceFailure:  {CategoryDevice, "Device Failure", 4003},
	types.QualitySensorFailure:  {CategoryTag, "Sensor Failure", 4004},
	types.QualityLastKnown:      {CategoryNone, "Last Known Value", 4005},
	types.QualityCommFailure:    {CategoryCommunication, "Communication Failure", 4006},
	types.QualityOutOfService:   {CategoryNone, "Out Of Service", 4007},
	types.QualityWaitingInitial: {CategoryNone, "Waiting For Initial Data", 4008},
}

var uncertainSubStatus = map[uint16]subStatus{
	types.QualityLastUsable:  {CategoryNone, "Last Usable Value", 3001},
	types.QualitySensorCal:   {CategoryTag, "Sensor Calibration", 3002},
	types.QualityEGUExceeded: {CategoryNone, "Engineering Unit Exceeded", 3003},
	types.QualitySubNormal:   {CategoryNone, "Sub Normal", 3004},
}

var goodSubStatus = map[uint16]subStatus{
	types.QualityLocalOverride: {CategoryNone, "Local Override", 1},
}

// FromQuality classifies a 16-bit quality code. It is total: every value
// yields a record, with unrecognised sub-status patterns mapped to the
// status's "Unknown Sub-Status" bucket (base+999).
//
// The sub-status is taken relative to the top-level status, so a bare
// status (0x00, 0x40, 0xC0) carries no sub-status and keeps its base code.
func FromQuality(quality uint16, source string) Error {
	status := quality & types.QualityMask
	sub := quality & types.StatusMask
	limit := quality & types.LimitMask

	var (
		severity Severity
		category Category
		code     uint32
		message  string
		table    map[uint16]subStatus
		unknown  uint32
	)

	switch status {
	case types.QualityBad:
		severity, category, code, message = SeverityError, CategoryDataQuality, codeBad, "Bad Quality"
		table, unknown = badSubStatus, 4999
	case types.QualityUncertain:
		severity, category, code, message = SeverityUncertain, CategoryDataQuality, codeUncertain, "Uncertain Quality"
		table, unknown = uncertainSubStatus, 3999
	case types.QualityGood:
		severity, category, code, message = SeverityGood, CategoryNone, codeGood, "Good Quality"
		table, unknown = goodSubStatus, 999
	default:
		severity, category, code, message = SeverityError, CategoryUnknown, codeUnknown, "Unknown Quality"
	}

	var subMessage string
	if table != nil && sub&types.SubStatusBit != 0 {
		if s, ok := table[sub]; ok {
			if s.category != CategoryNone {
				category = s.category
			}
			subMessage, code = s.message, s.code
		} else {
			subMessage, code = "Unknown Sub-Status", unknown
		}
	}

	var limitMessage string
	switch limit {
	case types.LimitLow:
		limitMessage = "Low Limit"
		code += offsetLimitLow
	case types.LimitHigh:
		limitMessage = "High Limit"
		code += offsetLimitHigh
	case types.LimitConst:
		limitMessage = "Constant"
		code += offsetLimitConst
	}

	original := OriginalError{
		Code:           uint32(quality),
		DetailCode:     uint32(sub),
		Message:        originalQualityMessage,
		DetailMessage:  subMessage,
		AdditionalInfo: limitMessage,
	}
	return New(ProtocolOPCDA, severity, category, code, message, subMessage, original, source)
}
