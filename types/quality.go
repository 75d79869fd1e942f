// Package types defines core domain types for the OPC DA client.
package types

// Quality bitfield layout: QQSSSSLL where QQ is the top-level status,
// SSSS the sub-status and LL the limit bits. Sub-status constants include
// their top-level status bits, matching the server's published values.
const (
	QualityMask  uint16 = 0x00C0
	StatusMask   uint16 = 0x00FC
	LimitMask    uint16 = 0x0003
	SubStatusBit uint16 = 0x003C

	QualityBad       uint16 = 0x0000
	QualityUncertain uint16 = 0x0040
	QualityGood      uint16 = 0x00C0

	QualityConfigError    uint16 = 0x0004
	QualityNotConnected   uint16 = 0x0008
	QualityDeviceFailure  uint16 = 0x000C
	QualitySensorFailure  uint16 = 0x0010
	QualityLastKnown      uint16 = 0x0014
	QualityCommFailure    uint16 = 0x0018
	QualityOutOfService   uint16 = 0x001C
	QualityWaitingInitial uint16 = 0x0020

	QualityLastUsable  uint16 = 0x0044
	QualitySensorCal   uint16 = 0x0050
	QualityEGUExceeded uint16 = 0x0054
	QualitySubNormal   uint16 = 0x0058

	QualityLocalOverride uint16 = 0x00D8

	LimitOK    uint16 = 0x0000
	LimitLow   uint16 = 0x0001
	LimitHigh  uint16 = 0x0002
	LimitConst uint16 = 0x0003
)

// QualityString renders the top-level status of a quality code.
func QualityString(q uint16) string {
	var s string
	switch q & QualityMask {
	case QualityBad:
		s = "BAD"
	case QualityUncertain:
		s = "UNCERTAIN"
	case QualityGood:
		s = "GOOD"
	default:
		s = "UNKNOWN"
	}
	if q == QualityBad|QualityWaitingInitial {
		s += " (WAITING FOR INITIAL)"
	}
	return s
}
