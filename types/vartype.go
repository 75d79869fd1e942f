package types

import (
	"fmt"
	"time"
)

// VarType is the variant type tag reported for item values.
// Values match the automation VARTYPE encoding used by the server.
type VarType uint16

// Variant type tags.
const (
	VTEmpty           VarType = 0
	VTNull            VarType = 1
	VTI2              VarType = 2
	VTI4              VarType = 3
	VTR4              VarType = 4
	VTR8              VarType = 5
	VTCY              VarType = 6
	VTDate            VarType = 7
	VTBStr            VarType = 8
	VTDispatch        VarType = 9
	VTError           VarType = 10
	VTBool            VarType = 11
	VTVariant         VarType = 12
	VTUnknown         VarType = 13
	VTDecimal         VarType = 14
	VTI1              VarType = 16
	VTUI1             VarType = 17
	VTUI2             VarType = 18
	VTUI4             VarType = 19
	VTI8              VarType = 20
	VTUI8             VarType = 21
	VTInt             VarType = 22
	VTUInt            VarType = 23
	VTVoid            VarType = 24
	VTHResult         VarType = 25
	VTPtr             VarType = 26
	VTSafeArray       VarType = 27
	VTCArray          VarType = 28
	VTUserDefined     VarType = 29
	VTLPStr           VarType = 30
	VTLPWStr          VarType = 31
	VTRecord          VarType = 36
	VTIntPtr          VarType = 37
	VTUIntPtr         VarType = 38
	VTFileTime        VarType = 64
	VTBlob            VarType = 65
	VTStream          VarType = 66
	VTStorage         VarType = 67
	VTStreamedObject  VarType = 68
	VTStoredObject    VarType = 69
	VTBlobObject      VarType = 70
	VTCF              VarType = 71
	VTCLSID           VarType = 72
	VTVersionedStream VarType = 73
	VTBStrBlob        VarType = 0x0FFF
	VTVector          VarType = 0x1000
	VTArray           VarType = 0x2000
	VTByRef           VarType = 0x4000
	VTReserved        VarType = 0x8000
	VTIllegal         VarType = 0xFFFF
)

// vtFlags are the modifier bits that may be combined with a base type.
const vtFlags = VTVector | VTArray | VTByRef

var vtNames = map[VarType]string{
	VTEmpty:           "VT_EMPTY",
	VTNull:            "VT_NULL",
	VTI2:              "VT_I2",
	VTI4:              "VT_I4",
	VTR4:              "VT_R4",
	VTR8:              "VT_R8",
	VTCY:              "VT_CY",
	VTDate:            "VT_DATE",
	VTBStr:            "VT_BSTR",
	VTDispatch:        "VT_DISPATCH",
	VTError:           "VT_ERROR",
	VTBool:            "VT_BOOL",
	VTVariant:         "VT_VARIANT",
	VTUnknown:         "VT_UNKNOWN",
	VTDecimal:         "VT_DECIMAL",
	VTI1:              "VT_I1",
	VTUI1:             "VT_UI1",
	VTUI2:             "VT_UI2",
	VTUI4:             "VT_UI4",
	VTI8:              "VT_I8",
	VTUI8:             "VT_UI8",
	VTInt:             "VT_INT",
	VTUInt:            "VT_UINT",
	VTVoid:            "VT_VOID",
	VTHResult:         "VT_HRESULT",
	VTPtr:             "VT_PTR",
	VTSafeArray:       "VT_SAFEARRAY",
	VTCArray:          "VT_CARRAY",
	VTUserDefined:     "VT_USERDEFINED",
	VTLPStr:           "VT_LPSTR",
	VTLPWStr:          "VT_LPWSTR",
	VTRecord:          "VT_RECORD",
	VTIntPtr:          "VT_INT_PTR",
	VTUIntPtr:         "VT_UINT_PTR",
	VTFileTime:        "VT_FILETIME",
	VTBlob:            "VT_BLOB",
	VTStream:          "VT_STREAM",
	VTStorage:         "VT_STORAGE",
	VTStreamedObject:  "VT_STREAMED_OBJECT",
	VTStoredObject:    "VT_STORED_OBJECT",
	VTBlobObject:      "VT_BLOB_OBJECT",
	VTCF:              "VT_CF",
	VTCLSID:           "VT_CLSID",
	VTVersionedStream: "VT_VERSIONED_STREAM",
	VTBStrBlob:        "VT_BSTR_BLOB",
	VTVector:          "VT_VECTOR",
	VTArray:           "VT_ARRAY",
	VTByRef:           "VT_BYREF",
	VTReserved:        "VT_RESERVED",
	VTIllegal:         "VT_ILLEGAL",
}

// String returns the VT_* name. Array, vector and by-ref modifiers are
// rendered as a prefix, e.g. "VT_ARRAY|VT_R8".
func (v VarType) String() string {
	if name, ok := vtNames[v]; ok {
		return name
	}
	if flags := v & vtFlags; flags != 0 {
		base := v &^ vtFlags
		prefix := ""
		for _, f := range []VarType{VTVector, VTArray, VTByRef} {
			if flags&f != 0 {
				prefix += vtNames[f] + "|"
			}
		}
		return prefix + base.String()
	}
	return fmt.Sprintf("VT_0x%04X", uint16(v))
}

// IsArray reports whether the array modifier is set.
func (v VarType) IsArray() bool {
	return v&VTArray != 0 && v != VTIllegal
}

// VarTypeOf infers the variant type tag for a Go value.
// Unsupported values map to VTVariant.
func VarTypeOf(value any) VarType {
	switch value.(type) {
	case nil:
		return VTEmpty
	case bool:
		return VTBool
	case int8:
		return VTI1
	case int16:
		return VTI2
	case int32:
		return VTI4
	case int, int64:
		return VTI8
	case uint8:
		return VTUI1
	case uint16:
		return VTUI2
	case uint32:
		return VTUI4
	case uint, uint64:
		return VTUI8
	case float32:
		return VTR4
	case float64:
		return VTR8
	case string:
		return VTBStr
	case time.Time:
		return VTDate
	case []any:
		return VTArray | VTVariant
	default:
		return VTVariant
	}
}
