package types

// AccessRights is the item access bitmask reported on add.
type AccessRights uint32

// Access right bits.
const (
	AccessReadable AccessRights = 0x1
	AccessWritable AccessRights = 0x2
)

// Readable reports whether the read bit is set.
func (a AccessRights) Readable() bool { return a&AccessReadable != 0 }

// Writable reports whether the write bit is set.
func (a AccessRights) Writable() bool { return a&AccessWritable != 0 }

// String renders the rights as "R", "W", "RW" or "None".
func (a AccessRights) String() string {
	s := ""
	if a.Readable() {
		s += "R"
	}
	if a.Writable() {
		s += "W"
	}
	if s == "" {
		return "None"
	}
	return s
}
