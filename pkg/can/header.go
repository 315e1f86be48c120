package can

// Identifier format used on the bus
type HeaderMode uint8

const (
	HeaderStandard HeaderMode = iota // 11-bit identifiers
	HeaderExtended                   // 29-bit identifiers
)

func (m HeaderMode) String() string {
	switch m {
	case HeaderStandard:
		return "standard"
	case HeaderExtended:
		return "extended"
	default:
		return "unknown"
	}
}

// Identifier mask for this header mode
func (m HeaderMode) Mask() uint32 {
	if m == HeaderExtended {
		return CanEffMask
	}
	return CanSffMask
}

// Check that id fits inside the identifier field
func (m HeaderMode) ValidID(id uint32) bool {
	return id&^m.Mask() == 0
}
