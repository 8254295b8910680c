package piv

// Slot identifies a PIV key/certificate container by its one-byte key
// reference, per NIST 800-73-4 table 4b.
const (
	SlotAuthentication byte = 0x9A
	SlotSignature      byte = 0x9C
	SlotKeyManagement  byte = 0x9D
	SlotCardAuth       byte = 0x9E
	SlotRetiredFirst   byte = 0x82
	SlotRetiredLast    byte = 0x95

	SlotPIN         byte = 0x80
	SlotPUK         byte = 0x81
	SlotAdmin       byte = 0x9B
	SlotAttestation byte = 0xF9
)

// RetiredSlots lists the twenty retired key-management slots (0x82..0x95).
func RetiredSlots() []byte {
	out := make([]byte, 0, int(SlotRetiredLast-SlotRetiredFirst)+1)
	for s := SlotRetiredFirst; ; s++ {
		out = append(out, s)
		if s == SlotRetiredLast {
			break
		}
	}
	return out
}

// IsValidKeySlot reports whether slot is one of the twenty-four key-capable slots
// (9A/9C/9D/9E plus the twenty retired slots).
func IsValidKeySlot(slot byte) bool {
	switch slot {
	case SlotAuthentication, SlotSignature, SlotKeyManagement, SlotCardAuth:
		return true
	}
	return slot >= SlotRetiredFirst && slot <= SlotRetiredLast
}
