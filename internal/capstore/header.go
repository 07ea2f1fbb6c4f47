package capstore

import "encoding/binary"

const (
	checkpointMagic   uint32 = 0x50434454 // "TDCP" little endian
	checkpointVersion uint8  = 1

	flagZstd uint8 = 1 << 0
)

// checkpointHeader precedes every checkpoint body.
type checkpointHeader struct {
	Magic      uint32
	Version    uint8
	Flags      uint8
	Reserved   uint16
	CodeLength uint32
	BodyLen    uint32 // bytes following the header
}

const headerLen = 4 + 1 + 1 + 2 + 4 + 4

func (h *checkpointHeader) MarshalBinary(b []byte) []byte {
	if len(b) < headerLen {
		b = make([]byte, headerLen)
	}
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	b[4] = h.Version
	b[5] = h.Flags
	binary.LittleEndian.PutUint16(b[6:8], h.Reserved)
	binary.LittleEndian.PutUint32(b[8:12], h.CodeLength)
	binary.LittleEndian.PutUint32(b[12:16], h.BodyLen)
	return b[:headerLen]
}

func (h *checkpointHeader) UnmarshalBinary(b []byte) bool {
	if len(b) < headerLen {
		return false
	}
	h.Magic = binary.LittleEndian.Uint32(b[0:4])
	h.Version = b[4]
	h.Flags = b[5]
	h.Reserved = binary.LittleEndian.Uint16(b[6:8])
	h.CodeLength = binary.LittleEndian.Uint32(b[8:12])
	h.BodyLen = binary.LittleEndian.Uint32(b[12:16])
	return true
}
