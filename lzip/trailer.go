package lzip

// Trailer is a member's 20-byte suffix: the CRC32 of the original
// (uncompressed) data, its size, and the member's total size on disk
// including header and trailer — the field a backward scan uses to
// locate the previous member (spec §4.7).
type Trailer struct {
	CRC32            uint32
	UncompressedSize uint64
	MemberSize       uint64
}

func (t Trailer) MarshalBinary() ([]byte, error) {
	buf := make([]byte, TrailerLen)
	putUint32LE(buf[0:4], t.CRC32)
	putUint64LE(buf[4:12], t.UncompressedSize)
	putUint64LE(buf[12:20], t.MemberSize)
	return buf, nil
}

func (t *Trailer) UnmarshalBinary(p []byte) error {
	if len(p) < TrailerLen {
		return errShort
	}
	t.CRC32 = uint32LE(p[0:4])
	t.UncompressedSize = uint64LE(p[4:12])
	t.MemberSize = uint64LE(p[12:20])
	return nil
}
