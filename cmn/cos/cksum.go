package cos

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Cksum is a checksum over a byte stream, computed with the castagnoli
// CRC32 table.
type Cksum struct {
	val uint32
}

func NewCksum(b []byte) *Cksum {
	return &Cksum{val: crc32.Checksum(b, crc32.MakeTable(crc32.Castagnoli))}
}

func (c *Cksum) Bytes() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, c.val)
	return b
}

func (c *Cksum) Equal(other *Cksum) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.val == other.val
}

// ErrBadCksum is returned by jsp.Load when a persisted checksum does
// not match the decoded payload.
type ErrBadCksum struct {
	Expected, Actual uint32
}

func (e *ErrBadCksum) Error() string {
	return fmt.Sprintf("bad checksum: expected %x, got %x", e.Expected, e.Actual)
}

func (e *ErrBadCksum) Is(target error) bool {
	_, ok := target.(*ErrBadCksum)
	return ok
}
