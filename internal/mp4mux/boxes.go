package mp4mux

import (
	"bytes"
	"encoding/binary"
)

// box is a minimal ISO base media file format box builder: each box is a
// big-endian uint32 size, a 4-byte fourcc, and a payload that may itself
// contain nested boxes. This mirrors the byte-level box construction this
// codebase's lineage already uses for MP4 container validation in its test
// suite, adapted here into the writer side.
type box struct {
	fourcc string
	buf    bytes.Buffer
}

func newBox(fourcc string) *box {
	return &box{fourcc: fourcc}
}

func (b *box) u8(v uint8)   { b.buf.WriteByte(v) }
func (b *box) u16(v uint16) { binary.Write(&b.buf, binary.BigEndian, v) }
func (b *box) u32(v uint32) { binary.Write(&b.buf, binary.BigEndian, v) }
func (b *box) u64(v uint64) { binary.Write(&b.buf, binary.BigEndian, v) }
func (b *box) raw(p []byte) { b.buf.Write(p) }
func (b *box) child(c *box) { b.raw(c.bytes()) }
func (b *box) str4(s string) {
	var buf [4]byte
	copy(buf[:], s)
	b.buf.Write(buf[:])
}

func (b *box) bytes() []byte {
	var out bytes.Buffer
	size := uint32(8 + b.buf.Len())
	binary.Write(&out, binary.BigEndian, size)
	out.WriteString(b.fourcc)
	out.Write(b.buf.Bytes())
	return out.Bytes()
}
