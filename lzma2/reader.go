package lzma2

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/lzmaio/xzmt/lzma"
)

// Reader decodes an LZMA2 chunk stream (spec §3.7/§4.5) into its
// original bytes. A single lzma.Decoder is kept alive across chunks so
// its dictionary and probability model persist exactly as the writer's
// encoder did, reset only when a chunk's control byte asks for it.
type Reader struct {
	r    io.Reader
	dec  *lzma.Decoder
	buf  []byte
	off  int
	done bool
}

// NewReader constructs a Reader. dictSize must match the size the
// writer used (for LZMA2-in-XZ, this comes from the filter's
// properties byte via DictSizeFromByte).
func NewReader(r io.Reader, dictSize int) (*Reader, error) {
	zero, err := lzma.NewProperties(0, 0, 0)
	if err != nil {
		return nil, err
	}
	dec, err := lzma.NewRawDecoder(zero, dictSize)
	if err != nil {
		return nil, err
	}
	return &Reader{r: r, dec: dec}, nil
}

func (z *Reader) Read(p []byte) (int, error) {
	for z.off >= len(z.buf) {
		if z.done {
			return 0, io.EOF
		}
		if err := z.nextChunk(); err != nil {
			if err == io.EOF {
				z.done = true
				return 0, io.EOF
			}
			return 0, err
		}
	}
	n := copy(p, z.buf[z.off:])
	z.off += n
	return n, nil
}

func (z *Reader) readN(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(z.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (z *Reader) nextChunk() error {
	ctrlBuf, err := z.readN(1)
	if err != nil {
		return err
	}
	ctrl := ctrlBuf[0]

	switch {
	case ctrl == ctrlEOS:
		return io.EOF

	case ctrl == ctrlUncompressedReset || ctrl == ctrlUncompressedNoReset:
		hdr, err := z.readN(2)
		if err != nil {
			return err
		}
		size := int(binary.BigEndian.Uint16(hdr)) + 1
		if ctrl == ctrlUncompressedReset {
			z.dec.ResetDict()
		}
		raw, err := z.readN(size)
		if err != nil {
			return err
		}
		z.dec.PutRaw(raw)
		z.buf, z.off = raw, 0
		return nil

	case isLZMAChunk(ctrl):
		hdr, err := z.readN(4)
		if err != nil {
			return err
		}
		uncompSize := int(uint32(ctrl&ctrlLZMAUncompHighMask)<<16|uint32(binary.BigEndian.Uint16(hdr[0:2]))) + 1
		compSize := int(binary.BigEndian.Uint16(hdr[2:4])) + 1

		level := chunkResetLevel(ctrl)
		if level == resetStateNewPropsDict {
			z.dec.ResetDict()
		}
		if level >= resetState {
			z.dec.ResetState()
		}
		if level >= resetStateNewProps {
			pb, err := z.readN(1)
			if err != nil {
				return err
			}
			raw := lzma.Properties(pb[0])
			props, err := lzma.NewProperties(raw.LC(), raw.LP(), raw.PB())
			if err != nil {
				return err
			}
			z.dec.ResetProps(props)
		}

		payload, err := z.readN(compSize)
		if err != nil {
			return err
		}
		out, err := z.dec.DecodeChunk(bytes.NewReader(payload), uncompSize, nil)
		if err != nil {
			return err
		}
		z.buf, z.off = out, 0
		return nil

	default:
		return lzma2Err("invalid LZMA2 control byte")
	}
}
