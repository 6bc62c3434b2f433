package lzma2

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/lzmaio/xzmt/lzma"
)

// Writer encodes a byte stream into LZMA2 chunk framing (spec §3.7),
// keeping one long-lived lzma.Encoder so dictionary and probability
// state carry across chunk boundaries: only the very first chunk needs
// a full reset (empty dictionary, initial properties); every later
// chunk uses reset level "none" and simply continues the same model
// with a fresh per-chunk range-coder sequence.
type Writer struct {
	w      io.Writer
	enc    *lzma.Encoder
	first  bool
	closed bool
}

// NewWriter constructs a Writer with the given properties and encoder
// tuning options (dictionary size, match finder, mode, ...).
func NewWriter(w io.Writer, opts lzma.Options) (*Writer, error) {
	opts.ApplyDefaults()
	props, err := lzma.NewProperties(opts.LC, opts.LP, opts.PB)
	if err != nil {
		return nil, err
	}
	enc, err := lzma.NewRawEncoder(props, opts)
	if err != nil {
		return nil, err
	}
	return &Writer{w: w, enc: enc, first: true}, nil
}

// Write feeds p into the encoder window in pieces of at most
// chunkUncompressedLimit bytes and encodes each piece into chunks at
// once, so every byte of p is in a written chunk when Write returns (a
// small Write yields a small chunk) and a single Write larger than the
// window's fixed capacity still succeeds instead of overflowing it.
func (z *Writer) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		k := len(p)
		if k > chunkUncompressedLimit {
			k = chunkUncompressedLimit
		}
		n, err := z.enc.Feed(p[:k])
		total += n
		if err != nil {
			return total, err
		}
		p = p[k:]

		for z.enc.Pending() > 0 {
			n := z.enc.Pending()
			if n > chunkUncompressedLimit {
				n = chunkUncompressedLimit
			}
			if err := z.flush(n); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// Close flushes any buffered input as final chunks and writes the
// LZMA2 end-of-stream control byte.
func (z *Writer) Close() error {
	if z.closed {
		return nil
	}
	z.closed = true
	z.enc.FinishInput()
	for z.enc.Pending() > 0 {
		n := z.enc.Pending()
		if n > chunkUncompressedLimit {
			n = chunkUncompressedLimit
		}
		if err := z.flush(n); err != nil {
			return err
		}
	}
	_, err := z.w.Write([]byte{ctrlEOS})
	return err
}

func (z *Writer) flush(n int) error {
	level := resetNone
	if z.first {
		level = resetStateNewPropsDict
	}

	// EncodeChunk mutates the persistent probability model and FSM state
	// even when its output is about to be discarded below, so snapshot
	// first and restore if the chunk turns out not worth keeping —
	// otherwise an uncompressed fallback would leave the encoder's state
	// diverged from what the decoder sees (it never touches state for a
	// raw chunk).
	snap := z.enc.Snapshot()
	var buf bytes.Buffer
	if err := z.enc.EncodeChunk(&buf, n); err != nil {
		return err
	}
	compressed := buf.Bytes()

	if len(compressed) >= n {
		z.enc.Restore(snap)
		return z.writeUncompressedChunk(n)
	}
	return z.writeLZMAChunk(level, n, compressed)
}

func (z *Writer) writeLZMAChunk(level resetLevel, n int, compressed []byte) error {
	var hdr [5]byte
	hdr[0] = lzmaControlByte(level, uint32(n-1))
	binary.BigEndian.PutUint16(hdr[1:3], uint16(n-1))
	binary.BigEndian.PutUint16(hdr[3:5], uint16(len(compressed)-1))
	if _, err := z.w.Write(hdr[:]); err != nil {
		return err
	}
	if level >= resetStateNewProps {
		if _, err := z.w.Write([]byte{byte(z.enc.Properties())}); err != nil {
			return err
		}
	}
	if _, err := z.w.Write(compressed); err != nil {
		return err
	}
	z.first = false
	return nil
}

// writeUncompressedChunk is the fallback used whenever the LZMA-coded
// form of a chunk would not actually be smaller than the input: the
// dictionary/model advance identically either way since the decoder
// reconstructs the same bytes, so switching chunk type mid-stream is
// always safe.
func (z *Writer) writeUncompressedChunk(n int) error {
	ctrl := byte(ctrlUncompressedNoReset)
	if z.first {
		ctrl = ctrlUncompressedReset
	}
	var hdr [3]byte
	hdr[0] = ctrl
	binary.BigEndian.PutUint16(hdr[1:3], uint16(n-1))
	if _, err := z.w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := z.w.Write(z.enc.RecentBytes(n)); err != nil {
		return err
	}
	z.first = false
	return nil
}
