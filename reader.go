package xz

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/lzmaio/xzmt/internal/pipeline"
	"github.com/lzmaio/xzmt/lzma2"
)

var errReaderClosed = errors.New("xz: reader closed")
var errUnexpectedData = errors.New("xz: unexpected data after stream")

// ReaderConfig configures an xz Reader.
type ReaderConfig struct {
	// SingleStream requests the reader to assume the underlying stream
	// has exactly one xz Stream with no trailing padding or concatenated
	// streams (spec §6.3's "streams may be concatenated" is the
	// default; this opts out of scanning for more).
	SingleStream bool

	// Workers enables the concurrent block reader when > 1 and r
	// implements both io.ReaderAt and io.Seeker (spec §5's note that the
	// multi-threaded reader needs random access to locate independent
	// blocks). Otherwise Workers is ignored and decoding is sequential.
	Workers int

	// Log receives pipeline worker lifecycle messages; nil disables it.
	Log *logrus.Logger
}

func (cfg *ReaderConfig) applyDefaults() {
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
}

// NewReader creates a sequential xz Reader with default configuration.
func NewReader(r io.Reader) (io.ReadCloser, error) {
	return NewReaderConfig(r, ReaderConfig{})
}

// NewReaderConfig creates a Reader. If cfg.Workers > 1 and r implements
// io.ReaderAt and io.Seeker, blocks are decoded concurrently, each
// located through the block sizes recorded in the stream's Index
// (spec §5); otherwise decoding is strictly sequential.
func NewReaderConfig(r io.Reader, cfg ReaderConfig) (io.ReadCloser, error) {
	cfg.applyDefaults()
	if cfg.Workers > 1 {
		if ra, ok := r.(io.ReaderAt); ok {
			if sk, ok2 := r.(io.Seeker); ok2 {
				return newMTReader(ra, sk, &cfg)
			}
		}
	}
	return newSTReader(r, &cfg)
}

// stReader decodes a sequential (possibly multi-Stream, possibly
// padded) xz byte stream one block at a time.
type stReader struct {
	cfg ReaderConfig
	xz  *bufio.Reader

	flags byte
	hsh   hash.Hash
	index []record

	cur io.Reader
	err error
}

func newSTReader(r io.Reader, cfg *ReaderConfig) (*stReader, error) {
	sr := &stReader{cfg: *cfg, xz: bufio.NewReader(r)}
	if err := sr.startStream(false); err != nil {
		return nil, err
	}
	return sr, nil
}

func (sr *stReader) startStream(padding bool) error {
	hdr, err := readStreamHeader(sr.xz, padding)
	if err != nil {
		return err
	}
	h, err := newHash(hdr.flags)
	if err != nil {
		return err
	}
	sr.flags = hdr.flags
	sr.hsh = h
	sr.index = nil
	return sr.nextBlock()
}

// nextBlock reads one block header and prepares sr.cur to stream its
// decoded bytes, or consumes the index+footer and signals end of
// stream when the index indicator (0x00) appears instead.
func (sr *stReader) nextBlock() error {
	peek, err := sr.xz.Peek(1)
	if err != nil {
		return err
	}
	if peek[0] == 0 {
		if _, err := sr.xz.Discard(1); err != nil {
			return err
		}
		records, _, err := readIndexBody(sr.xz)
		if err != nil {
			return err
		}
		if len(records) != len(sr.index) {
			return fmt.Errorf("xz: index has %d records; stream produced %d",
				len(records), len(sr.index))
		}
		for i, rec := range records {
			if rec != sr.index[i] {
				return fmt.Errorf("xz: index record %d mismatch", i)
			}
		}
		var fbuf [footerLen]byte
		if _, err := io.ReadFull(sr.xz, fbuf[:]); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return err
		}
		var f footer
		if err := f.UnmarshalBinary(fbuf[:]); err != nil {
			return err
		}
		if f.flags != sr.flags {
			return errors.New("xz: footer flags do not match header flags")
		}
		return io.EOF
	}

	hdr, hdrLen, err := readBlockHeader(sr.xz)
	if err != nil {
		return err
	}
	dec, err := newBlockDecoder(sr.xz, hdr, hdrLen, sr.hsh)
	if err != nil {
		return err
	}
	sr.cur = dec
	return nil
}

func (sr *stReader) Read(p []byte) (int, error) {
	if sr.err != nil {
		return 0, sr.err
	}
	n := 0
	for n < len(p) {
		if sr.cur == nil {
			if err := sr.nextBlock(); err != nil {
				if err == io.EOF {
					if sr.cfg.SingleStream {
						var q [1]byte
						_, rerr := io.ReadFull(sr.xz, q[:])
						if rerr == nil {
							sr.err = errUnexpectedData
							return n, sr.err
						}
						sr.err = io.EOF
						return n, io.EOF
					}
					if err2 := sr.startStream(true); err2 != nil {
						if err2 == io.EOF {
							sr.err = io.EOF
							return n, io.EOF
						}
						sr.err = err2
						return n, err2
					}
					continue
				}
				sr.err = err
				return n, err
			}
			continue
		}
		k, err := sr.cur.Read(p[n:])
		n += k
		if err != nil {
			if err == io.EOF {
				if bd, ok := sr.cur.(*blockDecoder); ok {
					sr.index = append(sr.index, bd.record())
				}
				sr.cur = nil
				continue
			}
			sr.err = err
			return n, err
		}
	}
	return n, nil
}

func (sr *stReader) Close() error {
	sr.err = errReaderClosed
	return nil
}

// blockDecoder streams one block's decoded bytes, validating declared
// sizes and the trailing checksum as it goes.
type blockDecoder struct {
	hdr    *blockHeader
	hdrLen int
	hsh    hash.Hash

	cr   *countingReader
	fr   io.Reader
	r    io.Reader
	nOut int64
	err  error
}

type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}

func newBlockDecoder(xz io.Reader, hdr *blockHeader, hdrLen int, hsh hash.Hash) (*blockDecoder, error) {
	hsh.Reset()
	bd := &blockDecoder{hdr: hdr, hdrLen: hdrLen, hsh: hsh}
	bd.cr = &countingReader{r: xz}
	chain, err := filterChain(hdr.filters)
	if err != nil {
		return nil, err
	}
	lz, err := lzma2.NewReader(bd.cr, int(hdr.dictSize()))
	if err != nil {
		return nil, err
	}
	bd.fr = chain.Decoder(lz)
	if hsh.Size() != 0 {
		bd.r = io.TeeReader(bd.fr, hsh)
	} else {
		bd.r = bd.fr
	}
	return bd, nil
}

var errUnexpectedEndOfBlock = errors.New("xz: unexpected end of block")

func (bd *blockDecoder) Read(p []byte) (int, error) {
	if bd.err != nil {
		return 0, bd.err
	}
	n, err := bd.r.Read(p)
	bd.nOut += int64(n)

	if u := bd.hdr.uncompressedSize; u >= 0 && bd.nOut > u {
		bd.err = errors.New("xz: wrong uncompressed size for block")
		return n, bd.err
	}
	if c := bd.hdr.compressedSize; c >= 0 && bd.cr.n > c {
		bd.err = errors.New("xz: wrong compressed size for block")
		return n, bd.err
	}

	if err != io.EOF {
		if err != nil {
			bd.err = err
		}
		return n, err
	}

	if bd.hdr.uncompressedSize >= 0 && bd.nOut < bd.hdr.uncompressedSize {
		bd.err = errUnexpectedEndOfBlock
		return n, bd.err
	}

	s := bd.hsh.Size()
	k := padLen(bd.cr.n)
	buf := make([]byte, k+s)
	if _, err := io.ReadFull(bd.cr.r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		bd.err = err
		return n, err
	}
	if !allZeros(buf[:k]) {
		bd.err = errors.New("xz: non-zero block padding")
		return n, bd.err
	}
	if s > 0 {
		want := bd.hsh.Sum(nil)
		if !bytes.Equal(buf[k:], want) {
			bd.err = errors.New("xz: checksum error for block")
			return n, bd.err
		}
	}
	bd.err = io.EOF
	return n, io.EOF
}

func (bd *blockDecoder) record() record {
	return record{
		unpaddedSize:     int64(bd.hdrLen) + bd.cr.n + int64(bd.hsh.Size()),
		uncompressedSize: bd.nOut,
	}
}

// readStreamHeader reads a Stream Header, optionally first skipping any
// amount of 4-byte-aligned zero padding between concatenated streams
// (spec §6.3).
func readStreamHeader(r io.Reader, padding bool) (*header, error) {
	p := make([]byte, HeaderLen)
	if padding {
		for {
			n, err := io.ReadFull(r, p)
			if err != nil {
				if err == io.ErrUnexpectedEOF && allZeros(p[:n]) {
					if n%4 != 0 {
						return nil, errPadding
					}
					return nil, io.EOF
				}
				return nil, err
			}
			i := 0
			for i < len(p) && p[i] == 0 {
				i++
			}
			if i == 0 {
				break
			}
			if i%4 != 0 {
				return nil, errPadding
			}
			copy(p, p[i:])
			if _, err := io.ReadFull(r, p[len(p)-i:]); err != nil {
				return nil, err
			}
		}
	} else {
		if _, err := io.ReadFull(r, p); err != nil {
			return nil, err
		}
	}
	hdr := new(header)
	if err := hdr.UnmarshalBinary(p); err != nil {
		return nil, err
	}
	return hdr, nil
}

// mtReader decodes an xz file with random access: the footer and index
// are read first (from the end of the stream), then every block's
// bytes are decoded concurrently by a pipeline.Pool and delivered to
// the caller strictly in block order (spec §5).
type mtReader struct {
	err error
	buf []byte
	off int
}

type blockSpan struct {
	offset int64
	length int64
	rec    record
}

func newMTReader(ra io.ReaderAt, sk io.Seeker, cfg *ReaderConfig) (*mtReader, error) {
	size, err := sk.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	flags, spans, err := readFooterAndIndex(ra, size)
	if err != nil {
		return nil, err
	}

	var log *logrus.Entry
	if cfg.Log != nil {
		log = cfg.Log.WithField("component", "xz-reader")
	}
	fn := func(_ context.Context, in []byte) ([]byte, error) {
		return decodeBlockSpan(in, flags)
	}
	pool := pipeline.New(context.Background(), fn, cfg.Workers, log)

	secR := io.NewSectionReader(ra, 0, size)
	for _, sp := range spans {
		buf := make([]byte, sp.length)
		if _, err := secR.ReadAt(buf, sp.offset); err != nil {
			return nil, err
		}
		pool.Submit(buf)
	}

	out := make([]byte, 0, 1<<16)
	for i := range spans {
		b, err := pool.Next(int64(i))
		if err != nil {
			pool.CloseAndWait()
			return nil, err
		}
		out = append(out, b...)
	}
	if err := pool.CloseAndWait(); err != nil {
		return nil, err
	}
	return &mtReader{buf: out}, nil
}

func decodeBlockSpan(span []byte, flags byte) ([]byte, error) {
	r := bytes.NewReader(span)
	hdr, hdrLen, err := readBlockHeader(r)
	if err != nil {
		return nil, err
	}
	h, err := newHash(flags)
	if err != nil {
		return nil, err
	}
	dec, err := newBlockDecoder(r, hdr, hdrLen, h)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(dec)
}

// readFooterAndIndex reads the Stream Footer and Index backward from
// the end of a single xz Stream (spec §5's "locate independent blocks"
// note) and returns each block's byte span within the file.
func readFooterAndIndex(ra io.ReaderAt, size int64) (flags byte, spans []blockSpan, err error) {
	if size < int64(HeaderLen+footerLen) {
		return 0, nil, errors.New("xz: file too small")
	}
	var fbuf [footerLen]byte
	if _, err := ra.ReadAt(fbuf[:], size-footerLen); err != nil {
		return 0, nil, err
	}
	var f footer
	if err := f.UnmarshalBinary(fbuf[:]); err != nil {
		return 0, nil, err
	}

	idxOff := size - footerLen - f.indexSize
	idxBuf := make([]byte, f.indexSize)
	if _, err := ra.ReadAt(idxBuf, idxOff); err != nil {
		return 0, nil, err
	}
	records, _, err := readIndexBody(bytes.NewReader(idxBuf))
	if err != nil {
		return 0, nil, err
	}

	var hbuf [HeaderLen]byte
	if _, err := ra.ReadAt(hbuf[:], 0); err != nil {
		return 0, nil, err
	}
	var h header
	if err := h.UnmarshalBinary(hbuf[:]); err != nil {
		return 0, nil, err
	}

	offset := int64(HeaderLen)
	spans = make([]blockSpan, len(records))
	for i, rec := range records {
		spans[i] = blockSpan{offset: offset, length: rec.unpaddedSize + int64(padLen(rec.unpaddedSize)), rec: rec}
		offset += spans[i].length
	}
	return h.flags, spans, nil
}

func (mr *mtReader) Read(p []byte) (int, error) {
	if mr.err != nil {
		return 0, mr.err
	}
	if mr.off >= len(mr.buf) {
		mr.err = io.EOF
		return 0, io.EOF
	}
	n := copy(p, mr.buf[mr.off:])
	mr.off += n
	return n, nil
}

func (mr *mtReader) Close() error {
	mr.err = errReaderClosed
	return nil
}
