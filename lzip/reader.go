package lzip

import (
	"bufio"
	"bytes"
	"context"
	"hash"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lzmaio/xzmt/internal/pipeline"
	"github.com/lzmaio/xzmt/lzma"
)

var errReaderClosed = newLzipErr("reader closed")

// ReaderConfig configures an lzip Reader.
type ReaderConfig struct {
	// Workers enables the concurrent member reader when > 1 and r
	// implements io.ReaderAt and io.Seeker (spec §4.7's backward trailer
	// scan needs random access). With a plain io.Reader, Workers is
	// ignored and members are discovered and decoded forward, one at a
	// time, so non-seekable sources are always supported.
	Workers int

	// Log receives pipeline worker lifecycle messages; nil disables it.
	Log *logrus.Logger
}

func (cfg *ReaderConfig) applyDefaults() {
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
}

// NewReader creates a sequential lzip Reader with default configuration.
func NewReader(r io.Reader) (io.ReadCloser, error) {
	return NewReaderConfig(r, ReaderConfig{})
}

// NewReaderConfig creates a Reader. If cfg.Workers > 1 and r implements
// io.ReaderAt and io.Seeker, members are decoded concurrently; otherwise
// decoding is strictly sequential and forward-only.
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

// stReader decodes members forward, one at a time, from any io.Reader
// (spec's requirement that the single-threaded reader accept
// non-seekable sources).
type stReader struct {
	cfg ReaderConfig
	r   *bufio.Reader

	cur *memberDecoder
	err error
}

func newSTReader(r io.Reader, cfg *ReaderConfig) (*stReader, error) {
	sr := &stReader{cfg: *cfg, r: bufio.NewReader(r)}
	if err := sr.startMember(); err != nil {
		return nil, err
	}
	return sr, nil
}

func (sr *stReader) startMember() error {
	var hbuf [HeaderLen]byte
	if _, err := io.ReadFull(sr.r, hbuf[:]); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return errors.Wrap(err, "lzip: reading member header")
	}
	var hdr Header
	if err := hdr.UnmarshalBinary(hbuf[:]); err != nil {
		return errors.Wrap(err, "lzip: member header")
	}
	props, err := lzma.NewProperties(LC, LP, PB)
	if err != nil {
		return err
	}
	dec, err := lzma.NewDecoder(sr.r, props, int(hdr.DictSize), lzma.UnknownSize)
	if err != nil {
		return errors.Wrap(err, "lzip: starting member body")
	}
	sr.cur = &memberDecoder{dec: dec, crc: crc32.NewIEEE()}
	return nil
}

func (sr *stReader) finishMember() error {
	var tbuf [TrailerLen]byte
	if _, err := io.ReadFull(sr.r, tbuf[:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return errors.Wrap(err, "lzip: reading member trailer")
	}
	var tr Trailer
	if err := tr.UnmarshalBinary(tbuf[:]); err != nil {
		return err
	}
	if tr.UncompressedSize != uint64(sr.cur.nOut) || tr.CRC32 != sr.cur.crc.Sum32() {
		return errTrailerMismatch
	}
	return nil
}

func (sr *stReader) Read(p []byte) (int, error) {
	if sr.err != nil {
		return 0, sr.err
	}
	n := 0
	for n < len(p) {
		k, err := sr.cur.Read(p[n:])
		n += k
		if err == nil {
			continue
		}
		if err != io.EOF {
			sr.err = err
			return n, err
		}
		if ferr := sr.finishMember(); ferr != nil {
			sr.err = ferr
			return n, ferr
		}
		if merr := sr.startMember(); merr != nil {
			if merr == io.EOF {
				sr.err = io.EOF
				return n, io.EOF
			}
			sr.err = merr
			return n, merr
		}
	}
	return n, nil
}

func (sr *stReader) Close() error {
	sr.err = errReaderClosed
	return nil
}

// memberDecoder streams one member's decoded bytes from its raw LZMA1
// body, tracking the CRC32/size the trailer must match. Each call to
// the underlying Decoder is bounded by the requested length, but a
// single match can still produce up to lzma's maximum match length
// beyond it — an acceptable, memory-bounded amount of overshoot rather
// than unbounded buffering of the whole member.
type memberDecoder struct {
	dec     *lzma.Decoder
	crc     hash.Hash32
	nOut    int64
	pending []byte
	eof     bool
}

func (md *memberDecoder) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(md.pending) == 0 {
		if md.eof {
			return 0, io.EOF
		}
		out, err := md.dec.Decode(nil, len(p))
		if err != nil {
			return 0, err
		}
		if len(out) < len(p) {
			md.eof = true
		}
		md.crc.Write(out)
		md.nOut += int64(len(out))
		md.pending = out
		if len(out) == 0 {
			return 0, io.EOF
		}
	}
	n := copy(p, md.pending)
	md.pending = md.pending[n:]
	return n, nil
}

// mtReader decodes an lzip file with random access: members are located
// by scanning trailers backward from EOF (spec §4.7), then decoded
// concurrently by a pipeline.Pool and delivered strictly in forward
// order.
type mtReader struct {
	err error
	buf []byte
	off int
}

type memberSpan struct {
	offset int64
	length int64
}

func newMTReader(ra io.ReaderAt, sk io.Seeker, cfg *ReaderConfig) (*mtReader, error) {
	size, err := sk.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	spans, err := scanMembers(ra, size)
	if err != nil {
		return nil, err
	}

	var log *logrus.Entry
	if cfg.Log != nil {
		log = cfg.Log.WithField("component", "lzip-reader")
	}
	pool := pipeline.New(context.Background(), decodeMember, cfg.Workers, log)

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

// scanMembers walks trailers backward from the end of the file,
// mirroring the original per-member-size bookkeeping a forward reader
// performs, but right-to-left so it works without decoding anything.
func scanMembers(ra io.ReaderAt, size int64) ([]memberSpan, error) {
	if size < int64(HeaderLen+TrailerLen) {
		return nil, errFileTooSmall
	}
	var spans []memberSpan
	pos := size
	for pos > 0 {
		if pos < int64(TrailerLen) {
			return nil, errUnexpectedData
		}
		var tbuf [TrailerLen]byte
		if _, err := ra.ReadAt(tbuf[:], pos-int64(TrailerLen)); err != nil {
			return nil, err
		}
		var tr Trailer
		if err := tr.UnmarshalBinary(tbuf[:]); err != nil {
			return nil, err
		}
		if tr.MemberSize == 0 || int64(tr.MemberSize) > pos {
			return nil, newLzipErrf("lzip: invalid member size %d at offset %d", tr.MemberSize, pos)
		}
		start := pos - int64(tr.MemberSize)
		var hbuf [4]byte
		if _, err := ra.ReadAt(hbuf[:], start); err != nil {
			return nil, err
		}
		if [4]byte{hbuf[0], hbuf[1], hbuf[2], hbuf[3]} != magic {
			return nil, errBadMagic
		}
		spans = append(spans, memberSpan{offset: start, length: int64(tr.MemberSize)})
		pos = start
	}
	for i, j := 0, len(spans)-1; i < j; i, j = i+1, j-1 {
		spans[i], spans[j] = spans[j], spans[i]
	}
	return spans, nil
}

func decodeMember(_ context.Context, data []byte) ([]byte, error) {
	if len(data) < HeaderLen+TrailerLen {
		return nil, errMemberTooSmall
	}
	var hdr Header
	if err := hdr.UnmarshalBinary(data[:HeaderLen]); err != nil {
		return nil, err
	}
	var tr Trailer
	if err := tr.UnmarshalBinary(data[len(data)-TrailerLen:]); err != nil {
		return nil, err
	}
	body := data[HeaderLen : len(data)-TrailerLen]

	props, err := lzma.NewProperties(LC, LP, PB)
	if err != nil {
		return nil, err
	}
	dec, err := lzma.NewDecoder(bytes.NewReader(body), props, int(hdr.DictSize), tr.UncompressedSize)
	if err != nil {
		return nil, err
	}
	out, err := dec.Decode(nil, 0)
	if err != nil {
		return nil, err
	}
	crc := crc32.ChecksumIEEE(out)
	if uint64(len(out)) != tr.UncompressedSize || crc != tr.CRC32 {
		return nil, errTrailerMismatch
	}
	return out, nil
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
