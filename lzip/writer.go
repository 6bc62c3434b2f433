package lzip

import (
	"bytes"
	"context"
	"hash"
	"hash/crc32"
	"io"
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/lzmaio/xzmt/internal/pipeline"
	"github.com/lzmaio/xzmt/lzma"
)

// defaultMemberSize is the uncompressed size at which a member is
// closed and a new one started when Workers > 1 (spec §4.6/§5: bounded
// work units feeding independent workers).
const defaultMemberSize = 1 << 20

const maxInt64 = 1<<63 - 1

// WriterConfig configures an lzip Writer.
type WriterConfig struct {
	// LZMA carries the dictionary size and match-finder tuning; LC/LP/PB
	// are ignored (LZIP fixes them, see options.go).
	LZMA Options

	// Workers controls how many members are compressed concurrently. 1
	// (the default on a single-core GOMAXPROCS) writes one unbounded
	// member; Workers > 1 splits input into MemberSize-sized units, each
	// becoming its own independent member, compressed by a worker pool
	// and written out in submission order (spec §5).
	Workers int

	// MemberSize is the uncompressed size of each member when Workers >
	// 1. Defaults to defaultMemberSize.
	MemberSize int64

	// Log receives pipeline worker lifecycle messages; nil disables it.
	Log *logrus.Logger
}

func (cfg *WriterConfig) ApplyDefaults() {
	cfg.LZMA.ApplyDefaults()
	if cfg.Workers == 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.MemberSize <= 0 {
		if cfg.Workers <= 1 {
			cfg.MemberSize = maxInt64
		} else {
			cfg.MemberSize = defaultMemberSize
		}
	}
}

func (cfg *WriterConfig) Verify() error {
	if err := cfg.LZMA.Verify(); err != nil {
		return err
	}
	if cfg.Workers < 1 {
		return errWorkersRange
	}
	return nil
}

// WriteFlushCloser supports Write, Flush and Close.
type WriteFlushCloser interface {
	io.WriteCloser
	Flush() error
}

// NewWriter creates a Writer using preset 6 defaults and a single
// worker, writing one unbounded member.
func NewWriter(w io.Writer) (WriteFlushCloser, error) {
	cfg := WriterConfig{LZMA: Preset(6), Workers: 1}
	return NewWriterConfig(w, cfg)
}

// NewWriterConfig creates a Writer from an explicit configuration.
func NewWriterConfig(w io.Writer, cfg WriterConfig) (WriteFlushCloser, error) {
	cfg.ApplyDefaults()
	if err := cfg.Verify(); err != nil {
		return nil, err
	}
	if cfg.Workers <= 1 {
		return newStreamWriter(w, &cfg)
	}
	return newMTWriter(w, &cfg)
}

type countWriter struct {
	w io.Writer
	n int64
}

func (cw *countWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// memberEncoder drives one member's LZMA1 body, tracking the original
// byte count and CRC32 the trailer must carry.
type memberEncoder struct {
	cw  *countWriter
	enc *lzma.Encoder
	crc hash.Hash32
	n   int64
}

func newMemberEncoder(w io.Writer, cfg *WriterConfig) (*memberEncoder, error) {
	cw := &countWriter{w: w}
	props := cfg.LZMA.properties()
	enc, err := lzma.NewEncoder(cw, props, cfg.LZMA.lzmaOptions())
	if err != nil {
		return nil, err
	}
	return &memberEncoder{cw: cw, enc: enc, crc: crc32.NewIEEE()}, nil
}

func (me *memberEncoder) Write(p []byte) (int, error) {
	me.crc.Write(p)
	me.n += int64(len(p))
	return me.enc.Write(p)
}

// Close finishes the LZMA1 body (end-of-stream marker included) and
// returns the trailer describing it.
func (me *memberEncoder) Close() (Trailer, error) {
	if err := me.enc.Close(); err != nil {
		return Trailer{}, err
	}
	return Trailer{
		CRC32:            me.crc.Sum32(),
		UncompressedSize: uint64(me.n),
		MemberSize:       uint64(HeaderLen) + uint64(me.cw.n) + uint64(TrailerLen),
	}, nil
}

func writeMemberHeader(w io.Writer, dictSize int) error {
	hdr := Header{DictSize: uint32(dictSize)}
	data, err := hdr.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// streamWriter implements the Workers==1 path: a single member of
// unbounded size.
type streamWriter struct {
	xz  io.Writer
	me  *memberEncoder
	err error
}

func newStreamWriter(w io.Writer, cfg *WriterConfig) (*streamWriter, error) {
	if err := writeMemberHeader(w, cfg.LZMA.DictSize); err != nil {
		return nil, err
	}
	me, err := newMemberEncoder(w, cfg)
	if err != nil {
		return nil, err
	}
	return &streamWriter{xz: w, me: me}, nil
}

func (sw *streamWriter) Write(p []byte) (int, error) {
	if sw.err != nil {
		return 0, sw.err
	}
	n, err := sw.me.Write(p)
	if err != nil {
		sw.err = err
	}
	return n, err
}

// Flush is a no-op: the member stays open until Close so the file
// remains a single member, always a valid LZIP file (spec §4.6).
func (sw *streamWriter) Flush() error { return sw.err }

func (sw *streamWriter) Close() error {
	if sw.err != nil {
		return sw.err
	}
	trailer, err := sw.me.Close()
	if err != nil {
		sw.err = err
		return err
	}
	data, err := trailer.MarshalBinary()
	if err != nil {
		sw.err = err
		return err
	}
	if _, err := sw.xz.Write(data); err != nil {
		sw.err = err
		return err
	}
	sw.err = errWriterClosed
	return nil
}

var errWriterClosed = newLzipErr("writer is closed")

// mtWriter implements the Workers>1 path: input is split into
// MemberSize-sized units fed to an internal pipeline.Pool, each unit
// compressed into a complete, self-describing member (header + body +
// trailer) by a worker, and the coordinator writes completed members to
// the sink strictly in submission order — no inter-member padding or
// shared index is needed, unlike XZ, because each member already
// carries its own size (spec §4.7).
type mtWriter struct {
	cfg WriterConfig
	xz  io.Writer
	buf bytes.Buffer

	pool     *pipeline.Pool
	nSub     int64
	nextEmit int64
	err      error
	closed   bool
}

func newMTWriter(w io.Writer, cfg *WriterConfig) (*mtWriter, error) {
	mtw := &mtWriter{cfg: *cfg, xz: w}
	var log *logrus.Entry
	if cfg.Log != nil {
		log = cfg.Log.WithField("component", "lzip-writer")
	}
	mtw.pool = pipeline.New(context.Background(), mtw.encodeUnit, cfg.Workers, log)
	return mtw, nil
}

func (mtw *mtWriter) encodeUnit(_ context.Context, in []byte) ([]byte, error) {
	var member bytes.Buffer
	if err := writeMemberHeader(&member, mtw.cfg.LZMA.DictSize); err != nil {
		return nil, err
	}
	me, err := newMemberEncoder(&member, &mtw.cfg)
	if err != nil {
		return nil, err
	}
	if _, err := me.Write(in); err != nil {
		return nil, err
	}
	trailer, err := me.Close()
	if err != nil {
		return nil, err
	}
	data, err := trailer.MarshalBinary()
	if err != nil {
		return nil, err
	}
	member.Write(data)
	return member.Bytes(), nil
}

func (mtw *mtWriter) submit(buf []byte) error {
	cp := append([]byte(nil), buf...)
	mtw.pool.Submit(cp)
	mtw.nSub++
	return mtw.drainReady()
}

func (mtw *mtWriter) Write(p []byte) (int, error) {
	if mtw.err != nil {
		return 0, mtw.err
	}
	total := 0
	for len(p) > 0 {
		room := mtw.cfg.MemberSize - int64(mtw.buf.Len())
		if room <= 0 {
			if err := mtw.flushUnit(); err != nil {
				return total, err
			}
			room = mtw.cfg.MemberSize
		}
		k := int64(len(p))
		if k > room {
			k = room
		}
		mtw.buf.Write(p[:k])
		p = p[k:]
		total += int(k)
	}
	if err := mtw.drainReady(); err != nil {
		return total, err
	}
	return total, nil
}

func (mtw *mtWriter) flushUnit() error {
	if mtw.buf.Len() == 0 {
		return nil
	}
	defer mtw.buf.Reset()
	return mtw.submit(mtw.buf.Bytes())
}

func (mtw *mtWriter) Flush() error {
	if mtw.err != nil {
		return mtw.err
	}
	return mtw.flushUnit()
}

// drainReady writes every completed member that's ready right now,
// strictly in submission order, without blocking on ones that aren't —
// so compressed output reaches the sink as workers finish instead of
// accumulating in the pool's reorder buffer until Close.
func (mtw *mtWriter) drainReady() error {
	for mtw.nextEmit < mtw.nSub {
		member, err, ok := mtw.pool.TryNext(mtw.nextEmit)
		if !ok {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := mtw.xz.Write(member); err != nil {
			return err
		}
		mtw.nextEmit++
	}
	return nil
}

func (mtw *mtWriter) Close() error {
	if mtw.closed {
		return mtw.err
	}
	mtw.closed = true
	if err := mtw.flushUnit(); err != nil {
		return err
	}
	if mtw.nSub == 0 {
		// An empty input still produces one valid zero-length member
		// (spec §8's empty-input edge case), since a bare header+trailer
		// with no body is always a legal LZIP file.
		if err := mtw.submit(nil); err != nil {
			mtw.pool.Cancel()
			mtw.err = err
			return err
		}
	}
	if err := mtw.drainRemaining(); err != nil {
		mtw.pool.Cancel()
		mtw.err = err
		return err
	}
	if err := mtw.pool.CloseAndWait(); err != nil {
		mtw.err = err
		return err
	}
	mtw.err = errWriterClosed
	return nil
}

// drainRemaining blocks on whatever members drainReady hasn't already
// emitted, finishing the submission-order write sequence at Close.
func (mtw *mtWriter) drainRemaining() error {
	for mtw.nextEmit < mtw.nSub {
		member, err := mtw.pool.Next(mtw.nextEmit)
		if err != nil {
			return err
		}
		if _, err := mtw.xz.Write(member); err != nil {
			return err
		}
		mtw.nextEmit++
	}
	return nil
}
