package xz

import (
	"bytes"
	"context"
	"errors"
	"hash"
	"io"
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/lzmaio/xzmt/filter"
	"github.com/lzmaio/xzmt/internal/pipeline"
	"github.com/lzmaio/xzmt/lzma"
	"github.com/lzmaio/xzmt/lzma2"
)

// defaultBlockSize is the uncompressed size at which a block is closed
// and a new one started; the default for a single worker is unbounded
// (one block per stream) and 1 MiB per worker otherwise (spec §5: work
// units of bounded size feed independent workers).
const defaultBlockSize = 1 << 20

const maxInt64 = 1<<63 - 1

// Checksum method constants for WriterConfig.Checksum and
// ReaderConfig's implicit stream flags (spec §6.1).
const (
	None   = fNone
	CRC32  = fCRC32
	CRC64  = fCRC64
	SHA256 = fSHA256
)

// WriterConfig configures an xz Writer: the LZMA2 tuning knobs, an
// optional pre-filter chain (Delta/BCJ, spec §9), the checksum method,
// and the level of parallelism for the multi-threaded block pipeline
// (spec §5).
type WriterConfig struct {
	// LZMA carries the dictionary size, match finder, and other LZMA2
	// tuning knobs (spec §6.5). Zero fields are filled by
	// lzma.Options.ApplyDefaults.
	LZMA lzma.Options

	// Filters is the non-terminal pre-filter chain applied before LZMA2
	// (spec §9); at most filter.MaxChainFilters-1 entries.
	Filters filter.Chain

	// Checksum selects CRC32, CRC64, SHA256 or None (0).
	Checksum byte

	// Workers controls how many blocks are compressed concurrently.
	// 1 (default if unset and GOMAXPROCS is 1) disables the pipeline
	// entirely and produces a single streaming block of unbounded size.
	Workers int

	// BlockSize is the uncompressed size of each block fed to the
	// pipeline when Workers > 1. Defaults to defaultBlockSize.
	BlockSize int64

	// Log receives pipeline worker lifecycle messages (spec §10.1);
	// nil disables logging.
	Log *logrus.Logger
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (cfg *WriterConfig) ApplyDefaults() {
	cfg.LZMA.ApplyDefaults()
	if cfg.Workers == 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.BlockSize <= 0 {
		if cfg.Workers <= 1 {
			cfg.BlockSize = maxInt64
		} else {
			cfg.BlockSize = defaultBlockSize
		}
	}
}

// Verify checks the configuration for errors.
func (cfg *WriterConfig) Verify() error {
	if cfg == nil {
		return errors.New("xz: writer configuration is nil")
	}
	if err := cfg.LZMA.Verify(); err != nil {
		return err
	}
	if err := verifyFlags(cfg.Checksum); err != nil {
		return err
	}
	if cfg.Workers < 1 {
		return errors.New("xz: Workers must be positive")
	}
	if len(cfg.Filters)+1 > filter.MaxChainFilters {
		return errors.New("xz: too many filters")
	}
	if cfg.BlockSize <= 0 {
		return errors.New("xz: block size out of range")
	}
	return nil
}

func (cfg *WriterConfig) blockFilters() []blockFilter {
	fs := make([]blockFilter, 0, len(cfg.Filters)+1)
	for _, f := range cfg.Filters {
		fs = append(fs, chainBlockFilter{f: f})
	}
	fs = append(fs, lzma2BlockFilter{dictSize: uint32(cfg.LZMA.DictSize)})
	return fs
}

// WriteFlushCloser supports Write, Flush and Close.
type WriteFlushCloser interface {
	io.WriteCloser
	Flush() error
}

// NewWriter creates a Writer using preset 6 defaults and a single
// worker.
func NewWriter(w io.Writer) (WriteFlushCloser, error) {
	cfg := WriterConfig{LZMA: lzma.Preset(6), Workers: 1}
	return NewWriterConfig(w, cfg)
}

// NewWriterConfig creates a Writer from an explicit configuration. When
// cfg.Workers is 1 the stream is written as a single growing block; for
// Workers > 1 input is split into independent blocks processed by an
// internal pipeline.Pool and written out in submission order (spec §5).
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

// blockEncoder drives one block's filter chain + LZMA2 + checksum into
// an io.Writer, producing the record needed for the index.
type blockEncoder struct {
	cfg *WriterConfig
	xz  io.Writer
	cw  *countWriter
	lz  *lzma2.Writer
	fwc io.WriteCloser
	hsh hash.Hash
	mw  io.Writer
	n   int64
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

func newBlockEncoder(w io.Writer, cfg *WriterConfig) (*blockEncoder, error) {
	h, err := newHash(cfg.Checksum)
	if err != nil {
		return nil, err
	}
	be := &blockEncoder{cfg: cfg, xz: w, hsh: h}
	if err := be.reset(w); err != nil {
		return nil, err
	}
	return be, nil
}

func (be *blockEncoder) reset(w io.Writer) error {
	be.xz = w
	be.cw = &countWriter{w: w}
	lz, err := lzma2.NewWriter(be.cw, be.cfg.LZMA)
	if err != nil {
		return err
	}
	be.lz = lz
	// The filter chain's Close only flushes the non-terminal byte
	// transforms (Delta/BCJ) into lz; lz itself is closed separately
	// below once every transformed byte has reached it, so its final
	// LZMA2 chunk and end-of-stream marker account for all of them.
	be.fwc = be.cfg.Filters.Encoder(lz)
	be.hsh.Reset()
	be.mw = io.MultiWriter(be.fwc, be.hsh)
	be.n = 0
	return nil
}

func (be *blockEncoder) Write(p []byte) (int, error) {
	n, err := be.mw.Write(p)
	be.n += int64(n)
	return n, err
}

func (be *blockEncoder) Close() (record, error) {
	if err := be.fwc.Close(); err != nil {
		return record{}, err
	}
	if err := be.lz.Close(); err != nil {
		return record{}, err
	}
	k := padLen(be.cw.n)
	pad := make([]byte, k, k+be.hsh.Size())
	pad = be.hsh.Sum(pad)
	if _, err := be.xz.Write(pad); err != nil {
		return record{}, err
	}
	return record{unpaddedSize: be.cw.n + int64(be.hsh.Size()), uncompressedSize: be.n}, nil
}

// streamWriter implements the Workers==1 path: one xz Stream Header,
// one growing block (header written with unknown sizes up front, as a
// true single-pass streaming encoder must), the Index, and the Footer.
type streamWriter struct {
	cfg    WriterConfig
	xz     io.Writer
	be     *blockEncoder
	hdrLen int
	index  []record
	err    error
}

func writeStreamHeader(w io.Writer, flags byte) error {
	hdr := header{flags: flags}
	data, err := hdr.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func writeStreamTail(w io.Writer, index []record, flags byte) error {
	f := footer{flags: flags}
	var err error
	f.indexSize, err = writeIndex(w, index)
	if err != nil {
		return err
	}
	data, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func newStreamWriter(w io.Writer, cfg *WriterConfig) (*streamWriter, error) {
	if err := writeStreamHeader(w, cfg.Checksum); err != nil {
		return nil, err
	}
	be, err := newBlockEncoder(w, cfg)
	if err != nil {
		return nil, err
	}
	sw := &streamWriter{cfg: *cfg, xz: w, be: be}
	bh := blockHeader{compressedSize: -1, uncompressedSize: -1, filters: cfg.blockFilters()}
	data, err := bh.MarshalBinary()
	if err != nil {
		return nil, err
	}
	n, err := w.Write(data)
	if err != nil {
		return nil, err
	}
	sw.hdrLen = n
	return sw, nil
}

func (sw *streamWriter) Write(p []byte) (int, error) {
	if sw.err != nil {
		return 0, sw.err
	}
	n, err := sw.be.Write(p)
	if err != nil {
		sw.err = err
	}
	return n, err
}

// Flush is a no-op for the single-block streaming writer: the block
// stays open until Close so the stream remains a single block, the
// simplest form that is always valid per spec §4.6.
func (sw *streamWriter) Flush() error {
	if sw.err != nil {
		return sw.err
	}
	return nil
}

func (sw *streamWriter) Close() error {
	if sw.err != nil {
		return sw.err
	}
	rec, err := sw.be.Close()
	if err != nil {
		sw.err = err
		return err
	}
	rec.unpaddedSize += int64(sw.hdrLen)
	sw.index = append(sw.index, rec)
	if err := writeStreamTail(sw.xz, sw.index, sw.cfg.Checksum); err != nil {
		sw.err = err
		return err
	}
	sw.err = errWriterClosed
	return nil
}

var errWriterClosed = errors.New("xz: writer is closed")

// mtWriter implements the Workers>1 path: input is split into
// BlockSize-sized units fed to an internal pipeline.Pool; each unit is
// compressed into its own complete block (header + body + checksum) by
// a worker, and the coordinator goroutine (Pool.TryNext while writing,
// Pool.Next at Close) writes completed blocks to the sink strictly in
// submission order (spec §5).
type mtWriter struct {
	cfg WriterConfig
	xz  io.Writer
	buf bytes.Buffer

	pool     *pipeline.Pool
	nSub     int64
	nextEmit int64
	index    []record
	err      error
	closed   bool
}

func newMTWriter(w io.Writer, cfg *WriterConfig) (*mtWriter, error) {
	if err := writeStreamHeader(w, cfg.Checksum); err != nil {
		return nil, err
	}
	mtw := &mtWriter{cfg: *cfg, xz: w}
	var log *logrus.Entry
	if cfg.Log != nil {
		log = cfg.Log.WithField("component", "xz-writer")
	}
	mtw.pool = pipeline.New(context.Background(), mtw.encodeUnit, cfg.Workers, log)
	return mtw, nil
}

func (mtw *mtWriter) encodeUnit(_ context.Context, in []byte) ([]byte, error) {
	var body bytes.Buffer
	be, err := newBlockEncoder(&body, &mtw.cfg)
	if err != nil {
		return nil, err
	}
	if _, err := be.Write(in); err != nil {
		return nil, err
	}
	rec, err := be.Close()
	if err != nil {
		return nil, err
	}
	hdr := blockHeader{
		compressedSize:   be.cw.n,
		uncompressedSize: rec.uncompressedSize,
		filters:          mtw.cfg.blockFilters(),
	}
	hdrData, err := hdr.MarshalBinary()
	if err != nil {
		return nil, err
	}
	rec.unpaddedSize += int64(len(hdrData))

	recData, err := rec.MarshalBinary()
	if err != nil {
		return nil, err
	}
	var framed bytes.Buffer
	framed.WriteByte(byte(len(recData)))
	framed.Write(recData)
	framed.Write(hdrData)
	framed.Write(body.Bytes())
	return framed.Bytes(), nil
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
		room := mtw.cfg.BlockSize - int64(mtw.buf.Len())
		if room <= 0 {
			if err := mtw.flushUnit(); err != nil {
				return total, err
			}
			room = mtw.cfg.BlockSize
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

// drainReady writes every completed block that's ready right now,
// strictly in submission order, without blocking on ones that aren't —
// so compressed output reaches the sink as workers finish instead of
// accumulating in the pool's reorder buffer until Close (spec §4.6/§5).
func (mtw *mtWriter) drainReady() error {
	for mtw.nextEmit < mtw.nSub {
		framed, err, ok := mtw.pool.TryNext(mtw.nextEmit)
		if !ok {
			return nil
		}
		if err != nil {
			return err
		}
		if err := mtw.emit(framed); err != nil {
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
	if err := mtw.drainRemaining(); err != nil {
		mtw.pool.Cancel()
		mtw.err = err
		return err
	}
	if err := mtw.pool.CloseAndWait(); err != nil {
		mtw.err = err
		return err
	}
	if err := writeStreamTail(mtw.xz, mtw.index, mtw.cfg.Checksum); err != nil {
		mtw.err = err
		return err
	}
	mtw.err = errWriterClosed
	return nil
}

// drainRemaining blocks on whatever units drainReady hasn't already
// emitted, finishing the submission-order write sequence at Close.
func (mtw *mtWriter) drainRemaining() error {
	for mtw.nextEmit < mtw.nSub {
		framed, err := mtw.pool.Next(mtw.nextEmit)
		if err != nil {
			return err
		}
		if err := mtw.emit(framed); err != nil {
			return err
		}
		mtw.nextEmit++
	}
	return nil
}

// emit decodes one worker's framed output (record-length prefix, block
// record, block header and body) and writes the block (header, body,
// padding and check) to the sink, recording its index entry.
func (mtw *mtWriter) emit(framed []byte) error {
	n := int(framed[0])
	recData := framed[1 : 1+n]
	var rec record
	if err := unmarshalRecord(&rec, recData); err != nil {
		return err
	}
	if _, err := mtw.xz.Write(framed[1+n:]); err != nil {
		return err
	}
	mtw.index = append(mtw.index, rec)
	return nil
}

func unmarshalRecord(rec *record, data []byte) error {
	r, n, err := readRecord(bytes.NewReader(data))
	_ = n
	if err != nil {
		return err
	}
	*rec = r
	return nil
}
