package filter

import "io"

// deltaFilter implements the XZ Delta filter (spec §9 domain stack):
// each output byte is the input byte minus the byte `distance` back in
// the original stream (mod 256), reversed symmetrically on decode.
// distance is in [1,256], stored in the block header as distance-1.
type deltaFilter struct {
	distance int
}

func newDeltaFilter(props []byte) (Filter, error) {
	distance := 1
	if len(props) > 0 {
		distance = int(props[0]) + 1
	}
	if distance < 1 || distance > 256 {
		return nil, &propError{msg: "delta distance out of range"}
	}
	return &deltaFilter{distance: distance}, nil
}

func (f *deltaFilter) ID() ID               { return IDDelta }
func (f *deltaFilter) Properties() []byte   { return []byte{byte(f.distance - 1)} }

func (f *deltaFilter) Encoder(w io.Writer) io.WriteCloser {
	return &deltaEncoder{w: w, hist: make([]byte, f.distance)}
}

func (f *deltaFilter) Decoder(r io.Reader) io.Reader {
	return &deltaDecoder{r: r, hist: make([]byte, f.distance)}
}

type deltaEncoder struct {
	w    io.Writer
	hist []byte
	pos  int
}

func (e *deltaEncoder) Write(p []byte) (int, error) {
	out := make([]byte, len(p))
	n := len(e.hist)
	for i, b := range p {
		ref := e.hist[e.pos%n]
		out[i] = b - ref
		e.hist[e.pos%n] = b
		e.pos++
	}
	if _, err := e.w.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (e *deltaEncoder) Close() error {
	if c, ok := e.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type deltaDecoder struct {
	r    io.Reader
	hist []byte
	pos  int
}

func (d *deltaDecoder) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if n > 0 {
		m := len(d.hist)
		for i := 0; i < n; i++ {
			ref := d.hist[d.pos%m]
			p[i] = p[i] + ref
			d.hist[d.pos%m] = p[i]
			d.pos++
		}
	}
	return n, err
}
