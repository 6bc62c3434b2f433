package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upper(_ context.Context, in []byte) ([]byte, error) {
	out := make([]byte, len(in))
	for i, b := range in {
		if b >= 'a' && b <= 'z' {
			b -= 'a' - 'A'
		}
		out[i] = b
	}
	return out, nil
}

func TestPoolPreservesOrder(t *testing.T) {
	p := New(context.Background(), upper, 8, nil)
	units := [][]byte{[]byte("one"), []byte("two"), []byte("three"), []byte("four"), []byte("five")}
	for _, u := range units {
		p.Submit(u)
	}
	var got bytes.Buffer
	for i := range units {
		out, err := p.Next(int64(i))
		require.NoError(t, err)
		got.Write(out)
	}
	require.NoError(t, p.CloseAndWait())
	assert.Equal(t, "ONETWOTHREEFOURFIVE", got.String())
}

func TestPoolStickyError(t *testing.T) {
	boom := errors.New("boom")
	fn := func(_ context.Context, in []byte) ([]byte, error) {
		if bytes.Equal(in, []byte("bad")) {
			return nil, boom
		}
		return in, nil
	}
	p := New(context.Background(), fn, 4, nil)
	p.Submit([]byte("good"))
	p.Submit([]byte("bad"))
	_, err0 := p.Next(0)
	assert.NoError(t, err0)
	err := p.CloseAndWait()
	assert.ErrorIs(t, err, boom)
}

func TestPoolTryNextDoesNotBlock(t *testing.T) {
	block := make(chan struct{})
	fn := func(_ context.Context, in []byte) ([]byte, error) {
		<-block
		return in, nil
	}
	p := New(context.Background(), fn, 2, nil)
	p.Submit([]byte("one"))

	_, _, ok := p.TryNext(0)
	assert.False(t, ok, "result shouldn't be ready while the worker is still blocked")

	close(block)
	got, err := p.Next(0)
	require.NoError(t, err)
	assert.Equal(t, "one", string(got))
	require.NoError(t, p.CloseAndWait())
}

func TestPoolGrowsWorkersLazily(t *testing.T) {
	block := make(chan struct{})
	fn := func(_ context.Context, in []byte) ([]byte, error) {
		<-block
		return in, nil
	}
	p := New(context.Background(), fn, 3, nil)
	for i := 0; i < 3; i++ {
		p.Submit([]byte(fmt.Sprintf("u%d", i)))
	}
	close(block)
	for i := 0; i < 3; i++ {
		_, err := p.Next(int64(i))
		require.NoError(t, err)
	}
	require.NoError(t, p.CloseAndWait())

	p.mu.Lock()
	workers := p.workers
	p.mu.Unlock()
	assert.LessOrEqual(t, workers, 3)
}
