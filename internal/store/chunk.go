package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/x448/float16"
)

// defaultChunkElements sizes chunks when the caller does not choose.
const defaultChunkElements = 1 << 18

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
	return encoder, decoder, codecErr
}

// layout describes how a dataset is split: dims[axis] is cut into blocks of
// rows, each block covering every index of the other axes.
type layout struct {
	dims []int
	axis int
	rows int
}

func (l layout) outer() int {
	n := 1
	for _, d := range l.dims[:l.axis] {
		n *= d
	}
	return n
}

func (l layout) inner() int {
	n := 1
	for _, d := range l.dims[l.axis+1:] {
		n *= d
	}
	return n
}

func (l layout) numChunks() int {
	return (l.dims[l.axis] + l.rows - 1) / l.rows
}

// chunkSpan returns the axis range [start, start+count) of chunk k.
func (l layout) chunkSpan(k int) (start, count int) {
	start = k * l.rows
	return start, min(l.rows, l.dims[l.axis]-start)
}

// extractAxis copies rows [start, start+count) of axis out of a full array.
func extractAxis[T any](l layout, flat []T, start, count int) []T {
	outer, inner, n := l.outer(), l.inner(), l.dims[l.axis]
	out := make([]T, 0, outer*count*inner)
	for o := 0; o < outer; o++ {
		base := (o*n + start) * inner
		out = append(out, flat[base:base+count*inner]...)
	}
	return out
}

// copyRegion copies the overlap of a chunk and a read window. dims is the
// full dataset shape. block holds [cStart, cStart+cCount) of cAxis and dst
// holds [start, start+count) of axis; every other axis is whole in both.
func copyRegion[T any](dims []int, block []T, cAxis, cStart, cCount int, dst []T, axis, start, count int) {
	n := len(dims)
	lo := make([]int, n)
	hi := slices.Clone(dims)
	lo[cAxis], hi[cAxis] = cStart, cStart+cCount
	lo[axis], hi[axis] = max(lo[axis], start), min(hi[axis], start+count)
	for i := range n {
		if lo[i] >= hi[i] {
			return
		}
	}
	bDims, dDims := slices.Clone(dims), slices.Clone(dims)
	bDims[cAxis], dDims[axis] = cCount, count
	bOff, dOff := make([]int, n), make([]int, n)
	bOff[cAxis], dOff[axis] = cStart, start
	bStride, dStride := strides(bDims), strides(dDims)

	// Walk every index of the overlap except the last axis, copying one run
	// of the last axis at a time.
	last := n - 1
	run := hi[last] - lo[last]
	idx := slices.Clone(lo)
	for {
		b, d := 0, 0
		for i := range n {
			b += (idx[i] - bOff[i]) * bStride[i]
			d += (idx[i] - dOff[i]) * dStride[i]
		}
		copy(dst[d:d+run], block[b:b+run])

		i := last - 1
		for ; i >= 0; i-- {
			if idx[i]++; idx[i] < hi[i] {
				break
			}
			idx[i] = lo[i]
		}
		if i < 0 {
			return
		}
	}
}

// strides returns the row-major element stride of every axis.
func strides(dims []int) []int {
	s := make([]int, len(dims))
	step := 1
	for i := len(dims) - 1; i >= 0; i-- {
		s[i] = step
		step *= dims[i]
	}
	return s
}

func packInt16(values []int16) []byte {
	buf := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(v))
	}
	return buf
}

func unpackInt16(dst []int16, buf []byte) ([]int16, error) {
	if len(buf)%2 != 0 {
		return nil, fmt.Errorf("int16 chunk has odd length %d", len(buf))
	}
	out := slices.Grow(dst[:0], len(buf)/2)[:len(buf)/2]
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(buf[2*i:]))
	}
	return out, nil
}

func packFloat(t DType, values []float64) []byte {
	if t == Float16 {
		buf := make([]byte, 2*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint16(buf[2*i:], float16.Fromfloat32(float32(v)).Bits())
		}
		return buf
	}
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func unpackFloat(t DType, dst []float64, buf []byte) ([]float64, error) {
	size := t.size()
	if len(buf)%size != 0 {
		return nil, fmt.Errorf("%s chunk length %d not a multiple of %d", t, len(buf), size)
	}
	out := slices.Grow(dst[:0], len(buf)/size)[:len(buf)/size]
	for i := range out {
		if t == Float16 {
			out[i] = float64(float16.Frombits(binary.LittleEndian.Uint16(buf[2*i:])).Float32())
		} else {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
		}
	}
	return out, nil
}

// encodeChunks splits and compresses a dataset.
func encodeChunks(d *Dataset, l layout) ([][]byte, error) {
	enc, _, err := codecs()
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	chunks := make([][]byte, l.numChunks())
	for k := range chunks {
		start, count := l.chunkSpan(k)
		var raw []byte
		if d.Type == Int16 {
			raw = packInt16(extractAxis(l, d.Int16, start, count))
		} else {
			raw = packFloat(d.Type, extractAxis(l, d.Float64, start, count))
		}
		chunks[k] = enc.EncodeAll(raw, nil)
	}
	return chunks, nil
}

// chunkDecoder decompresses chunks of one dataset into buffers it reuses,
// so a read holds at most one decoded chunk at a time. The slices are only
// valid until the next call to decode.
type chunkDecoder struct {
	t   DType
	raw []byte
	i16 []int16
	f64 []float64
}

// decode decompresses blob and returns the number of values it holds.
func (c *chunkDecoder) decode(blob []byte) (int, error) {
	_, dec, err := codecs()
	if err != nil {
		return 0, fmt.Errorf("zstd: %w", err)
	}
	c.raw, err = dec.DecodeAll(blob, c.raw[:0])
	if err != nil {
		return 0, fmt.Errorf("decompress chunk: %w", err)
	}
	if c.t == Int16 {
		c.i16, err = unpackInt16(c.i16, c.raw)
		return len(c.i16), err
	}
	c.f64, err = unpackFloat(c.t, c.f64, c.raw)
	return len(c.f64), err
}
