package audio

import (
	"encoding/binary"
	"math"
)

// FloatToPCM16 converts one float sample to PCM16. The sample is clamped to
// [-1, 1]; negative values scale by 32768 and the rest by 32767, truncating
// toward zero.
func FloatToPCM16(s float32) int16 {
	switch {
	case math.IsNaN(float64(s)):
		s = 0
	case s > 1:
		s = 1
	case s < -1:
		s = -1
	}
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

// PCM16ToFloat converts one PCM16 sample to float by dividing by 32767.
// The most negative sample maps slightly below -1.
func PCM16ToFloat(s int16) float32 {
	return float32(s) / 32767
}

// FloatsToPCM16 converts a block of float samples with [FloatToPCM16].
func FloatsToPCM16(in []float32) Frame {
	out := make(Frame, len(in))
	for i, s := range in {
		out[i] = FloatToPCM16(s)
	}
	return out
}

// Resample16 resamples mono PCM16 samples from srcRate to dstRate using linear
// interpolation. If the rates match, or either is non-positive, the input is
// returned unchanged.
func Resample16(in Frame, srcRate, dstRate int) Frame {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(in) == 0 {
		return in
	}
	n := int(int64(len(in)) * int64(dstRate) / int64(srcRate))
	if n == 0 {
		return nil
	}

	out := make(Frame, n)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range n {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := in[idx]
		s1 := s0
		if idx+1 < len(in) {
			s1 = in[idx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// EncodePCM16 serialises samples as little-endian int16 bytes.
func EncodePCM16(samples Frame) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// DecodePCM16 parses little-endian int16 bytes. A trailing odd byte is ignored.
func DecodePCM16(b []byte) Frame {
	out := make(Frame, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

// EncodeFloat32 serialises samples as little-endian IEEE 754 floats, the
// layout of a browser Float32Array buffer.
func EncodeFloat32(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}

// DecodeFloat32 parses little-endian IEEE 754 floats. Trailing bytes that do
// not make up a whole sample are ignored.
func DecodeFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// Split cuts f into consecutive frames of at most size samples. The returned
// frames alias f.
func Split(f Frame, size int) []Frame {
	if size <= 0 || len(f) <= size {
		if len(f) == 0 {
			return nil
		}
		return []Frame{f}
	}
	out := make([]Frame, 0, (len(f)+size-1)/size)
	for len(f) > 0 {
		n := min(size, len(f))
		out = append(out, f[:n:n])
		f = f[n:]
	}
	return out
}
