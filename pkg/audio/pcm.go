package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

const float32Size = 4

// GetFloat64 decodes one sample in format f from the beginning of p
// into the [-1, 1] range.
func GetFloat64(f PCMFormat, p []byte) float64 {
	switch f {
	case PCMFormatU8:
		return (float64(p[0]) - 128) / 128
	case PCMFormatS16LE:
		return float64(int16(binary.LittleEndian.Uint16(p))) / 32768
	case PCMFormatS16BE:
		return float64(int16(binary.BigEndian.Uint16(p))) / 32768
	case PCMFormatS24LE:
		return float64(signExtend24(uint32(p[0])|uint32(p[1])<<8|uint32(p[2])<<16)) / 8388608
	case PCMFormatS24BE:
		return float64(signExtend24(uint32(p[2])|uint32(p[1])<<8|uint32(p[0])<<16)) / 8388608
	case PCMFormatS32LE:
		return float64(int32(binary.LittleEndian.Uint32(p))) / 2147483648
	case PCMFormatS32BE:
		return float64(int32(binary.BigEndian.Uint32(p))) / 2147483648
	case PCMFormatS64LE:
		return float64(int64(binary.LittleEndian.Uint64(p))) / 9223372036854775808
	case PCMFormatS64BE:
		return float64(int64(binary.BigEndian.Uint64(p))) / 9223372036854775808
	case PCMFormatFloat32LE:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(p)))
	case PCMFormatFloat32BE:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(p)))
	case PCMFormatFloat64LE:
		return math.Float64frombits(binary.LittleEndian.Uint64(p))
	case PCMFormatFloat64BE:
		return math.Float64frombits(binary.BigEndian.Uint64(p))
	default:
		panic(fmt.Sprintf("unknown format: %v", f))
	}
}

// SetFloat64 encodes v (expected within [-1, 1]) as one sample in format f
// into the beginning of p. Integer formats are clipped.
func SetFloat64(f PCMFormat, p []byte, v float64) {
	switch f {
	case PCMFormatU8:
		p[0] = byte(clip(math.Round(v*128+128), 0, 255))
	case PCMFormatS16LE:
		binary.LittleEndian.PutUint16(p, uint16(int16(clip(math.Round(v*32768), math.MinInt16, math.MaxInt16))))
	case PCMFormatS16BE:
		binary.BigEndian.PutUint16(p, uint16(int16(clip(math.Round(v*32768), math.MinInt16, math.MaxInt16))))
	case PCMFormatS24LE:
		val := int32(clip(math.Round(v*8388608), -8388608, 8388607))
		p[0] = byte(val)
		p[1] = byte(val >> 8)
		p[2] = byte(val >> 16)
	case PCMFormatS24BE:
		val := int32(clip(math.Round(v*8388608), -8388608, 8388607))
		p[0] = byte(val >> 16)
		p[1] = byte(val >> 8)
		p[2] = byte(val)
	case PCMFormatS32LE:
		binary.LittleEndian.PutUint32(p, uint32(int32(clip(math.Round(v*2147483648), math.MinInt32, math.MaxInt32))))
	case PCMFormatS32BE:
		binary.BigEndian.PutUint32(p, uint32(int32(clip(math.Round(v*2147483648), math.MinInt32, math.MaxInt32))))
	case PCMFormatS64LE:
		binary.LittleEndian.PutUint64(p, uint64(toInt64(v)))
	case PCMFormatS64BE:
		binary.BigEndian.PutUint64(p, uint64(toInt64(v)))
	case PCMFormatFloat32LE:
		binary.LittleEndian.PutUint32(p, math.Float32bits(float32(v)))
	case PCMFormatFloat32BE:
		binary.BigEndian.PutUint32(p, math.Float32bits(float32(v)))
	case PCMFormatFloat64LE:
		binary.LittleEndian.PutUint64(p, math.Float64bits(v))
	case PCMFormatFloat64BE:
		binary.BigEndian.PutUint64(p, math.Float64bits(v))
	default:
		panic(fmt.Sprintf("unknown format: %v", f))
	}
}

func signExtend24(v uint32) int32 {
	val := int32(v)
	if val&0x800000 != 0 {
		val |= -16777216
	}
	return val
}

// toInt64 scales v to the int64 range; float64 cannot hold MaxInt64, so
// the upper bound is checked before the conversion.
func toInt64(v float64) int64 {
	scaled := math.Round(v * 9223372036854775808)
	switch {
	case math.IsNaN(scaled):
		return 0
	case scaled >= 9223372036854775808:
		return math.MaxInt64
	case scaled <= math.MinInt64:
		return math.MinInt64
	}
	return int64(scaled)
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Float32LEToSamples decodes raw little-endian float32 PCM.
func Float32LEToSamples(b []byte) ([]float32, error) {
	if len(b)%float32Size != 0 {
		return nil, fmt.Errorf("the size of the input is not a multiple of size float32: %d %% %d != 0", len(b), float32Size)
	}
	samples := make([]float32, len(b)/float32Size)
	for idx := range samples {
		samples[idx] = math.Float32frombits(binary.LittleEndian.Uint32(b[idx*float32Size:]))
	}
	return samples, nil
}

// SamplesToFloat32LE encodes samples into dst, which must be
// exactly 4*len(samples) bytes long. If dst is nil, it is allocated.
func SamplesToFloat32LE(dst []byte, samples []float32) ([]byte, error) {
	if dst == nil {
		dst = make([]byte, len(samples)*float32Size)
	}
	if len(dst) != len(samples)*float32Size {
		return nil, fmt.Errorf("the output buffer has an unexpected size: %d != %d*%d", len(dst), len(samples), float32Size)
	}
	for idx, v := range samples {
		binary.LittleEndian.PutUint32(dst[idx*float32Size:], math.Float32bits(v))
	}
	return dst, nil
}
