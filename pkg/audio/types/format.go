package types

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

type SampleRate uint32

type Channel uint32

type PCMFormat uint

const (
	PCMFormatUndefined = PCMFormat(iota)
	PCMFormatU8
	PCMFormatS16LE
	PCMFormatS16BE
	PCMFormatS24LE
	PCMFormatS24BE
	PCMFormatS32LE
	PCMFormatS32BE
	PCMFormatS64LE
	PCMFormatS64BE
	PCMFormatFloat32LE
	PCMFormatFloat32BE
	PCMFormatFloat64LE
	PCMFormatFloat64BE
	EndOfPCMFormat
)

func (f PCMFormat) String() string {
	switch f {
	case PCMFormatUndefined:
		return "undefined"
	case PCMFormatU8:
		return "u8"
	case PCMFormatS16LE:
		return "s16le"
	case PCMFormatS16BE:
		return "s16be"
	case PCMFormatS24LE:
		return "s24le"
	case PCMFormatS24BE:
		return "s24be"
	case PCMFormatS32LE:
		return "s32le"
	case PCMFormatS32BE:
		return "s32be"
	case PCMFormatS64LE:
		return "s64le"
	case PCMFormatS64BE:
		return "s64be"
	case PCMFormatFloat32LE:
		return "f32le"
	case PCMFormatFloat32BE:
		return "f32be"
	case PCMFormatFloat64LE:
		return "f64le"
	case PCMFormatFloat64BE:
		return "f64be"
	default:
		return fmt.Sprintf("unknown_format_%d", uint(f))
	}
}

// Size returns the size of a single sample of a single channel, in bytes.
func (f PCMFormat) Size() uint {
	switch f {
	case PCMFormatU8:
		return 1
	case PCMFormatS16LE, PCMFormatS16BE:
		return 2
	case PCMFormatS24LE, PCMFormatS24BE:
		return 3
	case PCMFormatS32LE, PCMFormatS32BE, PCMFormatFloat32LE, PCMFormatFloat32BE:
		return 4
	case PCMFormatS64LE, PCMFormatS64BE, PCMFormatFloat64LE, PCMFormatFloat64BE:
		return 8
	default:
		return 0
	}
}

// DecodeFloat64 reads a single sample from the beginning of "p" and
// normalizes it to [-1, 1]. "p" must be at least Size() long.
func (f PCMFormat) DecodeFloat64(p []byte) (float64, error) {
	if uint(len(p)) < f.Size() || f.Size() == 0 {
		return 0, fmt.Errorf("cannot decode a %s sample from %d bytes", f, len(p))
	}
	switch f {
	case PCMFormatU8:
		return (float64(p[0]) - 128) / 128, nil
	case PCMFormatS16LE:
		return float64(int16(binary.LittleEndian.Uint16(p))) / (1 << 15), nil
	case PCMFormatS16BE:
		return float64(int16(binary.BigEndian.Uint16(p))) / (1 << 15), nil
	case PCMFormatS24LE:
		return float64(signExtend24(uint32(p[0])|uint32(p[1])<<8|uint32(p[2])<<16)) / (1 << 23), nil
	case PCMFormatS24BE:
		return float64(signExtend24(uint32(p[2])|uint32(p[1])<<8|uint32(p[0])<<16)) / (1 << 23), nil
	case PCMFormatS32LE:
		return float64(int32(binary.LittleEndian.Uint32(p))) / (1 << 31), nil
	case PCMFormatS32BE:
		return float64(int32(binary.BigEndian.Uint32(p))) / (1 << 31), nil
	case PCMFormatS64LE:
		return float64(int64(binary.LittleEndian.Uint64(p))) / (1 << 63), nil
	case PCMFormatS64BE:
		return float64(int64(binary.BigEndian.Uint64(p))) / (1 << 63), nil
	case PCMFormatFloat32LE:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(p))), nil
	case PCMFormatFloat32BE:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(p))), nil
	case PCMFormatFloat64LE:
		return math.Float64frombits(binary.LittleEndian.Uint64(p)), nil
	case PCMFormatFloat64BE:
		return math.Float64frombits(binary.BigEndian.Uint64(p)), nil
	}
	return 0, fmt.Errorf("unknown format: %v", f)
}

func signExtend24(v uint32) int32 {
	if v&0x800000 != 0 {
		v |= 0xff000000
	}
	return int32(v)
}

type Encoding interface {
	// BytesPerSample is the size of a single sample of a single channel.
	BytesPerSample() uint
	// BytesForDuration is the amount of bytes a single channel takes for the given duration.
	BytesForDuration(time.Duration) uint64
}

type EncodingPCM struct {
	PCMFormat  PCMFormat
	SampleRate SampleRate
}

var _ Encoding = EncodingPCM{}

func (e EncodingPCM) BytesPerSample() uint {
	return e.PCMFormat.Size()
}

func (e EncodingPCM) BytesForDuration(d time.Duration) uint64 {
	samples := uint64(d.Nanoseconds()) * uint64(e.SampleRate) / uint64(time.Second)
	return samples * uint64(e.BytesPerSample())
}
