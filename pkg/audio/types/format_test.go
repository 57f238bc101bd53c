package types

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCMFormat_DecodeFloat64(t *testing.T) {
	f32 := make([]byte, 4)
	binary.LittleEndian.PutUint32(f32, math.Float32bits(0.5))

	s16 := make([]byte, 2)
	binary.LittleEndian.PutUint16(s16, uint16(0xC000)) // -16384

	for _, tc := range []struct {
		format   PCMFormat
		input    []byte
		expected float64
	}{
		{PCMFormatU8, []byte{128}, 0},
		{PCMFormatU8, []byte{0}, -1},
		{PCMFormatS16LE, s16, -0.5},
		{PCMFormatS24LE, []byte{0x00, 0x00, 0xC0}, -0.5},
		{PCMFormatS24BE, []byte{0x40, 0x00, 0x00}, 0.5},
		{PCMFormatFloat32LE, f32, 0.5},
	} {
		t.Run(tc.format.String(), func(t *testing.T) {
			v, err := tc.format.DecodeFloat64(tc.input)
			require.NoError(t, err)
			assert.InDelta(t, tc.expected, v, 1e-9)
		})
	}

	_, err := PCMFormatS32LE.DecodeFloat64([]byte{1, 2})
	assert.Error(t, err)
	_, err = PCMFormatUndefined.DecodeFloat64([]byte{1, 2})
	assert.Error(t, err)
}

func TestEncodingPCM(t *testing.T) {
	enc := EncodingPCM{PCMFormat: PCMFormatFloat32LE, SampleRate: 48000}
	assert.Equal(t, uint(4), enc.BytesPerSample())
	assert.Equal(t, uint64(48000*4/10), enc.BytesForDuration(100*time.Millisecond))
}
