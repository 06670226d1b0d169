package common

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloatToInt16(t *testing.T) {
	assert.Equal(t, int16(0), FloatToInt16(0))
	assert.Equal(t, int16(32767), FloatToInt16(1))
	assert.Equal(t, int16(32767), FloatToInt16(3))
	assert.Equal(t, int16(-32767), FloatToInt16(-2))
}

func TestPcmStreamer(t *testing.T) {
	var raw bytes.Buffer
	for _, v := range []int16{16384, -16384, 0} {
		_ = binary.Write(&raw, binary.LittleEndian, v)
	}
	raw.WriteByte(0x01) // 不完整的尾部采样被丢弃

	s := &pcmStreamer{reader: &raw, channels: 1}
	buf := make([][2]float64, 8)
	n, ok := s.Stream(buf)
	assert.True(t, ok)
	assert.Equal(t, 3, n)
	assert.Equal(t, [2]float64{0.5, 0.5}, buf[0])
	assert.Equal(t, [2]float64{-0.5, -0.5}, buf[1])

	n, ok = s.Stream(buf)
	assert.False(t, ok)
	assert.Zero(t, n)
	assert.NoError(t, s.Err())
}
