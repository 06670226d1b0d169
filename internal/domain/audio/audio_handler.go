package audio

import (
	"errors"
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// AudioProcesser 上行 opus 解码
type AudioProcesser struct {
	sampleRate       int
	channels         int
	perFrameDuration int
	decoder          *opus.Decoder
	pcmBuf           []float32
}

func GetAudioProcesser(sampleRate int, channels int, perFrameDuration int) (*AudioProcesser, error) {
	decoder, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("创建opus解码器失败: %w", err)
	}

	// 留足 120ms，客户端帧长可能与约定不一致
	return &AudioProcesser{
		sampleRate:       sampleRate,
		channels:         channels,
		perFrameDuration: perFrameDuration,
		decoder:          decoder,
		pcmBuf:           make([]float32, sampleRate*channels*120/1000),
	}, nil
}

// FrameSamples 一帧的采样数
func (a *AudioProcesser) FrameSamples() int {
	return a.sampleRate * a.perFrameDuration / 1000
}

// DecodeFloat32 返回新分配的切片，调用方可以持有
func (a *AudioProcesser) DecodeFloat32(frame []byte) ([]float32, error) {
	if a.decoder == nil {
		return nil, errors.New("decoder is nil")
	}
	n, err := a.decoder.DecodeFloat32(frame, a.pcmBuf)
	if err != nil {
		return nil, err
	}
	out := make([]float32, n*a.channels)
	copy(out, a.pcmBuf[:n*a.channels])
	return out, nil
}
