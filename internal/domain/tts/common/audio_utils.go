package common

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	log "hedra-avatar-agent/logger"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"gopkg.in/hraban/opus.v2"
)

const resampleQuality = 4

// AudioDecoder 把云端返回的 mp3 或裸 pcm 解码、重采样为单声道，再编码成 opus 帧
type AudioDecoder struct {
	ctx                context.Context
	reader             io.ReadCloser
	outputOpusChan     chan []byte
	targetSampleRate   int
	perFrameDurationMs int
	audioFormat        string
	pcmFormat          beep.Format
}

// CreateAudioDecoder audioFormat 支持 "mp3" 和 "pcm"，pcm 需要再调用 WithFormat
// Run 结束时会关闭 outputOpusChan
func CreateAudioDecoder(ctx context.Context, reader io.ReadCloser, outputOpusChan chan []byte, targetSampleRate int, perFrameDurationMs int, audioFormat string) *AudioDecoder {
	return &AudioDecoder{
		ctx:                ctx,
		reader:             reader,
		outputOpusChan:     outputOpusChan,
		targetSampleRate:   targetSampleRate,
		perFrameDurationMs: perFrameDurationMs,
		audioFormat:        audioFormat,
	}
}

// WithFormat 裸 pcm 的采样率与声道数
func (d *AudioDecoder) WithFormat(format beep.Format) *AudioDecoder {
	d.pcmFormat = format
	return d
}

func (d *AudioDecoder) Run(startTs time.Time) error {
	defer close(d.outputOpusChan)

	var streamer beep.Streamer
	var format beep.Format
	switch d.audioFormat {
	case "mp3":
		decoder, f, err := mp3.Decode(d.reader)
		if err != nil {
			return fmt.Errorf("创建MP3解码器失败: %w", err)
		}
		defer decoder.Close()
		streamer, format = decoder, f
	case "pcm":
		if d.pcmFormat.SampleRate == 0 || d.pcmFormat.NumChannels == 0 {
			return errors.New("pcm 格式未设置")
		}
		streamer, format = &pcmStreamer{reader: d.reader, channels: d.pcmFormat.NumChannels}, d.pcmFormat
	default:
		return fmt.Errorf("不支持的音频格式: %s", d.audioFormat)
	}
	log.Debugf("tts音频格式: %s %d Hz, %d 通道", d.audioFormat, format.SampleRate, format.NumChannels)

	if int(format.SampleRate) != d.targetSampleRate {
		streamer = beep.Resample(resampleQuality, format.SampleRate, beep.SampleRate(d.targetSampleRate), streamer)
	}

	enc, err := NewFrameEncoder(d.targetSampleRate, d.perFrameDurationMs)
	if err != nil {
		return err
	}

	buf := make([][2]float64, 1024)
	var firstFrame bool
	for {
		select {
		case <-d.ctx.Done():
			log.Debugf("audioDecoder context done, exit")
			return nil
		default:
		}

		n, ok := streamer.Stream(buf)
		for i := 0; i < n; i++ {
			// 双声道取平均
			frame, err := enc.Push(FloatToInt16((buf[i][0] + buf[i][1]) * 0.5))
			if err != nil {
				return err
			}
			if frame == nil {
				continue
			}
			if !firstFrame {
				firstFrame = true
				log.Infof("tts云端->首帧解码完成耗时: %d ms", time.Since(startTs).Milliseconds())
			}
			if !d.send(frame) {
				return nil
			}
		}
		if !ok {
			if err := streamer.Err(); err != nil {
				return fmt.Errorf("音频解码失败: %w", err)
			}
			if frame, err := enc.Flush(); err != nil {
				return err
			} else if frame != nil {
				d.send(frame)
			}
			return nil
		}
	}
}

func (d *AudioDecoder) send(frame []byte) bool {
	select {
	case <-d.ctx.Done():
		return false
	case d.outputOpusChan <- frame:
		return true
	}
}

// pcmStreamer 把 16bit 小端裸 pcm 适配成 beep.Streamer
type pcmStreamer struct {
	reader   io.Reader
	channels int
	err      error
}

func (p *pcmStreamer) Stream(samples [][2]float64) (int, bool) {
	frameBytes := 2 * p.channels
	raw := make([]byte, len(samples)*frameBytes)
	// 读满缓冲区，只有流结束时才会不足
	n, err := io.ReadFull(p.reader, raw)

	count := n / frameBytes
	for i := 0; i < count; i++ {
		left := float64(int16(binary.LittleEndian.Uint16(raw[i*frameBytes:]))) / 32768
		right := left
		if p.channels > 1 {
			right = float64(int16(binary.LittleEndian.Uint16(raw[i*frameBytes+2:]))) / 32768
		}
		samples[i] = [2]float64{left, right}
	}

	if err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			p.err = err
		}
		return count, count > 0
	}
	return count, true
}

func (p *pcmStreamer) Err() error {
	return p.err
}

// FrameEncoder 攒满一帧 pcm 后编码成 opus
type FrameEncoder struct {
	enc       *opus.Encoder
	pcm       []int16
	pos       int
	opusBytes []byte
}

func NewFrameEncoder(sampleRate int, frameDurationMs int) (*FrameEncoder, error) {
	enc, err := opus.NewEncoder(sampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("创建Opus编码器失败: %w", err)
	}
	return &FrameEncoder{
		enc:       enc,
		pcm:       make([]int16, sampleRate*frameDurationMs/1000),
		opusBytes: make([]byte, 4000),
	}, nil
}

// Push 返回非 nil 表示刚好凑满一帧
func (e *FrameEncoder) Push(sample int16) ([]byte, error) {
	e.pcm[e.pos] = sample
	e.pos++
	if e.pos < len(e.pcm) {
		return nil, nil
	}
	return e.encode()
}

// Flush 不足一帧的尾部补零编码
func (e *FrameEncoder) Flush() ([]byte, error) {
	if e.pos == 0 {
		return nil, nil
	}
	for i := e.pos; i < len(e.pcm); i++ {
		e.pcm[i] = 0
	}
	return e.encode()
}

func (e *FrameEncoder) encode() ([]byte, error) {
	e.pos = 0
	n, err := e.enc.Encode(e.pcm, e.opusBytes)
	if err != nil {
		return nil, fmt.Errorf("opus编码失败: %w", err)
	}
	frame := make([]byte, n)
	copy(frame, e.opusBytes[:n])
	return frame, nil
}

// FloatToInt16 [-1, 1] 浮点采样转 16bit，超出范围截断
func FloatToInt16(v float64) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(v * 32767)
}
