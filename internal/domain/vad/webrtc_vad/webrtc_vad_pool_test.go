package webrtc_vad

import (
	"context"
	"sync"
	"testing"
	"time"

	"hedra-avatar-agent/internal/domain/vad/inter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebRTCVADPool(t *testing.T) {
	pool := NewWebRTCVADPool(WebRTCVADConfig{SampleRate: 16000, Mode: 2}, inter.PoolConfig{
		MaxSize:        3,
		MinIdle:        1,
		MaxIdle:        2,
		AcquireTimeout: 5 * time.Second,
		IdleTimeout:    time.Minute,
	})
	defer pool.Close()

	vad, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	// 20ms的16kHz音频数据
	testData := make([]float32, 320)
	for i := range testData {
		testData[i] = 0.1
	}
	_, err = vad.IsVAD(testData)
	assert.NoError(t, err)

	webrtcVAD, ok := vad.(*WebRTCVAD)
	require.True(t, ok)
	assert.Equal(t, 16000, webrtcVAD.GetSampleRate())
	assert.Equal(t, 2, webrtcVAD.GetMode())
	assert.Equal(t, 1, pool.Stats()["active"])

	require.NoError(t, pool.Release(vad))
	assert.Equal(t, 0, pool.Stats()["active"])
}

func TestWebRTCVADPoolConcurrency(t *testing.T) {
	pool := NewWebRTCVADPool(WebRTCVADConfig{SampleRate: 16000, Mode: 2}, inter.PoolConfig{
		MaxSize:        5,
		MinIdle:        2,
		MaxIdle:        3,
		AcquireTimeout: 10 * time.Second,
	})
	defer pool.Close()

	testData := make([]float32, 320)
	for i := range testData {
		testData[i] = float32(i%100) / 100.0
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				vad, err := pool.Acquire(ctx)
				if err != nil {
					t.Errorf("worker %d iteration %d: acquire: %v", workerID, j, err)
					return
				}
				if _, err = vad.IsVAD(testData); err != nil {
					t.Errorf("worker %d iteration %d: detect: %v", workerID, j, err)
				}
				time.Sleep(10 * time.Millisecond)
				if err = pool.Release(vad); err != nil {
					t.Errorf("worker %d iteration %d: release: %v", workerID, j, err)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, pool.Stats()["active"])
}

func TestWebRTCVADPoolTimeout(t *testing.T) {
	pool := NewWebRTCVADPool(WebRTCVADConfig{SampleRate: 16000, Mode: 2}, inter.PoolConfig{
		MaxSize:        1, // 只允许一个资源
		MaxIdle:        1,
		AcquireTimeout: 100 * time.Millisecond,
	})
	defer pool.Close()

	vad1, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	start := time.Now()
	_, err = pool.Acquire(context.Background())
	assert.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)

	require.NoError(t, pool.Release(vad1))

	vad3, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.NoError(t, pool.Release(vad3))
}

func TestGetVadConfigFromMap(t *testing.T) {
	c := getVadConfigFromMap(map[string]interface{}{"vad_sample_rate": 8000, "vad_mode": 3})
	assert.Equal(t, WebRTCVADConfig{SampleRate: 8000, Mode: 3}, c)

	c = getVadConfigFromMap(map[string]interface{}{"vad_sample_rate": 22050, "vad_mode": 9})
	assert.Equal(t, WebRTCVADConfig{SampleRate: DefaultSampleRate, Mode: DefaultMode}, c)
}

func BenchmarkWebRTCVADPool(b *testing.B) {
	pool := NewWebRTCVADPool(WebRTCVADConfig{SampleRate: 16000, Mode: 2}, inter.PoolConfig{MaxSize: 10, MinIdle: 2, MaxIdle: 5})
	defer pool.Close()

	testData := make([]float32, 320)
	for i := range testData {
		testData[i] = float32(i%100) / 100.0
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			vad, err := pool.Acquire(context.Background())
			if err != nil {
				b.Errorf("Failed to acquire VAD: %v", err)
				continue
			}
			if _, err = vad.IsVAD(testData); err != nil {
				b.Errorf("VAD detection failed: %v", err)
			}
			_ = pool.Release(vad)
		}
	})
}
