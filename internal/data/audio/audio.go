package audio

const (
	// 上行 16k，供 VAD 与 ASR 直接使用
	InputSampleRate = 16000
	// 下行 24k，与 tts 输出一致
	OutputSampleRate = 24000
	Channels         = 1
	FrameDuration    = 60
	Format           = "opus"
)

type AudioFormat struct {
	Format        string `json:"format,omitempty"`
	SampleRate    int    `json:"sample_rate,omitempty"`
	Channels      int    `json:"channels,omitempty"`
	FrameDuration int    `json:"frame_duration,omitempty"`
}

func InputFormat() AudioFormat {
	return AudioFormat{Format: Format, SampleRate: InputSampleRate, Channels: Channels, FrameDuration: FrameDuration}
}

func OutputFormat() AudioFormat {
	return AudioFormat{Format: Format, SampleRate: OutputSampleRate, Channels: Channels, FrameDuration: FrameDuration}
}
