package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hedra-avatar-agent/internal/app/server/auth"
	redisdb "hedra-avatar-agent/internal/db/redis"
	"hedra-avatar-agent/internal/domain/preset"
	"hedra-avatar-agent/internal/domain/room"
	"hedra-avatar-agent/internal/domain/vad/silero_vad"
	log "hedra-avatar-agent/logger"

	"github.com/go-playground/validator/v10"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/spf13/viper"
)

// bootstrapConfig 启动必需的配置，缺失时直接退出
type bootstrapConfig struct {
	LiveKit   room.Config `mapstructure:"livekit"`
	WebSocket struct {
		Port int `mapstructure:"port" validate:"required,min=1,max=65535"`
	} `mapstructure:"websocket"`
	SessionConfig struct {
		Provider string `mapstructure:"provider" validate:"omitempty,oneof=redis memory"`
	} `mapstructure:"session_config"`
	Assets struct {
		Dir string `mapstructure:"dir" validate:"required"`
	} `mapstructure:"assets"`
	Auth struct {
		Enable bool     `mapstructure:"enable"`
		Tokens []string `mapstructure:"tokens" validate:"required_if=Enable true"`
	} `mapstructure:"auth"`
	Presets struct {
		Voices map[string]string `mapstructure:"voices"`
	} `mapstructure:"presets"`
}

// 环境变量优先于配置文件
var envBindings = map[string]string{
	"livekit.url":        "LIVEKIT_URL",
	"livekit.api_key":    "LIVEKIT_API_KEY",
	"livekit.api_secret": "LIVEKIT_API_SECRET",
}

// Init 返回启动 App 需要的预设表与 LiveKit 配置
func Init(configFile string) (*bootstrapConfig, preset.VoicePresetTable, error) {
	if err := initConfig(configFile); err != nil {
		return nil, preset.VoicePresetTable{}, fmt.Errorf("initConfig: %w", err)
	}

	if err := initLog(); err != nil {
		return nil, preset.VoicePresetTable{}, fmt.Errorf("initLog: %w", err)
	}

	bootstrap, err := loadBootstrap()
	if err != nil {
		return nil, preset.VoicePresetTable{}, err
	}

	voices, err := preset.NewVoicePresetTable(bootstrap.Presets.Voices)
	if err != nil {
		return nil, preset.VoicePresetTable{}, fmt.Errorf("presets.voices: %w", err)
	}

	if err := initRedis(); err != nil {
		return nil, preset.VoicePresetTable{}, err
	}

	if err := initVad(); err != nil {
		return nil, preset.VoicePresetTable{}, err
	}

	auth.Init(bootstrap.Auth.Enable, bootstrap.Auth.Tokens)
	return bootstrap, voices, nil
}

func initConfig(configFile string) error {
	basePath, file := filepath.Split(configFile)

	fileName, fileExt := func(file string) (string, string) {
		if pos := strings.LastIndex(file, "."); pos != -1 {
			return file[:pos], strings.ToLower(file[pos+1:])
		}
		return file, ""
	}(file)

	viper.SetConfigName(fileName)
	viper.AddConfigPath(basePath)

	switch fileExt {
	case "json":
		viper.SetConfigType("json")
	case "yaml", "yml":
		viper.SetConfigType("yaml")
	default:
		return fmt.Errorf("unsupported config file type: %s", fileExt)
	}

	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}
	viper.SetDefault("websocket.port", 8989)
	viper.SetDefault("session_config.provider", "memory")
	viper.SetDefault("assets.dir", "assets")
	viper.SetDefault("livekit.identity", "hedra-agent")
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("tts.provider", "elevenlabs")
	viper.SetDefault("asr.provider", "whisper")
	viper.SetDefault("vad.provider", "silero_vad")
	viper.SetDefault("avatar.provider", "hedra")

	return viper.ReadInConfig()
}

func loadBootstrap() (*bootstrapConfig, error) {
	var cfg bootstrapConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	// BindEnv 的值不会出现在 Unmarshal 的结果里
	cfg.LiveKit.URL = viper.GetString("livekit.url")
	cfg.LiveKit.APIKey = viper.GetString("livekit.api_key")
	cfg.LiveKit.APISecret = viper.GetString("livekit.api_secret")

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}
	return &cfg, nil
}

func initLog() error {
	binPath, _ := os.Executable()
	baseDir := filepath.Dir(binPath)
	logPath := fmt.Sprintf("%s/%s%s", baseDir, viper.GetString("log.path"), viper.GetString("log.file"))
	// 每天轮转一次，保留 log.max_age 个文件
	writer, err := rotatelogs.New(
		logPath+".%Y%m%d",
		rotatelogs.WithLinkName(logPath),
		rotatelogs.WithRotationCount(uint(viper.GetInt("log.max_age"))),
		rotatelogs.WithRotationTime(time.Duration(86400)*time.Second),
	)
	if err != nil {
		return err
	}

	if viper.GetBool("log.stdout") {
		log.SetOutput(io.MultiWriter(writer, os.Stdout), true)
	} else {
		log.SetOutput(writer, false)
	}
	log.SetLevel(viper.GetString("log.level"))
	return nil
}

// initRedis 未配置 redis.host 时跳过，此时只能使用 memory 会话配置
func initRedis() error {
	if viper.GetString("redis.host") == "" {
		log.Warn("未配置 redis，跳过初始化")
		return nil
	}
	redisConfig := redisdb.DefaultConfig()
	if err := viper.UnmarshalKey("redis", redisConfig); err != nil {
		return fmt.Errorf("解析 redis 配置失败: %w", err)
	}
	if err := redisdb.Init(redisConfig); err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	return nil
}

// initVad silero 模型加载较慢，启动时建池
func initVad() error {
	if viper.GetString("vad.provider") != "silero_vad" {
		return nil
	}
	if err := silero_vad.InitVadPool(viper.GetStringMap("vad.silero_vad")); err != nil {
		return fmt.Errorf("init silero vad pool: %w", err)
	}
	return nil
}
