package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths    PathsConfig   `mapstructure:"paths"`
	Runtime  RuntimeConfig `mapstructure:"runtime"`
	TTS      TTSConfig     `mapstructure:"tts"`
	G2P      G2PConfig     `mapstructure:"g2p"`
	Server   ServerConfig  `mapstructure:"server"`
	LogLevel string        `mapstructure:"log_level"`
	Log      LogConfig     `mapstructure:",squash"`
}

type PathsConfig struct {
	ModelDir    string `mapstructure:"model_dir"`
	G2PDataPath string `mapstructure:"g2p_data_path"`
	LexiconPath string `mapstructure:"lexicon_path"`
}

type RuntimeConfig struct {
	ORTLibraryPath string `mapstructure:"ort_library_path"`
	ORTVersion     string `mapstructure:"ort_version"`
	ORTAPIVersion  int    `mapstructure:"ort_api_version"`
}

type TTSConfig struct {
	ModelType  string  `mapstructure:"model_type"`
	MaxSeqLen  int     `mapstructure:"max_seq_len"`
	Voice      string  `mapstructure:"voice"`
	Speed      float64 `mapstructure:"speed"`
	FadeOut    float64 `mapstructure:"fade_out"`
	SampleRate int     `mapstructure:"sample_rate"`
	Language   string  `mapstructure:"language"`
	ChunkChars int     `mapstructure:"chunk_chars"`
}

type G2PConfig struct {
	Backend string `mapstructure:"backend"`
	Command string `mapstructure:"command"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	Workers         int    `mapstructure:"workers"`
	MaxTextBytes    int    `mapstructure:"max_text_bytes"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

// LogConfig controls the optional rotating log file. Keys live at the top
// level of the config file next to log_level.
type LogConfig struct {
	File       string `mapstructure:"log_file"`
	MaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	MaxBackups int    `mapstructure:"log_max_backups"`
	MaxAgeDays int    `mapstructure:"log_max_age_days"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

// G2PResourcePath is the resource handed to the configured G2P backend:
// the espeak-ng data directory or the lexicon file.
func (c Config) G2PResourcePath() string {
	if c.G2P.Backend == G2PLexicon {
		return c.Paths.LexiconPath
	}

	return c.Paths.G2PDataPath
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			ModelDir:    "models/kokoro",
			G2PDataPath: "/usr/share/espeak-ng-data",
			LexiconPath: "",
		},
		Runtime: RuntimeConfig{
			ORTLibraryPath: "",
			ORTVersion:     "",
			ORTAPIVersion:  23,
		},
		TTS: TTSConfig{
			ModelType:  ModelKokoro,
			MaxSeqLen:  96,
			Voice:      "af_heart",
			Speed:      1.0,
			FadeOut:    0.05,
			SampleRate: 24000,
			Language:   "en",
			ChunkChars: 220,
		},
		G2P: G2PConfig{
			Backend: G2PEspeak,
			Command: "espeak-ng",
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         2,
			MaxTextBytes:    4096,
			RequestTimeout:  60,
			ShutdownTimeout: 30,
		},
		LogLevel: "info",
		Log: LogConfig{
			File:       "",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-model-dir", defaults.Paths.ModelDir, "Model bundle directory (manifest.json, vocab.txt, voices/)")
	fs.String("paths-g2p-data-path", defaults.Paths.G2PDataPath, "espeak-ng data directory")
	fs.String("paths-lexicon-path", defaults.Paths.LexiconPath, "Lexicon file for the lexicon G2P backend")
	fs.String("runtime-ort-library-path", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("ort-lib", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library (alias for --runtime-ort-library-path)")
	fs.String("runtime-ort-version", defaults.Runtime.ORTVersion, "Expected ONNX Runtime version")
	fs.Int("runtime-ort-api-version", defaults.Runtime.ORTAPIVersion, "ONNX Runtime C API version")
	fs.String("tts-model-type", defaults.TTS.ModelType, "Model family")
	fs.Int("tts-max-seq-len", defaults.TTS.MaxSeqLen, "Fixed token sequence length of the stage graphs")
	fs.String("tts-voice", defaults.TTS.Voice, "Voice name")
	fs.Float64("tts-speed", defaults.TTS.Speed, "Speaking rate multiplier")
	fs.Float64("tts-fade-out", defaults.TTS.FadeOut, "Fade-out duration in seconds (0 disables)")
	fs.Int("tts-sample-rate", defaults.TTS.SampleRate, "Output sample rate in Hz")
	fs.String("tts-language", defaults.TTS.Language, "Language tag for phonemization")
	fs.Int("tts-chunk-chars", defaults.TTS.ChunkChars, "Maximum characters per synthesized chunk (0 disables chunking)")
	fs.String("g2p-backend", defaults.G2P.Backend, "G2P backend (espeak|lexicon)")
	fs.String("g2p-command", defaults.G2P.Command, "espeak-ng command line")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-workers", defaults.Server.Workers, "Concurrent synthesis workers")
	fs.Int("server-max-text-bytes", defaults.Server.MaxTextBytes, "Maximum request text size in bytes")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request timeout in seconds")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown timeout in seconds")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("log-file", defaults.Log.File, "Also write JSON logs to this rotating file")
	fs.Int("log-max-size-mb", defaults.Log.MaxSizeMB, "Log file size before rotation")
	fs.Int("log-max-backups", defaults.Log.MaxBackups, "Rotated log files to keep")
	fs.Int("log-max-age-days", defaults.Log.MaxAgeDays, "Days to keep rotated log files")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	registerAliases(v)

	v.SetEnvPrefix("KOKOROTTS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_", "__", "_"))
	if err := v.BindEnv("runtime.ort_library_path", "KOKOROTTS_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("kokorotts")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.model_dir", c.Paths.ModelDir)
	v.SetDefault("paths.g2p_data_path", c.Paths.G2PDataPath)
	v.SetDefault("paths.lexicon_path", c.Paths.LexiconPath)
	v.SetDefault("runtime.ort_library_path", c.Runtime.ORTLibraryPath)
	v.SetDefault("runtime.ort_version", c.Runtime.ORTVersion)
	v.SetDefault("runtime.ort_api_version", c.Runtime.ORTAPIVersion)
	v.SetDefault("tts.model_type", c.TTS.ModelType)
	v.SetDefault("tts.max_seq_len", c.TTS.MaxSeqLen)
	v.SetDefault("tts.voice", c.TTS.Voice)
	v.SetDefault("tts.speed", c.TTS.Speed)
	v.SetDefault("tts.fade_out", c.TTS.FadeOut)
	v.SetDefault("tts.sample_rate", c.TTS.SampleRate)
	v.SetDefault("tts.language", c.TTS.Language)
	v.SetDefault("tts.chunk_chars", c.TTS.ChunkChars)
	v.SetDefault("g2p.backend", c.G2P.Backend)
	v.SetDefault("g2p.command", c.G2P.Command)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("log_file", c.Log.File)
	v.SetDefault("log_max_size_mb", c.Log.MaxSizeMB)
	v.SetDefault("log_max_backups", c.Log.MaxBackups)
	v.SetDefault("log_max_age_days", c.Log.MaxAgeDays)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("paths.model_dir", "paths-model-dir")
	v.RegisterAlias("paths.g2p_data_path", "paths-g2p-data-path")
	v.RegisterAlias("paths.lexicon_path", "paths-lexicon-path")
	v.RegisterAlias("runtime.ort_library_path", "runtime-ort-library-path")
	v.RegisterAlias("runtime.ort_library_path", "ort-lib")
	v.RegisterAlias("runtime.ort_version", "runtime-ort-version")
	v.RegisterAlias("runtime.ort_api_version", "runtime-ort-api-version")
	v.RegisterAlias("tts.model_type", "tts-model-type")
	v.RegisterAlias("tts.max_seq_len", "tts-max-seq-len")
	v.RegisterAlias("tts.voice", "tts-voice")
	v.RegisterAlias("tts.speed", "tts-speed")
	v.RegisterAlias("tts.fade_out", "tts-fade-out")
	v.RegisterAlias("tts.sample_rate", "tts-sample-rate")
	v.RegisterAlias("tts.language", "tts-language")
	v.RegisterAlias("tts.chunk_chars", "tts-chunk-chars")
	v.RegisterAlias("g2p.backend", "g2p-backend")
	v.RegisterAlias("g2p.command", "g2p-command")
	v.RegisterAlias("server.listen_addr", "server-listen-addr")
	v.RegisterAlias("server.workers", "server-workers")
	v.RegisterAlias("server.max_text_bytes", "server-max-text-bytes")
	v.RegisterAlias("server.request_timeout", "server-request-timeout")
	v.RegisterAlias("server.shutdown_timeout", "server-shutdown-timeout")
	v.RegisterAlias("log_level", "log-level")
	v.RegisterAlias("log_file", "log-file")
	v.RegisterAlias("log_max_size_mb", "log-max-size-mb")
	v.RegisterAlias("log_max_backups", "log-max-backups")
	v.RegisterAlias("log_max_age_days", "log-max-age-days")
}
