package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v10"
)

var (
	ErrInvalidTypingDelay = errors.New("typing delay range is invalid")
	ErrInvalidVoiceDelay  = errors.New("voice capture delay is negative")
	ErrInvalidIdleTTL     = errors.New("session idle ttl is negative")
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort      string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL   string `env:"DATABASE_URL"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	JWTSecret     string `env:"JWT_SECRET"`
	JWTTTLMinutes int    `env:"JWT_TTL_MINUTES" envDefault:"120"`

	TypingMinDelay    time.Duration `env:"TYPING_MIN_DELAY" envDefault:"1s"`
	TypingMaxDelay    time.Duration `env:"TYPING_MAX_DELAY" envDefault:"2s"`
	VoiceCaptureDelay time.Duration `env:"VOICE_CAPTURE_DELAY" envDefault:"2s"`
	VoiceTranscript   string        `env:"VOICE_TRANSCRIPT" envDefault:"What scholarships are available for computer science students?"`
	RandomSeed        int64         `env:"RANDOM_SEED" envDefault:"0"`

	MaxSessions           int           `env:"MAX_SESSIONS" envDefault:"500"`
	SnapshotChannelPrefix string        `env:"SNAPSHOT_CHANNEL_PREFIX" envDefault:"assistant:session:"`
	SessionOpenLimit      int           `env:"SESSION_OPEN_LIMIT" envDefault:"20"`
	SessionOpenWindow     time.Duration `env:"SESSION_OPEN_WINDOW" envDefault:"10m"`
	// SessionIdleTTL en cero desactiva la expiración de sesiones inactivas.
	SessionIdleTTL time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate revisa las combinaciones que env no puede expresar con tags.
func (c *Config) Validate() error {
	if c.TypingMinDelay < 0 || c.TypingMaxDelay < c.TypingMinDelay {
		return ErrInvalidTypingDelay
	}
	if c.VoiceCaptureDelay < 0 {
		return ErrInvalidVoiceDelay
	}
	if c.SessionIdleTTL < 0 {
		return ErrInvalidIdleTTL
	}
	return nil
}
