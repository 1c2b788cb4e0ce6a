package internal

import (
	"fmt"
	"time"
)

type Config struct {
	Host string `env:"HOST,required=true"`
	Port int    `env:"PORT,required=true"`

	LogLevel       string `env:"LOG_LEVEL,required=true"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`

	// ConnectionBufferSize sizes each WebSocket send channel. A slow
	// consumer that fills it starts dropping live events and recovers by
	// resync.
	ConnectionBufferSize int    `env:"CONNECTION_BUFFER_SIZE,required=true"`
	LimitMessages        *int   `env:"LIMIT_MESSAGES"`
	CharReplacement      string `env:"CHARACTER_REPLACEMENT,required=true"`

	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`

	IdleConnectionWindow time.Duration `env:"IDLE_CONNECTION_WINDOW,required=true"`
	ReaperInterval       time.Duration `env:"REAPER_INTERVAL,required=true"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,required=true"`

	RateLimitWindow      time.Duration `env:"RATE_LIMIT_WINDOW,required=true"`
	RateLimitMaxMessages int           `env:"RATE_LIMIT_MAX_MESSAGES,required=true"`
	RateLimitCleanup     time.Duration `env:"RATE_LIMIT_CLEANUP,required=true"`

	DebugPort int `env:"DEBUG_PORT"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
