package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds everything the bot needs, loaded from the environment.
// Components receive the values they need at construction; nothing reads
// the environment after Load returns.
type Config struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	Telegram struct {
		BotToken string `env:"BOT_TOKEN,required"`
		// Forum supergroup that hosts one topic per requester.
		GroupID int64 `env:"GROUP_ID,required"`
		// Operator notified about terminal configuration errors.
		AdminID int64 `env:"ADMIN_ID,required"`
		// Custom emoji shown as the topic icon, empty for the default.
		TopicIconEmojiID string `env:"TOPIC_ICON_EMOJI_ID" envDefault:""`
	}

	Redis struct {
		Host     string `env:"REDIS_HOST" envDefault:"localhost"`
		Port     int    `env:"REDIS_PORT" envDefault:"6379"`
		Password string `env:"REDIS_PASSWORD" envDefault:""`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
	}

	Ops struct {
		Addr          string `env:"OPS_ADDR" envDefault:":8080"`
		Token         string `env:"OPS_TOKEN" envDefault:""`
		AllowedOrigin string `env:"OPS_ALLOWED_ORIGIN" envDefault:"*"`
	}

	Jobs struct {
		CloseInactiveEvery  time.Duration `env:"CLOSE_INACTIVE_EVERY" envDefault:"2h"`
		InactivityThreshold time.Duration `env:"INACTIVITY_THRESHOLD" envDefault:"6h"`
		DigestEvery         time.Duration `env:"DIGEST_EVERY" envDefault:"3h"`
		BumpEvery           time.Duration `env:"BUMP_EVERY" envDefault:"2h"`
		BumpAfter           time.Duration `env:"BUMP_AFTER" envDefault:"2h"`
		DisableBump         bool          `env:"DISABLE_BUMP" envDefault:"false"`
		// Delay between per-requester platform calls inside a sweep.
		ThrottleDelay time.Duration `env:"SWEEP_THROTTLE_DELAY" envDefault:"500ms"`
	}
}

func Load() (*Config, error) {
	// .env is optional; in production the variables are set directly.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
