package config

import (
	"time"

	"github.com/caarlos0/env/v9"
)

type Config struct {
	Port                   string `env:"PORT" envDefault:"8080"`
	DBUser                 string `env:"DB_USER,required"`
	DBPassword             string `env:"DB_PASSWORD,required"`
	DBHost                 string `env:"DB_HOST,required"` // e.g. tcp(host:3306) or unix(/cloudsql/instance)
	DBName                 string `env:"DB_NAME,required"`
	DBPort                 string `env:"DB_PORT" envDefault:"3306"`
	InstanceConnectionName string `env:"INSTANCE_CONNECTION_NAME"`

	// AuthMode is "firebase" (verify ID tokens) or "header" (trust X-User-UID, local development only).
	AuthMode              string   `env:"AUTH_MODE" envDefault:"firebase"`
	FirebaseProjectID     string   `env:"FIREBASE_PROJECT_ID"`
	GoogleCredentialsFile string   `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	CORSOriginSuffixes    []string `env:"CORS_ORIGIN_SUFFIXES" envSeparator:"," envDefault:"vercel.app"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	NatsURL       string `env:"NATS_URL"`
	ArchiveBucket string `env:"ARCHIVE_BUCKET"`

	SweepInterval       time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	DefaultDurationDays int           `env:"AUCTION_DEFAULT_DAYS" envDefault:"7"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
