package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full configuration surface of the notification service.
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	Env       string `env:"ENV" envDefault:"development"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	PostgresConnStr string `env:"POSTGRES_CONN_STR,required"`
	MongoURI        string `env:"MONGO_URI"`
	RedisAddr       string `env:"REDIS_ADDR"`

	JWTSecret string `env:"JWT_SECRET" envDefault:"supersecretjwtkey"`

	FirebaseCredentialsPath string `env:"FIREBASE_CREDENTIALS_PATH"`

	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"no-reply@waveline.app"`
	SiteName             string `env:"SITE_NAME" envDefault:"Waveline"`
	SiteURL              string `env:"SITE_URL" envDefault:"https://waveline.app"`

	Notifications NotificationConfig
	Queue         QueueConfig
}

// NotificationConfig holds fan-out, retention and digest tunables.
type NotificationConfig struct {
	DedupWindow       time.Duration `env:"NOTIF_DEDUP_WINDOW" envDefault:"1h"`
	RetractWindow     time.Duration `env:"NOTIF_RETRACT_WINDOW" envDefault:"24h"`
	ReadRetentionDays int           `env:"NOTIF_READ_RETENTION_DAYS" envDefault:"30"`
	RetentionDays     int           `env:"NOTIF_RETENTION_DAYS" envDefault:"90"`
	PurgeBatchSize    int           `env:"NOTIF_PURGE_BATCH_SIZE" envDefault:"1000"`
	FanoutBatchSize   int           `env:"FANOUT_BATCH_SIZE" envDefault:"500"`
}

// QueueConfig holds the delivery queue tunables.
type QueueConfig struct {
	MaxRetries   int           `env:"QUEUE_MAX_RETRIES" envDefault:"3"`
	PullInterval time.Duration `env:"QUEUE_PULL_INTERVAL" envDefault:"5s"`
	LockTimeout  time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	Concurrency  int           `env:"WORKER_CONCURRENCY" envDefault:"4"`
}

// Load reads the .env file (when present) and parses the environment into a
// Config. Missing required variables fail here so a misconfigured process
// never starts.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
