package internal

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel        string        `env:"LOG_LEVEL,default=INFO"`
	Host            string        `env:"HOST,default=localhost"`
	Port            int           `env:"PORT,default=8080"`
	GRPCPort        int           `env:"GRPC_PORT,default=9090"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`

	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	RefreshGrace      time.Duration `env:"REFRESH_GRACE,default=168h"`

	TypingWindow  time.Duration `env:"TYPING_WINDOW,default=2s"`
	PresenceGrace time.Duration `env:"PRESENCE_GRACE,default=0s"`

	NumberOfLanes        int           `env:"NUMBER_OF_LANES,default=8"`
	LaneBuffer           int           `env:"LANE_BUFFER,default=256"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	MaxFrameBytes        int           `env:"MAX_FRAME_BYTES,default=65536"`
	RateBurst            int           `env:"RATE_BURST,default=20"`
	RateInterval         time.Duration `env:"RATE_INTERVAL,default=1s"`
	AllowedOrigins       string        `env:"ALLOWED_ORIGINS"`

	CharReplacement string `env:"CHARACTER_REPLACEMENT,default=*"`
	DefaultLanguage string `env:"DEFAULT_LANGUAGE,default=en"`

	MetricInterval time.Duration `env:"METRIC_INTERVAL,default=30s"`

	NodeID       string `env:"NODE_ID"`
	KafkaBrokers string `env:"KAFKA_BROKERS"`
	KafkaTopic   string `env:"KAFKA_TOPIC,default=chat-sync-events"`
}

// LoadConfig reads the environment, after the optional .env files given (default ".env").
// Variables already set win over the files.
func LoadConfig(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if _, err := CharacterRune(cfg.CharReplacement); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Address() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

func (c Config) GRPCAddress() string { return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort) }

// Origins splits ALLOWED_ORIGINS. Empty means any origin.
func (c Config) Origins() []string { return splitList(c.AllowedOrigins) }

// Brokers splits KAFKA_BROKERS. Empty disables the backplane.
func (c Config) Brokers() []string { return splitList(c.KafkaBrokers) }

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
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
