package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`
	PersistRetries int    `env:"PERSIST_RETRIES,default=3"`

	SessionSecret      string        `env:"SESSION_SECRET,required=true"`
	SecureCookies      bool          `env:"SECURE_COOKIES,default=false"`
	SessionMaxAge      time.Duration `env:"SESSION_MAX_AGE,default=168h"`
	ResetTokenSecret   string        `env:"RESET_TOKEN_SECRET,required=true"`
	ResetTokenDuration time.Duration `env:"RESET_TOKEN_DURATION,default=15m"`
	ClientURL          string        `env:"CLIENT_URL,default=http://localhost:3000"`
	AllowedOrigins     string        `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`

	AdminUsername string `env:"ADMIN_USERNAME,default=admin"`
	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	HistoryLimit         int    `env:"HISTORY_LIMIT,default=20"`
	RestHistoryLimit     int    `env:"REST_HISTORY_LIMIT,default=50"`
	HistoryWorkers       int    `env:"HISTORY_WORKERS,default=4"`
	BufferSize           int    `env:"BUFFER_SIZE,default=1000"`
	ConnectionBufferSize int    `env:"CONNECTION_BUFFER_SIZE,default=256"`
	MaxMessageSize       int    `env:"MAX_MESSAGE_SIZE,default=2000"`
	MaxFrameSize         int64  `env:"MAX_FRAME_SIZE,default=8192"`
	RateBurst            int    `env:"RATE_BURST,default=5"`
	LowCapacityThreshold int    `env:"LOW_CAPACITY_THRESHOLD,default=0"`
	DefaultRoom          string `env:"DEFAULT_ROOM,default=general"`
	PrivilegedRoom       string `env:"PRIVILEGED_ROOM,default=announcements"`
	SeedRooms            string `env:"SEED_ROOMS"`
	CharReplacement      string `env:"CHARACTER_REPLACEMENT,default=*"`
	CensoredWords        string `env:"CENSORED_WORDS"`

	PersistTimeout  time.Duration `env:"PERSIST_TIMEOUT,default=5s"`
	SinkTimeout     time.Duration `env:"SINK_TIMEOUT,default=2s"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=1s"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=1m"`
	RateInterval    time.Duration `env:"RATE_INTERVAL,default=1s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// Validate checks what the env tags can't express.
func (c Config) Validate() error {
	if len(c.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 bytes")
	}
	if c.HistoryLimit < 1 || c.HistoryLimit > 50 {
		return fmt.Errorf("HISTORY_LIMIT must be between 1 and 50, got %d", c.HistoryLimit)
	}
	if strings.TrimSpace(c.DefaultRoom) == "" {
		return fmt.Errorf("DEFAULT_ROOM can't be empty")
	}
	_, err := CharacterRune(c.CharReplacement)
	return err
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Rooms returns the rooms to seed at boot. The default room always comes first.
func (c Config) Rooms() []string {
	rooms := lo.Compact([]string{c.DefaultRoom, strings.TrimSpace(c.PrivilegedRoom)})
	return lo.Uniq(append(rooms, List(c.SeedRooms)...))
}

// List splits a comma separated value, dropping blanks.
func List(value string) []string {
	return lo.Compact(lo.Map(strings.Split(value, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	}))
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
