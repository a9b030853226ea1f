package resources

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Settings struct {
	HttpHost          string
	HttpPort          string
	DebugPort         string
	Storage           string
	IdentityHeader    string
	OtelEnabled       bool
	OtelEndpoint      string
	MaxEventDays      int
	CodeLength        int
	CodeAttempts      int
	CodeRetention     time.Duration
	MaintenanceCron   string
	DBConnectAttempts uint
}

func setDefaults() {
	viper.SetDefault("HTTP_HOST", "localhost")
	viper.SetDefault("HTTP_PORT", "8080")
	viper.SetDefault("DEBUG_PORT", "6060")
	viper.SetDefault("STORAGE", StoragePostgres)
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_CONNECT_ATTEMPTS", 5)
	viper.SetDefault("OTEL_ENABLED", false)
	viper.SetDefault("OTEL_ENDPOINT", "localhost:4317")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("IDENTITY_HEADER", "X-Identity")
	viper.SetDefault("MAX_EVENT_DAYS", 30)
	viper.SetDefault("CODE_LENGTH", 8)
	viper.SetDefault("CODE_ATTEMPTS", 4)
	viper.SetDefault("CODE_RETENTION", "336h")
	viper.SetDefault("MAINTENANCE_CRON", "@daily")
}

// Default loads .env (when present) and the environment into viper, sets up
// the global zerolog logger and returns ctx carrying it.
func Default(ctx context.Context, name string, version string, env string) context.Context {
	envErr := godotenv.Load()

	viper.AutomaticEnv()
	setDefaults()

	level, err := zerolog.ParseLevel(strings.ToLower(viper.GetString("LOG_LEVEL")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	log.Logger = zerolog.New(os.Stdout).With().Timestamp().
		Str("service", name).Str("version", version).Str("env", env).Logger()

	if envErr != nil {
		log.Debug().Str("stage", "startup").Str("component", "config").Msg("no .env file loaded")
	}

	return log.Logger.WithContext(ctx)
}

func LoadSettings() Settings {
	return Settings{
		HttpHost:          viper.GetString("HTTP_HOST"),
		HttpPort:          viper.GetString("HTTP_PORT"),
		DebugPort:         viper.GetString("DEBUG_PORT"),
		Storage:           strings.ToLower(viper.GetString("STORAGE")),
		IdentityHeader:    viper.GetString("IDENTITY_HEADER"),
		OtelEnabled:       viper.GetBool("OTEL_ENABLED"),
		OtelEndpoint:      viper.GetString("OTEL_ENDPOINT"),
		MaxEventDays:      viper.GetInt("MAX_EVENT_DAYS"),
		CodeLength:        viper.GetInt("CODE_LENGTH"),
		CodeAttempts:      viper.GetInt("CODE_ATTEMPTS"),
		CodeRetention:     viper.GetDuration("CODE_RETENTION"),
		MaintenanceCron:   viper.GetString("MAINTENANCE_CRON"),
		DBConnectAttempts: viper.GetUint("DB_CONNECT_ATTEMPTS"),
	}
}
