package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

// PlanLimits describes the quota attached to one plan tier.
type PlanLimits struct {
	DailyLimitGB int64  `validate:"gt=0"`
	Parallel     int    `validate:"gt=0"`
	Price        string
}

// Config aggregates runtime configuration for the bot and supporting services.
type Config struct {
	BotToken             string `validate:"required"`
	TelegramAPIEndpoint  string `validate:"required"`
	TelegramFileEndpoint string `validate:"required"`
	StoreDriver          string `validate:"oneof=mysql memory"`
	MySQLDSN             string `validate:"required_if=StoreDriver mysql"`
	ForceSubChannels     []string
	Admins               []int64
	SupportURL           string
	UpdateChannelURL     string
	LogChannelID         int64
	FreePlan             PlanLimits
	SilverPlan           PlanLimits
	GoldPlan             PlanLimits
	ScratchDir           string        `validate:"required"`
	ProgressInterval     time.Duration `validate:"gt=0"`
	HTTPTimeout          time.Duration `validate:"gte=0"`
	FFmpegPath           string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int           `validate:"gte=0"`
	UserLockTTL          time.Duration `validate:"gt=0"`
	AdminListenAddr      string
	AdminUsername        string `validate:"required_with=AdminListenAddr"`
	AdminPassword        string `validate:"required_with=AdminListenAddr"`
	S3Endpoint           string
	S3Region             string `validate:"required_with=S3Bucket"`
	S3AccessKey          string `validate:"required_with=S3Bucket"`
	S3SecretKey          string `validate:"required_with=S3Bucket"`
	S3Bucket             string
	S3UsePathStyle       bool
	S3Prefix             string
	LogLevel             string
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	admins, err := parseIDs(os.Getenv("ADMINS"))
	if err != nil {
		return Config{}, fmt.Errorf("parse ADMINS: %w", err)
	}

	cfg := Config{
		TelegramAPIEndpoint:  getEnv("TELEGRAM_API_ENDPOINT", "https://api.telegram.org/bot%s/%s"),
		TelegramFileEndpoint: getEnv("TELEGRAM_FILE_ENDPOINT", "https://api.telegram.org/file/bot%s/%s"),
		StoreDriver:          strings.ToLower(getEnv("STORE_DRIVER", StoreMySQL)),
		ForceSubChannels:     parseChannels(os.Getenv("FORCE_SUB_CHANNELS")),
		Admins:               admins,
		SupportURL:           getEnv("SUPPORT_URL", os.Getenv("SUPPORT_GROUP_URL")),
		UpdateChannelURL:     os.Getenv("UPDATE_CHANNEL_URL"),
		LogChannelID:         getInt64("LOG_CHANNEL_ID", 0),
		FreePlan: PlanLimits{
			DailyLimitGB: getInt64("FREE_DAILY_LIMIT_GB", 5),
			Parallel:     getInt("FREE_PARALLEL", 1),
			Price:        getEnv("FREE_PRICE", "free"),
		},
		SilverPlan: PlanLimits{
			DailyLimitGB: getInt64("SILVER_DAILY_LIMIT_GB", 20),
			Parallel:     getInt("SILVER_PARALLEL", 3),
			Price:        getEnv("SILVER_PRICE", "$5/month"),
		},
		GoldPlan: PlanLimits{
			DailyLimitGB: getInt64("GOLD_DAILY_LIMIT_GB", 100),
			Parallel:     getInt("GOLD_PARALLEL", 5),
			Price:        getEnv("GOLD_PRICE", "$15/month"),
		},
		ScratchDir:       getEnv("SCRATCH_DIR", "downloads"),
		ProgressInterval: time.Second * time.Duration(getInt("PROGRESS_INTERVAL_SECONDS", 5)),
		HTTPTimeout:      time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 0)),
		FFmpegPath:       getEnv("FFMPEG_PATH", "ffmpeg"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getInt("REDIS_DB", 0),
		UserLockTTL:      time.Second * time.Duration(getInt("USER_LOCK_TTL_SECONDS", 30)),
		AdminListenAddr:  os.Getenv("ADMIN_LISTEN_ADDR"),
		AdminUsername:    getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:    os.Getenv("ADMIN_PASSWORD"),
		S3Endpoint:       os.Getenv("S3_ENDPOINT"),
		S3Region:         os.Getenv("S3_REGION"),
		S3AccessKey:      os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:      os.Getenv("S3_SECRET_KEY"),
		S3Bucket:         os.Getenv("S3_BUCKET"),
		S3UsePathStyle:   getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:         getEnv("S3_PREFIX", "thumbnails"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}

	cfg.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")

	var missing []string
	if cfg.BotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if cfg.MySQLDSN == "" && cfg.StoreDriver == StoreMySQL {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.AdminListenAddr != "" && cfg.AdminPassword == "" {
		missing = append(missing, "ADMIN_PASSWORD")
	}
	if cfg.S3Bucket != "" {
		if cfg.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if cfg.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if cfg.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value shapes that cannot be expressed as "present or not".
func (c Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s(%s)", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
}

// IsAdmin reports whether the telegram user id is listed in ADMINS.
func (c Config) IsAdmin(id int64) bool {
	for _, admin := range c.Admins {
		if admin == id {
			return true
		}
	}
	return false
}

// S3Enabled reports whether default thumbnails are mirrored to object storage.
func (c Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseChannels(raw string) []string {
	var channels []string
	for _, part := range strings.Split(raw, ",") {
		if ch := extractChannelUsername(part); ch != "" {
			channels = append(channels, ch)
		}
	}
	return channels
}

// loadEnvFile overloads the process environment from the first env file found.
// A missing file is not an error: containers usually inject variables directly.
func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}

func normalizeChannelUsername(username string) string {
	username = strings.TrimSpace(username)
	username = strings.TrimPrefix(username, "@")
	return username
}

func extractChannelUsername(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimSuffix(raw, "/")
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		if parsed, err := url.Parse(raw); err == nil {
			path := strings.Trim(parsed.Path, "/")
			if path != "" {
				return normalizeChannelUsername(path)
			}
		}
	}
	raw = strings.TrimPrefix(raw, "t.me/")
	return normalizeChannelUsername(raw)
}
