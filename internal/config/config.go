package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sorapixel/studio/internal/models"
)

// Config aggregates runtime configuration for the API and supporting services.
type Config struct {
	AppEnv   string
	LogLevel string

	ListenAddr     string
	RequestTimeout time.Duration
	JWTSecret      string

	MySQLDSN string

	GeminiAPIKey         string
	GeminiImageModel     string
	GeminiTextModel      string
	GeminiMaxRetries     int
	GeminiRetryBaseDelay time.Duration

	FalKey     string
	FalBaseURL string

	FreeTierLimit         int
	TokensPerImage        int
	CatalogueCostPerImage int
	JewelryPhotoPackCost  int
	JewelryRecolorCost    int
	JewelryHDCost         int
	JewelryListingCost    int
	DailyRewardTokens     int
	RewardTimezone        *time.Location

	WatermarkText string

	S3Endpoint     string
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3UsePathStyle bool
	S3Prefix       string
	SignedURLTTL   time.Duration

	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RateLimitPerMinute int

	TelegramBotToken    string
	TelegramAlertChatID int64

	RazorpayKeyID     string
	RazorpayKeySecret string
	RazorpayBaseURL   string
}

func (c Config) Pricing() models.Pricing {
	return models.Pricing{
		TokensPerImage:        c.TokensPerImage,
		CatalogueCostPerImage: c.CatalogueCostPerImage,
		PhotoPack:             c.JewelryPhotoPackCost,
		RecolorSingle:         c.JewelryRecolorCost,
		HDUpscale:             c.JewelryHDCost,
		Listing:               c.JewelryListingCost,
	}
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:                strings.ToLower(getEnv("APP_ENV", "production")),
		LogLevel:              getEnv("LOG_LEVEL", ""),
		ListenAddr:            getEnv("LISTEN_ADDR", ":8080"),
		RequestTimeout:        getDuration("HTTP_TIMEOUT", 5*time.Minute),
		GeminiImageModel:      getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		GeminiTextModel:       getEnv("GEMINI_TEXT_MODEL", "gemini-2.5-flash"),
		GeminiMaxRetries:      getInt("GEMINI_MAX_RETRIES", 3),
		GeminiRetryBaseDelay:  getDuration("GEMINI_RETRY_BASE_DELAY", 2*time.Second),
		FalBaseURL:            strings.TrimRight(getEnv("FAL_BASE_URL", "https://queue.fal.run"), "/"),
		FreeTierLimit:         getInt("FREE_TIER_LIMIT", 9),
		TokensPerImage:        getInt("TOKENS_PER_IMAGE", 1),
		CatalogueCostPerImage: getInt("CATALOGUE_COST_PER_IMAGE", 1),
		JewelryPhotoPackCost:  getInt("JEWELRY_PHOTO_PACK_COST", 40),
		JewelryRecolorCost:    getInt("JEWELRY_RECOLOR_COST", 7),
		JewelryHDCost:         getInt("JEWELRY_HD_COST", 10),
		JewelryListingCost:    getInt("JEWELRY_LISTING_COST", 5),
		DailyRewardTokens:     getInt("DAILY_REWARD_TOKENS", 2),
		WatermarkText:         getEnv("WATERMARK_TEXT", "SoraPixel"),
		S3Endpoint:            getEnv("S3_ENDPOINT", ""),
		S3Region:              os.Getenv("S3_REGION"),
		S3AccessKey:           os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:           os.Getenv("S3_SECRET_KEY"),
		S3Bucket:              getEnv("S3_BUCKET", "sorapixel-images"),
		S3UsePathStyle:        getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:              getEnv("S3_PREFIX", "projects"),
		SignedURLTTL:          getDuration("SIGNED_URL_TTL", time.Hour),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               getInt("REDIS_DB", 0),
		RateLimitPerMinute:    getInt("RATE_LIMIT_PER_MINUTE", 10),
		TelegramBotToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramAlertChatID:   getInt64("TELEGRAM_ALERT_CHAT_ID", 0),
		RazorpayKeyID:         os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
		RazorpayBaseURL:       strings.TrimRight(getEnv("RAZORPAY_BASE_URL", "https://api.razorpay.com"), "/"),
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.FalKey = os.Getenv("FAL_KEY")

	loc, err := time.LoadLocation(getEnv("REWARD_TIMEZONE", "Asia/Kolkata"))
	if err != nil {
		return Config{}, fmt.Errorf("load reward timezone: %w", err)
	}
	cfg.RewardTimezone = loc

	var missing []string
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if cfg.S3Region == "" {
		missing = append(missing, "S3_REGION")
	}
	if cfg.S3AccessKey == "" {
		missing = append(missing, "S3_ACCESS_KEY")
	}
	if cfg.S3SecretKey == "" {
		missing = append(missing, "S3_SECRET_KEY")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	if cfg.FreeTierLimit < 0 {
		return Config{}, fmt.Errorf("FREE_TIER_LIMIT must not be negative")
	}
	for _, price := range []struct {
		key   string
		value int
	}{
		{"TOKENS_PER_IMAGE", cfg.TokensPerImage},
		{"CATALOGUE_COST_PER_IMAGE", cfg.CatalogueCostPerImage},
		{"JEWELRY_PHOTO_PACK_COST", cfg.JewelryPhotoPackCost},
		{"JEWELRY_RECOLOR_COST", cfg.JewelryRecolorCost},
		{"JEWELRY_HD_COST", cfg.JewelryHDCost},
		{"JEWELRY_LISTING_COST", cfg.JewelryListingCost},
	} {
		if price.value <= 0 {
			return Config{}, fmt.Errorf("%s must be positive, got %d", price.key, price.value)
		}
	}
	if cfg.GeminiMaxRetries < 0 {
		cfg.GeminiMaxRetries = 0
	}

	return cfg, nil
}

// PaymentsEnabled reports whether the payment gateway credentials are present.
func (c Config) PaymentsEnabled() bool {
	return c.RazorpayKeyID != "" && c.RazorpayKeySecret != ""
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

// getDuration accepts Go duration strings ("2s", "1h") or a bare number of seconds.
func getDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

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
	// Plain environment variables are enough inside containers.
	return nil
}
