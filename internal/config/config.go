package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	SQLitePath      string `env:"SQLITE_PATH" envDefault:"./data/parking.db"`
	GroupID         string `env:"GROUP_ID"`
	BotPhone        string `env:"BOT_PHONE"`
	ReplyDelayMinMs int    `env:"REPLY_DELAY_MIN_MS" envDefault:"0"` // Minimum delay before reply (milliseconds)
	ReplyDelayMaxMs int    `env:"REPLY_DELAY_MAX_MS" envDefault:"0"` // Maximum delay before reply (milliseconds), 0 = use min as fixed
	ShowTyping      bool   `env:"SHOW_TYPING" envDefault:"false"`    // Show typing indicator during delay

	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8085"`

	// RealtimeURL makes the feed follow another instance's change stream
	// (ws://host/realtime/reports) instead of this process's own inserts.
	RealtimeURL string `env:"REALTIME_URL"`

	CloudinaryURL    string `env:"CLOUDINARY_URL"`
	CloudinaryFolder string `env:"CLOUDINARY_FOLDER" envDefault:"report-photos"`

	OCRAPIURL  string        `env:"OCR_API_URL" envDefault:"https://api.ocr.space/parse/image"`
	OCRAPIKey  string        `env:"OCR_API_KEY"`
	OCRTimeout time.Duration `env:"OCR_TIMEOUT" envDefault:"20s"`

	GeocoderURL       string `env:"GEOCODER_URL" envDefault:"https://nominatim.openstreetmap.org/reverse"`
	GeocoderUserAgent string `env:"GEOCODER_USER_AGENT" envDefault:"parking-reporter-bot"`

	LocationTTL        time.Duration `env:"LOCATION_TTL" envDefault:"15m"`
	LeaderboardRefresh time.Duration `env:"LEADERBOARD_REFRESH" envDefault:"0s"`
	FeedAnnounce       bool          `env:"FEED_ANNOUNCE" envDefault:"true"`
	FeedPageSize       int           `env:"FEED_PAGE_SIZE" envDefault:"5"`
}

func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults/environment variables")
	}
	return Parse()
}

// Parse reads Config from the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.ReplyDelayMinMs < 0 || cfg.ReplyDelayMaxMs < 0 {
		return Config{}, fmt.Errorf("reply delay must not be negative")
	}
	if cfg.FeedPageSize <= 0 {
		return Config{}, fmt.Errorf("FEED_PAGE_SIZE must be positive, got %d", cfg.FeedPageSize)
	}
	return cfg, nil
}
