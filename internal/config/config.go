package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers      []string
	AlertTopic   string
	SummaryTopic string
}

type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	PublicBaseURL string
}

// EngineConfig is the full tunable surface of the scoring engine. None of
// these are business constants; they are calibration parameters.
type EngineConfig struct {
	// WindowHours bounds the reading window a run operates over.
	WindowHours int

	// ClockSkewTolerance bounds how far captured_at may precede
	// observed_at before a reading is discarded as a clock error.
	ClockSkewTolerance time.Duration

	// FrequentPlateThreshold is the read count above which a plate is
	// "frequently seen" at a camera.
	FrequentPlateThreshold int

	// RereadWindow is the same-plate repeat-read gap treated as an echo.
	RereadWindow time.Duration

	// MaxSegmentGap is the maximum elapsed time between the two readings
	// of a movement segment.
	MaxSegmentGap time.Duration

	// SpeedFloorSeconds guards the implied-speed division.
	SpeedFloorSeconds float64

	// TrustAccuracyCutoff is the trust ratio a camera must exceed to be
	// in the trusted set.
	TrustAccuracyCutoff float64

	// CloneScoreThreshold is the score above which a plate is flagged.
	CloneScoreThreshold float64

	// Clone score component weights.
	CloneWeightDistinctTypes float64
	CloneWeightInconsistent  float64
	CloneWeightTypeTrusted   float64
	CloneWeightTypeTotal     float64

	// InactivityLookbackDays bounds the inactivity window.
	InactivityLookbackDays int

	// ReprocessLookback is how far back (by capture time) an incremental
	// run re-opens camera-day partitions.
	ReprocessLookback time.Duration

	// RunInterval spaces scheduled runs. Zero disables the scheduler.
	RunInterval time.Duration

	// PlateDenylist lists known-bad OCR artifacts to reject outright.
	PlateDenylist []string

	// PositionFromReading names the companies whose readings carry an
	// authoritative position overriding the camera catalog.
	PositionFromReading []string
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Storage     StorageConfig
	Engine      EngineConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")

	v.AutomaticEnv()

	_ = v.ReadInConfig()

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Kafka: KafkaConfig{
			Brokers:      splitList(v.GetString("KAFKA_BROKERS")),
			AlertTopic:   v.GetString("KAFKA_ALERT_TOPIC"),
			SummaryTopic: v.GetString("KAFKA_SUMMARY_TOPIC"),
		},
		Storage: StorageConfig{
			Endpoint:      v.GetString("STORAGE_ENDPOINT"),
			AccessKey:     v.GetString("STORAGE_ACCESS_KEY_ID"),
			SecretKey:     v.GetString("STORAGE_SECRET_ACCESS_KEY"),
			Bucket:        v.GetString("STORAGE_BUCKET"),
			Region:        v.GetString("STORAGE_REGION"),
			PublicBaseURL: v.GetString("STORAGE_PUBLIC_BASE_URL"),
		},
		Engine: EngineConfig{
			WindowHours:              v.GetInt("ENGINE_WINDOW_HOURS"),
			ClockSkewTolerance:       v.GetDuration("ENGINE_CLOCK_SKEW_TOLERANCE"),
			FrequentPlateThreshold:   v.GetInt("ENGINE_FREQUENT_PLATE_THRESHOLD"),
			RereadWindow:             v.GetDuration("ENGINE_REREAD_WINDOW"),
			MaxSegmentGap:            v.GetDuration("ENGINE_MAX_SEGMENT_GAP"),
			SpeedFloorSeconds:        v.GetFloat64("ENGINE_SPEED_FLOOR_SECONDS"),
			TrustAccuracyCutoff:      v.GetFloat64("ENGINE_TRUST_ACCURACY_CUTOFF"),
			CloneScoreThreshold:      v.GetFloat64("ENGINE_CLONE_SCORE_THRESHOLD"),
			CloneWeightDistinctTypes: v.GetFloat64("ENGINE_CLONE_WEIGHT_DISTINCT_TYPES"),
			CloneWeightInconsistent:  v.GetFloat64("ENGINE_CLONE_WEIGHT_INCONSISTENT"),
			CloneWeightTypeTrusted:   v.GetFloat64("ENGINE_CLONE_WEIGHT_TYPE_TRUSTED"),
			CloneWeightTypeTotal:     v.GetFloat64("ENGINE_CLONE_WEIGHT_TYPE_TOTAL"),
			InactivityLookbackDays:   v.GetInt("ENGINE_INACTIVITY_LOOKBACK_DAYS"),
			ReprocessLookback:        v.GetDuration("ENGINE_REPROCESS_LOOKBACK"),
			RunInterval:              v.GetDuration("ENGINE_RUN_INTERVAL"),
			PlateDenylist:            splitList(v.GetString("ENGINE_PLATE_DENYLIST")),
			PositionFromReading:      splitList(v.GetString("ENGINE_POSITION_FROM_READING")),
		},
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// splitList parses a comma-separated env value into its entries. Env vars
// arrive as one string, so list-valued settings are split here rather than
// relying on whitespace splitting.
func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}

	e := &cfg.Engine
	if e.WindowHours == 0 {
		e.WindowHours = 24
	}
	if e.ClockSkewTolerance == 0 {
		e.ClockSkewTolerance = 5 * time.Minute
	}
	if e.FrequentPlateThreshold == 0 {
		e.FrequentPlateThreshold = 10
	}
	if e.RereadWindow == 0 {
		e.RereadWindow = 60 * time.Second
	}
	if e.MaxSegmentGap == 0 {
		e.MaxSegmentGap = 300 * time.Second
	}
	if e.SpeedFloorSeconds == 0 {
		e.SpeedFloorSeconds = 30
	}
	if e.TrustAccuracyCutoff == 0 {
		e.TrustAccuracyCutoff = 0.95
	}
	if e.CloneScoreThreshold == 0 {
		e.CloneScoreThreshold = 1.0
	}
	if e.CloneWeightDistinctTypes == 0 {
		e.CloneWeightDistinctTypes = 1.0 / 3.0
	}
	if e.CloneWeightInconsistent == 0 {
		e.CloneWeightInconsistent = 1.0 / 10.0
	}
	if e.CloneWeightTypeTrusted == 0 {
		e.CloneWeightTypeTrusted = 1.0 / 4.0
	}
	if e.CloneWeightTypeTotal == 0 {
		e.CloneWeightTypeTotal = 1.0 / 8.0
	}
	if e.InactivityLookbackDays == 0 {
		e.InactivityLookbackDays = 7
	}
	if e.ReprocessLookback == 0 {
		e.ReprocessLookback = 48 * time.Hour
	}
	if len(e.PlateDenylist) == 0 {
		e.PlateDenylist = []string{"0000000", "AAAAAAA", "ZZZZZZZ"}
	}
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.Engine.CloneScoreThreshold <= 0 {
		return fmt.Errorf("ENGINE_CLONE_SCORE_THRESHOLD must be positive")
	}
	if cfg.Engine.TrustAccuracyCutoff <= 0 || cfg.Engine.TrustAccuracyCutoff >= 1 {
		return fmt.Errorf("ENGINE_TRUST_ACCURACY_CUTOFF must be in (0, 1)")
	}
	return nil
}
