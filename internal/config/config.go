package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/MrJamesThe3rd/ledgermatch/internal/categorize"
	"github.com/MrJamesThe3rd/ledgermatch/internal/reconcile"
	"github.com/MrJamesThe3rd/ledgermatch/internal/scoring"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"ledgermatch"`
		Port int    `envconfig:"PORT" default:"8080"`
	}

	DB struct {
		Host         string `envconfig:"DB_HOST" default:"localhost"`
		Port         int    `envconfig:"DB_PORT" default:"5432"`
		User         string `envconfig:"DB_USER" default:"postgres"`
		Password     string `envconfig:"DB_PASSWORD" default:""`
		Name         string `envconfig:"DB_NAME" default:"ledgermatch"`
		SSLMode      string `envconfig:"DB_SSLMODE" default:"disable"`
		MaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
		AutoMigrate  bool   `envconfig:"DB_AUTO_MIGRATE" default:"true"`
	}

	Server struct {
		Timeout         time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
		ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
		BulkSyncLimit   int           `envconfig:"SERVER_BULK_SYNC_LIMIT" default:"500"`
	}

	Log struct {
		Level  string `envconfig:"LOG_LEVEL" default:"info"`
		Format string `envconfig:"LOG_FORMAT" default:"text"`
		// File receives the review console's logs; the terminal belongs to the UI.
		File   string `envconfig:"LOG_FILE" default:""`
	}

	Jobs struct {
		Workers      int           `envconfig:"JOB_WORKERS" default:"4"`
		QueueSize    int           `envconfig:"JOB_QUEUE_SIZE" default:"64"`
		StallTimeout time.Duration `envconfig:"JOB_STALL_TIMEOUT" default:"5m"`
		Retention    time.Duration `envconfig:"JOB_RETENTION" default:"24h"`
	}

	Scoring struct {
		INNBase            float64 `envconfig:"SCORING_INN_BASE" default:"0.70"`
		INNStep            float64 `envconfig:"SCORING_INN_STEP" default:"0.05"`
		INNCap             float64 `envconfig:"SCORING_INN_CAP" default:"0.95"`
		NameBase           float64 `envconfig:"SCORING_NAME_BASE" default:"0.65"`
		NameStep           float64 `envconfig:"SCORING_NAME_STEP" default:"0.05"`
		NameCap            float64 `envconfig:"SCORING_NAME_CAP" default:"0.90"`
		OperationBase      float64 `envconfig:"SCORING_OPERATION_BASE" default:"0.55"`
		OperationStep      float64 `envconfig:"SCORING_OPERATION_STEP" default:"0.05"`
		OperationCap       float64 `envconfig:"SCORING_OPERATION_CAP" default:"0.80"`
		KeywordBase        float64 `envconfig:"SCORING_KEYWORD_BASE" default:"0.45"`
		KeywordStep        float64 `envconfig:"SCORING_KEYWORD_STEP" default:"0.08"`
		KeywordCap         float64 `envconfig:"SCORING_KEYWORD_CAP" default:"0.75"`
		AutoApply          float64 `envconfig:"SCORING_AUTO_APPLY" default:"0.85"`
		Review             float64 `envconfig:"SCORING_REVIEW" default:"0.60"`
		MinSuggestionGroup int     `envconfig:"SCORING_MIN_SUGGESTION_GROUP" default:"3"`
	}

	Matching struct {
		Threshold           float64 `envconfig:"MATCHING_THRESHOLD" default:"70"`
		Limit               int     `envconfig:"MATCHING_LIMIT" default:"0"`
		AmountWeight        float64 `envconfig:"MATCHING_AMOUNT_WEIGHT" default:"40"`
		DateWeight          float64 `envconfig:"MATCHING_DATE_WEIGHT" default:"25"`
		INNWeight           float64 `envconfig:"MATCHING_INN_WEIGHT" default:"25"`
		NameWeight          float64 `envconfig:"MATCHING_NAME_WEIGHT" default:"10"`
		AmountTolerance     float64 `envconfig:"MATCHING_AMOUNT_TOLERANCE" default:"0.10"`
		DateFullDays        int     `envconfig:"MATCHING_DATE_FULL_DAYS" default:"3"`
		DateZeroDays        int     `envconfig:"MATCHING_DATE_ZERO_DAYS" default:"30"`
		NameTokenSimilarity float64 `envconfig:"MATCHING_NAME_TOKEN_SIMILARITY" default:"0.8"`
	}

	Schedule struct {
		AutoCategorize string `envconfig:"SCHEDULE_AUTO_CATEGORIZE" default:""`
		AutoMatch      string `envconfig:"SCHEDULE_AUTO_MATCH" default:""`
		Sync           string `envconfig:"SCHEDULE_SYNC" default:""`
		TimeZone       string `envconfig:"SCHEDULE_TIMEZONE" default:"UTC"`
	}

	CORS struct {
		AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}

func (c *Config) Policy() scoring.Policy {
	s := c.Scoring

	return scoring.Policy{
		INNHistory:       scoring.Tier{Base: s.INNBase, Step: s.INNStep, Cap: s.INNCap},
		NameHistory:      scoring.Tier{Base: s.NameBase, Step: s.NameStep, Cap: s.NameCap},
		OperationHistory: scoring.Tier{Base: s.OperationBase, Step: s.OperationStep, Cap: s.OperationCap},
		Keyword:          scoring.Tier{Base: s.KeywordBase, Step: s.KeywordStep, Cap: s.KeywordCap},
		Thresholds:       scoring.Thresholds{AutoApply: s.AutoApply, Review: s.Review},
	}
}

func (c *Config) CategorizeOptions() categorize.Options {
	return categorize.Options{Policy: c.Policy(), MinSuggestionGroup: c.Scoring.MinSuggestionGroup}
}

func (c *Config) Weights() reconcile.Weights {
	m := c.Matching

	return reconcile.Weights{
		Amount:              m.AmountWeight,
		Date:                m.DateWeight,
		INN:                 m.INNWeight,
		Name:                m.NameWeight,
		AmountTolerance:     m.AmountTolerance,
		DateFullDays:        m.DateFullDays,
		DateZeroDays:        m.DateZeroDays,
		NameTokenSimilarity: m.NameTokenSimilarity,
	}
}

func (c *Config) AutoMatchOptions() reconcile.AutoMatchOptions {
	return reconcile.AutoMatchOptions{Threshold: c.Matching.Threshold, Limit: c.Matching.Limit}
}

func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Schedule.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("loading schedule timezone %q: %w", c.Schedule.TimeZone, err)
	}

	return loc, nil
}

// Logger builds the process logger from the LOG_* settings.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", c.Log.Level, err)
	}

	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(c.Log.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}

	return nil, fmt.Errorf("unknown log format %q", c.Log.Format)
}

func (c *Config) validate() error {
	if err := c.Policy().Validate(); err != nil {
		return err
	}

	w := c.Weights()
	if w.Amount < 0 || w.Date < 0 || w.INN < 0 || w.Name < 0 {
		return errors.New("matching weights must not be negative")
	}

	if w.DateZeroDays <= w.DateFullDays {
		return fmt.Errorf("MATCHING_DATE_ZERO_DAYS (%d) must exceed MATCHING_DATE_FULL_DAYS (%d)", w.DateZeroDays, w.DateFullDays)
	}

	if err := c.AutoMatchOptions().Validate(); err != nil {
		return err
	}

	if c.Server.BulkSyncLimit < 0 {
		return errors.New("SERVER_BULK_SYNC_LIMIT must not be negative")
	}

	if c.Jobs.Workers <= 0 || c.Jobs.QueueSize <= 0 {
		return errors.New("JOB_WORKERS and JOB_QUEUE_SIZE must be positive")
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
