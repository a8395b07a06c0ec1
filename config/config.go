package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	SourceMarketCSGO = "marketcsgo"
	SourceSkinport   = "skinport"
	SourceSteam      = "steam"

	envTelegramToken = "SKINWATCH_TELEGRAM_TOKEN"
	envDataDir       = "SKINWATCH_DATA_DIR"
)

type Config struct {
	DataDir            string
	ListenAddr         string
	TelegramToken      string
	Subscribers        []int64
	FXPair             string
	FXFallbackRate     decimal.Decimal
	FXTTL              time.Duration
	PortfolioThreshold decimal.Decimal
	DefaultThreshold   decimal.Decimal
	NotificationCap    int
	MoversCount        int
	CatalogTTL         time.Duration
	PriceViewTTL       time.Duration
	PriceViewSize      int64
	SteamRatePerMinute int
	Sources            []SourceConfig
	Schedule           Schedule
}

// SourceConfig enables one price source. An empty URL keeps the built-in endpoint.
type SourceConfig struct {
	Name    string        `yaml:"name"`
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Schedule holds cron specs for background jobs.
type Schedule struct {
	CatalogRefresh string `yaml:"catalog_refresh,omitempty"`
	PortfolioSweep string `yaml:"portfolio_sweep,omitempty"`
	ItemSweep      string `yaml:"item_sweep,omitempty"`
	AlertSweep     string `yaml:"alert_sweep,omitempty"`
	Liveness       string `yaml:"liveness,omitempty"`
	Snapshot       string `yaml:"snapshot,omitempty"`
}

type ConfigTmp struct {
	DataDir               string         `yaml:"data_dir,omitempty"`
	ListenAddr            string         `yaml:"listen_addr,omitempty"`
	TelegramToken         string         `yaml:"telegram_token,omitempty"`
	Subscribers           []int64        `yaml:"subscribers,omitempty"`
	FXPair                string         `yaml:"fx_pair,omitempty"`
	FXFallbackRateStr     string         `yaml:"fx_fallback_rate,omitempty"`
	FXTTL                 time.Duration  `yaml:"fx_ttl,omitempty"`
	PortfolioThresholdStr string         `yaml:"portfolio_threshold_percent,omitempty"`
	DefaultThresholdStr   string         `yaml:"default_threshold_percent,omitempty"`
	NotificationCapStr    string         `yaml:"notification_cap,omitempty"`
	MoversCountStr        string         `yaml:"movers_count,omitempty"`
	CatalogTTL            time.Duration  `yaml:"catalog_ttl,omitempty"`
	PriceViewTTL          time.Duration  `yaml:"price_view_ttl,omitempty"`
	PriceViewSizeStr      string         `yaml:"price_view_size,omitempty"`
	SteamRatePerMinuteStr string         `yaml:"steam_rate_per_minute,omitempty"`
	Sources               []SourceConfig `yaml:"sources,omitempty"`
	Schedule              Schedule       `yaml:"schedule,omitempty"`
}

// Flags are the command line switches.
type Flags struct {
	ConfigPath string
	Setup      bool
}

// ParseFlags reads --config and --setup.
func ParseFlags() Flags {
	path := flag.String("config", "", "path to yaml config")
	setup := flag.Bool("setup", false, "run the interactive configuration wizard")
	flag.Parse()
	return Flags{ConfigPath: *path, Setup: *setup}
}

// Get loads the config named by --config, or defaults when none is given.
func Get() (Config, error) {
	return Load(ParseFlags().ConfigPath)
}

// Load reads path (if not empty), fills defaults and applies environment overrides.
func Load(path string) (Config, error) {
	var tmp ConfigTmp
	if path != "" {
		f, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(f, &tmp); err != nil {
			return Config{}, err
		}
	}

	cfg, err := tmp.parse()
	if err != nil {
		return Config{}, err
	}

	if token := os.Getenv(envTelegramToken); token != "" {
		cfg.TelegramToken = token
	}
	if dir := os.Getenv(envDataDir); dir != "" {
		cfg.DataDir = dir
	}

	return cfg, nil
}

// Default returns the built-in configuration.
func Default() Config {
	cfg, _ := ConfigTmp{}.parse()
	return cfg
}

func (c ConfigTmp) parse() (Config, error) {
	cfg := Config{
		DataDir:       orDefault(c.DataDir, "./wal"),
		ListenAddr:    orDefault(c.ListenAddr, ":8080"),
		TelegramToken: c.TelegramToken,
		Subscribers:   c.Subscribers,
		FXPair:        strings.ToUpper(orDefault(c.FXPair, "USDTUAH")),
		FXTTL:         durationOrDefault(c.FXTTL, 30*time.Minute),
		CatalogTTL:    durationOrDefault(c.CatalogTTL, 30*time.Minute),
		PriceViewTTL:  durationOrDefault(c.PriceViewTTL, 10*time.Minute),
		Sources:       c.Sources,
		Schedule:      c.Schedule.withDefaults(),
	}

	var err error
	if cfg.FXFallbackRate, err = decimalOrDefault(c.FXFallbackRateStr, "41.5"); err != nil {
		return Config{}, fmt.Errorf("incorrect 'fx_fallback_rate' param in yaml config (must be a decimal), error: %w", err)
	}
	if !cfg.FXFallbackRate.IsPositive() {
		return Config{}, fmt.Errorf("'fx_fallback_rate' must be positive, got %s", cfg.FXFallbackRate)
	}
	if cfg.PortfolioThreshold, err = decimalOrDefault(c.PortfolioThresholdStr, "2"); err != nil {
		return Config{}, fmt.Errorf("incorrect 'portfolio_threshold_percent' param in yaml config (must be a decimal), error: %w", err)
	}
	if cfg.DefaultThreshold, err = decimalOrDefault(c.DefaultThresholdStr, "5"); err != nil {
		return Config{}, fmt.Errorf("incorrect 'default_threshold_percent' param in yaml config (must be a decimal), error: %w", err)
	}
	for name, v := range map[string]decimal.Decimal{
		"portfolio_threshold_percent": cfg.PortfolioThreshold,
		"default_threshold_percent":   cfg.DefaultThreshold,
	} {
		if !v.IsPositive() || v.GreaterThan(decimal.NewFromInt(100)) {
			return Config{}, fmt.Errorf("'%s' must be in (0, 100], got %s", name, v)
		}
	}
	if cfg.NotificationCap, err = intOrDefault(c.NotificationCapStr, 5); err != nil {
		return Config{}, fmt.Errorf("incorrect 'notification_cap' param in yaml config (must be an integer), error: %w", err)
	}
	if cfg.MoversCount, err = intOrDefault(c.MoversCountStr, 3); err != nil {
		return Config{}, fmt.Errorf("incorrect 'movers_count' param in yaml config (must be an integer), error: %w", err)
	}
	size, err := intOrDefault(c.PriceViewSizeStr, 1000)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'price_view_size' param in yaml config (must be an integer), error: %w", err)
	}
	cfg.PriceViewSize = int64(size)
	if cfg.SteamRatePerMinute, err = intOrDefault(c.SteamRatePerMinuteStr, 20); err != nil {
		return Config{}, fmt.Errorf("incorrect 'steam_rate_per_minute' param in yaml config (must be an integer), error: %w", err)
	}

	if len(cfg.Sources) == 0 {
		cfg.Sources = DefaultSources()
	}
	for i, s := range cfg.Sources {
		switch s.Name {
		case SourceMarketCSGO, SourceSkinport, SourceSteam:
		default:
			return Config{}, fmt.Errorf("unsupported source %q", s.Name)
		}
		if s.Timeout <= 0 {
			cfg.Sources[i].Timeout = defaultTimeout(s.Name)
		}
	}

	return cfg, nil
}

// DefaultSources enables every built-in source with its usual timeout.
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{Name: SourceMarketCSGO, Enabled: true, Timeout: defaultTimeout(SourceMarketCSGO)},
		{Name: SourceSkinport, Enabled: true, Timeout: defaultTimeout(SourceSkinport)},
		{Name: SourceSteam, Enabled: true, Timeout: defaultTimeout(SourceSteam)},
	}
}

func defaultTimeout(source string) time.Duration {
	if source == SourceSkinport {
		return 15 * time.Second
	}
	return 10 * time.Second
}

func (s Schedule) withDefaults() Schedule {
	s.CatalogRefresh = orDefault(s.CatalogRefresh, "@every 30m")
	s.PortfolioSweep = orDefault(s.PortfolioSweep, "0 8-23/4 * * *")
	s.ItemSweep = orDefault(s.ItemSweep, "@every 30m")
	s.AlertSweep = orDefault(s.AlertSweep, "*/30 * * * *")
	s.Liveness = orDefault(s.Liveness, "@every 10m")
	s.Snapshot = orDefault(s.Snapshot, "@every 10m")
	return s
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func durationOrDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func decimalOrDefault(v, def string) (decimal.Decimal, error) {
	return decimal.NewFromString(orDefault(v, def))
}

func intOrDefault(v string, def int) (int, error) {
	if strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("must not be negative, got %d", n)
	}
	return n, nil
}
