package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/queue"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/store"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/workflow"
)

// Config holds the full application configuration.
type Config struct {
	Store          StoreConfig          `yaml:"store" mapstructure:"store"`
	Queue          queue.PoolConfig     `yaml:"queue" mapstructure:"queue"`
	Workflow       workflow.Config      `yaml:"workflow" mapstructure:"workflow"`
	Rubric         RubricConfig         `yaml:"rubric" mapstructure:"rubric"`
	Dataset        DatasetConfig        `yaml:"dataset" mapstructure:"dataset"`
	CompaniesHouse CompaniesHouseConfig `yaml:"companies_house" mapstructure:"companies_house"`
	OpenRegister   OpenRegisterConfig   `yaml:"open_register" mapstructure:"open_register"`
	LandRegistry   LandRegistryConfig   `yaml:"land_registry" mapstructure:"land_registry"`
	Anthropic      AnthropicConfig      `yaml:"anthropic" mapstructure:"anthropic"`
	Export         ExportConfig         `yaml:"export" mapstructure:"export"`
	Titles         TitlesConfig         `yaml:"titles" mapstructure:"titles"`
	Server         ServerConfig         `yaml:"server" mapstructure:"server"`
	Log            LogConfig            `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// RubricConfig points at the optional scoring-weight overlay file.
type RubricConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// DatasetConfig configures the corporate-ownership dataset refresh.
type DatasetConfig struct {
	Label     string `yaml:"label" mapstructure:"label"`
	SourceURL string `yaml:"source_url" mapstructure:"source_url"`
}

// CompaniesHouseConfig holds company registry API settings.
type CompaniesHouseConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// OpenRegisterConfig holds open-register provider settings.
type OpenRegisterConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// LandRegistryConfig holds land-registry API settings.
type LandRegistryConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds verification service settings. An empty key
// disables verification entirely.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ExportConfig configures the lead export targets.
type ExportConfig struct {
	XLSXDir    string           `yaml:"xlsx_dir" mapstructure:"xlsx_dir"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
}

// NotionConfig holds Notion API credentials and the lead database id.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// TitlesConfig points at the local title-polygon shapefile.
type TitlesConfig struct {
	ShapefilePath string `yaml:"shapefile_path" mapstructure:"shapefile_path"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MARKETOFFER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.poll_interval", "500ms")
	v.SetDefault("queue.claim_rate", 50)
	v.SetDefault("workflow.accept_threshold", 4.0)
	v.SetDefault("workflow.review_threshold", 2.0)
	v.SetDefault("workflow.cancel_confidence", 0.95)
	v.SetDefault("workflow.confirm_confidence", 0.6)
	v.SetDefault("workflow.max_companies", 5)
	v.SetDefault("workflow.max_person_verifications", 3)
	v.SetDefault("workflow.dataset_label", "ccod")
	v.SetDefault("dataset.label", "ccod")
	v.SetDefault("companies_house.base_url", "https://api.company-information.service.gov.uk")
	v.SetDefault("companies_house.rate_limit", 2)
	v.SetDefault("open_register.rate_limit", 1)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("export.xlsx_dir", ".")
	v.SetDefault("export.salesforce.login_url", "https://login.salesforce.com")

	// Keys with no sensible default still need registering: AutomaticEnv
	// only surfaces a key to Unmarshal once viper knows it exists.
	for _, key := range []string{
		"store.database_url",
		"rubric.file",
		"dataset.source_url",
		"companies_house.key",
		"open_register.key",
		"open_register.base_url",
		"land_registry.base_url",
		"anthropic.key",
		"export.notion.token",
		"export.notion.lead_db",
		"export.salesforce.client_id",
		"export.salesforce.username",
		"export.salesforce.key_path",
		"titles.shapefile_path",
	} {
		v.SetDefault(key, "")
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields the given run mode depends on. Modes map to
// the top-level commands: worker, serve, dataset, export, resolve.
func (c *Config) Validate(mode string) error {
	var missing []string

	requireDB := func() {
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
	}
	checkShared := func() {
		if c.Queue.Concurrency < 1 || c.Queue.Concurrency > 64 {
			missing = append(missing, "queue.concurrency must be between 1 and 64")
		}
		if c.Workflow.ReviewThreshold < 0 || c.Workflow.AcceptThreshold <= c.Workflow.ReviewThreshold {
			missing = append(missing, "workflow.accept_threshold must exceed review_threshold (both >= 0)")
		}
	}

	switch mode {
	case "worker", "resolve":
		requireDB()
		checkShared()
		if c.CompaniesHouse.Key == "" {
			missing = append(missing, "companies_house.key is required")
		}
		if c.OpenRegister.Key == "" || c.OpenRegister.BaseURL == "" {
			missing = append(missing, "open_register.key and open_register.base_url are required")
		}
		if c.LandRegistry.BaseURL == "" {
			missing = append(missing, "land_registry.base_url is required")
		}
	case "serve":
		requireDB()
		checkShared()
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
	case "dataset":
		requireDB()
		if c.Dataset.SourceURL == "" {
			missing = append(missing, "dataset.source_url is required")
		}
	case "export":
		requireDB()
	case "migrate":
		requireDB()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
