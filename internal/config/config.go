package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Grass      GrassConfig      `yaml:"grass" mapstructure:"grass"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Recreation RecreationConfig `yaml:"recreation" mapstructure:"recreation"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// GrassConfig locates the GRASS GIS installation and the mapset to work in.
type GrassConfig struct {
	Binary   string `yaml:"binary" mapstructure:"binary"`
	GISDBase string `yaml:"gisdbase" mapstructure:"gisdbase"`
	Location string `yaml:"location" mapstructure:"location"`
	Mapset   string `yaml:"mapset" mapstructure:"mapset"`
	// Direct runs module binaries as-is, for use inside a running session.
	Direct bool `yaml:"direct" mapstructure:"direct"`
}

// StoreConfig configures the run ledger.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// BatchConfig configures per-city batch runs.
type BatchConfig struct {
	MaxConcurrentCities int          `yaml:"max_concurrent_cities" mapstructure:"max_concurrent_cities"`
	StartRate           float64      `yaml:"start_rate" mapstructure:"start_rate"`
	Resolution          float64      `yaml:"resolution" mapstructure:"resolution"`
	RegionVector        string       `yaml:"region_vector" mapstructure:"region_vector"`
	Cities              CitiesConfig `yaml:"cities" mapstructure:"cities"`
}

// CitiesConfig selects where the list of cities comes from.
type CitiesConfig struct {
	Source            string `yaml:"source" mapstructure:"source"`
	DatabaseURL       string `yaml:"database_url" mapstructure:"database_url"`
	Table             string `yaml:"table" mapstructure:"table"`
	CodeColumn        string `yaml:"code_column" mapstructure:"code_column"`
	MemberStateColumn string `yaml:"member_state_column" mapstructure:"member_state_column"`
	CodeLength        int    `yaml:"code_length" mapstructure:"code_length"`
	Shapefile         string `yaml:"shapefile" mapstructure:"shapefile"`
	// Codes lists the cities of the static source.
	Codes []string `yaml:"codes" mapstructure:"codes"`
}

// RecreationConfig holds model constants shared by all runs.
type RecreationConfig struct {
	ComponentThreshold     float64  `yaml:"component_threshold" mapstructure:"component_threshold"`
	OpportunityThreshold   float64  `yaml:"opportunity_threshold" mapstructure:"opportunity_threshold"`
	NeighborhoodMethod     string   `yaml:"neighborhood_method" mapstructure:"neighborhood_method"`
	NeighborhoodSize       int      `yaml:"neighborhood_size" mapstructure:"neighborhood_size"`
	SmoothingSize          int      `yaml:"smoothing_size" mapstructure:"smoothing_size"`
	MobilityConstant       float64  `yaml:"mobility_constant" mapstructure:"mobility_constant"`
	MobilityScore          float64  `yaml:"mobility_score" mapstructure:"mobility_score"`
	WaterCoefficients      string   `yaml:"water_coefficients" mapstructure:"water_coefficients"`
	BathingCoefficients    string   `yaml:"bathing_coefficients" mapstructure:"bathing_coefficients"`
	ZonalStatisticsMethods []string `yaml:"zonal_statistics_methods" mapstructure:"zonal_statistics_methods"`
}

// RetryConfig configures retries of locked engine commands and of the
// city database.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MapsetPath returns the GRASS mapset directory passed to `grass --exec`.
func (g GrassConfig) MapsetPath() string {
	parts := []string{g.GISDBase, g.Location, g.Mapset}
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, strings.TrimRight(p, "/"))
		}
	}
	return strings.Join(kept, "/")
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ESTIMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("grass.binary", "grass")
	v.SetDefault("grass.mapset", "PERMANENT")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "estimap.db")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("batch.max_concurrent_cities", 1)
	v.SetDefault("batch.start_rate", 2.0)
	v.SetDefault("batch.resolution", 50.0)
	v.SetDefault("batch.region_vector", "FUA_{city}")
	v.SetDefault("batch.cities.source", "postgres")
	v.SetDefault("batch.cities.table", "ecos.urau_rg_2011_2014_f")
	v.SetDefault("batch.cities.code_column", "urau_code")
	v.SetDefault("batch.cities.member_state_column", "first_ms_c")
	v.SetDefault("batch.cities.code_length", 7)
	v.SetDefault("recreation.component_threshold", 0.0)
	v.SetDefault("recreation.opportunity_threshold", 0.0001)
	v.SetDefault("recreation.neighborhood_method", "mode")
	v.SetDefault("recreation.neighborhood_size", 11)
	v.SetDefault("recreation.smoothing_size", 7)
	v.SetDefault("recreation.mobility_constant", 1.0)
	v.SetDefault("recreation.mobility_score", 52.0)
	v.SetDefault("recreation.water_coefficients", "euclidean,1,30,0.008,1")
	v.SetDefault("recreation.bathing_coefficients", "euclidean,1,5,0.01101")
	v.SetDefault("recreation.zonal_statistics_methods", []string{"sum"})

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

// Validate checks that the configuration has what the given command mode needs.
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Grass.Binary == "" && !c.Grass.Direct {
		errs = append(errs, "grass.binary is required unless grass.direct is set")
	}
	if c.Recreation.OpportunityThreshold < 0 || c.Recreation.OpportunityThreshold > 1 {
		errs = append(errs, "recreation.opportunity_threshold must be between 0 and 1")
	}
	if c.Recreation.ComponentThreshold < 0 || c.Recreation.ComponentThreshold > 1 {
		errs = append(errs, "recreation.component_threshold must be between 0 and 1")
	}
	if c.Recreation.NeighborhoodSize > 0 && c.Recreation.NeighborhoodSize%2 == 0 {
		errs = append(errs, "recreation.neighborhood_size must be odd")
	}
	if c.Recreation.SmoothingSize > 0 && c.Recreation.SmoothingSize%2 == 0 {
		errs = append(errs, "recreation.smoothing_size must be odd")
	}

	switch mode {
	case "run":
	case "batch":
		if c.Batch.MaxConcurrentCities < 1 || c.Batch.MaxConcurrentCities > 32 {
			errs = append(errs, "batch.max_concurrent_cities must be between 1 and 32")
		}
		if c.Batch.Resolution <= 0 {
			errs = append(errs, "batch.resolution must be > 0")
		}
		switch c.Batch.Cities.Source {
		case "postgres":
			if c.Batch.Cities.DatabaseURL == "" {
				errs = append(errs, "batch.cities.database_url is required for the postgres source")
			}
		case "shapefile":
			if c.Batch.Cities.Shapefile == "" {
				errs = append(errs, "batch.cities.shapefile is required for the shapefile source")
			}
		case "static":
			if len(c.Batch.Cities.Codes) == 0 {
				errs = append(errs, "batch.cities.codes is required for the static source")
			}
		default:
			errs = append(errs, "batch.cities.source must be postgres, shapefile or static")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
