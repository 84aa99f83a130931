package config

// Package config loads the DAO service configuration from an optional YAML
// file, with environment variables taking precedence. It is versioned so that applications can depend on
// a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"dao-service/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// LogoSize is a width/height pair used when resizing DAO logos.
type LogoSize struct {
	Width  int `mapstructure:"width" yaml:"width" json:"width"`
	Height int `mapstructure:"height" yaml:"height" json:"height"`
}

// Config is the unified configuration for the DAO service. Values come from
// an optional config.yaml; environment variables override them.
type Config struct {
	Chain struct {
		URL                string `mapstructure:"url" json:"url"`
		TypeRegistryPreset string `mapstructure:"type_registry_preset" json:"type_registry_preset"`
	} `mapstructure:"chain" json:"chain"`

	Database struct {
		Name     string `mapstructure:"name" json:"name"`
		User     string `mapstructure:"user" json:"user"`
		Password string `mapstructure:"password" json:"-"`
		Host     string `mapstructure:"host" json:"host"`
		Port     string `mapstructure:"port" json:"port"`
	} `mapstructure:"database" json:"database"`

	Redis struct {
		Host string `mapstructure:"host" json:"host"`
		Port string `mapstructure:"port" json:"port"`
	} `mapstructure:"redis" json:"redis"`

	Server struct {
		Port string `mapstructure:"port" json:"port"`
	} `mapstructure:"server" json:"server"`

	BlockCreationInterval   time.Duration       `mapstructure:"-" json:"block_creation_interval"`
	RetryDelays             []time.Duration     `mapstructure:"-" json:"retry_delays"`
	ChallengeLifetime       time.Duration       `mapstructure:"-" json:"challenge_lifetime"`
	EncryptionAlgorithm     string              `mapstructure:"encryption_algorithm" json:"encryption_algorithm"`
	FileUploadClass         string              `mapstructure:"file_upload_class" json:"file_upload_class"`
	MaxLogoSize             int64               `mapstructure:"max_logo_size" json:"max_logo_size"`
	LogoSizes               map[string]LogoSize `mapstructure:"logo_sizes" json:"logo_sizes"`
	DepositToCreateDao      int64               `mapstructure:"deposit_to_create_dao" json:"deposit_to_create_dao"`
	DepositToCreateProposal int64               `mapstructure:"deposit_to_create_proposal" json:"deposit_to_create_proposal"`

	SlackDefaultURL  string `mapstructure:"slack_default_url" json:"-"`
	ApplicationStage string `mapstructure:"application_stage" json:"application_stage"`
	LogLevel         string `mapstructure:"log_level" json:"log_level"`

	AWS struct {
		StorageBucketName string `mapstructure:"storage_bucket_name" json:"storage_bucket_name"`
		Region            string `mapstructure:"region" json:"region"`
		AccessKeyID       string `mapstructure:"access_key_id" json:"-"`
		SecretAccessKey   string `mapstructure:"secret_access_key" json:"-"`
	} `mapstructure:"aws" json:"aws"`
}

// AppConfig holds the configuration loaded via Load.
var AppConfig Config

// Load reads a .env file if present, merges an optional config.yaml, applies
// environment variables and stores the result in AppConfig.
func Load() (*Config, error) {
	// missing .env is fine, the environment may be populated by the runtime
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("config")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, utils.Wrap(err, "load config")
		}
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}

	cfg.Chain.URL = utils.EnvOrDefault("BLOCKCHAIN_URL", cfg.Chain.URL)
	cfg.Chain.TypeRegistryPreset = utils.EnvOrDefault("TYPE_REGISTRY_PRESET", orDefault(cfg.Chain.TypeRegistryPreset, "polkadot"))

	cfg.Database.Name = utils.EnvOrDefault("DATABASE_NAME", orDefault(cfg.Database.Name, "core"))
	cfg.Database.User = utils.EnvOrDefault("DATABASE_USER", orDefault(cfg.Database.User, "postgres"))
	cfg.Database.Password = utils.EnvOrDefault("DATABASE_PASSWORD", orDefault(cfg.Database.Password, "postgres"))
	cfg.Database.Host = utils.EnvOrDefault("DATABASE_HOST", orDefault(cfg.Database.Host, "0.0.0.0"))
	cfg.Database.Port = utils.EnvOrDefault("DATABASE_PORT", orDefault(cfg.Database.Port, "5432"))

	cfg.Redis.Host = utils.EnvOrDefault("REDIS_HOST", orDefault(cfg.Redis.Host, "0.0.0.0"))
	cfg.Redis.Port = utils.EnvOrDefault("REDIS_PORT", orDefault(cfg.Redis.Port, "6379"))
	cfg.Server.Port = utils.EnvOrDefault("SERVER_PORT", orDefault(cfg.Server.Port, "8000"))

	cfg.BlockCreationInterval = time.Duration(utils.EnvOrDefaultInt("BLOCK_CREATION_INTERVAL", 6)) * time.Second
	cfg.RetryDelays = utils.EnvOrDefaultDurations("RETRY_DELAYS", []time.Duration{
		5 * time.Second, 10 * time.Second, 30 * time.Second, 60 * time.Second, 120 * time.Second,
	})
	cfg.ChallengeLifetime = time.Duration(utils.EnvOrDefaultInt("CHALLENGE_LIFETIME", 60)) * time.Second
	cfg.EncryptionAlgorithm = utils.EnvOrDefault("ENCRYPTION_ALGORITHM", orDefault(cfg.EncryptionAlgorithm, "sha3_256"))
	cfg.FileUploadClass = utils.EnvOrDefault("FILE_UPLOAD_CLASS", orDefault(cfg.FileUploadClass, "local"))
	cfg.MaxLogoSize = utils.EnvOrDefaultInt64("MAX_LOGO_SIZE", orDefaultInt64(cfg.MaxLogoSize, 2_000_000))
	cfg.DepositToCreateDao = utils.EnvOrDefaultInt64("DEPOSIT_TO_CREATE_DAO", orDefaultInt64(cfg.DepositToCreateDao, 10_000_000_000_000))
	cfg.DepositToCreateProposal = utils.EnvOrDefaultInt64("DEPOSIT_TO_CREATE_PROPOSAL", orDefaultInt64(cfg.DepositToCreateProposal, 1_000_000_000_000))

	cfg.SlackDefaultURL = utils.EnvOrDefault("SLACK_DEFAULT_URL", cfg.SlackDefaultURL)
	cfg.ApplicationStage = utils.EnvOrDefault("APPLICATION_STAGE", orDefault(cfg.ApplicationStage, "development"))
	cfg.LogLevel = utils.EnvOrDefault("LOG_LEVEL", orDefault(cfg.LogLevel, "info"))

	cfg.AWS.StorageBucketName = utils.EnvOrDefault("AWS_STORAGE_BUCKET_NAME", cfg.AWS.StorageBucketName)
	cfg.AWS.Region = utils.EnvOrDefault("AWS_REGION", cfg.AWS.Region)
	cfg.AWS.AccessKeyID = utils.EnvOrDefault("AWS_S3_ACCESS_KEY_ID", cfg.AWS.AccessKeyID)
	cfg.AWS.SecretAccessKey = utils.EnvOrDefault("AWS_S3_SECRET_ACCESS_KEY", cfg.AWS.SecretAccessKey)

	if len(cfg.LogoSizes) == 0 {
		cfg.LogoSizes = map[string]LogoSize{
			"small":  {Width: 88, Height: 88},
			"medium": {Width: 104, Height: 104},
			"large":  {Width: 124, Height: 124},
		}
	}

	AppConfig = cfg
	return &AppConfig, nil
}

// DatabaseDSN returns the postgres connection string for the configured
// database.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.Name,
	)
}

// RedisAddr returns the host:port address of the configured redis instance.
func (c *Config) RedisAddr() string {
	return c.Redis.Host + ":" + c.Redis.Port
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func orDefaultInt64(v, fallback int64) int64 {
	if v == 0 {
		return fallback
	}
	return v
}
