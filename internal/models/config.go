package models

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

type Config struct {
	ServerAddr  string `yaml:"server_addr"`
	DatabaseURL string `yaml:"database_url" validate:"required"`
	KafkaBroker string `yaml:"kafka_broker"`
	KafkaTopic  string `yaml:"kafka_topic" validate:"required_with=KafkaBroker"`
	KafkaGroup  string `yaml:"kafka_group"`
	RedisAddr   string `yaml:"redis_addr"`

	Log     LogConfig     `yaml:"log"`
	Storage StorageConfig `yaml:"storage"`
	Render  RenderConfig  `yaml:"render"`
	Fields  []FieldConfig `yaml:"fields" validate:"dive"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

type StorageConfig struct {
	Backend string   `yaml:"backend" validate:"omitempty,oneof=filesystem memory s3"`
	Path    string   `yaml:"path"`
	BaseURL string   `yaml:"base_url"`
	S3      S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

type RenderConfig struct {
	Workers     int    `yaml:"workers" validate:"gte=0"`
	FailFast    bool   `yaml:"fail_fast"`
	Lock        string `yaml:"lock" validate:"omitempty,oneof=none local redis"`
	JPEGQuality int    `yaml:"jpeg_quality" validate:"gte=0,lte=100"`
}

// FieldConfig declares one image field. Variations map a name to either a
// positional list [width, height, crop, resample] or a mapping with the same
// keys.
type FieldConfig struct {
	Route            string                 `yaml:"route" validate:"required"`
	UploadTo         UploadToConfig         `yaml:"upload_to"`
	Variations       map[string]interface{} `yaml:"variations"`
	MinSize          *Size                  `yaml:"min_size"`
	MaxSize          *Size                  `yaml:"max_size"`
	RenderVariations string                 `yaml:"render_variations"`
	AdminThumbnail   bool                   `yaml:"admin_thumbnail"`
}

type UploadToConfig struct {
	Strategy     string `yaml:"strategy"`
	Path         string `yaml:"path"`
	Name         string `yaml:"name"`
	PopulateFrom string `yaml:"populate_from"`
}

func LoadConfig(path string) (*Config, error) {
	const op = "models.LoadConfig"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	const op = "models.ParseConfig"

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	cfg.applyDefaults()

	if err := validator.New().Struct(&cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
			}
			return nil, NewConfigError(op + ": " + strings.Join(msgs, "; "))
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.Render.Lock == "redis" && cfg.RedisAddr == "" {
		return nil, NewConfigError(op + ": redis_addr is required when render.lock is redis")
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.ServerAddr == "" {
		cfg.ServerAddr = ":8080"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "filesystem"
	}
	if cfg.Storage.Backend == "filesystem" && cfg.Storage.Path == "" {
		cfg.Storage.Path = "media"
	}
	if cfg.Storage.BaseURL == "" {
		cfg.Storage.BaseURL = "/media/"
	}
	if cfg.Render.Lock == "" {
		cfg.Render.Lock = "none"
	}
	if cfg.KafkaGroup == "" {
		cfg.KafkaGroup = "rendervariations"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
