package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"

	"bookmill/common"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	CompileConfig struct {
		Command          string `yaml:"command" validate:"required"`
		PageCountCommand string `yaml:"page_count_command"`
		MaxAttempts      int    `yaml:"max_attempts" validate:"min=1,max=10"`
		PassTimeoutSec   int    `yaml:"pass_timeout_sec" validate:"min=10,max=900"`
		LogTailBytes     int    `yaml:"log_tail_bytes" validate:"min=1024"`
		WorkRoot         string `yaml:"work_root" sanitize:"path_clean"`
	}

	OracleConfig struct {
		Model   string       `yaml:"model" validate:"required"`
		APIKey  SecretString `yaml:"api_key"`
		BaseURL string       `yaml:"base_url" validate:"omitempty,url"`
	}

	ReviewConfig struct {
		Enable bool         `yaml:"enable"`
		Oracle OracleConfig `yaml:"oracle"`
	}

	LocalStorageConfig struct {
		Root string `yaml:"root" sanitize:"path_clean" validate:"required"`
	}

	S3StorageConfig struct {
		Bucket string `yaml:"bucket"`
		Prefix string `yaml:"prefix"`
		Region string `yaml:"region"`
	}

	StorageConfig struct {
		Backend      common.BackendKind `yaml:"backend"`
		DatabasePath string             `yaml:"database_path" sanitize:"path_clean,assure_dir_exists_for_file" validate:"required,filepath"`
		Local        LocalStorageConfig `yaml:"local"`
		S3           S3StorageConfig    `yaml:"s3"`
	}

	Config struct {
		Version   int            `yaml:"version" validate:"eq=1"`
		Compile   CompileConfig  `yaml:"compile"`
		Review    ReviewConfig   `yaml:"review"`
		Storage   StorageConfig  `yaml:"storage"`
		Logging   LoggingConfig  `yaml:"logging"`
		Reporting ReporterConfig `yaml:"reporting"`
	}
)

// PassTimeout is the wall clock limit for a single compiler pass.
func (c *CompileConfig) PassTimeout() time.Duration {
	return time.Duration(c.PassTimeoutSec) * time.Second
}

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		// sanitize and validate what has been loaded
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	// overwrite cfg values with values from the file
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}
