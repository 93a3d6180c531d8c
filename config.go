package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultEndpoint       = "http://localhost:9200"
	defaultIndexName      = "crime_data"
	defaultDocumentType   = "report"
	defaultBatchSize      = 20000
	defaultRequestTimeout = 300 * time.Second
	defaultMaxRetries     = 3
)

type Config struct {
	Endpoint       string            `yaml:"endpoint"`
	User           string            `yaml:"user"`
	Password       string            `yaml:"password"`
	APIKey         string            `yaml:"api_key"`
	Headers        map[string]string `yaml:"headers"`
	SSLVerify      bool              `yaml:"ssl_verify"`
	Index          string            `yaml:"index"`
	DocumentType   string            `yaml:"document_type"`
	BatchSize      int               `yaml:"batch_size"`
	RequestTimeout time.Duration     `yaml:"request_timeout"`
	MaxRetries     int               `yaml:"max_retries"`
	Trace          bool              `yaml:"trace"`
}

func defaultConfig() Config {
	return Config{
		Endpoint:       defaultEndpoint,
		SSLVerify:      true,
		Index:          defaultIndexName,
		DocumentType:   defaultDocumentType,
		BatchSize:      defaultBatchSize,
		RequestTimeout: defaultRequestTimeout,
		MaxRetries:     defaultMaxRetries,
	}
}

func (c Config) validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required in the Elasticsearch config")
	}
	if c.Index == "" {
		return fmt.Errorf("index name is required")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", c.MaxRetries)
	}
	return nil
}

// loadConfig overlays the YAML file on the defaults. A missing file is only
// an error when required is set.
func loadConfig(path string, required bool) (Config, error) {
	config := defaultConfig()

	resolvedPath := resolvePath(path)
	data, err := os.ReadFile(resolvedPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return config, nil
		}
		return Config{}, fmt.Errorf("config file not found: %s (tried: %s)", path, resolvedPath)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// loadMapping returns nil when path is empty, in which case the index is
// created by the first bulk write.
func loadMapping(path string) (map[string]interface{}, error) {
	if path == "" {
		return nil, nil
	}

	resolvedPath := resolvePath(path)
	data, err := os.ReadFile(resolvedPath)
	if err != nil {
		return nil, fmt.Errorf("mapping file not found: %s (tried: %s)", path, resolvedPath)
	}

	var mapping map[string]interface{}
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("failed to parse mapping: %w", err)
	}

	return mapping, nil
}

func resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	if cwd, err := os.Getwd(); err == nil {
		if candidate := resolveRelativePath(cwd, path); candidate != "" {
			return candidate
		}
		parent := filepath.Dir(cwd)
		if parent != "" && parent != cwd {
			if candidate := resolveRelativePath(parent, path); candidate != "" {
				return candidate
			}
		}
	}

	execPath, err := os.Executable()
	if err != nil {
		return path
	}
	execDir := filepath.Dir(execPath)
	if candidate := resolveRelativePath(execDir, path); candidate != "" {
		return candidate
	}
	if candidate := resolveRelativePath(filepath.Join(execDir, ".."), path); candidate != "" {
		return candidate
	}

	// Not found anywhere; callers report the original relative path.
	return path
}

func resolveRelativePath(basePath, relPath string) string {
	candidate := filepath.Join(basePath, relPath)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}
