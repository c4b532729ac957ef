package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
		Token       string  `yaml:"token"`
	} `yaml:"llm"`

	Embedding struct {
		Model             string  `yaml:"model"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
	} `yaml:"embedding"`

	Database struct {
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
		VectorDim int    `yaml:"vector_dim"`
		BatchSize int    `yaml:"batch_size"`
		TopK      int    `yaml:"top_k"`
	} `yaml:"database"`

	Chunker struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkOverlap int `yaml:"chunk_overlap"`
	} `yaml:"chunker"`

	Documents struct {
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"documents"`

	Metrics struct {
		SinkURL        string `yaml:"sink_url"`
		AgentName      string `yaml:"agent_name"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"metrics"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/rag/config.yaml"),
			"/etc/rag/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Model == "" {
		config.LLM.Model = "gpt-3.5-turbo"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 1000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.7
	}

	if config.Embedding.Model == "" {
		config.Embedding.Model = "text-embedding-3-small"
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "rag_chunks"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 1536
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}
	if config.Database.TopK == 0 {
		config.Database.TopK = 5
	}

	if config.Chunker.ChunkSize == 0 {
		config.Chunker.ChunkSize = 1000
	}
	if config.Chunker.ChunkOverlap == 0 {
		config.Chunker.ChunkOverlap = 200
	}

	if config.Documents.BaseURL == "" {
		config.Documents.BaseURL = "http://pdf_service:8000"
	}
	if config.Documents.TimeoutSeconds == 0 {
		config.Documents.TimeoutSeconds = 30
	}

	if config.Metrics.AgentName == "" {
		config.Metrics.AgentName = "rag-module"
	}
	if config.Metrics.TimeoutSeconds == 0 {
		config.Metrics.TimeoutSeconds = 30
	}

	if config.Server.Port == "" {
		config.Server.Port = "8001"
	}
}

func mergeWithEnv(config *Config) {
	if token := os.Getenv("OPENAI_API_KEY"); token != "" {
		config.LLM.Token = token
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if docsURL := os.Getenv("PDF_SERVICE_URL"); docsURL != "" {
		config.Documents.BaseURL = docsURL
	}
	if sinkURL := os.Getenv("METRICS_SINK_URL"); sinkURL != "" {
		config.Metrics.SinkURL = sinkURL
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Port = port
	}
}
