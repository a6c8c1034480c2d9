package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrMissingCredential = errors.New("missing credential")

type Sampling struct {
	Temperature     float64 `yaml:"temperature"`
	TopP            float64 `yaml:"top_p"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
}

type Config struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	LLM struct {
		Provider   string        `yaml:"provider"`
		Model      string        `yaml:"model"`
		GeminiKey  string        `yaml:"gemini_key"`
		GeminiURL  string        `yaml:"gemini_url"`
		OpenAIKey  string        `yaml:"openai_key"`
		OpenAIURL  string        `yaml:"openai_url"`
		OllamaURL  string        `yaml:"ollama_url"`
		PromptPath string        `yaml:"prompt_path"`
		Timeout    time.Duration `yaml:"timeout"`
		RPM        int           `yaml:"requests_per_minute"`
		Classify   Sampling      `yaml:"classify"`
		Summarize  Sampling      `yaml:"summarize"`
	} `yaml:"llm"`
	Retry struct {
		MaxAttempts  int           `yaml:"max_attempts"`
		InitialDelay time.Duration `yaml:"initial_delay"`
		MaxDelay     time.Duration `yaml:"max_delay"`
		Multiplier   float64       `yaml:"multiplier"`
		Jitter       float64       `yaml:"jitter"`
	} `yaml:"retry"`
	Pipeline struct {
		ParallelCalls bool `yaml:"parallel_calls"`
	} `yaml:"pipeline"`
	Policy struct {
		Path string `yaml:"path"`
	} `yaml:"policy"`
	Source struct {
		Kind  string `yaml:"kind"`
		Path  string `yaml:"path"`
		Query string `yaml:"query"`
	} `yaml:"source"`
	JMAP struct {
		URL      string `yaml:"url"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Limit    int    `yaml:"limit"`
	} `yaml:"jmap"`
	Database struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`
	Redis struct {
		URL         string        `yaml:"url"`
		InboundKey  string        `yaml:"inbound_key"`
		RecordsKey  string        `yaml:"records_key"`
		PublishRecs bool          `yaml:"publish_records"`
		PopTimeout  time.Duration `yaml:"pop_timeout"`
	} `yaml:"redis"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func Default() Config {
	var cfg Config
	cfg.LLM.Provider = "gemini"
	cfg.LLM.GeminiURL = "https://generativelanguage.googleapis.com/v1beta"
	cfg.LLM.OpenAIURL = "https://api.openai.com/v1"
	cfg.LLM.Timeout = 60 * time.Second
	cfg.LLM.Classify = Sampling{Temperature: 0.2, TopP: 0.3, MaxOutputTokens: 256}
	cfg.LLM.Summarize = Sampling{Temperature: 0.4, TopP: 0.5, MaxOutputTokens: 512}
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.InitialDelay = time.Second
	cfg.Retry.MaxDelay = 10 * time.Second
	cfg.Retry.Multiplier = 2
	cfg.Source.Kind = "samples"
	cfg.Redis.InboundKey = "triage:inbound"
	cfg.Redis.RecordsKey = "triage:records"
	cfg.Redis.PopTimeout = 5 * time.Second
	cfg.Log.Level = "info"
	return cfg
}

// Load merges defaults, the optional yaml file at path, a local .env file and
// the process environment, in that order of precedence (lowest first).
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, err
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		}
	}

	// .env never overrides variables already set in the environment.
	_ = godotenv.Load()
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports configuration that makes the selected backend unusable.
func (c Config) Validate() error {
	switch c.LLM.Provider {
	case "gemini":
		if c.LLM.GeminiKey == "" {
			return errors.Join(ErrMissingCredential, errors.New("GEMINI_API_KEY is not set (environment or .env file)"))
		}
	case "openai":
		if c.LLM.OpenAIKey == "" {
			return errors.Join(ErrMissingCredential, errors.New("TRIAGE_OPENAI_API_KEY is not set"))
		}
	case "ollama":
		if c.LLM.OllamaURL == "" {
			return errors.New("missing llm.ollama_url (or TRIAGE_OLLAMA_URL)")
		}
	case "noop":
	default:
		return errors.New("unknown llm.provider: " + c.LLM.Provider)
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be at least 1")
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); v != "" {
		cfg.LLM.GeminiKey = v
	}
	if v := os.Getenv("TRIAGE_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("TRIAGE_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(v))
	}
	// GEMINI_MODEL only applies to the gemini backend.
	if v := strings.TrimSpace(os.Getenv("GEMINI_MODEL")); v != "" && cfg.LLM.Provider == "gemini" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("TRIAGE_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("TRIAGE_GEMINI_URL"); v != "" {
		cfg.LLM.GeminiURL = v
	}
	if v := os.Getenv("TRIAGE_OPENAI_API_KEY"); v != "" {
		cfg.LLM.OpenAIKey = v
	}
	if v := os.Getenv("TRIAGE_OPENAI_URL"); v != "" {
		cfg.LLM.OpenAIURL = v
	}
	if v := os.Getenv("TRIAGE_OLLAMA_URL"); v != "" {
		cfg.LLM.OllamaURL = v
	}
	if v := os.Getenv("TRIAGE_PROMPT_PATH"); v != "" {
		cfg.LLM.PromptPath = v
	}
	if v := os.Getenv("TRIAGE_LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LLM.Timeout = d
		}
	}
	if v := os.Getenv("TRIAGE_LLM_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.RPM = n
		}
	}
	if v := os.Getenv("TRIAGE_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retry.MaxAttempts = n
		}
	}
	if v := os.Getenv("TRIAGE_RETRY_INITIAL_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retry.InitialDelay = d
		}
	}
	if v := os.Getenv("TRIAGE_RETRY_MAX_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Retry.MaxDelay = d
		}
	}
	if v := os.Getenv("TRIAGE_PARALLEL_CALLS"); v != "" {
		cfg.Pipeline.ParallelCalls = parseBool(v, cfg.Pipeline.ParallelCalls)
	}
	if v := os.Getenv("TRIAGE_POLICY_PATH"); v != "" {
		cfg.Policy.Path = v
	}
	if v := os.Getenv("TRIAGE_SOURCE"); v != "" {
		cfg.Source.Kind = v
	}
	if v := os.Getenv("TRIAGE_SOURCE_PATH"); v != "" {
		cfg.Source.Path = v
	}
	if v := os.Getenv("TRIAGE_SOURCE_QUERY"); v != "" {
		cfg.Source.Query = v
	}
	if v := os.Getenv("TRIAGE_JMAP_URL"); v != "" {
		cfg.JMAP.URL = v
	}
	if v := os.Getenv("TRIAGE_JMAP_USERNAME"); v != "" {
		cfg.JMAP.Username = v
	}
	if v := os.Getenv("TRIAGE_JMAP_PASSWORD"); v != "" {
		cfg.JMAP.Password = v
	}
	if v := os.Getenv("TRIAGE_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("TRIAGE_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("TRIAGE_REDIS_INBOUND_KEY"); v != "" {
		cfg.Redis.InboundKey = v
	}
	if v := os.Getenv("TRIAGE_REDIS_RECORDS_KEY"); v != "" {
		cfg.Redis.RecordsKey = v
	}
	if v := os.Getenv("TRIAGE_REDIS_PUBLISH_RECORDS"); v != "" {
		cfg.Redis.PublishRecs = parseBool(v, cfg.Redis.PublishRecs)
	}
	if v := os.Getenv("TRIAGE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func parseBool(input string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
