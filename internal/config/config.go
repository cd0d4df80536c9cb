package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Model     ModelConfig     `mapstructure:"model"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Doubao    DoubaoConfig    `mapstructure:"doubao"`
	Qwen      QwenConfig      `mapstructure:"qwen"`
	Tutor     TutorConfig     `mapstructure:"tutor"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Log       LogConfig       `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
	Heartbeat      time.Duration `mapstructure:"heartbeat"`
}

// ModelConfig selects which provider section is used: openai, doubao, qwen or mock.
type ModelConfig struct {
	Provider string `mapstructure:"provider"`
}

// OpenAIConfig covers any OpenAI-compatible endpoint. The default base URL is
// Gemini's OpenAI-compatible API.
type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`

	// DebugRequest logs outgoing request bodies with credentials redacted.
	DebugRequest bool `mapstructure:"debug_request"`
}

type DoubaoConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type QwenConfig struct {
	APIKey       string  `mapstructure:"api_key"`
	BaseURL      string  `mapstructure:"base_url"`
	Model        string  `mapstructure:"model"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	Temperature  float32 `mapstructure:"temperature"`
	TopP         float32 `mapstructure:"top_p"`
	DebugRequest bool    `mapstructure:"debug_request"`
}

type TutorConfig struct {
	AppName         string `mapstructure:"app_name"`
	BaseInstruction string `mapstructure:"base_instruction"`
	WelcomeMessage  string `mapstructure:"welcome_message"`
	ApologyMessage  string `mapstructure:"apology_message"`
	DefaultSubject  string `mapstructure:"default_subject"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

const DefaultBaseInstruction = `You are StudyBuddy, a friendly, patient, and encouraging AI tutor. 
Your goal is to help students learn.
1. Answer definitions clearly and concisely.
2. Provide explanations in simple language suitable for a student.
3. If the user asks a question, guide them to the answer rather than just giving it if appropriate (scaffolding).
4. Be polite and use emojis occasionally to keep the mood light.
5. Format your response using Markdown (bold for key terms, lists for steps).
`

const DefaultWelcomeMessage = "Hi! I'm StudyBuddy. 👋 \nI can help you with definitions, solve math problems step-by-step, or explain complex topics simply.\n\nPick a subject above or just ask me anything!"

const DefaultApologyMessage = "I'm sorry, I encountered an error. Please try again."

// credentialEnv lists the fallback variables consulted per provider, in order.
var credentialEnv = map[string][]string{
	"openai": {"API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY"},
	"doubao": {"API_KEY", "DOUBAO_API_KEY", "ARK_API_KEY"},
	"qwen":   {"API_KEY", "DASHSCOPE_API_KEY"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.max_header_bytes", 1<<20)
	v.SetDefault("server.heartbeat", 30*time.Second)

	v.SetDefault("model.provider", "openai")

	// registered so STUDYBUDDY_*_API_KEY reaches Unmarshal
	v.SetDefault("openai.api_key", "")
	v.SetDefault("doubao.api_key", "")
	v.SetDefault("qwen.api_key", "")

	v.SetDefault("openai.base_url", "https://generativelanguage.googleapis.com/v1beta/openai/")
	v.SetDefault("openai.model", "gemini-2.5-flash")

	v.SetDefault("qwen.base_url", "https://dashscope.aliyuncs.com/compatible-mode/v1")
	v.SetDefault("qwen.model", "qwen-plus")
	v.SetDefault("qwen.max_tokens", 2048)
	v.SetDefault("qwen.temperature", 0.7)
	v.SetDefault("qwen.top_p", 0.9)

	v.SetDefault("tutor.app_name", "StudyBuddy")
	v.SetDefault("tutor.base_instruction", DefaultBaseInstruction)
	v.SetDefault("tutor.welcome_message", DefaultWelcomeMessage)
	v.SetDefault("tutor.apology_message", DefaultApologyMessage)
	v.SetDefault("tutor.default_subject", "General")

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Accept"})
	v.SetDefault("cors.max_age", 600)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests_per_minute", 60)
	v.SetDefault("rate_limit.burst", 10)
}

// Load reads configPath (yaml). A missing file is not an error; defaults and
// environment variables still apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("STUDYBUDDY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// config file wins; environment only fills an empty credential
	applyCredentialEnv(c)

	return c, nil
}

func applyCredentialEnv(c *Config) {
	targets := map[string]*string{
		"openai": &c.OpenAI.APIKey,
		"doubao": &c.Doubao.APIKey,
		"qwen":   &c.Qwen.APIKey,
	}
	for provider, key := range targets {
		if *key != "" {
			continue
		}
		for _, name := range credentialEnv[provider] {
			if val := os.Getenv(name); val != "" {
				*key = val
				break
			}
		}
	}
}
