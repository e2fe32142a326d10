package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultEnvFile is the dotenv file read when present.
const DefaultEnvFile = ".env"

// Loader reads configuration from the environment and an optional dotenv file.
type Loader struct {
	// EnvFile is the dotenv file to read. Empty disables the file.
	EnvFile string
}

// LoaderOption configures the loader.
type LoaderOption func(*Loader)

// WithEnvFile sets the dotenv file path. An empty path disables dotenv loading.
func WithEnvFile(path string) LoaderOption {
	return func(l *Loader) {
		l.EnvFile = path
	}
}

// NewLoader creates a loader with the given options.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{EnvFile: DefaultEnvFile}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) viper() (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault(EnvAPIVersion, defaultAPIVersion)
	v.SetDefault(EnvHost, "127.0.0.1")
	v.SetDefault(EnvBasePort, 8001)
	v.SetDefault(EnvPortCandidates, 5)
	v.SetDefault(EnvMaxConcurrent, 10)
	v.SetDefault(EnvRequestTimeout, 120*time.Second)
	v.SetDefault(EnvEndpointPath, "/mcp")
	v.SetDefault(EnvLogLevel, "info")
	v.SetDefault(EnvLogFormat, "console")
	v.SetDefault(EnvTraceExporter, "noop")
	v.SetDefault(EnvReadinessTimeout, 15*time.Second)
	v.SetDefault(EnvShutdownGrace, 5*time.Second)
	v.SetDefault(EnvInstruction, DefaultInstruction)
	v.SetDefault(EnvMaxTurns, 10)
	v.SetDefault(EnvOpenAIBaseURL, "https://api.openai.com")
	v.SetDefault(EnvOpenAIModel, "gpt-4o")

	v.AutomaticEnv()

	if l.EnvFile != "" {
		if _, err := os.Stat(l.EnvFile); err == nil {
			v.SetConfigFile(l.EnvFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read %s: %w", l.EnvFile, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("access %s: %w", l.EnvFile, err)
		}
	}

	return v, nil
}

func logConfig(v *viper.Viper) LogConfig {
	return LogConfig{
		Level:  v.GetString(EnvLogLevel),
		Format: v.GetString(EnvLogFormat),
	}
}

func tracingConfig(v *viper.Viper) TracingConfig {
	return TracingConfig{
		Exporter: v.GetString(EnvTraceExporter),
		Endpoint: v.GetString(EnvOTLPEndpoint),
	}
}

// LoadServer loads and validates the tool server configuration.
func (l *Loader) LoadServer() (ServerConfig, error) {
	v, err := l.viper()
	if err != nil {
		return ServerConfig{}, err
	}

	cfg := ServerConfig{
		TokenURL:       v.GetString(EnvTokenURL),
		ClientID:       v.GetString(EnvClientID),
		ClientSecret:   v.GetString(EnvClientSecret),
		APIVersion:     v.GetString(EnvAPIVersion),
		Host:           v.GetString(EnvHost),
		BasePort:       v.GetInt(EnvBasePort),
		PortCandidates: v.GetInt(EnvPortCandidates),
		EndpointPath:   v.GetString(EnvEndpointPath),
		MaxConcurrent:  v.GetInt(EnvMaxConcurrent),
		RequestTimeout: v.GetDuration(EnvRequestTimeout),
		Log:            logConfig(v),
		Tracing:        tracingConfig(v),
	}

	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// LoadAgent loads and validates the agent client configuration.
func (l *Loader) LoadAgent() (AgentConfig, error) {
	v, err := l.viper()
	if err != nil {
		return AgentConfig{}, err
	}

	cfg := AgentConfig{
		OpenAIAPIKey:     v.GetString(EnvOpenAIAPIKey),
		OpenAIBaseURL:    v.GetString(EnvOpenAIBaseURL),
		Model:            v.GetString(EnvOpenAIModel),
		Instruction:      v.GetString(EnvInstruction),
		MaxTurns:         v.GetInt(EnvMaxTurns),
		ServerCommand:    strings.Fields(v.GetString(EnvServerCommand)),
		EndpointPath:     v.GetString(EnvEndpointPath),
		ReadinessTimeout: v.GetDuration(EnvReadinessTimeout),
		ShutdownGrace:    v.GetDuration(EnvShutdownGrace),
		Log:              logConfig(v),
		Tracing:          tracingConfig(v),
	}

	if err := cfg.Validate(); err != nil {
		return AgentConfig{}, err
	}
	return cfg, nil
}
