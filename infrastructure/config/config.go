// Package config loads salesforce-mcp configuration from the environment.
//
// Values are read from the process environment, falling back to a dotenv
// file (".env" in the working directory by default) and then to built-in
// defaults. The real environment always wins over the dotenv file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/salesforce-mcp/domain/crm"
)

// Configuration errors.
var (
	// ErrMissingEnvVar indicates a required environment variable is not set.
	ErrMissingEnvVar = errors.New("required environment variable not set")

	// ErrValidationFailed indicates configuration validation failed.
	ErrValidationFailed = errors.New("configuration validation failed")
)

// Environment variable names.
const (
	EnvTokenURL         = "SF_TOKEN_URL"
	EnvClientID         = "SF_CLIENT_ID"
	EnvClientSecret     = "SF_CLIENT_SECRET"
	EnvAPIVersion       = "SF_API_VERSION"
	EnvHost             = "SFMCP_HOST"
	EnvBasePort         = "SFMCP_BASE_PORT"
	EnvPortCandidates   = "SFMCP_PORT_CANDIDATES"
	EnvMaxConcurrent    = "SFMCP_MAX_CONCURRENT"
	EnvRequestTimeout   = "SFMCP_REQUEST_TIMEOUT"
	EnvEndpointPath     = "SFMCP_ENDPOINT_PATH"
	EnvLogLevel         = "SFMCP_LOG_LEVEL"
	EnvLogFormat        = "SFMCP_LOG_FORMAT"
	EnvTraceExporter    = "SFMCP_TRACE_EXPORTER"
	EnvOTLPEndpoint     = "SFMCP_OTLP_ENDPOINT"
	EnvServerCommand    = "SFMCP_SERVER_COMMAND"
	EnvReadinessTimeout = "SFMCP_READINESS_TIMEOUT"
	EnvShutdownGrace    = "SFMCP_SHUTDOWN_GRACE"
	EnvInstruction      = "SFMCP_INSTRUCTION"
	EnvMaxTurns         = "SFMCP_MAX_TURNS"
	EnvOpenAIAPIKey     = "OPENAI_API_KEY"
	EnvOpenAIBaseURL    = "OPENAI_BASE_URL"
	EnvOpenAIModel      = "OPENAI_MODEL"
)

const defaultAPIVersion = crm.DefaultAPIVersion

// DefaultInstruction is the scripted task handed to the agent.
const DefaultInstruction = `Execute these actions in order:
    0) Read 10 Leads
    1) Update lead 00QgL00000020fQUAQ - set LastName to "MCP Agent Action"`

// LogConfig configures logging.
type LogConfig struct {
	Level  string
	Format string
}

// TracingConfig configures trace export.
type TracingConfig struct {
	// Exporter is one of "noop", "stdout" or "otlp".
	Exporter string

	// Endpoint is the OTLP gRPC endpoint when Exporter is "otlp".
	Endpoint string
}

// ServerConfig configures the tool server.
type ServerConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	APIVersion   string

	Host           string
	BasePort       int
	PortCandidates int
	EndpointPath   string

	// MaxConcurrent bounds concurrent CRM calls.
	MaxConcurrent int

	// RequestTimeout bounds a single CRM request.
	RequestTimeout time.Duration

	Log     LogConfig
	Tracing TracingConfig
}

// MissingCredentials reports which required credential variables are unset.
// An empty result means all are present.
func (c ServerConfig) MissingCredentials() []string {
	var missing []string
	if c.TokenURL == "" {
		missing = append(missing, EnvTokenURL)
	}
	if c.ClientID == "" {
		missing = append(missing, EnvClientID)
	}
	if c.ClientSecret == "" {
		missing = append(missing, EnvClientSecret)
	}
	return missing
}

// Validate checks the non-credential settings. Credentials are checked by
// the authenticator so that a missing secret surfaces as an authentication failure.
func (c ServerConfig) Validate() error {
	var problems []string
	if c.BasePort <= 0 || c.BasePort > 65535 {
		problems = append(problems, fmt.Sprintf("%s must be a valid port, got %d", EnvBasePort, c.BasePort))
	}
	if c.PortCandidates <= 0 {
		problems = append(problems, fmt.Sprintf("%s must be positive, got %d", EnvPortCandidates, c.PortCandidates))
	}
	if c.BasePort+c.PortCandidates-1 > 65535 {
		problems = append(problems, "port range exceeds 65535")
	}
	if c.MaxConcurrent <= 0 {
		problems = append(problems, fmt.Sprintf("%s must be positive, got %d", EnvMaxConcurrent, c.MaxConcurrent))
	}
	if c.APIVersion == "" {
		problems = append(problems, EnvAPIVersion+" must not be empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidationFailed, strings.Join(problems, "; "))
	}
	return nil
}

// AgentConfig configures the agent client.
type AgentConfig struct {
	OpenAIAPIKey  string
	OpenAIBaseURL string
	Model         string

	Instruction string
	MaxTurns    int

	// ServerCommand starts the tool server. Empty means "this executable, serve".
	ServerCommand    []string
	EndpointPath     string
	ReadinessTimeout time.Duration
	ShutdownGrace    time.Duration

	Log     LogConfig
	Tracing TracingConfig
}

// Validate checks the agent configuration.
func (c AgentConfig) Validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: %s", ErrMissingEnvVar, EnvOpenAIAPIKey)
	}
	if c.MaxTurns <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %d", ErrValidationFailed, EnvMaxTurns, c.MaxTurns)
	}
	if strings.TrimSpace(c.Instruction) == "" {
		return fmt.Errorf("%w: %s must not be empty", ErrValidationFailed, EnvInstruction)
	}
	return nil
}
