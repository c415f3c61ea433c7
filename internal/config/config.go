package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// SearchPath is appended to the configured uri to reach the vector search API.
const SearchPath = "/v2/vectordb/entities/search"

type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

// Config is the immutable run configuration. It is built once by the Loader
// and passed by value into every component constructor.
type Config struct {
	URI               string        `mapstructure:"uri"`
	Token             string        `mapstructure:"token"`
	CollectionName    string        `mapstructure:"collection_name"`
	VectorField       string        `mapstructure:"vector_field"`
	Dim               int           `mapstructure:"dim"`
	TopK              int           `mapstructure:"topk"`
	ConcDuration      time.Duration `mapstructure:"conc_duration"`
	ConcIntermission  time.Duration `mapstructure:"conc_intermission"`
	ConcList          []int         `mapstructure:"conc_list"`
	PoolSize          int           `mapstructure:"pool_size"`
	Seed              int64         `mapstructure:"seed"`
	Timeout           time.Duration `mapstructure:"timeout"`
	CheckResponseCode bool          `mapstructure:"check_response_code"`
	Output            OutputFormat  `mapstructure:"output"`
	LogLevel          string        `mapstructure:"log_level"`
	LogFormat         string        `mapstructure:"log_format"`
	LogErrors         bool          `mapstructure:"log_errors"`
	MetricsAddr       string        `mapstructure:"metrics_addr"`
	Tracing           TracingConfig `mapstructure:"tracing"`
	ConfigFile        string        `mapstructure:"-"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"tracing_endpoint"`
	Protocol    string  `mapstructure:"tracing_protocol"` // "grpc" or "http"
	Insecure    bool    `mapstructure:"tracing_insecure"`
	SampleRate  float64 `mapstructure:"tracing_sample_rate"`
	Propagate   bool    `mapstructure:"tracing_propagate"`
	ServiceName string  `mapstructure:"tracing_service_name"`
}

// Enabled reports whether spans should be exported.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

// ShouldPropagate reports whether W3C trace headers go out with each request.
func (t TracingConfig) ShouldPropagate() bool {
	return t.Enabled() && t.Propagate
}

// Default returns the built-in configuration used when no config source is given.
func Default() Config {
	return Config{
		URI:               "http://localhost:19530",
		Token:             "root:Milvus",
		CollectionName:    "test_glove",
		VectorField:       "vector",
		Dim:               300,
		TopK:              100,
		ConcDuration:      300 * time.Second,
		ConcIntermission:  30 * time.Second,
		ConcList:          []int{1, 10, 20, 40, 100, 150, 200, 300, 400, 500},
		PoolSize:          10000,
		Timeout:           30 * time.Second,
		CheckResponseCode: true,
		Output:            OutputText,
		LogLevel:          "info",
		LogFormat:         "text",
		LogErrors:         true,
		Tracing: TracingConfig{
			Protocol:   "grpc",
			SampleRate: 1.0,
			Propagate:  true,
		},
	}
}

// SearchURL returns the full search endpoint for the configured uri.
func (c Config) SearchURL() string {
	return strings.TrimRight(strings.TrimSpace(c.URI), "/") + SearchPath
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	uri := strings.TrimSpace(c.URI)
	if uri == "" {
		issues = append(issues, "uri is required")
	} else if u, err := url.Parse(uri); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		issues = append(issues, fmt.Sprintf("uri %q must be an absolute http(s) URL", c.URI))
	}
	if strings.TrimSpace(c.CollectionName) == "" {
		issues = append(issues, "collection_name is required")
	}
	if strings.TrimSpace(c.VectorField) == "" {
		issues = append(issues, "vector_field is required")
	}
	if c.Dim < 1 {
		issues = append(issues, "dim must be >= 1")
	}
	if c.TopK < 1 {
		issues = append(issues, "topk must be >= 1")
	}
	if c.ConcDuration < time.Second {
		issues = append(issues, "conc_duration must be >= 1 second")
	}
	if c.ConcIntermission < 0 {
		issues = append(issues, "conc_intermission must be >= 0")
	}
	if len(c.ConcList) == 0 {
		issues = append(issues, "conc_list must name at least one concurrency level")
	}
	for idx, level := range c.ConcList {
		if level < 1 {
			issues = append(issues, fmt.Sprintf("conc_list[%d]: concurrency must be >= 1, got %d", idx, level))
		}
	}
	if c.PoolSize < 1 {
		issues = append(issues, "pool_size must be >= 1")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}

	switch c.Output {
	case OutputText, OutputJSON, OutputYAML:
	default:
		issues = append(issues, fmt.Sprintf("output must be 'text', 'json' or 'yaml', got %q", c.Output))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		issues = append(issues, fmt.Sprintf("log_format must be 'text' or 'json', got %q", c.LogFormat))
	}

	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateTracingConfig(t TracingConfig) []string {
	if !t.Enabled() {
		return nil
	}
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing_protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing_sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}
