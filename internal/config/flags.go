package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "vecsweep [config-file]",
		Short:         "Sweep concurrency levels against a vector search endpoint",
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to configuration file (key#value lines, YAML, JSON or TOML)")

	// Target flags
	flags.String("uri", "", "Base URL of the vector database (search path is appended)")
	flags.String("token", "", "Bearer token sent in the Authorization header")
	flags.String("collection-name", "", "Collection searched by every request")
	flags.String("vector-field", "", "Vector field searched by every request")
	flags.Int("dim", 0, "Dimension of the generated query vectors")
	flags.Int("topk", 0, "Number of results requested per search")

	// Sweep flags
	flags.Int("conc-duration", 0, "Seconds each concurrency level runs")
	flags.Int("conc-intermission", 0, "Seconds to pause between concurrency levels")
	flags.IntSlice("conc-list", nil, "Concurrency levels to sweep, in order (e.g. 1,10,20)")
	flags.Int("pool-size", 0, "Number of pre-built random search payloads")
	flags.Int64("seed", 0, "Base random seed (0 derives one from the clock)")
	flags.Duration("timeout", 30*time.Second, "Per-request timeout (0 disables)")
	flags.Bool("check-response-code", true, "Treat a non-zero JSON 'code' in the response body as a failure")

	// Output flags
	flags.StringP("output", "o", string(OutputText), "Report format: text, json or yaml")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "text", "Log format: text or json")
	flags.Bool("log-errors", true, "Log failed requests to stderr (rate limited)")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9102)")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP endpoint for request spans (empty disables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of spans to sample (0.0 - 1.0)")
	flags.Bool("tracing-propagate", true, "Inject W3C trace headers into search requests when tracing is enabled")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\n%s\n\nFlags:\n", cmd.UseLine(), cmd.Short)
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file and environment.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	stringFlags := []struct {
		name string
		dst  *string
	}{
		{"uri", &cfg.URI},
		{"token", &cfg.Token},
		{"collection-name", &cfg.CollectionName},
		{"vector-field", &cfg.VectorField},
		{"log-level", &cfg.LogLevel},
		{"log-format", &cfg.LogFormat},
		{"metrics-addr", &cfg.MetricsAddr},
		{"tracing-endpoint", &cfg.Tracing.Endpoint},
		{"tracing-protocol", &cfg.Tracing.Protocol},
	}
	for _, f := range stringFlags {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetString(f.name)
		if err != nil {
			return err
		}
		*f.dst = strings.TrimSpace(val)
	}

	intFlags := []struct {
		name string
		dst  *int
	}{
		{"dim", &cfg.Dim},
		{"topk", &cfg.TopK},
		{"pool-size", &cfg.PoolSize},
	}
	for _, f := range intFlags {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetInt(f.name)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	boolFlags := []struct {
		name string
		dst  *bool
	}{
		{"check-response-code", &cfg.CheckResponseCode},
		{"log-errors", &cfg.LogErrors},
		{"tracing-insecure", &cfg.Tracing.Insecure},
		{"tracing-propagate", &cfg.Tracing.Propagate},
	}
	for _, f := range boolFlags {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetBool(f.name)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	if fs.Changed("conc-duration") {
		val, err := fs.GetInt("conc-duration")
		if err != nil {
			return err
		}
		cfg.ConcDuration = time.Duration(val) * time.Second
	}
	if fs.Changed("conc-intermission") {
		val, err := fs.GetInt("conc-intermission")
		if err != nil {
			return err
		}
		cfg.ConcIntermission = time.Duration(val) * time.Second
	}
	if fs.Changed("conc-list") {
		val, err := fs.GetIntSlice("conc-list")
		if err != nil {
			return err
		}
		cfg.ConcList = val
	}
	if fs.Changed("seed") {
		val, err := fs.GetInt64("seed")
		if err != nil {
			return err
		}
		cfg.Seed = val
	}
	if fs.Changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = val
	}
	if fs.Changed("output") {
		val, err := fs.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}

	return nil
}
