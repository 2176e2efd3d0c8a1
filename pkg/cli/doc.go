// Package cli provides the building blocks of the deepgram command-line
// tool.
//
// This package includes:
//   - Configuration management with kubectl-style contexts
//   - Output formatting (YAML, JSON, raw) with optional jq filtering
//   - Request file loading (YAML/JSON)
//   - A lipgloss frame and log capture for live terminal views
//
// Configuration is stored in ~/.giztoy/<app>/config.yaml.
//
// Example usage:
//
//	cfg, err := cli.LoadConfig("deepgram")
//	ctx, err := cfg.ResolveContext("")
//
//	cli.Output(resp, cli.OutputOptions{
//	    Format: cli.FormatJSON,
//	    Query:  ".results.channels[0].alternatives[0].transcript",
//	})
package cli
