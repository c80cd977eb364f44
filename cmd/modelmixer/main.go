// Command modelmixer routes model requests across a set of HTTP providers.
//
// Usage:
//
//	modelmixer [--config=FILE] serve       run the HTTP API (default)
//	modelmixer call PROMPT [-o key=value]  send one prompt and print the reply
//	modelmixer validate                    check a config file
//	modelmixer export [--out=FILE]         print the mixer section as JSON
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/MrWong99/modelmixer/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Globals are flags shared by every subcommand.
type Globals struct {
	Config  string           `short:"c" default:"config.yaml" type:"path" env:"MODELMIXER_CONFIG" help:"Path to the YAML or TOML configuration file."`
	Version kong.VersionFlag `help:"Print the version and exit."`
}

// CLI is the full command tree.
type CLI struct {
	Globals

	Serve    ServeCmd    `cmd:"" default:"1" help:"Run the HTTP API server."`
	Call     CallCmd     `cmd:"" help:"Send one prompt through the mixer and print the provider response."`
	Validate ValidateCmd `cmd:"" help:"Load and validate the configuration file."`
	Export   ExportCmd   `cmd:"" help:"Write the mixer configuration as an importable JSON document."`
}

// env carries process resources into command Run methods.
type env struct {
	ctx    context.Context
	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("modelmixer"),
		kong.Description("Multi-provider model router with pluggable dispatch strategies."),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Vars{"version": version},
	)
	if err != nil {
		fmt.Fprintf(stderr, "modelmixer: %v\n", err)
		return 2
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "modelmixer: %v\n", err)
		return 2
	}

	if err := kctx.Run(&cli.Globals, &env{ctx: ctx, stdout: stdout, stderr: stderr}); err != nil {
		fmt.Fprintf(stderr, "modelmixer: %v\n", err)
		return 1
	}
	return 0
}

// loadConfig reads the file named by --config with a friendlier message when
// it does not exist.
func loadConfig(g *Globals) (*config.Config, error) {
	cfg, err := config.Load(g.Config)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", g.Config)
	}
	return cfg, err
}
