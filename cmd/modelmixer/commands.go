package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/MrWong99/modelmixer/internal/app"
	"github.com/MrWong99/modelmixer/internal/observe"
	"github.com/MrWong99/modelmixer/pkg/mixer"
)

// ServeCmd runs the HTTP server until interrupted.
type ServeCmd struct {
	NoReload bool `help:"Do not watch the configuration file for changes."`
}

func (c *ServeCmd) Run(g *Globals, e *env) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}

	level := new(slog.LevelVar)
	logger, err := observe.NewLogger(e.stderr, string(cfg.Server.LogFormat), level)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("modelmixer starting",
		"version", version,
		"config", g.Config,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	opts := []app.Option{app.WithLogger(logger, level), app.WithVersion(version)}
	if !c.NoReload {
		opts = append(opts, app.WithConfigPath(g.Config))
	}
	application, err := app.New(e.ctx, cfg, opts...)
	if err != nil {
		return err
	}

	if err := application.Run(e.ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("goodbye")
	return nil
}

// CallCmd sends a single prompt using the mixer section of the config file.
type CallCmd struct {
	Prompt  string            `arg:"" help:"Prompt to send."`
	Option  map[string]string `short:"o" help:"Extra request field as key=value. Values are parsed as JSON when possible."`
	Timeout time.Duration     `default:"2m" help:"Overall deadline for the call including fallback."`
}

func (c *CallCmd) Run(g *Globals, e *env) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}

	logger, err := observe.NewLogger(e.stderr, string(cfg.Server.LogFormat), levelVar(slog.LevelWarn))
	if err != nil {
		return err
	}

	// A one-shot call has no use for the periodic health sweep.
	mcfg := cfg.Mixer.Clone()
	mcfg.Strategy.HealthCheckInterval = 0
	m := mixer.New(mcfg, mixer.WithLogger(logger))
	defer m.Close()

	ctx, cancel := context.WithTimeout(e.ctx, c.Timeout)
	defer cancel()

	res, err := m.Call(ctx, c.Prompt, parseOptions(c.Option))
	if err != nil {
		return err
	}

	fmt.Fprintf(e.stderr, "provider: %s (%s), attempts: %d\n", res.ProviderName, res.ProviderID, res.Attempts)
	var out bytes.Buffer
	if err := json.Indent(&out, res.Body, "", "  "); err != nil {
		out.Reset()
		out.Write(res.Body)
	}
	out.WriteByte('\n')
	_, err = out.WriteTo(e.stdout)
	return err
}

// ValidateCmd checks the config file and prints a short summary.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(g *Globals, e *env) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}

	enabled := 0
	for _, p := range cfg.Mixer.Providers {
		if p.Enabled {
			enabled++
		}
	}
	fmt.Fprintf(e.stdout, "%s: ok (%d providers, %d enabled, strategy %s, mixer enabled: %t)\n",
		g.Config, len(cfg.Mixer.Providers), enabled, cfg.Mixer.Strategy.Type, cfg.Mixer.Enabled)
	return nil
}

// ExportCmd writes the mixer section in the JSON import/export format.
type ExportCmd struct {
	Out string `short:"o" type:"path" help:"Write to this file instead of stdout."`
}

func (c *ExportCmd) Run(g *Globals, e *env) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	data, err := mixer.MarshalConfig(cfg.Mixer)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if c.Out == "" {
		_, err = e.stdout.Write(data)
		return err
	}
	return os.WriteFile(c.Out, data, 0o600)
}

// parseOptions turns key=value flags into request fields. A value that is
// valid JSON (number, bool, object, ...) is sent decoded, anything else as a
// string.
func parseOptions(raw map[string]string) mixer.Options {
	if len(raw) == 0 {
		return nil
	}
	opts := make(mixer.Options, len(raw))
	for k, v := range raw {
		var decoded any
		if err := json.Unmarshal([]byte(strings.TrimSpace(v)), &decoded); err == nil {
			opts[k] = decoded
			continue
		}
		opts[k] = v
	}
	return opts
}

func levelVar(l slog.Level) *slog.LevelVar {
	v := new(slog.LevelVar)
	v.Set(l)
	return v
}
