package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/txtingest/internal/archive"
	"github.com/JonMunkholm/txtingest/internal/config"
	"github.com/JonMunkholm/txtingest/internal/core"
	"github.com/JonMunkholm/txtingest/internal/core/layouts"
	"github.com/JonMunkholm/txtingest/internal/logging"
	"github.com/JonMunkholm/txtingest/internal/pipeline"
	"github.com/JonMunkholm/txtingest/internal/staging"
	"github.com/JonMunkholm/txtingest/internal/store"
	"github.com/JonMunkholm/txtingest/internal/transfer"
)

// app is what every command builds from the environment.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	layouts     *core.LayoutRegistry
	conversions *core.ConversionRegistry
}

// loadApp loads configuration and the layout registries. forRun also
// checks the remote and database settings.
func loadApp(forRun bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if forRun {
		if err := cfg.ValidateForRun(); err != nil {
			return nil, fmt.Errorf("config validation: %w", err)
		}
	}

	logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	logger.Debug("configuration loaded", "config", cfg.String())

	reg := core.NewLayoutRegistry()
	conv := core.NewConversionRegistry()
	if err := layouts.Register(reg, conv); err != nil {
		return nil, fmt.Errorf("register built-in layouts: %w", err)
	}
	if cfg.Pipeline.LayoutsFile != "" {
		lf, err := core.LoadLayoutFile(cfg.Pipeline.LayoutsFile)
		if err != nil {
			return nil, err
		}
		if err := lf.Apply(reg, conv); err != nil {
			return nil, fmt.Errorf("layouts file %s: %w", cfg.Pipeline.LayoutsFile, err)
		}
		logger.Info("layouts file loaded", "path", cfg.Pipeline.LayoutsFile, "layouts", len(lf.Layouts))
	}

	return &app{cfg: cfg, logger: logger, layouts: reg, conversions: conv}, nil
}

func (a *app) decoder() *core.Decoder {
	return core.NewDecoder(a.conversions, a.cfg.Pipeline.StrictConversion)
}

func (a *app) transferClient() (transfer.Client, error) {
	switch strings.ToLower(a.cfg.Transfer.Mode) {
	case "dir":
		root, err := filepath.Abs(a.cfg.Transfer.RemotePath)
		if err != nil {
			return nil, err
		}
		return transfer.NewDirClient(root, a.cfg.Transfer.FetchTimeout), nil
	default:
		return transfer.NewSFTPClient(a.cfg.Transfer, a.logger), nil
	}
}

// pipeline wires every collaborator of a run.
func (a *app) pipeline() (*pipeline.Pipeline, error) {
	raw, err := filepath.Abs(a.cfg.Paths.Raw)
	if err != nil {
		return nil, fmt.Errorf("raw path: %w", err)
	}
	if err := os.MkdirAll(raw, 0o755); err != nil {
		return nil, fmt.Errorf("create raw directory: %w", err)
	}
	processed, err := filepath.Abs(a.cfg.Paths.Processed)
	if err != nil {
		return nil, fmt.Errorf("processed path: %w", err)
	}
	stage, err := staging.New(processed)
	if err != nil {
		return nil, err
	}

	client, err := a.transferClient()
	if err != nil {
		return nil, err
	}

	remotePath := a.cfg.Transfer.RemotePath
	if strings.EqualFold(a.cfg.Transfer.Mode, "dir") {
		// The dir client is rooted at RemotePath already.
		remotePath = "."
	}

	dbCfg := a.cfg.Database
	logger := a.logger
	return &pipeline.Pipeline{
		Transfer:  client,
		Extractor: archive.New(),
		Layouts:   a.layouts,
		Decoder:   a.decoder(),
		Staging:   stage,
		OpenStore: func(ctx context.Context) (pipeline.Store, error) {
			st, err := store.Connect(ctx, dbCfg, logger)
			if err != nil {
				return nil, err
			}
			return st, nil
		},
		Options: pipeline.Options{
			RemotePath:     remotePath,
			RemoteSuffixes: a.cfg.Transfer.Suffixes,
			RawDir:         raw,
			TextSuffixes:   a.cfg.Pipeline.TextSuffixes,
			Workers:        a.cfg.Pipeline.Workers,
		},
		Logger: logger,
	}, nil
}
