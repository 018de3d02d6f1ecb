package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"reportbridge/internal/config"
	"reportbridge/internal/exporter"
	"reportbridge/internal/httpx"
	"reportbridge/internal/importer"
	"reportbridge/internal/logging"
	"reportbridge/internal/pipeline"
	"reportbridge/internal/runs"
	"reportbridge/internal/services/gueno"
	"reportbridge/internal/services/movingpay"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// newLogger builds the run logger writing to both stdout and the log file.
func (c *commandContext) newLogger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", cfg.LogFilePath()},
	})
}

// withPipeline wires a full pipeline and hands it to fn, closing the run
// store afterwards.
func (c *commandContext) withPipeline(fn func(*pipeline.Pipeline, *runs.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.newLogger()
	if err != nil {
		return err
	}

	store, err := runs.Open(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	httpClient := httpx.New(cfg.HTTP, logger)
	exp := exporter.New(cfg, movingpay.New(cfg.MovingPay, httpClient, logger), logger)
	imp := importer.New(cfg, gueno.New(cfg.Gueno, httpClient, logger), logger)
	p := pipeline.New(cfg, store, exp, imp, logger)
	return fn(p, store)
}

// withStore opens only the run store for read-side commands.
func (c *commandContext) withStore(fn func(*runs.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := runs.Open(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}

func parseFlow(value string) (runs.Flow, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(runs.FlowTransactions):
		return runs.FlowTransactions, nil
	case string(runs.FlowFiles):
		return runs.FlowFiles, nil
	default:
		return "", fmt.Errorf("unknown flow %q (use %q or %q)", value, runs.FlowTransactions, runs.FlowFiles)
	}
}
