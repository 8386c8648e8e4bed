package main

import (
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-capa/internal/config"
	"github.com/mind-engage/mindengage-capa/internal/grading"
	"github.com/mind-engage/mindengage-capa/internal/i18n"
	"github.com/mind-engage/mindengage-capa/internal/jsrun"
	"github.com/mind-engage/mindengage-capa/internal/remote"
	"github.com/mind-engage/mindengage-capa/internal/sandbox"
	"github.com/mind-engage/mindengage-capa/internal/storage"
	"github.com/mind-engage/mindengage-capa/internal/xqueue"
)

// capabilities is the wired capability set plus what must be released.
type capabilities struct {
	System grading.System
	Files  *storage.FSStore
	node   *jsrun.NodeRunner
}

func (c *capabilities) Close() error { return c.node.Close() }

func buildSystem(cfg config.Config, log *zap.Logger) (*capabilities, error) {
	files, err := storage.NewFSStore(cfg.FilesBasePath)
	if err != nil {
		return nil, err
	}
	catalog := i18n.NewCatalog()
	for locale, msgs := range cfg.Translations {
		if err := catalog.AddAll(locale, msgs); err != nil {
			return nil, err
		}
	}
	node := jsrun.NewNodeRunner(cfg.NodeBinary, cfg.NodePath, cfg.JSDir)
	node.Logger = log
	allowUnsafe := cfg.AllowUnsafe

	sys := grading.System{
		Logger:               log,
		I18n:                 catalog.Printer(cfg.Locale),
		Sandbox:              sandbox.New(sandbox.WithTimeout(cfg.ScriptTimeout), sandbox.WithLogger(log)),
		CanExecuteUnsafeCode: func() bool { return allowUnsafe },
		Files:                files,
		External:             remote.New(cfg.ExternalTimeout),
		Node:                 node,
		MatlabAPIKey:         cfg.MatlabAPIKey,
		Debug:                cfg.Debug,
	}
	if cfg.XQueueURL != "" {
		sys.XQueue = &grading.XQueue{
			Queue: xqueue.New(xqueue.Config{
				URL:      cfg.XQueueURL,
				Username: cfg.XQueueUser,
				Password: cfg.XQueuePassword,
				Logger:   log,
			}),
			DefaultQueueName: cfg.XQueueName,
		}
	}
	return &capabilities{System: sys, Files: files, node: node}, nil
}

func registry(cfg config.Config) *grading.Registry {
	return grading.NewRegistry(grading.WithMasking(cfg.Masking))
}
