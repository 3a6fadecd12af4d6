package main

import (
	"errors"

	"go.uber.org/zap"

	"github.com/odvcencio/forgevcs/internal/config"
	"github.com/odvcencio/forgevcs/internal/logging"
	"github.com/odvcencio/forgevcs/pkg/forge"
	"github.com/odvcencio/forgevcs/pkg/journal"
	"github.com/odvcencio/forgevcs/pkg/object"
)

type globalOptions struct {
	configPath string
	noColor    bool
}

// app is the wiring shared by every subcommand.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	manager *forge.Manager
	journal *journal.Journal
}

// newApp loads the configuration and builds the manager. withJournal opens
// the merge journal when one is configured.
func newApp(opts *globalOptions, withJournal bool) (*app, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return nil, err
		}
	} else {
		cfg.ApplyEnv()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:    cfg,
		logger: logger,
		manager: &forge.Manager{
			Root:          cfg.Storage.Root,
			DefaultBranch: cfg.Storage.DefaultBranch,
			Committer:     object.Signature{Name: cfg.Committer.Name, Email: cfg.Committer.Email},
			Logger:        logger,
		},
	}
	if withJournal && cfg.Journal.Dir != "" {
		j, err := journal.Open(cfg.Journal.Dir, logger.Named("journal"))
		if err != nil {
			return nil, err
		}
		a.journal = j
		a.manager.Recorder = j
	}
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	// Sync fails on non-file sinks such as a terminal stderr.
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
