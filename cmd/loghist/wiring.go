package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/LISSConsulting/LISSTech.LogHistory/internal/config"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/events"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/history"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/logfile"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/logging"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/notify"
	"github.com/LISSConsulting/LISSTech.LogHistory/internal/persist"
)

// sqliteFile is the database created under data_dir by the sqlite backend.
const sqliteFile = "heuristics.db"

// app holds the components shared by every command.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	bus      *events.Bus
	svc      *history.Service
	notifier *notify.Notifier
	subs     []*events.Subscription
}

// newApp validates cfg and wires the store, bus, notifier and service.
// Diagnostics are written to logOut.
func newApp(cfg *config.Config, logOut io.Writer) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	log, err := logging.New(logOut, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	backend, serializer, err := openStore(cfg.Heuristics)
	if err != nil {
		return nil, err
	}
	lib := persist.NewLibrary(backend, serializer, persist.LogErrorHandler{Log: logging.ForComponent(log, logging.CompStore)})

	a := &app{
		cfg: cfg,
		log: log,
		bus: events.NewBus(logging.ForComponent(log, logging.CompEvents)),
	}
	if cfg.Notifications.URL != "" {
		a.notifier = notify.New(cfg.Notifications.URL, notify.DefaultTitle,
			cfg.Notifications.OnRefresh, cfg.Notifications.OnChange,
			logging.ForComponent(log, logging.CompNotify))
		a.subs = append(a.subs, a.bus.Subscribe(a.notifier))
	}

	a.svc, err = history.New(history.Options{
		Catalog: logfile.NewCatalog(cfg.Logs.Root, cfg.Logs.PlayerGlob),
		Library: lib,
		Bus:     a.bus,
		Logger:  log,
	})
	if err != nil {
		return nil, errors.Join(err, lib.Close())
	}
	return a, nil
}

// openStore creates the index backend selected by the [heuristics] section.
func openStore(h config.HeuristicsConfig) (persist.Backend, persist.Serializer, error) {
	serializer, err := persist.SerializerFor(h.Format)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(h.DataDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}

	switch h.Backend {
	case "sqlite":
		backend, err := persist.OpenSQLite(filepath.Join(h.DataDir, sqliteFile))
		if err != nil {
			return nil, nil, err
		}
		return backend, serializer, nil
	default:
		backend, err := persist.NewFlatFiles(h.DataDir, serializer.Ext())
		if err != nil {
			return nil, nil, err
		}
		return backend, serializer, nil
	}
}

// Close detaches subscribers, flushes the index store and waits for
// outstanding notifications.
func (a *app) Close() error {
	for _, s := range a.subs {
		s.Close()
	}
	err := a.svc.Close()
	if a.notifier != nil {
		a.notifier.Wait()
	}
	return err
}
