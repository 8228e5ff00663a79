package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/slot-booking/internal/config"
	"github.com/iliyamo/slot-booking/internal/database"
	"github.com/iliyamo/slot-booking/internal/logging"
	"github.com/iliyamo/slot-booking/internal/model"
	"github.com/iliyamo/slot-booking/internal/repository"
)

// app is what every database-backed command needs.
type app struct {
	cfg   config.Config
	log   *logrus.Logger
	db    *sqlx.DB
	store *repository.Store
	hours model.OperatingHoursConfig
}

func openApp(ctx context.Context, migrate bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.Log)

	hours, err := config.LoadOperatingHours(cfg.OperatingHoursFile)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return &app{
		cfg:   cfg,
		log:   log,
		db:    db,
		store: repository.NewStore(db, cfg.DBOpTimeout, cfg.DBRetries),
		hours: hours,
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.WithError(err).Warn("close database")
	}
}
