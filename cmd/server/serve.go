package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/iliyamo/slot-booking/internal/config"
	"github.com/iliyamo/slot-booking/internal/handler"
	"github.com/iliyamo/slot-booking/internal/lock"
	"github.com/iliyamo/slot-booking/internal/middleware"
	"github.com/iliyamo/slot-booking/internal/queue"
	"github.com/iliyamo/slot-booking/internal/router"
	"github.com/iliyamo/slot-booking/internal/service"
)

func newServeCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the hold sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, migrateUp)
			if err != nil {
				return err
			}
			defer a.Close()
			cfg, log := a.cfg, a.log

			rdb := config.NewRedisClient(cfg.Redis, log)
			if rdb != nil {
				defer rdb.Close()
			}

			var notifier service.Notifier
			if cfg.EventsEnabled {
				pub := queue.NewPublisher(cfg.AMQPURL, log)
				defer pub.Close()
				notifier = pub
			}

			holds := service.NewHoldManager(a.store, cfg.Hold, log).WithLease(lock.NewRedisLease(rdb, "lease"))
			reservations := service.NewReservationService(a.store, holds, a.hours, cfg.Booking, notifier, log)
			query := service.NewQueryFacade(a.store, a.hours)
			gen := service.NewSlotGenerator(a.store, a.hours, log)
			bookings := handler.NewBookingHandler(query, reservations)

			e := echo.New()
			e.HideBanner = true
			e.HidePort = true
			e.Validator = handler.RequestValidator{}
			e.Use(middleware.RequestLogger(log))

			router.RegisterRoutes(e, a.db, handler.NewSlotHandler(query, a.hours), middleware.NewRedisCache(cfg.Cache, rdb, log))
			router.RegisterCustomer(e, handler.NewHoldHandler(reservations), bookings, middleware.NewTokenBucket(cfg.RateLimit, rdb, log))
			router.RegisterAdmin(e, bookings, handler.NewAdminHandler(query, gen, a.hours), cfg.JWTSecret)

			sweeperDone := make(chan struct{})
			go func() {
				defer close(sweeperDone)
				_ = holds.Run(ctx)
			}()

			errCh := make(chan error, 1)
			go func() {
				log.WithField("addr", ":"+cfg.Port).WithField("env", cfg.Env).Info("listening")
				errCh <- e.Start(":" + cfg.Port)
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					stop()
					<-sweeperDone
					return err
				}
			}

			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := e.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("http shutdown")
			}
			<-sweeperDone
			return nil
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	return cmd
}
