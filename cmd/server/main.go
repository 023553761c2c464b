package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/parish-reservations/internal/activity"
	"github.com/iliyamo/parish-reservations/internal/config"
	"github.com/iliyamo/parish-reservations/internal/database"
	"github.com/iliyamo/parish-reservations/internal/engine"
	"github.com/iliyamo/parish-reservations/internal/handler"
	"github.com/iliyamo/parish-reservations/internal/log"
	"github.com/iliyamo/parish-reservations/internal/middleware"
	"github.com/iliyamo/parish-reservations/internal/notify"
	"github.com/iliyamo/parish-reservations/internal/queue"
	"github.com/iliyamo/parish-reservations/internal/repository"
	"github.com/iliyamo/parish-reservations/internal/router"
)

func main() {
	cfg := config.Load()
	log.Configure(log.Config{Level: cfg.LogLevel})
	logger := log.WithComponent("server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, dialect, err := openDatabase(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("failed to open database")
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, dialect); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	// Notification transports.  Redis and RabbitMQ are optional; without
	// them only in-process subscribers are served.
	var transports []notify.Transport
	var badges *notify.BadgeCounter
	if rdb := config.NewRedisClient(); rdb != nil {
		defer rdb.Close()
		badges = notify.NewBadgeCounter(rdb)
		transports = append(transports, badges)
	} else {
		logger.Warn().Msg("redis unavailable; notification badges disabled")
	}
	if cfg.Notify.AMQPURL != "" {
		pub := notify.NewAMQPPublisher(cfg.Notify.AMQPURL, cfg.Notify.Queue)
		defer pub.Close()
		transports = append(transports, pub)
	}
	hub := notify.NewHub(notify.HubOptions{
		OutboxSize:     cfg.Notify.OutboxSize,
		SubscriberBuf:  cfg.Notify.SubscriberBuf,
		DeliverTimeout: cfg.Notify.DeliverTimeout,
	}, transports...)

	masses := repository.NewMassRepo(db)
	recorder := activity.NewRecorder(repository.NewActivityRepo(db))
	eng := engine.New(db, masses, repository.NewReservationRepo(db), hub, recorder)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.AccessLog())

	handlers := router.Handlers{
		Masses:        handler.NewMassHandler(eng),
		Reservations:  handler.NewReservationHandler(eng),
		Activity:      handler.NewActivityHandler(recorder),
		Notifications: handler.NewNotificationHandler(hub, badges),
	}
	router.RegisterRoutes(e, db)
	router.RegisterMember(e, handlers, cfg.JWTSecret)
	router.RegisterAdmin(e, handlers, cfg.JWTSecret)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	if cfg.Notify.ConsumerEnabled && cfg.Notify.AMQPURL != "" {
		out := queue.NewNotificationLog(cfg.Notify.LogDir)
		g.Go(func() error {
			err := queue.StartNotificationConsumer(gctx, cfg.Notify.AMQPURL, cfg.Notify.Queue, out)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Str("driver", cfg.DBDriver).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server stopped with error")
	}
	logger.Info().Msg("server stopped")
}

// openDatabase opens the configured database and returns the matching
// schema dialect.
func openDatabase(cfg config.Config) (*sql.DB, database.Dialect, error) {
	switch cfg.DBDriver {
	case "sqlite":
		db, err := database.OpenSQLite(cfg.SQLitePath, database.DefaultSQLiteConfig())
		return db, database.SQLite, err
	case "mysql":
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		return db, database.MySQL, err
	}
	return nil, "", errors.New("unsupported DB_DRIVER " + cfg.DBDriver)
}
