package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/mickamy/gaudit"
	"github.com/mickamy/gaudit/config"
	"github.com/mickamy/gaudit/expr"
	"github.com/mickamy/gaudit/gormstore"
	"github.com/mickamy/gaudit/metrics"
	"github.com/mickamy/gaudit/sqlstore"
)

type Invoice struct {
	ID       int64
	Customer string
	Amount   float64
	Paid     bool
}

// entityStore is a gaudit.Store with the tracking API both SQL stores share.
type entityStore interface {
	gaudit.Store
	Add(entity any) error
	Remove(entity any) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Server.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("demo failed", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(env string) (*zap.Logger, error) {
	var cfg zap.Config
	if env == "prod" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	return cfg.Build(zap.AddCaller())
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := gaudit.NewModel("demo")
	if err := gaudit.Register[Invoice](model, gaudit.Auditable(gaudit.KeepCurrentAndOld, "")); err != nil {
		return err
	}
	sets, err := model.EntitySets()
	if err != nil {
		return err
	}
	defs, err := gaudit.Discover(sets, gaudit.TemplateNaming(cfg.Audit.AuditTableNameTemplate, cfg.Audit.AuditOldColumnNameTemplate), cfg.Audit.ForceSchema)
	if err != nil {
		return err
	}

	store, closeDB, err := openStore(ctx, cfg.Database, defs, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	actx, err := gaudit.New(model, store,
		gaudit.WithOptions(cfg.Audit),
		gaudit.WithLogger(logger),
		gaudit.WithObserver(metrics.NewPrometheusObserver(nil)),
	)
	if err != nil {
		return err
	}

	srv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: metrics.Handler()}
	go func() {
		logger.Info("metrics server starting", zap.String("addr", cfg.Server.MetricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	if err := demo(gaudit.WithActor(ctx, "demo-user"), actx, store, logger); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server forced to shutdown: %w", err)
	}
	return nil
}

// demo inserts, updates and removes an invoice, then prints its audit trail.
func demo(ctx context.Context, actx *gaudit.Context, store entityStore, logger *zap.Logger) error {
	inv := &Invoice{Customer: "acme", Amount: 1200}
	if err := store.Add(inv); err != nil {
		return err
	}
	if _, err := actx.SaveChanges(ctx); err != nil {
		return fmt.Errorf("insert: %w", err)
	}

	inv.Amount = 1500
	inv.Paid = true
	if _, err := actx.SaveChanges(ctx); err != nil {
		return fmt.Errorf("update: %w", err)
	}

	if err := store.Remove(inv); err != nil {
		return err
	}
	if _, err := actx.SaveChanges(ctx); err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	v := expr.For[Invoice]()
	views, err := gaudit.Audit[Invoice](ctx, actx, expr.Any(
		expr.Equal(v.Current("Customer"), expr.Val("acme")),
		expr.Equal(v.Old("Customer"), expr.Val("acme")),
	))
	if err != nil {
		return err
	}
	for _, view := range views {
		logger.Info("audit row",
			zap.Int64("audit_id", view.AuditID),
			zap.Stringer("type", view.AuditType),
			zap.String("actor", view.AuditCreatorUserID),
			zap.Any("data", view.Data()),
		)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, defs gaudit.Definitions, logger *zap.Logger) (entityStore, func(), error) {
	switch cfg.Driver {
	case "mysql":
		db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to mysql: %w", err)
		}
		store, err := gormstore.New(db, gormstore.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx, defs.All(), &Invoice{}); err != nil {
			return nil, nil, err
		}
		closeDB := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		return store, closeDB, nil
	default:
		db, err := sql.Open(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open %s: %w", cfg.Driver, err)
		}
		store, err := sqlstore.New(db, cfg.Driver, sqlstore.WithLogger(logger))
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS invoices (
	id BIGSERIAL PRIMARY KEY,
	customer TEXT NOT NULL,
	amount DOUBLE PRECISION NOT NULL,
	paid BOOLEAN NOT NULL DEFAULT FALSE
)`); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("create invoices: %w", err)
		}
		if err := store.Migrate(ctx, defs.All()...); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, func() { _ = db.Close() }, nil
	}
}
