package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"carecart/internal/ids"
	"carecart/pkg/cart"
	"carecart/pkg/catalog"
	"carecart/pkg/checkout"
	"carecart/pkg/config"
	"carecart/pkg/httpapi"
	"carecart/pkg/notify"
	"carecart/pkg/order"
	"carecart/pkg/pricing"
	"carecart/pkg/processing"
	"carecart/pkg/schedule"
	"carecart/pkg/storage"
	"carecart/pkg/storage/memory"
	"carecart/pkg/storage/snapshot"
	"carecart/pkg/storage/sqlitestore"
)

// Runtime is the composed application: one event loop, one storage port and the
// components that share them.
type Runtime struct {
	Config   *config.Config
	Logger   *zap.Logger
	Loop     *schedule.Loop
	Port     storage.Port
	Cart     *cart.Store
	Catalog  *catalog.Catalog
	Tariffs  *pricing.Tariffs
	Orders   *order.StorageRepository
	Tracker  *order.Tracker
	Feed     *notify.Feed
	Checkout *checkout.Service
	API      *httpapi.Server

	closePort func() error
}

// Build wires every component from cfg. The active order, when one is stored, resumes its
// step schedule before Build returns.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	port, closePort, err := openPort(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{
		Config:    cfg,
		Logger:    logger,
		Port:      port,
		closePort: closePort,
	}
	if err := rt.wire(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) wire(ctx context.Context) error {
	cfg, logger := rt.Config, rt.Logger

	var err error
	if rt.Catalog, err = catalog.New(cfg.Catalog); err != nil {
		return err
	}
	if rt.Tariffs, err = pricing.NewTariffs(cfg.Tariffs); err != nil {
		return err
	}
	processingOpts, err := cfg.ProcessingOptions()
	if err != nil {
		return err
	}
	offsets, err := cfg.StepOffsets()
	if err != nil {
		return err
	}

	rt.Loop = schedule.NewLoop(logger.Named("loop"))
	rt.Feed = notify.NewFeed(0, logger)
	rt.Orders = order.NewRepository(rt.Port, logger)
	rt.Tracker, err = order.NewTracker(rt.Orders, rt.Loop,
		order.WithStepOffsets(offsets),
		order.WithTrackerLogger(logger.Named("tracker")),
	)
	if err != nil {
		return err
	}

	// Cart state and the tracker belong to the loop goroutine from here on.
	var wireErr error
	err = rt.Loop.Do(ctx, func() {
		if rt.Cart, wireErr = cart.NewStore(ctx, rt.Port, logger.Named("cart")); wireErr != nil {
			return
		}
		o, ok, err := rt.Tracker.Resume(ctx)
		if err != nil {
			wireErr = fmt.Errorf("resume order tracking: %w", err)
			return
		}
		if ok {
			logger.Info("resumed order tracking", zap.String("order_id", o.ID), zap.String("status", string(o.Status)))
		}
	})
	if err = errors.Join(err, wireErr); err != nil {
		return err
	}

	nav := &httpapi.Navigation{}
	rt.Checkout, err = checkout.NewService(checkout.Deps{
		Cart:       rt.Cart,
		Tariffs:    rt.Tariffs,
		Orders:     rt.Orders,
		Tracker:    rt.Tracker,
		Scheduler:  rt.Loop,
		Notifier:   rt.Feed,
		Navigator:  nav,
		Logger:     logger.Named("checkout"),
		Processing: append(processingOpts, processing.WithLogger(logger.Named("processing"))),
		NewID:      ids.New,
	})
	if err != nil {
		return err
	}

	rt.API, err = httpapi.New(httpapi.Deps{
		Loop:       rt.Loop,
		Catalog:    rt.Catalog,
		Cart:       rt.Cart,
		Checkout:   rt.Checkout,
		Tracker:    rt.Tracker,
		Tariffs:    rt.Tariffs,
		Feed:       rt.Feed,
		Navigation: nav,
		Logger:     logger.Named("http"),
	})
	return err
}

// Close stops the loop before releasing storage so no timer writes to a closed port.
func (rt *Runtime) Close() error {
	if rt.Loop != nil {
		rt.Loop.Close()
	}
	if rt.closePort != nil {
		return rt.closePort()
	}
	return nil
}

func openPort(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (storage.Port, func() error, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.New(), func() error { return nil }, nil
	case config.BackendSnapshot:
		store, err := snapshot.Open(cfg.Path, logger.Named("snapshot"))
		if err != nil {
			return nil, nil, fmt.Errorf("unable to open snapshot store: %w", err)
		}
		return store, store.Close, nil
	case config.BackendSQLite:
		store, err := sqlitestore.Open(ctx, cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to open sqlite store: %w", err)
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
