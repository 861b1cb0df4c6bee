package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"carecart/pkg/config"
	"carecart/pkg/order"
	"carecart/pkg/processing"
	"carecart/pkg/schedule"
)

func newOrderCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Show the current order, completing any steps that are already due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), opts, func(ctx context.Context, rt *Runtime) error {
				return showOrder(ctx, rt, cmd.OutOrStdout())
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "cancel",
		Short: "Cancel the current order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), opts, func(ctx context.Context, rt *Runtime) error {
				var o order.Order
				var cancelErr error
				if err := rt.Loop.Do(ctx, func() { o, cancelErr = rt.Tracker.Cancel(ctx) }); err != nil {
					return err
				}
				if cancelErr != nil {
					return cancelErr
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderOrder(o))
				return nil
			})
		},
	})
	return cmd
}

func withRuntime(ctx context.Context, opts *options, fn func(context.Context, *Runtime) error) error {
	cfg, logger, err := opts.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	rt, err := Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return errors.Join(fn(ctx, rt), rt.Close())
}

func showOrder(ctx context.Context, rt *Runtime, out io.Writer) error {
	var (
		o       order.Order
		ok      bool
		readErr error
	)
	if err := rt.Loop.Do(ctx, func() { o, ok, readErr = rt.Tracker.Current(ctx) }); err != nil {
		return err
	}
	if readErr != nil {
		return readErr
	}
	if !ok {
		fmt.Fprintln(out, "No active order.")
		return nil
	}
	fmt.Fprintln(out, renderOrder(o))
	return nil
}

func newSimulateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "simulate",
		Short: "Run the configured payment settlement and draw its progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return simulate(cmd.Context(), cfg, logger, cmd.OutOrStdout())
		},
	}
}

// simulate runs one settlement on a real-clock loop and redraws the bar on every update.
func simulate(ctx context.Context, cfg *config.Config, logger *zap.Logger, out io.Writer) error {
	simOpts, err := cfg.ProcessingOptions()
	if err != nil {
		return err
	}
	loop := schedule.NewLoop(logger.Named("loop"))
	defer loop.Close()

	sim, err := processing.New(loop, append(simOpts, processing.WithLogger(logger.Named("processing")))...)
	if err != nil {
		return err
	}

	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(40))
	done := make(chan struct{})
	var startErr error
	err = loop.Do(ctx, func() {
		startErr = sim.Start(func(p processing.Progress) {
			fmt.Fprintf(out, "\r%s", renderProgress(bar, p))
		}, func() {
			close(done)
		})
	})
	if err = errors.Join(err, startErr); err != nil {
		return err
	}

	select {
	case <-done:
		fmt.Fprintf(out, "\rsettled in %s%s\n", sim.Total(), strings.Repeat(" ", 40))
		return nil
	case <-ctx.Done():
		fmt.Fprintln(out)
		return stopSettlement(loop, sim, ctx.Err())
	}
}

// stopSettlement cancels sim on its loop and reports cause together with any hand-off failure.
func stopSettlement(loop *schedule.Loop, sim *processing.Simulator, cause error) error {
	return errors.Join(cause, loop.Do(context.Background(), sim.Cancel))
}

