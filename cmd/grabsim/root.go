package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zeusync/grabkit/internal/core/events/bus"
	"github.com/zeusync/grabkit/internal/core/grab"
	"github.com/zeusync/grabkit/internal/core/observability/log"
	"github.com/zeusync/grabkit/internal/core/touch"
	"github.com/zeusync/grabkit/internal/injector"
	"golang.org/x/sync/errgroup"
)

type options struct {
	configPath string
	ticks      int
	realtime   bool
	stream     bool
}

func newRootCmd() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:           "grabsim",
		Short:         "Replay scripted pointer input against a grab scene.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadSimConfig(opts.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("stream") {
				cfg.Stream.Enabled = opts.stream
			}
			return run(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "scene config file (YAML)")
	cmd.Flags().IntVar(&opts.ticks, "ticks", 0, "stop after this many ticks (0 runs until the script ends, or forever without one)")
	cmd.Flags().BoolVar(&opts.realtime, "realtime", true, "pace ticks at the configured tick rate")
	cmd.Flags().BoolVar(&opts.stream, "stream", false, "serve events over websocket (overrides the config)")
	return cmd
}

func run(ctx context.Context, cfg simConfig, opts options) error {
	app, cleanup, err := injector.InitializeApp(cfg.Config)
	if err != nil {
		return err
	}
	defer cleanup()
	logger := app.Logger.Named("grabsim")

	if err := logEvents(app.Events, logger); err != nil {
		return err
	}
	play := newPlayer(cfg.Script, app.Scene, app.Handles)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, ctx := errgroup.WithContext(ctx)

	if cfg.Stream.Enabled {
		if err := app.Stream.Start(ctx); err != nil {
			return err
		}
		group.Go(func() error {
			<-ctx.Done()
			stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			return app.Stream.Stop(stopCtx)
		})
	}

	group.Go(func() error {
		// Ending the tick loop stops the stream server too.
		defer cancel()
		return tickLoop(ctx, app, play, cfg, opts, logger)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func tickLoop(ctx context.Context, app *injector.App, play *player, cfg simConfig, opts options, logger log.Log) error {
	interval := cfg.TickInterval()
	dt := interval.Seconds()
	limit := opts.ticks
	if limit == 0 {
		limit = cfg.Ticks()
	}

	var ticker *time.Ticker
	if opts.realtime {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}

	logger.Info("simulation started",
		log.Int("targets", len(app.Handles.Targets)),
		log.Int("pointers", len(app.Handles.Pointers)),
		log.Duration("interval", interval),
	)
	for tick := 0; limit == 0 || tick < limit; tick++ {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		if err := play.Apply(tick); err != nil {
			return err
		}
		start := time.Now()
		if err := app.Scene.Tick(dt); err != nil {
			return fmt.Errorf("tick %d: %w", tick, err)
		}
		app.Metrics.ObserveTick(time.Since(start), len(app.Scene.ActiveTargets()))
	}
	logger.Info("simulation finished", log.Float64("time", app.Scene.Time()))
	return nil
}

// logEvents writes every grab and hover transition to the log.
func logEvents(events bus.EventBus, logger log.Log) error {
	for _, kind := range []string{grab.EventBegin, grab.EventEnd} {
		_, err := events.Subscribe(kind, func(e bus.Event) error {
			ev := e.(grab.Event)
			logger.Info(kind,
				log.String("target", ev.Target.Name()),
				log.Stringer("pointer", ev.Record.Ref()),
				log.Any("location", grab.TargetLocation(ev.Record)),
			)
			return nil
		})
		if err != nil {
			return err
		}
	}
	for _, kind := range []string{touch.EventHoverBegin, touch.EventHoverEnd} {
		_, err := events.Subscribe(kind, func(e bus.Event) error {
			ev := e.(touch.HoverEvent)
			logger.Info(kind, log.String("pointer", ev.Pointer.Name()), log.Stringer("target", ev.Target))
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
