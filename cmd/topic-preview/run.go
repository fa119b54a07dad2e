package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"topic-preview-go/internal/config"
	"topic-preview-go/internal/decode"
	"topic-preview-go/internal/display"
	"topic-preview-go/internal/logging"
	"topic-preview-go/internal/msgs"
	"topic-preview-go/internal/preview"
	"topic-preview-go/internal/server"
	"topic-preview-go/internal/simulator"
	"topic-preview-go/internal/transport"
)

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("config: %v", err), 1)
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	typeName, err := msgs.ParseKind(cfg.MessageType)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	node, err := transport.NewNode(cfg.Namespace, cfg.NodeName)
	if err != nil {
		return cli.Exit(fmt.Sprintf("node: %v", err), 1)
	}
	topic, err := transport.NewTopic(cfg.Namespace, cfg.Topic, typeName)
	if err != nil {
		return cli.Exit(fmt.Sprintf("topic: %v", err), 1)
	}
	qos := transport.DefaultQoS()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	subscriber, err := openSubscriber(gctx, g, cfg, node, topic, qos, logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("transport: %v", err), 1)
	}
	defer subscriber.Close()

	sub, err := subscriber.Subscribe(gctx, topic)
	if err != nil {
		return cli.Exit(fmt.Sprintf("subscribe %s: %v", topic.FullName(), err), 1)
	}

	var renderers preview.MultiRenderer
	var window *display.Window
	if !cfg.Display.Headless {
		window = display.NewWindow(display.Options{
			Title:               cfg.Display.Title,
			StartHidden:         cfg.Display.StartHidden,
			PreserveAspectRatio: cfg.Display.PreserveAspectRatio,
		})
		renderers = append(renderers, window)
	}

	var loop *preview.Loop
	var mirror *server.Server
	if cfg.Web.Enabled {
		mirror = server.New(cfg, func() map[string]any {
			return statusSnapshot(loop, sub)
		}, logger.Named("web"))
		renderers = append(renderers, mirror)
	}

	var renderer preview.Renderer = renderers
	if len(renderers) == 1 {
		renderer = renderers[0]
	}
	loop = preview.New(preview.Options{
		Topic:       topic.FullName(),
		TargetWidth: cfg.Display.TargetWidth,
		LogEvery:    cfg.Logging.LogEvery,
	}, sub, decode.New(decode.Limits{MaxPixels: cfg.Decode.MaxPixels}), renderer, logger.Named("preview"))

	logger.Info("preview started",
		zap.String("node", node.ID),
		zap.String("topic", topic.FullName()),
		zap.String("type", msgs.FullTypeName(typeName)),
		zap.String("transport", transportName(cfg)),
		zap.Bool("headless", cfg.Display.Headless),
	)

	if mirror != nil {
		g.Go(func() error { return mirror.Run(gctx) })
	}
	g.Go(func() error {
		defer cancel()
		if window != nil {
			defer window.Stop()
		}
		return loop.Run(gctx)
	})
	g.Go(func() error {
		logStats(gctx, cfg.StatsInterval, loop, sub, logger)
		return nil
	})

	var windowErr error
	if window != nil {
		windowErr = window.Run()
		if windowErr != nil {
			logger.Error("window failed", zap.Error(windowErr))
		}
		cancel()
	}

	if err := exitStatus(windowErr, g.Wait()); err != nil {
		return err
	}
	logger.Info("preview stopped", zap.Uint64("frames_rendered", loop.Stats().Rendered()))
	return nil
}

// exitStatus turns the window and worker results into the process exit.
// Cancellation is a normal shutdown; a window that could not run is not.
func exitStatus(windowErr, waitErr error) error {
	if windowErr != nil {
		return cli.Exit(fmt.Sprintf("window: %v", windowErr), 1)
	}
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return cli.Exit(waitErr.Error(), 1)
	}
	return nil
}

// openSubscriber builds the configured backend. In debug mode this is a
// loopback bus fed by the simulator from a goroutine in g.
func openSubscriber(ctx context.Context, g *errgroup.Group, cfg config.AppConfig, node transport.Node, topic transport.Topic, qos transport.QoS, logger *zap.Logger) (transport.Subscriber, error) {
	if cfg.Debug.Enabled {
		gen, err := simulator.NewGenerator(simulator.Options{
			TypeName: topic.Type,
			Width:    cfg.Debug.Width,
			Height:   cfg.Debug.Height,
			FrameID:  node.Name,
		})
		if err != nil {
			return nil, err
		}
		bus := transport.NewLoopback(qos)
		g.Go(func() error {
			for msg := range simulator.Stream(ctx, gen, cfg.Debug.Rate) {
				if err := bus.Publish(ctx, topic, msg); err != nil {
					if errors.Is(err, transport.ErrClosed) {
						return nil
					}
					return err
				}
			}
			return nil
		})
		logger.Info("debug mode: previewing simulated frames",
			zap.Float64("rate", cfg.Debug.Rate),
			zap.Int("width", cfg.Debug.Width),
			zap.Int("height", cfg.Debug.Height),
		)
		return bus, nil
	}

	switch cfg.Transport.Kind {
	case "zmq":
		return transport.NewZMQSubscriber(cfg.Transport.Endpoint, node, qos, logger.Named("zmq")), nil
	case "mqtt":
		return transport.DialMQTT(ctx, cfg.Transport.Endpoint, node, qos, logger.Named("mqtt"))
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport.Kind)
	}
}

func transportName(cfg config.AppConfig) string {
	if cfg.Debug.Enabled {
		return "simulator"
	}
	return cfg.Transport.Kind
}

func statusSnapshot(loop *preview.Loop, sub *transport.Subscription) map[string]any {
	payload := loop.Stats().Snapshot()
	st := sub.Stats()
	payload["subscription_received_total"] = st.Received
	payload["subscription_errors_total"] = st.Errors
	payload["subscription_dropped_total"] = st.Dropped
	return payload
}

func logStats(ctx context.Context, interval time.Duration, loop *preview.Loop, sub *transport.Subscription, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := statusSnapshot(loop, sub)
			logger.Info("preview stats",
				zap.Any("received", snapshot["subscription_received_total"]),
				zap.Any("rendered", snapshot["frames_rendered_total"]),
				zap.Any("decode_errors", snapshot["decode_errors_total"]),
				zap.Any("transport_errors", snapshot["transport_errors_total"]),
				zap.Any("dropped", snapshot["subscription_dropped_total"]),
			)
		}
	}
}
