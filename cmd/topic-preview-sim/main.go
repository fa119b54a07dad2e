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

	"topic-preview-go/internal/capture"
	"topic-preview-go/internal/logging"
	"topic-preview-go/internal/msgs"
	"topic-preview-go/internal/simulator"
	"topic-preview-go/internal/transport"
)

func main() {
	app := &cli.App{
		Name:  "topic-preview-sim",
		Usage: "Publish synthetic images on a topic",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "topic", Aliases: []string{"t"}, Value: "ssbu_c", Usage: "Topic to publish on"},
			&cli.StringFlag{Name: "namespace", Value: "/", Usage: "Topic namespace"},
			&cli.StringFlag{Name: "type", Value: "compressed", Usage: "Message variant: raw or compressed"},
			&cli.StringFlag{Name: "transport", Value: "zmq", Usage: "Bus backend: zmq or mqtt"},
			&cli.StringFlag{Name: "endpoint", Aliases: []string{"e"}, Value: "tcp://*:7447", Usage: "Bind address (zmq) or broker URL (mqtt)"},
			&cli.Float64Flag{Name: "rate", Value: 30, Usage: "Frames per second"},
			&cli.IntFlag{Name: "width", Value: 640, Usage: "Frame width"},
			&cli.IntFlag{Name: "height", Value: 480, Usage: "Frame height"},
			&cli.StringFlag{Name: "format", Value: "jpeg", Usage: "Compressed container: jpeg or png"},
			&cli.IntFlag{Name: "row-padding", Usage: "Extra bytes per raw row"},
			&cli.Uint64Flag{Name: "count", Usage: "Stop after this many frames (0 = run until interrupted)"},
			&cli.StringFlag{Name: "capture-dir", Usage: "Also append every published envelope to a capture log here"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "Log level"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger, err := logging.New(c.String("log-level"), "console")
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	typeName, err := msgs.ParseKind(c.String("type"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	topic, err := transport.NewTopic(c.String("namespace"), c.String("topic"), typeName)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	gen, err := simulator.NewGenerator(simulator.Options{
		TypeName:   typeName,
		Width:      c.Int("width"),
		Height:     c.Int("height"),
		Format:     c.String("format"),
		RowPadding: c.Int("row-padding"),
		FrameID:    "topic_preview_sim",
	})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	pub, err := openPublisher(ctx, c.String("transport"), c.String("endpoint"), logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("transport: %v", err), 1)
	}
	defer pub.Close()

	var recorder *capture.Writer
	if dir := c.String("capture-dir"); dir != "" {
		recorder, err = capture.Create(dir, topic.Name)
		if err != nil {
			return cli.Exit(fmt.Sprintf("capture: %v", err), 1)
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				logger.Warn("capture close failed", zap.Error(err))
			}
		}()
		logger.Info("capturing envelopes", zap.String("path", recorder.Path()))
	}

	logger.Info("publishing simulated frames",
		zap.String("topic", topic.FullName()),
		zap.String("type", msgs.FullTypeName(typeName)),
		zap.String("endpoint", c.String("endpoint")),
		zap.Float64("rate", c.Float64("rate")),
	)

	limit := c.Uint64("count")
	var sent, failed uint64
	for msg := range simulator.Stream(ctx, gen, c.Float64("rate")) {
		if err := pub.Publish(ctx, topic, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			failed++
			if failed%100 == 1 {
				logger.Warn("publish failed", zap.Error(err), zap.Uint64("failures", failed))
			}
			continue
		}
		sent++
		if recorder != nil {
			if err := record(recorder, msg); err != nil {
				logger.Warn("capture failed", zap.Error(err))
			}
		}
		if limit > 0 && sent >= limit {
			break
		}
	}
	logger.Info("publisher stopped", zap.Uint64("sent", sent), zap.Uint64("failed", failed))
	return nil
}

func record(w *capture.Writer, msg msgs.Message) error {
	payload, err := msgs.Encode(msg)
	if err != nil {
		return err
	}
	return w.Record(time.Now(), payload)
}

func openPublisher(ctx context.Context, kind, endpoint string, logger *zap.Logger) (transport.Publisher, error) {
	qos := transport.DefaultQoS()
	switch kind {
	case "zmq":
		return transport.NewZMQPublisher(endpoint, qos)
	case "mqtt":
		node, err := transport.NewNode("/", "topic_preview_sim")
		if err != nil {
			return nil, err
		}
		return transport.DialMQTT(ctx, endpoint, node, qos, logger.Named("mqtt"))
	default:
		return nil, fmt.Errorf("unknown transport %q", kind)
	}
}
