package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"topic-preview-go/internal/config"
)

var (
	Version = "dev"
	Commit  = "none"
)

func main() {
	app := &cli.App{
		Name:    "topic-preview",
		Usage:   "Show the latest image published on a topic",
		Version: fmt.Sprintf("%s (%s)", Version, Commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
				EnvVars: []string{"TOPIC_PREVIEW_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "topic",
				Aliases: []string{"t"},
				Value:   config.Default().Topic,
				Usage:   "Topic to subscribe to",
			},
			&cli.StringFlag{
				Name:  "type",
				Value: config.Default().MessageType,
				Usage: "Message variant: raw or compressed",
			},
			&cli.StringFlag{
				Name:  "transport",
				Value: config.Default().Transport.Kind,
				Usage: "Bus backend: zmq or mqtt",
			},
			&cli.StringFlag{
				Name:    "endpoint",
				Aliases: []string{"e"},
				Value:   config.Default().Transport.Endpoint,
				Usage:   "Publisher endpoint (zmq) or broker URL (mqtt)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: config.Default().Logging.Level,
				Usage: "Log level: debug, info, warn, error",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Preview simulated frames instead of a bus topic",
			},
			&cli.StringFlag{
				Name:  "web-addr",
				Usage: "Serve a browser mirror on this address",
			},
			&cli.BoolFlag{
				Name:  "headless",
				Usage: "Run without a window; requires --web-addr",
			},
			&cli.IntFlag{
				Name:  "width",
				Value: config.Default().Display.TargetWidth,
				Usage: "Window width once the first frame arrives",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig layers explicitly set flags over the config file over defaults.
func loadConfig(c *cli.Context) (config.AppConfig, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if c.IsSet("topic") {
		cfg.Topic = c.String("topic")
	}
	if c.IsSet("type") {
		cfg.MessageType = c.String("type")
	}
	if c.IsSet("transport") {
		cfg.Transport.Kind = c.String("transport")
	}
	if c.IsSet("endpoint") {
		cfg.Transport.Endpoint = c.String("endpoint")
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("debug") {
		cfg.Debug.Enabled = c.Bool("debug")
	}
	if c.IsSet("web-addr") {
		cfg.Web.Enabled = true
		cfg.Web.Addr = c.String("web-addr")
	}
	if c.IsSet("headless") {
		cfg.Display.Headless = c.Bool("headless")
	}
	if c.IsSet("width") {
		cfg.Display.TargetWidth = c.Int("width")
	}
	if cfg.Display.Title == "" {
		cfg.Display.Title = cfg.Topic
	}
	return cfg, cfg.Validate()
}
