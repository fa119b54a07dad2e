package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	Topic       string `yaml:"topic"`
	MessageType string `yaml:"message_type"`
	Namespace   string `yaml:"namespace"`
	NodeName    string `yaml:"node_name"`

	Transport TransportConfig `yaml:"transport"`
	Display   DisplayConfig   `yaml:"display"`
	Decode    DecodeConfig    `yaml:"decode"`
	Web       WebConfig       `yaml:"web"`
	Logging   LoggingConfig   `yaml:"logging"`
	Debug     DebugConfig     `yaml:"debug"`

	StatsInterval time.Duration `yaml:"stats_interval"`
}

type TransportConfig struct {
	Kind     string `yaml:"kind"` // zmq, mqtt
	Endpoint string `yaml:"endpoint"`
}

type DisplayConfig struct {
	// Title defaults to the topic name.
	Title               string `yaml:"title"`
	TargetWidth         int    `yaml:"target_width"`
	StartHidden         bool   `yaml:"start_hidden"`
	PreserveAspectRatio bool   `yaml:"preserve_aspect_ratio"`
	Headless            bool   `yaml:"headless"`
}

type DecodeConfig struct {
	MaxPixels int `yaml:"max_pixels"`
}

type WebConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Addr        string `yaml:"addr"`
	JPEGQuality int    `yaml:"jpeg_quality"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"` // json, console
	LogEvery int    `yaml:"log_every"`
}

// DebugConfig replaces the network transport with the in-process simulator.
type DebugConfig struct {
	Enabled bool    `yaml:"enabled"`
	Rate    float64 `yaml:"rate"`
	Width   int     `yaml:"width"`
	Height  int     `yaml:"height"`
}

func Default() AppConfig {
	return AppConfig{
		Topic:       "ssbu_c",
		MessageType: "compressed",
		Namespace:   "/",
		NodeName:    "topic_preview",
		Transport: TransportConfig{
			Kind:     "zmq",
			Endpoint: "tcp://localhost:7447",
		},
		Display: DisplayConfig{
			TargetWidth:         1280,
			StartHidden:         true,
			PreserveAspectRatio: true,
		},
		Decode: DecodeConfig{
			MaxPixels: 7680 * 4320,
		},
		Web: WebConfig{
			Addr:        ":8890",
			JPEGQuality: 80,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "console",
			LogEvery: 1,
		},
		Debug: DebugConfig{
			Rate:   30,
			Width:  640,
			Height: 480,
		},
		StatsInterval: 30 * time.Second,
	}
}

// Load reads a YAML file over the defaults. Fields missing from the file keep
// their default values.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c AppConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Topic) == "" {
		errs = append(errs, errors.New("topic must not be empty"))
	}
	switch strings.ToLower(c.MessageType) {
	case "raw", "image", "compressed", "compressedimage":
	default:
		errs = append(errs, fmt.Errorf("message_type %q must be raw or compressed", c.MessageType))
	}
	if !c.Debug.Enabled {
		switch c.Transport.Kind {
		case "zmq", "mqtt":
		default:
			errs = append(errs, fmt.Errorf("transport.kind %q must be zmq or mqtt", c.Transport.Kind))
		}
		if c.Transport.Endpoint == "" {
			errs = append(errs, errors.New("transport.endpoint must not be empty"))
		}
	} else {
		if c.Debug.Rate <= 0 {
			errs = append(errs, fmt.Errorf("debug.rate %v must be positive", c.Debug.Rate))
		}
		if c.Debug.Width < 1 || c.Debug.Height < 1 {
			errs = append(errs, fmt.Errorf("debug frame size %dx%d invalid", c.Debug.Width, c.Debug.Height))
		}
	}
	if c.Display.TargetWidth < 1 {
		errs = append(errs, fmt.Errorf("display.target_width %d must be positive", c.Display.TargetWidth))
	}
	if c.Web.JPEGQuality < 1 || c.Web.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("web.jpeg_quality %d out of range 1-100", c.Web.JPEGQuality))
	}
	if c.Display.Headless && !c.Web.Enabled {
		errs = append(errs, errors.New("headless mode needs web.enabled"))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be json or console", c.Logging.Format))
	}
	return errors.Join(errs...)
}
