// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/adrg/xdg"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml"
	"github.com/sirupsen/logrus"
)

type StartType int

const (
	// Tells way2gay to start a repl in parallel for interacting with it
	START_REPL = StartType(iota)
	// Tells way2gay to execute a specific command on startup
	START_SINGLE_COMMAND
	// Tells way2gay to start without any specific targets
	// Note: Good luck interacting with it :3
	START_NONE
)

// Where the config file is looked for in the XDG config dirs if no path is given
const XdgConfigFile = "way2gay/config.toml"

// Prefix of all environment overrides, W2G_LOG_LEVEL, W2G_COMPOSITOR_BUFFER_COUNT and so on
const EnvPrefix = "W2G"

var ErrInvalid = errors.New("invalid config")

type Config struct {
	StartType StartType `envconfig:"START_TYPE" toml:"start_type"`
	// What command to execute on start. Only matters if StartType is set to START_SINGLE_COMMAND
	StartCommand *string `envconfig:"START_COMMAND" toml:"start_command,omitempty"`
	// One of logrus' levels: trace, debug, info, warn, error, fatal, panic
	LogLevel   string     `envconfig:"LOG_LEVEL" toml:"log_level"`
	Compositor Compositor `envconfig:"COMPOSITOR" toml:"compositor"`
}

type Compositor struct {
	// Buffers per output. 2 for double, 3 for triple buffering
	BufferCount int `envconfig:"BUFFER_COUNT" toml:"buffer_count"`
	// Size of client buffers in pixel
	Width  int `envconfig:"WIDTH" toml:"width"`
	Height int `envconfig:"HEIGHT" toml:"height"`
	// Outputs to create when running without a display
	HeadlessOutputs int `envconfig:"HEADLESS_OUTPUTS" toml:"headless_outputs"`
	// Frames per second of the headless clock
	RefreshRate int `envconfig:"REFRESH_RATE" toml:"refresh_rate"`
	// Where the capture repl command writes to if given a relative path
	CaptureDir string `envconfig:"CAPTURE_DIR" toml:"capture_dir,omitempty"`
}

func Default() *Config {
	return &Config{
		StartType: START_REPL,
		LogLevel:  "info",
		Compositor: Compositor{
			BufferCount:     3,
			Width:           1280,
			Height:          720,
			HeadlessOutputs: 1,
			RefreshRate:     60,
		},
	}
}

// Load builds the config from the defaults, the config file and the environment, in that order.
// An empty path searches the XDG config dirs, not finding a file there is fine
func Load(path string) (*Config, error) {
	conf := Default()

	if path == "" {
		found, err := xdg.SearchConfigFile(XdgConfigFile)
		if err != nil {
			logrus.WithField("file", XdgConfigFile).Debugln("No config file found, using defaults")
		} else {
			path = found
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err = toml.Unmarshal(data, conf); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		logrus.WithField("file", path).Debugln("Loaded config file")
	}

	if err := envconfig.Process(EnvPrefix, conf); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.StartType < START_REPL || c.StartType > START_NONE {
		errs = append(errs, fmt.Errorf("unknown start type %d", c.StartType))
	}
	if c.StartType == START_SINGLE_COMMAND && (c.StartCommand == nil || *c.StartCommand == "") {
		errs = append(errs, errors.New("start type single command needs a start command"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	comp := c.Compositor
	if comp.BufferCount != 2 && comp.BufferCount != 3 {
		errs = append(errs, fmt.Errorf("buffer count has to be 2 or 3, got %d", comp.BufferCount))
	}
	if comp.Width <= 0 || comp.Height <= 0 {
		errs = append(errs, fmt.Errorf("buffer size %dx%d is empty", comp.Width, comp.Height))
	}
	if comp.HeadlessOutputs < 1 {
		errs = append(errs, fmt.Errorf("need at least one headless output, got %d", comp.HeadlessOutputs))
	}
	if comp.RefreshRate < 1 || comp.RefreshRate > 1000 {
		errs = append(errs, fmt.Errorf("refresh rate %d out of range", comp.RefreshRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// ApplyLogLevel sets logrus' level. Only valid after Validate
func (c *Config) ApplyLogLevel() {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logrus.WithError(err).Warnln("Bad log level, keeping the current one")
		return
	}
	logrus.SetLevel(level)
}
