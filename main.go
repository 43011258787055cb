// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mstarongithub/w2g-compositor/config"
	"github.com/mstarongithub/w2g-compositor/session"
	"github.com/sirupsen/logrus"
)

var (
	configPath *string = flag.String(
		"config",
		"",
		"Path to the config file. Searched for in the XDG config dirs as "+config.XdgConfigFile+" if not set",
	)
	toolMode *bool = flag.Bool("tool", false, "Start as a tool instead of a compositor")
	help     *bool = flag.Bool("help", false, "Show the help message")
)

func fatal(msg string, err error) {
	fmt.Printf("error %s: %s\n", msg, err)
	os.Exit(1)
}

func main() {
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		fatal("loading config", err)
	}
	conf.ApplyLogLevel()

	if *toolMode {
		utilMain(conf)
		return
	}
	if *help {
		helpMessage()
		return
	}
	compositorMain(conf)
}

func helpMessage() {
	fmt.Println("---- Help message for Way2Gay ----")
	fmt.Println("\nGeneral flags:")
	fmt.Println("\t-config: Path to the config file. Default is $XDG_CONFIG_HOME/" + config.XdgConfigFile)
	fmt.Println("\t-tool: Start as a tool instead of a compositor. See -tool -help")
	fmt.Println("\t-help: Show this help message")
	fmt.Println("\nEvery config value can be overwritten with environment variables, e.g. W2G_COMPOSITOR_BUFFER_COUNT=2")
	fmt.Println("\nRepl commands:")
	fmt.Println(replHelp)
}

// startupRunner does what the config asks for once the compositor is up.
// stop shuts the compositor down
func startupRunner(conf *config.Config, sess *session.Session, stop func()) {
	switch conf.StartType {
	case config.START_REPL:
		replRunner(conf, sess, stop)
	case config.START_SINGLE_COMMAND:
		runCommand(*conf.StartCommand, os.Stdout)
	case config.START_NONE:
		logrus.Debugln("Starting without repl or command")
	}
}
