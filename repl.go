// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mstarongithub/w2g-compositor/config"
	"github.com/mstarongithub/w2g-compositor/graphics"
	"github.com/mstarongithub/w2g-compositor/repl"
	"github.com/mstarongithub/w2g-compositor/session"
	"github.com/mstarongithub/w2g-compositor/util"
	"github.com/mstarongithub/w2g-compositor/util/wrappers"
	"github.com/sirupsen/logrus"
)

const replHelp = "\trun <command> [args...]: Run a command, e.g. a client\n" +
	"\tstatus: Show the state of the compositor and its outputs as json\n" +
	"\tpause: Stop compositing\n" +
	"\tresume: Continue compositing\n" +
	"\tbuffers <2|3>: Switch all outputs to double or triple buffering\n" +
	"\tcapture <output> <file>: Save the frame shown on an output as png\n" +
	"\tquit: Stop the compositor"

// runCommand starts cmdString in the background, writing its output to out
func runCommand(cmdString string, out io.Writer) string {
	parts := strings.Split(cmdString, " ")
	// This is safe b/c it'll unpack into a slice of length 0
	args := parts[1:]
	// And here a slice of length 0 means that no additional arguments will be given
	// It's also safe if the repl command is "run " since the first element will now be an empty string
	// Which is also safe to "execute" since cmd.Start will just fail with the No Command error
	cmd := exec.Command(parts[0], args...)
	cmd.Stdout = out
	cmd.Stderr = out
	go func(cmd *exec.Cmd, cmdString string) {
		err := cmd.Start()
		if err != nil {
			logrus.WithError(err).WithField("command", cmdString).Errorln("Command failed to start")
			return
		}
		err = cmd.Wait()
		if exiterr, ok := err.(*exec.ExitError); ok {
			logrus.WithError(err).WithFields(logrus.Fields{
				"exit-code": exiterr.ExitCode(),
				"command":   cmdString,
			}).Warningln("Bad command completion")
		}
	}(cmd, cmdString)
	return "Running " + parts[0]
}

type replCommands struct {
	conf *config.Config
	sess *session.Session
	stop func()
}

func replRunner(conf *config.Config, sess *session.Session, stop func()) {
	// Give repl some wrappers around stdin and stdout so that it closes those instead of stdin & stdout themselves
	commandRepl := repl.NewRepl(wrappers.NewReaderWrapper(os.Stdin), wrappers.NewWriterWrapper(os.Stdout))
	commands := &replCommands{conf: conf, sess: sess, stop: stop}
	logrus.Debugln("Starting repl")
	if err := commandRepl.Run(commands.handle); err != nil {
		logrus.WithError(err).Errorln("Repl stopped")
	}
}

func (c *replCommands) handle(input string, r *repl.Repl) (string, error) {
	command, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch command {
	case "run":
		return runCommand(rest, r.Output), nil
	case "quit":
		c.stop()
		return "Quitting", repl.ErrQuit
	case "status":
		out, err := json.MarshalIndent(c.sess.Status(), "", "  ")
		if err != nil {
			return "", err
		}
		return string(out), nil
	case "pause":
		if err := c.sess.Pause(); err != nil {
			return "Pause failed: " + err.Error(), nil
		}
		return "Paused", nil
	case "resume":
		if err := c.sess.Resume(); err != nil {
			return "Resume failed: " + err.Error(), nil
		}
		return "Resumed", nil
	case "buffers":
		n, err := strconv.Atoi(rest)
		if err != nil {
			return "Usage: buffers <2|3>", nil
		}
		if err := c.sess.SetBufferCount(n); err != nil {
			return "Changing buffer count failed: " + err.Error(), nil
		}
		return fmt.Sprintf("Using %d buffers", n), nil
	case "capture":
		return c.capture(rest), nil
	case "help":
		return replHelp, nil
	default:
		return "Unknown command", nil
	}
}

func (c *replCommands) capture(args string) string {
	// Can't unpack slices directly like in Python, so do it this roundabout way
	var output, file string
	util.Unpack(strings.Fields(args), &output, &file)
	if output == "" || file == "" {
		return "Usage: capture <output> <file>"
	}
	if !filepath.IsAbs(file) && c.conf.Compositor.CaptureDir != "" {
		file = filepath.Join(c.conf.Compositor.CaptureDir, file)
	}

	f, err := os.Create(file)
	if err != nil {
		return "Capture failed: " + err.Error()
	}
	err = c.sess.Capture(output, f, graphics.Size{})
	if closeErr := f.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	if err != nil {
		return "Capture failed: " + err.Error()
	}
	logrus.WithFields(logrus.Fields{"output": output, "file": file}).Infoln("Captured output")
	return fmt.Sprintf("Captured %s to %s", output, file)
}
