//go:build !headless

package main

import (
	"context"

	"github.com/mstarongithub/w2g-compositor/config"
	"github.com/mstarongithub/w2g-compositor/session"
	"github.com/sirupsen/logrus"
	"github.com/swaywm/go-wlroots/wlroots"
)

func hookWlrootsLog() {
	wlroots.OnLog(wlroots.LogImportanceError, func(importance wlroots.LogImportance, msg string) {
		switch importance {
		case wlroots.LogImportanceDebug:
			logrus.Debugln(msg)
		case wlroots.LogImportanceInfo:
			logrus.Infoln(msg)
		case wlroots.LogImportanceError:
			logrus.Errorln(msg)
		case wlroots.LogImportanceSilent:
			return
		}
	})
}

// compositorMain runs the compositor on whatever wlroots finds, a DRM device or a window
func compositorMain(conf *config.Config) {
	hookWlrootsLog()

	sess := session.New(conf.Compositor)

	// start the server
	server, err := NewServer(sess)
	if err != nil {
		fatal("initializing server", err)
	}
	if err = server.Start(); err != nil {
		fatal("starting server", err)
	}
	if err = sess.Start(context.Background()); err != nil {
		fatal("starting compositor", err)
	}

	go startupRunner(conf, sess, server.Stop)

	// start the wayland event loop
	if err = server.Run(); err != nil {
		fatal("running server", err)
	}
	if err = sess.Close(); err != nil {
		logrus.WithError(err).Errorln("Client failed")
	}
}
