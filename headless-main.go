//go:build headless

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mstarongithub/w2g-compositor/compositor"
	"github.com/mstarongithub/w2g-compositor/config"
	"github.com/mstarongithub/w2g-compositor/session"
	"github.com/sirupsen/logrus"
)

// compositorMain runs the compositor without a display, frames are paced by a clock
func compositorMain(conf *config.Config) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, clock, err := startHeadless(ctx, conf)
	if err != nil {
		fatal("starting headless compositor", err)
	}
	logrus.WithField("outputs", conf.Compositor.HeadlessOutputs).Infoln("Running headless compositor")

	go startupRunner(conf, sess, stop)

	<-ctx.Done()
	clock.Close()
	if err = sess.Close(); err != nil {
		logrus.WithError(err).Errorln("Client failed")
	}
}

// startHeadless creates a session with the configured number of headless outputs,
// each scheduled by its own subscription to a shared clock
func startHeadless(ctx context.Context, conf *config.Config) (*session.Session, *compositor.Clock, error) {
	clock, err := compositor.NewClock(conf.Compositor.RefreshRate)
	if err != nil {
		return nil, nil, err
	}
	sess := session.New(conf.Compositor)

	for i := range conf.Compositor.HeadlessOutputs {
		name := headlessOutputName(i)
		if err := sess.AddOutput(compositor.NewHeadlessOutput(name, sess.Size())); err != nil {
			return nil, nil, err
		}
		ticks, err := clock.Subscribe(name)
		if err != nil {
			return nil, nil, err
		}
		go func() {
			for range ticks {
				if err := sess.Frame(name); err != nil {
					logrus.WithError(err).WithField("output", name).Warnln("Dropping frame")
				}
			}
		}()
	}

	if err := sess.Start(ctx); err != nil {
		return nil, nil, err
	}
	clock.Start()
	return sess, clock, nil
}
