// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package session wires clients, swappers and the compositor of every output together.
// Both the wlroots and the headless backend drive a Session
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/mstarongithub/w2g-compositor/client"
	"github.com/mstarongithub/w2g-compositor/common/ipc"
	"github.com/mstarongithub/w2g-compositor/compositor"
	"github.com/mstarongithub/w2g-compositor/config"
	"github.com/mstarongithub/w2g-compositor/graphics"
	"github.com/mstarongithub/w2g-compositor/swapper"
	"github.com/mstarongithub/w2g-compositor/util/multiplexer"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	ErrClosed        = errors.New("session closed")
	ErrNotStarted    = errors.New("session not started")
	ErrUnknownOutput = compositor.ErrUnknownOutput
	ErrNothingShown  = compositor.ErrNothingShown
)

type output struct {
	out      compositor.Output
	swapper  *swapper.Switcher
	composer *compositor.SwapperCompositor
	painter  *client.Painter
}

// Session owns one swapper and one painting client per output plus the compositor
// showing them
type Session struct {
	mu          sync.Mutex
	alloc       graphics.Allocator
	size        graphics.Size
	bufferCount int
	outputs     []*output

	comp *compositor.Compositor

	faultChan chan error
	faults    *multiplexer.ManyToOne[error]
	onFault   func(error)
	faultDone chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	painters *errgroup.Group
	started  bool
	closed   bool
}

type Option func(*Session)

// WithFaultHandler replaces the default handler, which exits the process
func WithFaultHandler(h func(error)) Option {
	return func(s *Session) {
		s.onFault = h
	}
}

func WithAllocator(alloc graphics.Allocator) Option {
	return func(s *Session) {
		s.alloc = alloc
	}
}

func New(conf config.Compositor, opts ...Option) *Session {
	s := &Session{
		alloc:       graphics.NewSoftwareAllocator(),
		size:        graphics.Size{Width: conf.Width, Height: conf.Height},
		bufferCount: conf.BufferCount,
		faultChan:   make(chan error, 16),
		faultDone:   make(chan struct{}),
		onFault: func(err error) {
			logrus.WithError(err).Fatalln("Compositor fault")
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.faults = multiplexer.NewManyToOne(s.faultChan)
	s.comp = compositor.NewCompositor(func(err error) {
		if sendErr := s.faults.Send(err); sendErr != nil {
			logrus.WithError(err).Errorln("Compositor fault after session close")
		}
	})
	go s.dispatchFaults()
	return s
}

func (s *Session) dispatchFaults() {
	defer close(s.faultDone)
	for err := range s.faultChan {
		s.onFault(err)
	}
}

// Size of the buffers clients render into
func (s *Session) Size() graphics.Size {
	return s.size
}

// AddOutput gives out its own buffers, swapper and client.
// On a started session the client starts painting right away
func (s *Session) AddOutput(out compositor.Output) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	buffers, err := s.alloc.Alloc(s.bufferCount, s.size)
	if err != nil {
		return fmt.Errorf("allocating buffers for %s: %w", out.Name(), err)
	}
	multi, err := swapper.NewMulti(buffers, s.bufferCount)
	if err != nil {
		return err
	}
	o := &output{
		out:     out,
		swapper: swapper.NewSwitcher(multi),
	}
	o.composer = compositor.NewSwapperCompositor(o.swapper, out)
	o.painter = client.NewPainter(out.Name(), o.swapper)

	if err := s.comp.Add(out, o.composer); err != nil {
		return err
	}
	s.outputs = append(s.outputs, o)
	if s.started {
		s.startPainter(o)
	}
	logrus.WithFields(logrus.Fields{
		"output":  out.Name(),
		"buffers": s.bufferCount,
		"size":    s.size,
	}).Infoln("Output ready")
	return nil
}

func (s *Session) startPainter(o *output) {
	s.painters.Go(func() error {
		return o.painter.Run(s.ctx)
	})
}

// Start starts the clients and the compositor
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.started {
		return errors.New("session already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.painters = &errgroup.Group{}
	for _, o := range s.outputs {
		s.startPainter(o)
	}
	s.started = true
	return s.comp.Start()
}

// Pause stops compositing on all outputs. Clients keep their buffers and block once
// everything is posted
func (s *Session) Pause() error {
	if err := s.check(); err != nil {
		return err
	}
	return s.comp.Stop()
}

func (s *Session) Resume() error {
	if err := s.check(); err != nil {
		return err
	}
	return s.comp.Start()
}

func (s *Session) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return ErrClosed
	case !s.started:
		return ErrNotStarted
	}
	return nil
}

// Frame tells the compositor that output name is ready for its next frame
func (s *Session) Frame(name string) error {
	return s.comp.Schedule(name, 1)
}

// SetBufferCount switches every output to n buffers without losing frames in flight
func (s *Session) SetBufferCount(n int) error {
	if n != 2 && n != 3 {
		return fmt.Errorf("%w: buffer count has to be 2 or 3, got %d", swapper.ErrConstruction, n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	var errs []error
	for _, o := range s.outputs {
		if err := o.swapper.ChangeSwapper(swapper.MultiFactory(s.alloc, n)); err != nil {
			errs = append(errs, fmt.Errorf("output %s: %w", o.out.Name(), err))
		}
	}
	if len(errs) == 0 {
		s.bufferCount = n
		logrus.WithField("buffers", n).Infoln("Changed buffer count")
	}
	return errors.Join(errs...)
}

func (s *Session) Status() ipc.StatusResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := ipc.StatusResponse{
		Running:     s.started && !s.closed && s.comp.IsRunning(),
		BufferCount: s.bufferCount,
		Outputs:     make([]ipc.OutputStatus, 0, len(s.outputs)),
	}
	for _, o := range s.outputs {
		outStatus := ipc.OutputStatus{
			Name:          o.out.Name(),
			Running:       s.comp.OutputRunning(o.out.Name()),
			FramesPainted: o.painter.Frames(),
			Swapper:       swapperStatus(o.swapper.Stats()),
		}
		if counter, ok := o.out.(interface {
			Frames() (uint64, graphics.BufferID)
		}); ok {
			outStatus.FramesShown, _ = counter.Frames()
		}
		status.Outputs = append(status.Outputs, outStatus)
	}
	return status
}

func swapperStatus(st swapper.Stats) ipc.SwapperStatus {
	status := ipc.SwapperStatus{
		Size:            st.Size,
		ClientQueue:     idsToUint32(st.ClientQueue),
		CompositorQueue: idsToUint32(st.CompositorQueue),
		Acquired:        map[uint32]int{},
		InUseByClient:   st.InUseByClient,
		WaitingClients:  st.ClientsTryingToAcquire,
	}
	for _, a := range st.Acquired {
		status.Acquired[uint32(a.ID)] = a.UseCount
	}
	return status
}

func idsToUint32(ids []graphics.BufferID) []uint32 {
	out := make([]uint32, 0, len(ids))
	for _, id := range ids {
		out = append(out, uint32(id))
	}
	return out
}

// Capture writes the frame currently shown on output name as PNG, scaled down to fit maxSize.
// An empty maxSize keeps the buffer's size. Fails with ErrNothingShown before the
// output showed its first frame
func (s *Session) Capture(name string, w io.Writer, maxSize graphics.Size) error {
	o, err := s.find(name)
	if err != nil {
		return err
	}

	var img image.Image
	err = o.composer.ReadShown(func(buf graphics.Buffer) error {
		var captureErr error
		img, captureErr = graphics.Capture(buf, maxSize)
		return captureErr
	})
	if err != nil {
		return err
	}
	return graphics.WritePNG(w, img)
}

func (s *Session) find(name string) (*output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	for _, o := range s.outputs {
		if o.out.Name() == name {
			return o, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownOutput, name)
}

// Close stops the compositor and all clients and returns the first client error
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.comp.Close()
	for _, o := range s.outputs {
		o.swapper.ForceClientAbort()
	}

	var err error
	if s.started {
		s.cancel()
		err = s.painters.Wait()
	}
	for _, o := range s.outputs {
		o.swapper.EndResponsibility()
	}

	s.faults.Close()
	<-s.faultDone
	logrus.Debugln("Session closed")
	return err
}
