// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build !headless

package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mstarongithub/w2g-compositor/compositor"
	"github.com/mstarongithub/w2g-compositor/session"
	"github.com/sirupsen/logrus"
	"github.com/swaywm/go-wlroots/wlroots"
)

type Server struct {
	display     wlroots.Display // TODO: Refactor into slice of displays
	backend     wlroots.Backend
	renderer    wlroots.Renderer
	allocator   wlroots.Allocator
	scene       wlroots.Scene
	sceneLayout wlroots.SceneOutputLayout

	outputLayout wlroots.OutputLayout

	// Nil in tool mode, outputs are only listed then
	session *session.Session

	outputsLock sync.Mutex
	outputs     []*wlroots.Output
}

// sceneOutput is the session's view of a wlroots output.
// The scene renders the output itself, client frames handed to it are only accounted for
type sceneOutput struct {
	*compositor.HeadlessOutput
}

func (server *Server) handleNewFrame(output wlroots.Output) {
	/* This function is called every time an output is ready to display a frame,
	 * generally at the output's refresh rate (e.g. 60Hz). */

	logrus.WithField("name", output.Name()).Traceln("Output ready for frame")

	if server.session != nil {
		if err := server.session.Frame(output.Name()); err != nil {
			logrus.WithError(err).WithField("name", output.Name()).Debugln("Output has no compositor")
		}
	}

	sOut, err := server.scene.SceneOutput(output)
	if err != nil {
		return
	}

	/* Render the scene if needed and commit the output */
	sOut.Commit()
	sOut.SendFrameDone(time.Now())
}

func (server *Server) handleOutputRequestState(output wlroots.Output, state wlroots.OutputState) {
	/* This function is called when the backend requests a new state for
	 * the output. For example, Wayland and X11 backends request a new mode
	 * when the output window is resized. */
	logrus.WithFields(logrus.Fields{
		"output": output.Name(),
		"state":  state,
	}).Debugln("New state request for output")
	output.CommitState(state)
}

func (server *Server) handleOutputDestroy(output wlroots.Output) {
	logrus.WithField("name", output.Name()).Debugln("Output getting destroyed")
}

func (server *Server) handleNewOutput(output wlroots.Output) {
	/* This event is raised by the backend when a new output (aka a display or
	 * monitor) becomes available. */

	logrus.WithField("name", output.Name()).Debugln("New output added")
	server.outputsLock.Lock()
	server.outputs = append(server.outputs, &output)
	server.outputsLock.Unlock()

	/* Configures the output created by the backend to use our allocator
	 * and our renderer. Must be done once, before commiting the output */
	output.InitRender(server.allocator, server.renderer)

	/* The output may be disabled, switch it on. */
	oState := wlroots.NewOutputState()
	oState.StateInit()
	oState.StateSetEnabled(true)

	/* Some backends don't have modes. DRM+KMS does, and we need to set a mode
	 * before we can use the output. We just pick the monitor's preferred mode,
	 * picking a mode is display configuration policy and not done here. */
	mode, err := output.PrefferedMode()
	if err == nil {
		oState.SetMode(mode)
	}

	/* Atomically applies the new output state. */
	output.CommitState(oState)
	oState.Finish()

	output.OnFrame(server.handleNewFrame)
	output.OnRequestState(server.handleOutputRequestState)
	output.OnDestroy(server.handleOutputDestroy)

	/* Adds this to the output layout. The add_auto function arranges outputs
	 * from left-to-right in the order they appear.
	 *
	 * The output layout utility automatically adds a wl_output global to the
	 * display, which Wayland clients can see to find out information about the
	 * output (such as DPI, scale factor, manufacturer, etc).
	 */
	lOutput := server.outputLayout.AddOutputAuto(output)
	sceneOutput := server.scene.NewOutput(output)
	server.sceneLayout.AddOutput(lOutput, sceneOutput)

	if server.session != nil {
		if err := server.session.AddOutput(newSceneOutput(output.Name(), server.session)); err != nil {
			logrus.WithError(err).WithField("name", output.Name()).Errorln("Failed to set up compositing for output")
		}
	}

	err = output.SetTitle(fmt.Sprintf("way2gay - %s", output.Name()))
	if err != nil {
		return
	}
}

func newSceneOutput(name string, sess *session.Session) sceneOutput {
	return sceneOutput{HeadlessOutput: compositor.NewHeadlessOutput(name, sess.Size())}
}

func (server *Server) GetOutputs() []*wlroots.Output {
	server.outputsLock.Lock()
	defer server.outputsLock.Unlock()
	return append([]*wlroots.Output(nil), server.outputs...)
}

// NewServer sets up wlroots. Outputs showing up are given to sess, which may be nil
func NewServer(sess *session.Session) (server *Server, err error) {
	server = &Server{session: sess}

	/* The Wayland display is managed by libwayland. It handles accepting
	 * clients from the Unix socket, manging Wayland globals, and so on. */
	server.display = wlroots.NewDisplay()

	/* The backend is a wlroots feature which abstracts the underlying input and
	 * output hardware. The autocreate option will choose the most suitable
	 * backend based on the current environment, such as opening an X11 window
	 * if an X11 server is running. */
	server.backend, err = server.display.BackendAutocreate()
	if err != nil {
		return nil, err
	}

	/* Autocreates a renderer, either Pixman, GLES2 or Vulkan for us. The user
	 * can also specify a renderer using the WLR_RENDERER env var. */
	server.renderer, err = server.backend.RendererAutoCreate()
	if err != nil {
		return nil, err
	}
	server.renderer.InitDisplay(server.display)

	/* Autocreates an allocator for us.
	 * The allocator is the bridge between the renderer and the backend. */
	server.allocator, err = server.backend.AllocatorAutocreate(server.renderer)
	if err != nil {
		return nil, err
	}

	/* The compositor is necessary for clients to allocate surfaces, the
	 * subcompositor allows to assign the role of subsurfaces to surfaces and
	 * the data device manager handles the clipboard. */
	server.display.CompositorCreate(5, server.renderer)
	server.display.SubCompositorCreate()
	server.display.DataDeviceManagerCreate()

	server.outputLayout = wlroots.NewOutputLayout()
	server.backend.OnNewOutput(server.handleNewOutput)

	/* Create a scene graph. This is a wlroots abstraction that handles all
	 * rendering and damage tracking. */
	server.scene = wlroots.NewScene()
	server.sceneLayout = server.scene.AttachOutputLayout(server.outputLayout)

	return
}

func (server *Server) Start() error {

	/* Add a Unix socket to the Wayland display. */
	socket, err := server.display.AddSocketAuto()
	if err != nil {
		server.backend.Destroy()
		return err
	}
	logrus.WithField("socket", socket).Debugln("got wl socket")
	/* Start the backend. This will enumerate outputs and inputs, become the DRM
	 * master, etc */
	if err = server.backend.Start(); err != nil {
		server.backend.Destroy()
		server.display.Destroy()
		return err
	}

	/* Set the WAYLAND_DISPLAY environment variable to our socket and run the
	 * startup command if requested. */
	if res := os.Getenv("WAYLAND_DISPLAY"); res != "" {
		logrus.WithField("WAYLAND_DISPLAY", res).Debugln("Wayland display already set, overwriting")
	}
	if err = os.Setenv("WAYLAND_DISPLAY", socket); err != nil {
		return err
	}

	logrus.WithField("WAYLAND_DISPLAY", socket).Infoln("Running Wayland compositor")
	return err
}

func (server *Server) Run() error {

	/* Run the Wayland event loop. This does not return until you exit the
	 * compositor. Starting the backend rigged up all of the necessary event
	 * loop configuration to listen to libinput events, DRM events, generate
	 * frame events at the refresh rate, and so on. */
	server.display.Run()

	/* Once s.display.Run() returns, we destroy all clients then shut down the
	 * server. */
	server.display.DestroyClients()
	server.scene.Tree().Node().Destroy()
	server.outputLayout.Destroy()
	server.display.Destroy()
	return nil
}

func (server *Server) Stop() {
	server.display.Terminate()
}
