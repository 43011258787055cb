package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"

	"github.com/mstarongithub/w2g-compositor/common/ipc"
	"github.com/mstarongithub/w2g-compositor/compositor"
	"github.com/mstarongithub/w2g-compositor/config"
	"github.com/mstarongithub/w2g-compositor/session"
	"github.com/sirupsen/logrus"
)

var (
	utilAction *string = flag.String(
		"action",
		"outputs",
		"The action to perform. Can be one of:"+
			"\n\t- none: Do nothing"+
			"\n\t- outputs: List available outputs"+
			"\n\t- modes <output>: List available modes for an output"+
			"\n\t- simulate: Run a headless compositor for -frames frames and print its status",
	)
	outputSelection *string = flag.String(
		"output",
		"",
		"Output to perform the action on. Required for some actions",
	)
	simulateFrames *int = flag.Int(
		"frames",
		120,
		"Number of frames to composite with -action simulate",
	)
)

func headlessOutputName(i int) string {
	return fmt.Sprintf("HEADLESS-%d", i+1)
}

func utilMain(conf *config.Config) {
	if *help {
		utilHelpMessage()
		return
	}

	switch *utilAction {
	case "none":
	case "outputs":
		res, err := toolOutputs(conf, ipc.OutputRequest{})
		if err != nil {
			logrus.WithError(err).Fatal("listing outputs")
		}
		utilListOutputs(res)
	case "modes":
		if *outputSelection == "" {
			fmt.Println("Output has to be specified")
			return
		}
		res, err := toolOutputs(conf, ipc.OutputRequest{
			IncludeModes:    true,
			SpecifiesOutput: true,
			TargetOutput:    *outputSelection,
		})
		if err != nil {
			logrus.WithError(err).Fatal("listing modes")
		}
		utilListOutputModes(res, *outputSelection)
	case "simulate":
		if err := utilSimulate(conf, *simulateFrames); err != nil {
			logrus.WithError(err).Fatal("simulating")
		}
	default:
		fmt.Printf("Unknown action %s\n", *utilAction)
		utilHelpMessage()
	}
}

func utilHelpMessage() {
	fmt.Println("---- Help message for Way2Gay in tool mode ----")
	fmt.Println("\nIn tool mode, w2g will offer various tools for figuring out configurations and similar")
	fmt.Println("\nGeneral flags:")
	fmt.Println("\t-config: Path to the config file. Default is $XDG_CONFIG_HOME/" + config.XdgConfigFile)
	fmt.Println("\t-tool: Start as a tool instead of a compositor")
	fmt.Println("\t-help: Show this help message (or the one for compositor mode if -tool is not set)")
	fmt.Println("\nTool flags:")
	fmt.Println("\t-action: The action to perform. Can be one of:")
	fmt.Println("\t\t- (default) outputs: List available outputs")
	fmt.Println("\t\t- modes: List available modes for an output. Use with -output")
	fmt.Println("\t\t- simulate: Composite -frames frames on headless outputs and print the status")
	fmt.Println("\t-output: Output to perform the action on. Required for -action modes")
	fmt.Println("\t-frames: Frames to composite for -action simulate. Default is 120")
}

func utilListOutputs(res ipc.OutputResponse) {
	for i, output := range res.Outputs {
		fmt.Printf("Output %v: %s\n", i, output)
	}
}

func utilListOutputModes(res ipc.OutputResponse, outputName string) {
	if res.OutputsFound == 0 {
		fmt.Printf("Output %s not found\n", outputName)
		return
	}
	fmt.Printf("Modes for output %s:\n", outputName)
	for _, mode := range res.OutputModes[outputName] {
		if mode.Preferred {
			fmt.Printf("\t- %dx%d@%d (preferred)\n", mode.Width, mode.Height, mode.RefreshRate)
		} else {
			fmt.Printf("\t- %dx%d@%d\n", mode.Width, mode.Height, mode.RefreshRate)
		}
	}
}

// utilSimulate runs clients and the compositor on headless outputs for a number of
// clock ticks and prints the resulting status
func utilSimulate(conf *config.Config, frames int) error {
	clock, err := compositor.NewClock(conf.Compositor.RefreshRate)
	if err != nil {
		return err
	}
	defer clock.Close()

	sess := session.New(conf.Compositor, session.WithFaultHandler(func(err error) {
		logrus.WithError(err).Errorln("Simulated output failed")
	}))
	defer sess.Close()

	names := make([]string, 0, conf.Compositor.HeadlessOutputs)
	for i := range conf.Compositor.HeadlessOutputs {
		name := headlessOutputName(i)
		if err := sess.AddOutput(compositor.NewHeadlessOutput(name, sess.Size())); err != nil {
			return err
		}
		names = append(names, name)
	}

	ticks, err := clock.Subscribe("simulate")
	if err != nil {
		return err
	}
	if err := sess.Start(context.Background()); err != nil {
		return err
	}
	clock.Start()

	for range frames {
		<-ticks
		for _, name := range names {
			if err := sess.Frame(name); err != nil {
				return err
			}
		}
	}

	out, err := json.MarshalIndent(sess.Status(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
