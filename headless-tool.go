//go:build headless

package main

import (
	"slices"

	"github.com/mstarongithub/w2g-compositor/common/ipc"
	"github.com/mstarongithub/w2g-compositor/config"
)

// toolOutputs lists the outputs a headless compositor would create with the given config
func toolOutputs(conf *config.Config, req ipc.OutputRequest) (ipc.OutputResponse, error) {
	var res ipc.OutputResponse
	for i := range conf.Compositor.HeadlessOutputs {
		res.Outputs = append(res.Outputs, headlessOutputName(i))
	}
	if req.SpecifiesOutput {
		res.Outputs = slices.DeleteFunc(res.Outputs, func(name string) bool { return name != req.TargetOutput })
	}
	res.OutputsFound = len(res.Outputs)

	if req.IncludeModes {
		res.OutputModes = map[string][]ipc.OutputMode{}
		for _, name := range res.Outputs {
			res.OutputModes[name] = []ipc.OutputMode{{
				Width:       conf.Compositor.Width,
				Height:      conf.Compositor.Height,
				// Modes are in millihertz
				RefreshRate: conf.Compositor.RefreshRate * 1000,
				Preferred:   true,
			}}
		}
	}
	return res, nil
}
