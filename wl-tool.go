//go:build !headless

package main

import (
	"github.com/mstarongithub/w2g-compositor/common/ipc"
	"github.com/mstarongithub/w2g-compositor/config"
	"github.com/swaywm/go-wlroots/wlroots"
	"gitlab.com/mstarongitlab/goutils/sliceutils"
)

// toolOutputs starts wlroots without compositing, only to see which outputs it finds
func toolOutputs(_ *config.Config, req ipc.OutputRequest) (ipc.OutputResponse, error) {
	// Init a server, used for stuff like getting displays
	server, err := NewServer(nil)
	if err != nil {
		return ipc.OutputResponse{}, err
	}
	if err = server.Start(); err != nil {
		return ipc.OutputResponse{}, err
	}
	defer server.Stop()

	outputs := server.GetOutputs()
	if req.SpecifiesOutput {
		outputs = sliceutils.Filter(outputs, func(output *wlroots.Output) bool {
			return output.Name() == req.TargetOutput
		})
	}

	res := ipc.OutputResponse{OutputsFound: len(outputs)}
	if req.IncludeModes {
		res.OutputModes = map[string][]ipc.OutputMode{}
	}
	for _, output := range outputs {
		res.Outputs = append(res.Outputs, output.Name())
		if !req.IncludeModes {
			continue
		}
		for _, mode := range output.Modes() {
			res.OutputModes[output.Name()] = append(res.OutputModes[output.Name()], ipc.OutputMode{
				Width:       int(mode.Width()),
				Height:      int(mode.Height()),
				RefreshRate: int(mode.Refresh()),
				Preferred:   mode.Preferred(),
			})
		}
	}
	return res, nil
}
