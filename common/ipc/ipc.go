// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package ipc

// TODO: Look into adding support for sway and hyprland ipc so that w2g can interact with those in tool mode

type (
	// A request to list the available Outputs
	OutputRequest struct {
		// Whether to include the modes an output supports
		IncludeModes    bool   `json:"include_modes"`
		// Target one specific output
		SpecifiesOutput bool   `json:"specifies_output"`
		// Name of the output you want info on. Only matters if SpecifiesOutput is set
		TargetOutput    string `json:"target_output"`
	}

	// A mode an output supports
	OutputMode struct {
		// Mode height in pixel
		Height      int  `json:"height"`
		// Mode width in pixel
		Width       int  `json:"width"`
		// Refresh rate of the mode in millihertz
		RefreshRate int  `json:"refresh_rate"`
		Preferred   bool `json:"preferred"`
	}

	// Response to a OutputRequest message
	OutputResponse struct {
		// List of all outputs. Only contains target output if specified
		Outputs      []string                `json:"outputs"`
		// A list of modes an output supports. Only set if IncludeModes is true
		OutputModes  map[string][]OutputMode `json:"output_modes,omitempty"`
		// Nr of outputs found
		OutputsFound int                     `json:"outputs_found"`
	}

	// State of the compositor and all of its outputs
	StatusResponse struct {
		Running     bool           `json:"running"`
		BufferCount int            `json:"buffer_count"`
		Outputs     []OutputStatus `json:"outputs"`
	}

	OutputStatus struct {
		Name          string        `json:"name"`
		// Whether the output's compositor thread is compositing
		Running       bool          `json:"running"`
		// Frames the client side posted
		FramesPainted uint64        `json:"frames_painted"`
		// Frames shown on the output, only known for headless outputs
		FramesShown   uint64        `json:"frames_shown,omitempty"`
		Swapper       SwapperStatus `json:"swapper"`
	}

	// Snapshot of an output's buffer swapper
	SwapperStatus struct {
		Size            int            `json:"size"`
		ClientQueue     []uint32       `json:"client_queue"`
		CompositorQueue []uint32       `json:"compositor_queue"`
		// Buffer ID to number of compositor uses
		Acquired        map[uint32]int `json:"acquired"`
		InUseByClient   int            `json:"in_use_by_client"`
		WaitingClients  int            `json:"waiting_clients"`
	}
)
