package util

import (
	"strings"
	"testing"

	"github.com/zeebo/assert"
)

func TestUnpack(t *testing.T) {
	var cmd, output, file string
	Unpack(strings.Fields("capture HEADLESS-1 shot.png extra"), &cmd, &output, &file)
	assert.Equal(t, cmd, "capture")
	assert.Equal(t, output, "HEADLESS-1")
	assert.Equal(t, file, "shot.png")

	file = "untouched"
	Unpack(strings.Fields("status"), &cmd, &output, &file)
	assert.Equal(t, cmd, "status")
	assert.Equal(t, file, "untouched")
}
