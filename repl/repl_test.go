// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package repl

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/mstarongithub/w2g-compositor/util/wrappers"
	"github.com/zeebo/assert"
)

func newTestRepl(input string) (*Repl, *bytes.Buffer) {
	var out bytes.Buffer
	return NewRepl(wrappers.NewReaderWrapper(strings.NewReader(input)), wrappers.NewWriterWrapper(&out)), &out
}

func TestReplAnswersEveryLine(t *testing.T) {
	r, out := newTestRepl("one\n\n  two  \n")
	err := r.Run(func(in string, _ *Repl) (string, error) {
		return strings.ToUpper(in), nil
	})
	assert.NoError(t, err)
	assert.Equal(t, out.String(), "ONE\nTWO\n")
}

func TestReplQuit(t *testing.T) {
	r, out := newTestRepl("quit\nnever\n")
	err := r.Run(func(in string, _ *Repl) (string, error) {
		if in == "quit" {
			return "Quitting", ErrQuit
		}
		return in, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, out.String(), "Quitting\n")

	// Closed along with the repl
	_, err = r.Input.Read(make([]byte, 1))
	assert.That(t, errors.Is(err, wrappers.ErrClosed))
	_, err = r.Output.Write([]byte("x"))
	assert.That(t, errors.Is(err, wrappers.ErrClosed))
}

func TestReplHandlerError(t *testing.T) {
	r, out := newTestRepl("bad\n")
	boom := errors.New("boom")
	err := r.Run(func(string, *Repl) (string, error) {
		return "", boom
	})
	assert.That(t, errors.Is(err, boom))
	assert.Equal(t, out.Len(), 0)
}
