// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Returned by a MessageHandler to end the repl after its answer has been written
var ErrQuit = errors.New("quit")

type MessageHandler func(string, *Repl) (string, error)

// ReadCloser combines the Reader and Closer interfaces
type ReadCloser interface {
	io.Reader
	io.Closer
}

type Repl struct {
	Input   ReadCloser
	Output  io.WriteCloser
	scanner *bufio.Scanner
	writer  *bufio.Writer
}

// Creates a new repl
// If no input is given, stdin will be used
// If no output is given, stdout will be used
// Note: The given reader and writer will be closed if the repl is started and then stops
func NewRepl(in ReadCloser, out io.WriteCloser) *Repl {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &Repl{
		Input:   in,
		Output:  out,
		scanner: bufio.NewScanner(in),
		writer:  bufio.NewWriter(out),
	}
}

// Starts the repl
// Blocks execution until the repl closes
// All input will be passed to the handler func, empty lines are skipped
// If it receives an error from the message handler or during writing, it calls Close
// ErrQuit from the handler writes the answer, closes the repl and returns nil
func (r *Repl) Run(onMessage MessageHandler) error {
	for r.scanner.Scan() {
		newMessage := strings.TrimSpace(r.scanner.Text())
		if newMessage == "" {
			continue
		}
		res, err := onMessage(newMessage, r)
		quit := errors.Is(err, ErrQuit)
		if err != nil && !quit {
			r.Close()
			return fmt.Errorf("message handler errored out on message \"%s\": %w", newMessage, err)
		}
		if err = r.WriteLine(res); err != nil {
			r.Close()
			return err
		}
		if quit {
			r.Close()
			return nil
		}
	}
	return r.scanner.Err()
}

// WriteLine writes a line to the repl's output right away
func (r *Repl) WriteLine(line string) error {
	if _, err := r.writer.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("failed to write result \"%s\": %w", line, err)
	}
	if err := r.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	return nil
}

// Close stops the repl if it was still running
// This will also close the reader and writer
func (r *Repl) Close() error {
	return errors.Join(r.Input.Close(), r.Output.Close())
}
