// Package prompt reads pairing codes from the operator.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ErrNoInput is returned when the input stream ends before a line is read.
var ErrNoInput = errors.New("no operator input available")

// Terminal prompts on an output stream and reads answers line by line.
type Terminal struct {
	out         io.Writer
	interactive bool
	reader      *bufio.Reader

	mu      sync.Mutex
	pending chan result // read in flight, nil when idle
}

type result struct {
	line string
	err  error
}

// NewStdio prompts on stderr and reads stdin. The label is only printed
// when stdin is a terminal; piped input is read silently.
func NewStdio() *Terminal {
	return New(os.Stdin, os.Stderr, term.IsTerminal(int(os.Stdin.Fd())))
}

func New(in io.Reader, out io.Writer, interactive bool) *Terminal {
	return &Terminal{out: out, interactive: interactive, reader: bufio.NewReader(in)}
}

// Interactive reports whether an operator is attached.
func (t *Terminal) Interactive() bool { return t.interactive }

// Prompt prints label and returns the next input line without its line
// terminator. A canceled ctx abandons the wait but not the read: the line
// it produces is returned by the next call.
func (t *Terminal) Prompt(ctx context.Context, label string) (string, error) {
	t.mu.Lock()
	if t.interactive {
		fmt.Fprint(t.out, label)
	}
	ch := t.pending
	if ch == nil {
		ch = make(chan result, 1)
		t.pending = ch
		go t.read(ch, label)
	}
	t.mu.Unlock()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		t.mu.Lock()
		if t.pending == ch {
			t.pending = nil
		}
		t.mu.Unlock()
		return r.line, r.err
	}
}

// read runs one line read; only one is in flight at a time.
func (t *Terminal) read(ch chan<- result, label string) {
	line, err := t.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			err = ErrNoInput
		}
		ch <- result{err: fmt.Errorf("read %q: %w", strings.TrimSpace(label), err)}
		return
	}
	ch <- result{line: strings.TrimRight(line, "\r\n")}
}
