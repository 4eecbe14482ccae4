package controller

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// ErrPromptClosed is returned by Ask when the input stream is exhausted.
var ErrPromptClosed = errors.New("controller: prompt input closed")

// Prompter narrates to the user and reads their answers.
type Prompter interface {
	// Say writes one line of narration.
	Say(format string, args ...interface{})
	// Ask writes question and returns the next answer line, trimmed and lower-cased.
	Ask(question string) (string, error)
}

// LinePrompter is a Prompter over a line-oriented reader and a writer.
type LinePrompter struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewLinePrompter creates a prompter reading answers from in and writing to out.
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{scanner: bufio.NewScanner(in), out: out}
}

// Say implements Prompter.
func (p *LinePrompter) Say(format string, args ...interface{}) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

// Ask implements Prompter.
func (p *LinePrompter) Ask(question string) (string, error) {
	if question != "" {
		fmt.Fprintln(p.out, question)
	}
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", errors.Wrap(err, "controller: reading answer")
		}
		return "", ErrPromptClosed
	}
	return strings.ToLower(strings.TrimSpace(p.scanner.Text())), nil
}
