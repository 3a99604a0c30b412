package wallet

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Prompter asks yes/no questions on a shared input stream.
// A single goroutine owns the reader, so a prompt abandoned on ctx
// leaves its answer for the next one instead of racing it.
type Prompter struct {
	mu    sync.Mutex
	out   io.Writer
	lines chan string
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{out: out, lines: make(chan string)}
	go p.readLines(in)
	return p
}

func (p *Prompter) readLines(in io.Reader) {
	defer close(p.lines)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		p.lines <- scanner.Text()
	}
}

// Confirm prints question and waits for a line. Only y or yes count as
// consent. It returns io.EOF once the input is exhausted.
func (p *Prompter) Confirm(ctx context.Context, question string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprint(p.out, question)

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case line, ok := <-p.lines:
		if !ok {
			return false, io.EOF
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	}
}
