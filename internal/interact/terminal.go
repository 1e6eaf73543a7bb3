package interact

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
)

// Terminal reads answers and commands from one line-oriented input. Lines go
// to the oldest pending prompt first, so a prompt raised by a running
// operation never competes with the command loop for input.
type Terminal struct {
	out     io.Writer
	writeMu sync.Mutex
	// setEcho turns input echo off and back on around secret prompts. It is
	// nil when the input is not a terminal.
	setEcho func(on bool) error

	mu       sync.Mutex
	prompts  []chan string
	commands []chan string
	backlog  []string
	eof      bool
}

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	t := &Terminal{out: out, setEcho: terminalEcho(in)}
	go t.read(in)
	return t
}

func (t *Terminal) read(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		t.dispatch(scanner.Text())
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.eof = true
	for _, ch := range t.prompts {
		close(ch)
	}
	for _, ch := range t.commands {
		close(ch)
	}
	t.prompts, t.commands = nil, nil
}

func (t *Terminal) dispatch(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// waiters are buffered so delivering under the lock never blocks.
	switch {
	case len(t.prompts) > 0:
		t.prompts[0] <- line
		t.prompts = t.prompts[1:]
	case len(t.commands) > 0:
		t.commands[0] <- line
		t.commands = t.commands[1:]
	default:
		t.backlog = append(t.backlog, line)
	}
}

// next returns the first buffered line or registers a waiter in queue.
func (t *Terminal) next(queue *[]chan string) (string, chan string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.backlog) > 0 {
		line := t.backlog[0]
		t.backlog = t.backlog[1:]
		return line, nil, true
	}
	if t.eof {
		return "", nil, false
	}
	ch := make(chan string, 1)
	*queue = append(*queue, ch)
	return "", ch, true
}

func (t *Terminal) wait(ctx context.Context, queue *[]chan string) (string, bool, error) {
	line, ch, ok := t.next(queue)
	if !ok {
		return "", false, nil
	}
	if ch == nil {
		return line, true, nil
	}

	select {
	case line, ok := <-ch:
		return line, ok, nil
	case <-ctx.Done():
		t.mu.Lock()
		defer t.mu.Unlock()
		*queue = slices.DeleteFunc(*queue, func(c chan string) bool { return c == ch })
		select {
		case line, ok := <-ch:
			if ok {
				t.backlog = append([]string{line}, t.backlog...)
			}
		default:
		}
		return "", false, ctx.Err()
	}
}

func (t *Terminal) Ask(ctx context.Context, prompt Prompt) (string, bool, error) {
	if prompt.Default != "" {
		t.print(fmt.Sprintf("%s [%s]: ", prompt.Message, prompt.Default))
	} else {
		t.print(prompt.Message + ": ")
	}

	if prompt.Secret && t.setEcho != nil {
		if err := t.setEcho(false); err != nil {
			return "", false, fmt.Errorf("failed to disable echo: %w", err)
		}
		defer func() {
			_ = t.setEcho(true)
			// the newline typed by the user was not echoed
			t.print("\n")
		}()
	}

	line, ok, err := t.wait(ctx, &t.prompts)
	if err != nil || !ok {
		return "", false, err
	}
	if line == "" && prompt.Default != "" {
		return prompt.Default, true, nil
	}
	return line, true, nil
}

// ReadCommand blocks until the next line not claimed by a prompt. It returns
// ok=false once the input is exhausted.
func (t *Terminal) ReadCommand(ctx context.Context) (string, bool, error) {
	return t.wait(ctx, &t.commands)
}

func (t *Terminal) Notify(notice Notice) {
	t.print(notice.String() + "\n")
}

func (t *Terminal) print(s string) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, _ = io.WriteString(t.out, s)
}
