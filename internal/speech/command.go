package speech

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/kballard/go-shellquote"
)

const interimPrefix = "partial:"

// Command runs external programs for speech. The synthesizer receives the
// text on stdin. The recognizer prints one result per line, with interim
// results prefixed by "partial:", and reports failures by exiting non-zero
// with an error code such as "no-speech" on stderr.
type Command struct {
	args []string
}

var (
	_ Synthesizer = (*Command)(nil)
	_ Recognizer  = (*Command)(nil)
)

// NewCommand parses a shell-style command line.
func NewCommand(line string) (*Command, error) {
	args, err := shellquote.Split(line)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command %q: %w", line, err)
	}
	if len(args) == 0 {
		return nil, errors.New("empty speech command")
	}
	return &Command{args: args}, nil
}

func (c *Command) Speak(ctx context.Context, text string) error {
	cmd := exec.CommandContext(ctx, c.args[0], c.args[1:]...)
	cmd.Stdin = strings.NewReader(text)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to run %s: %w: %s", c.args[0], err, bytes.TrimSpace(out))
	}
	return nil
}

func (c *Command) Recognize(ctx context.Context, onEvent func(Event)) error {
	cmd := exec.CommandContext(ctx, c.args[0], c.args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return NewError("audio-capture", err)
	}
	if err := cmd.Start(); err != nil {
		return NewError("audio-capture", err)
	}

	var results []Result
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		result := Result{Transcript: strings.TrimSpace(line) + " ", Final: true}
		if rest, ok := strings.CutPrefix(line, interimPrefix); ok {
			result = Result{Transcript: strings.TrimSpace(rest)}
		}

		index := len(results)
		// an interim result is replaced by whatever follows it
		if index > 0 && !results[index-1].Final {
			index--
			results = results[:index]
		}
		results = append(results, result)
		onEvent(Event{ResultIndex: index, Results: results})
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return NewError("aborted", ctx.Err())
		}
		code := strings.TrimSpace(stderr.String())
		if fields := strings.Fields(code); len(fields) > 0 {
			code = fields[0]
		} else {
			code = "audio-capture"
		}
		return NewError(code, err)
	}
	return nil
}
