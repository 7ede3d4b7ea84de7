package orchestrator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

const (
	consolePrompt     = ">> "
	maxConsoleLineLen = 1 << 20
)

// Run reads one user turn per line from in and writes each output to out.
// Blank lines are skipped. End of input ends the session without error.
func (o *Orchestrator) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxConsoleLineLen)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(out, consolePrompt)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read user input: %w", err)
			}
			o.logger.Info().Msg("input closed, ending session")
			return nil
		}

		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		reply, err := o.HandleMessage(ctx, line)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Output: %s\n", reply)
	}
}
