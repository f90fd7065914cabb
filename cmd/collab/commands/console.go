package commands

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/dyluth/collab/internal/printer"
)

// errQuit ends the console loop.
var errQuit = errors.New("quit")

// consoleCommand is one parsed operator line.
type consoleCommand struct {
	name string
	args []string
}

// rest returns the arguments joined back into free text.
func (c consoleCommand) rest() string {
	return strings.Join(c.args, " ")
}

func parseCommand(line string) (consoleCommand, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return consoleCommand{}, false
	}
	return consoleCommand{name: strings.ToLower(fields[0]), args: fields[1:]}, true
}

// runConsole reads operator commands from r until ctx is cancelled or a
// handler returns errQuit. Other handler errors are printed and the loop
// continues. When r reaches EOF the console waits for ctx.
func runConsole(ctx context.Context, r io.Reader, prompt string, handle func(context.Context, consoleCommand) error) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	printer.Prompt(prompt)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				printer.Info("\ninput closed; press Ctrl-C to stop\n")
				<-ctx.Done()
				return nil
			}
			if cmd, ok := parseCommand(line); ok {
				err := handle(ctx, cmd)
				if errors.Is(err, errQuit) {
					return nil
				}
				if err != nil {
					printer.Warning("%v\n", err)
				}
			}
			printer.Prompt(prompt)
		}
	}
}
