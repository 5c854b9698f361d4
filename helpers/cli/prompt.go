// Package cli is the line-oriented front end for manual actuator control.
package cli

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/mattn/go-isatty"
)

// IsInteractive reports whether stdin is a terminal.
func IsInteractive() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// MainLoop runs exec for every input line until stdin ends or isExit matches a line,
// then calls finish. On a terminal it uses go-prompt with completion, otherwise it reads plain lines.
func MainLoop(tag string, exec func(line string), complete func(d prompt.Document) []prompt.Suggest, isExit func(line string) bool, finish func()) {
	if !IsInteractive() {
		ReadLines(os.Stdin, exec, isExit)
		finish()
		return
	}
	wrapped := func(line string) {
		line = strings.TrimSpace(line)
		if isExit(line) {
			// go-prompt has no way to leave Run() from executor
			finish()
			os.Exit(0)
		}
		exec(line)
	}
	// TODO OptionHistory from a file next to the journal
	prompt.New(wrapped, complete,
		prompt.OptionTitle(tag),
		prompt.OptionPrefix(tag+"> "),
	).Run()
	finish()
}

// ReadLines is the non-interactive part of MainLoop.
func ReadLines(r io.Reader, exec func(line string), isExit func(line string) bool) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if isExit(line) {
			return
		}
		exec(line)
	}
}

// WaitEnter prints message and blocks until a line is read, only on a terminal.
func WaitEnter(w io.Writer, message string) {
	if !IsInteractive() {
		return
	}
	_, _ = io.WriteString(w, message)
	_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
}
