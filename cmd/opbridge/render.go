package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/GriffinCanCode/AgentOS/opbridge/internal/isolate"
)

var (
	errorLabel = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B"))

	stackStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// colorEnabled follows NO_COLOR and only styles terminals.
func colorEnabled(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printError(w io.Writer, err error) {
	label, stack := "error:", ""
	msg := err.Error()

	var se *isolate.ScriptError
	if errors.As(err, &se) {
		msg = se.Message
		if se.Stack != "" && se.Stack != se.Message {
			stack = se.Stack
		}
	}

	if colorEnabled(w) {
		label = errorLabel.Render(label)
		if stack != "" {
			stack = stackStyle.Render(stack)
		}
	}

	fmt.Fprintln(w, label, msg)
	if stack != "" {
		fmt.Fprintln(w, stack)
	}
}

func formatResult(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	out, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}
