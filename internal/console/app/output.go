package app

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"
)

// prompter reads answers from the user. *liner.State implements it.
type prompter interface {
	Prompt(prompt string) (string, error)
	PasswordPrompt(prompt string) (string, error)
}

// stdPrompter reads from the application's input, hiding passwords when the
// input is a terminal.
type stdPrompter struct {
	app *Application
}

func (p stdPrompter) Prompt(prompt string) (string, error) {
	fmt.Fprint(p.app.out, prompt)
	return readLine(p.app.in)
}

func (p stdPrompter) PasswordPrompt(prompt string) (string, error) {
	f := p.app.inFile
	if f == nil || !term.IsTerminal(int(f.Fd())) {
		return p.Prompt(prompt)
	}

	fmt.Fprint(p.app.out, prompt)
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(p.app.out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (app *Application) printf(format string, args ...any) {
	fmt.Fprintf(app.out, format, args...)
}

func (app *Application) printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(app.out, "%s\n", b)
	return err
}

// table is how one record type is shown as text.
type table[T any] struct {
	headers []string
	row     func(T) []string
}

func printTable[T any](w io.Writer, t table[T], items []T) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.headers, "\t"))
	for _, item := range items {
		fmt.Fprintln(tw, strings.Join(t.row(item), "\t"))
	}
	return tw.Flush()
}

// printRecord shows one record vertically, one field per line.
func printRecord[T any](w io.Writer, t table[T], item T) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, v := range t.row(item) {
		fmt.Fprintf(tw, "%s:\t%s\n", strings.ToLower(t.headers[i]), v)
	}
	return tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
