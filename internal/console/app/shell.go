package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/peterh/liner"

	"github.com/aussiebroadwan/invoicer/internal/router"
	"github.com/aussiebroadwan/invoicer/internal/session"
)

// shellCommands are handled by the shell itself.
var shellCommands = []command{
	{name: "go", args: "PATH", summary: "navigate to a page"},
	{name: "back", summary: "go back in history"},
	{name: "forward", summary: "go forward in history"},
	{name: "scroll", args: "Y", summary: "remember a scroll position for this page"},
	{name: "history", summary: "show visited pages"},
	{name: "exit", summary: "leave the shell"},
}

// cmdShell runs an interactive session with line editing and persistent
// history. Storage changes made by other processes are picked up while it
// runs.
func (app *Application) cmdShell(ctx context.Context, _ []string) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(app.complete)

	if f, err := os.Open(app.cfg.HistoryFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer app.saveHistory(line)

	app.startMetrics()

	watching, err := app.session.WatchStorage(ctx)
	if err != nil {
		app.logger.Warn("failed to watch storage", "error", err)
	}
	app.logger.Debug("shell started", "watching_storage", watching)

	prev := app.prompter
	app.prompter = line
	defer func() { app.prompter = prev }()

	return app.shellLoop(ctx, line)
}

func (app *Application) saveHistory(line *liner.State) {
	if err := os.MkdirAll(filepath.Dir(app.cfg.HistoryFile), 0o700); err != nil {
		return
	}
	f, err := os.OpenFile(app.cfg.HistoryFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = line.WriteHistory(f)
}

// lineSource is the part of *liner.State the shell loop reads from.
type lineSource interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

func (app *Application) shellLoop(ctx context.Context, src lineSource) error {
	// Report a session ended behind the shell's back, e.g. a rejected
	// refresh or a logout in another process.
	var mu sync.Mutex
	var lastVersion uint64
	wasAuthed := app.session.IsAuthenticated()
	unsubscribe := app.session.Subscribe(func(snap session.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if snap.Version <= lastVersion {
			return
		}
		lastVersion = snap.Version

		authed := snap.IsAuthenticated()
		if wasAuthed && !authed && !snap.Loading {
			app.printf("Session ended\n")
		}
		wasAuthed = authed
	})
	defer unsubscribe()

	app.printf("invoicer %s, type \"help\" for commands\n", BuildVersion)

	for {
		if ctx.Err() != nil {
			return nil
		}

		input, err := src.Prompt(app.promptString())
		switch {
		case errors.Is(err, liner.ErrPromptAborted):
			continue
		case errors.Is(err, io.EOF):
			app.printf("\n")
			return nil
		case err != nil:
			return err
		}

		fields := strings.Fields(input)
		if len(fields) == 0 {
			continue
		}
		src.AppendHistory(input)

		if fields[0] == "exit" || fields[0] == "quit" {
			return nil
		}
		if err := app.shellCommand(ctx, fields); err != nil {
			app.printf("error: %v\n", err)
		}
	}
}

func (app *Application) shellCommand(ctx context.Context, fields []string) error {
	switch fields[0] {
	case "go":
		if len(fields) != 2 {
			return fmt.Errorf("%w: go PATH", ErrUsage)
		}
		nav, err := app.router.Navigate(fields[1], router.KindPush)
		if err != nil {
			return err
		}
		app.printNavigation(nav)
		return nil

	case "back", "forward":
		step := app.router.Back
		if fields[0] == "forward" {
			step = app.router.Forward
		}
		nav, err := step()
		if err != nil {
			return err
		}
		app.printNavigation(nav)
		if nav.Scroll > 0 {
			app.printf("scroll restored to %d\n", nav.Scroll)
		}
		return nil

	case "scroll":
		if len(fields) != 2 {
			return fmt.Errorf("%w: scroll Y", ErrUsage)
		}
		y, err := strconv.Atoi(fields[1])
		if err != nil || y < 0 {
			return fmt.Errorf("%w: scroll Y, got %q", ErrUsage, fields[1])
		}
		app.router.SaveScroll(y)
		return nil

	case "history":
		paths, current := app.router.History()
		for i, p := range paths {
			marker := " "
			if i == current {
				marker = ">"
			}
			app.printf("%s %2d  %s\n", marker, i, p)
		}
		return nil

	case "shell":
		return errors.New("already in the shell")

	case "help":
		app.printUsage()
		app.printf("\nShell:\n")
		for _, c := range shellCommands {
			app.printf("  %-16s %-44s %s\n", c.name, c.args, c.summary)
		}
		return nil
	}
	return app.dispatch(ctx, fields)
}

func (app *Application) promptString() string {
	loc := "?"
	if cur, ok := app.router.Current(); ok {
		loc = cur.FullPath()
	}
	if user := app.session.Snapshot().User; user != nil {
		return fmt.Sprintf("%s %s> ", user.Email, loc)
	}
	return loc + "> "
}

// complete offers command names for the first word.
func (app *Application) complete(line string) []string {
	if strings.Contains(line, " ") {
		return nil
	}
	var out []string
	for _, c := range append(app.commands(), shellCommands...) {
		if strings.HasPrefix(c.name, line) {
			out = append(out, c.name)
		}
	}
	return out
}
