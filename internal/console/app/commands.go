package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/invoicer/internal/router"
	"github.com/aussiebroadwan/invoicer/pkg/billingsdk"
	"github.com/aussiebroadwan/invoicer/pkg/jwtx"
	"github.com/aussiebroadwan/invoicer/pkg/slogx"
)

var (
	ErrUnknownCommand  = errors.New("unknown command")
	ErrUsage           = errors.New("usage")
	ErrNotSignedIn     = errors.New("not signed in")
	ErrAlreadySignedIn = errors.New("already signed in")
	ErrNotAvailable    = errors.New("page not available")
)

type command struct {
	name    string
	args    string
	summary string
	run     func(ctx context.Context, args []string) error
}

func (app *Application) commands() []command {
	return []command{
		{"login", "[--email EMAIL]", "sign in", app.cmdLogin},
		{"logout", "", "sign out and forget the stored tokens", app.cmdLogout},
		{"whoami", "", "show the signed-in user", app.cmdWhoami},
		{"status", "", "show session, storage and location", app.cmdStatus},
		{"open", "PATH", "navigate to a page, applying the route guard", app.cmdOpen},
		{"routes", "", "list pages and whether the session may open them", app.cmdRoutes},
		{"invoices", "list|get|pdf|send-email|mark-sent|mark-paid", "work with invoices", app.cmdInvoices},
		{"clients", "list|get", "work with clients", app.cmdClients},
		{"payments", "list|get", "work with payments", app.cmdPayments},
		{"users", "list|get", "work with users (admin)", app.cmdUsers},
		{"reports", strings.Join(billingsdk.ReportNames, "|") + " [--path P]", "show a report", app.cmdReports},
		{"profile", "[set KEY=VALUE...]", "show or update your profile", app.cmdProfile},
		{"change-password", "", "change your password", app.cmdChangePassword},
		{"shell", "", "start an interactive shell", app.cmdShell},
		{"help", "", "show this help", app.cmdHelp},
	}
}

func (app *Application) dispatch(ctx context.Context, args []string) error {
	for _, c := range app.commands() {
		if c.name == args[0] {
			ctx = slogx.WithAttrs(ctx, "command", c.name)
			slogx.FromContext(ctx).Debug("command_started", "args", len(args)-1)
			return c.run(ctx, args[1:])
		}
	}
	return fmt.Errorf("%w %q, run \"help\"", ErrUnknownCommand, args[0])
}

func (app *Application) printUsage() {
	app.printf("Usage: invoicer [--json] COMMAND [ARGS]\n\nCommands:\n")
	for _, c := range app.commands() {
		app.printf("  %-16s %-44s %s\n", c.name, c.args, c.summary)
	}
}

func (app *Application) cmdHelp(context.Context, []string) error {
	app.printUsage()
	return nil
}

func (app *Application) flagSet(name string) *flag.FlagSet {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	flags.SetOutput(app.out)
	return flags
}

// visit navigates to path and fails when the guard sends the session
// somewhere else.
func (app *Application) visit(path string) error {
	nav, err := app.router.Navigate(path, router.KindPush)
	if err != nil {
		return err
	}
	if !nav.Redirected {
		return nil
	}

	switch nav.To.Path {
	case router.LoginPath:
		return fmt.Errorf("%w: %s needs a session, run \"login\"", ErrNotSignedIn, path)
	case router.HomePath:
		return fmt.Errorf("%w: %s is only for guests, run \"logout\" first", ErrAlreadySignedIn, path)
	}
	return fmt.Errorf("%w: %s", ErrNotAvailable, path)
}

func (app *Application) cmdLogin(ctx context.Context, args []string) error {
	flags := app.flagSet("login")
	email := flags.String("email", "", "account email")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if err := app.visit(router.LoginPath); err != nil {
		return err
	}

	var err error
	if *email == "" {
		if *email, err = app.prompter.Prompt("Email: "); err != nil {
			return err
		}
	}
	password, err := app.prompter.PasswordPrompt("Password: ")
	if err != nil {
		return err
	}

	res := app.session.Login(ctx, billingsdk.Credentials{
		Email:    strings.TrimSpace(*email),
		Password: password,
	})
	if !res.OK {
		return errors.New(res.Error)
	}

	// Some backends omit the user from the login response.
	if app.session.Snapshot().User == nil {
		if err := app.session.FetchUser(ctx); err != nil {
			return err
		}
	}

	if err := app.router.Push(router.HomePath); err != nil {
		return err
	}

	user := app.session.Snapshot().User
	app.printf("Signed in as %s (%s)\n", displayName(user), user.Role)
	return nil
}

func (app *Application) cmdLogout(ctx context.Context, _ []string) error {
	app.session.Logout(ctx)
	app.printf("Signed out\n")
	return nil
}

func (app *Application) cmdWhoami(_ context.Context, _ []string) error {
	snap := app.session.Snapshot()
	if !snap.IsAuthenticated() {
		return fmt.Errorf("%w, run \"login\"", ErrNotSignedIn)
	}
	if app.jsonMode {
		return app.printJSON(snap.User)
	}
	return printRecord(app.out, userTable, *snap.User)
}

type statusReport struct {
	API           string     `json:"api"`
	Storage       string     `json:"storage"`
	Authenticated bool       `json:"authenticated"`
	User          string     `json:"user,omitempty"`
	Role          string     `json:"role,omitempty"`
	Permissions   []string   `json:"permissions,omitempty"`
	TokenExpiry   *time.Time `json:"token_expiry,omitempty"`
	TokenExpired  bool       `json:"token_expired,omitempty"`
	Location      string     `json:"location"`
}

func (app *Application) cmdStatus(_ context.Context, _ []string) error {
	snap := app.session.Snapshot()

	st := statusReport{
		API:           app.cfg.APIURL,
		Storage:       app.cfg.Storage,
		Authenticated: snap.IsAuthenticated(),
		Role:          snap.Role(),
		Permissions:   snap.Permissions(),
	}
	if app.cfg.StoragePath != "" && (app.cfg.Storage == StorageFile || app.cfg.Storage == StorageSQLite) {
		st.Storage += " (" + app.cfg.StoragePath + ")"
	}
	if snap.User != nil {
		st.User = snap.User.Email
	}
	if exp, ok := app.session.TokenExpiry(); ok {
		st.TokenExpiry = &exp
		st.TokenExpired = jwtx.Expired(snap.AccessToken, time.Now(), 0)
	}
	if loc, ok := app.router.Current(); ok {
		st.Location = loc.FullPath()
	}

	if app.jsonMode {
		return app.printJSON(st)
	}

	app.printf("API:          %s\n", st.API)
	app.printf("Storage:      %s\n", st.Storage)
	app.printf("Signed in:    %s\n", yesNo(st.Authenticated))
	if st.User != "" {
		app.printf("User:         %s (%s)\n", st.User, st.Role)
		app.printf("Permissions:  %s\n", strings.Join(st.Permissions, ", "))
	}
	if st.TokenExpiry != nil {
		at := st.TokenExpiry.Local().Format(time.RFC3339)
		if st.TokenExpired {
			app.printf("Token:        expired %s, refreshed on next request\n", at)
		} else {
			app.printf("Token:        expires %s (in %s)\n", at, time.Until(*st.TokenExpiry).Round(time.Second))
		}
	}
	app.printf("Location:     %s\n", st.Location)
	return nil
}

func (app *Application) cmdOpen(_ context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: open PATH", ErrUsage)
	}
	nav, err := app.router.Navigate(args[0], router.KindPush)
	if err != nil {
		return err
	}
	app.printNavigation(nav)
	return nil
}

func (app *Application) printNavigation(nav router.Navigation) {
	label := nav.To.FullPath()
	if nav.To.Name != "" {
		label += " [" + nav.To.Name + "]"
	}
	if nav.Redirected {
		app.printf("%s (redirected from %s)\n", label, nav.Requested)
		return
	}
	app.printf("%s\n", label)
}

var routeTable = table[routeAccess]{
	headers: []string{"PATH", "NAME", "REQUIRES", "OPEN"},
	row: func(r routeAccess) []string {
		return []string{r.Path, r.Name, r.Requires, r.Open}
	},
}

type routeAccess struct {
	Path     string `json:"path"`
	Name     string `json:"name,omitempty"`
	Requires string `json:"requires,omitempty"`
	Open     string `json:"open"`
}

func (app *Application) cmdRoutes(_ context.Context, _ []string) error {
	var rows []routeAccess
	for _, rt := range app.router.Routes() {
		row := routeAccess{Path: rt.Path, Name: rt.Name, Requires: describeMeta(rt.Meta)}
		decision := router.Guard(app.session, rt)
		switch {
		case rt.Redirect != "":
			row.Open = "-> " + rt.Redirect
		case decision.Proceed():
			row.Open = "yes"
		default:
			row.Open = "-> " + decision.Redirect
		}
		rows = append(rows, row)
	}

	if app.jsonMode {
		return app.printJSON(rows)
	}
	return printTable(app.out, routeTable, rows)
}

func describeMeta(m router.Meta) string {
	var parts []string
	if m.RequiresAuth {
		parts = append(parts, "session")
	}
	if m.RequiresGuest {
		parts = append(parts, "guest")
	}
	if len(m.Permissions) > 0 {
		parts = append(parts, "perm:"+strings.Join(m.Permissions, ","))
	}
	if m.Roles != nil {
		parts = append(parts, "role:"+strings.Join(m.Roles, "|"))
	}
	return strings.Join(parts, " ")
}

func (app *Application) cmdProfile(ctx context.Context, args []string) error {
	if err := app.visit("/profile"); err != nil {
		return err
	}

	if len(args) == 0 {
		return app.cmdWhoami(ctx, nil)
	}
	if args[0] != "set" || len(args) < 2 {
		return fmt.Errorf("%w: profile [set KEY=VALUE...]", ErrUsage)
	}

	fields := billingsdk.Fields{}
	for _, kv := range args[1:] {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return fmt.Errorf("%w: expected KEY=VALUE, got %q", ErrUsage, kv)
		}
		fields[key] = value
	}

	res := app.session.UpdateProfile(ctx, fields)
	if !res.OK {
		return errors.New(res.Error)
	}
	app.printf("Profile updated\n")
	return nil
}

func (app *Application) cmdChangePassword(ctx context.Context, _ []string) error {
	if err := app.visit("/profile"); err != nil {
		return err
	}

	var change billingsdk.PasswordChange
	var err error
	if change.OldPassword, err = app.prompter.PasswordPrompt("Current password: "); err != nil {
		return err
	}
	if change.NewPassword, err = app.prompter.PasswordPrompt("New password: "); err != nil {
		return err
	}
	if change.NewPasswordConfirm, err = app.prompter.PasswordPrompt("Confirm new password: "); err != nil {
		return err
	}

	res := app.session.ChangePassword(ctx, change)
	if !res.OK {
		return errors.New(res.Error)
	}
	if res.Message != "" {
		app.printf("%s\n", res.Message)
	} else {
		app.printf("Password changed\n")
	}
	return nil
}

func displayName(u *billingsdk.User) string {
	if u == nil {
		return ""
	}
	if name := u.FullName(); name != "" {
		return name + " <" + u.Email + ">"
	}
	return u.Email
}
