package app

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/invoicer/pkg/billingsdk"
)

var invoiceTable = table[billingsdk.Invoice]{
	headers: []string{"ID", "NUMBER", "CLIENT", "STATUS", "ISSUED", "DUE", "TOTAL"},
	row: func(i billingsdk.Invoice) []string {
		return []string{
			strconv.FormatInt(i.ID, 10), i.InvoiceNumber, strconv.FormatInt(i.Client, 10),
			i.Status, i.IssueDate, i.DueDate, i.TotalAmount,
		}
	},
}

var clientTable = table[billingsdk.Client]{
	headers: []string{"ID", "CODE", "NAME", "EMAIL", "CITY", "ACTIVE"},
	row: func(c billingsdk.Client) []string {
		return []string{strconv.FormatInt(c.ID, 10), c.ClientCode, c.Name, c.Email, c.City, yesNo(c.IsActive)}
	},
}

var paymentTable = table[billingsdk.Payment]{
	headers: []string{"ID", "REFERENCE", "INVOICE", "AMOUNT", "DATE", "METHOD", "STATUS"},
	row: func(p billingsdk.Payment) []string {
		return []string{
			strconv.FormatInt(p.ID, 10), p.PaymentReference, strconv.FormatInt(p.Invoice, 10),
			p.Amount, p.PaymentDate, p.PaymentMethod, p.Status,
		}
	},
}

var userTable = table[billingsdk.User]{
	headers: []string{"ID", "EMAIL", "NAME", "ROLE", "ACTIVE"},
	row: func(u billingsdk.User) []string {
		return []string{strconv.FormatInt(u.ID, 10), u.Email, u.FullName(), u.Role, yesNo(u.IsActive)}
	},
}

// collection ties a backend resource to its pages and its text layout.
type collection[T any] struct {
	name     string
	listPath string
	// detail is the route name of a single item. Without one the list page
	// guards item reads too.
	detail string
	table  table[T]
	res    *billingsdk.Resource[T]
}

func runResource[T any](ctx context.Context, app *Application, c collection[T], args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: %s list|get", ErrUsage, c.name)
	}
	switch args[0] {
	case "list":
		return listResource(ctx, app, c, args[1:])
	case "get":
		return getResource(ctx, app, c, args[1:])
	}
	return fmt.Errorf("%w %q for %s", ErrUnknownCommand, args[0], c.name)
}

// keyValues collects repeated KEY=VALUE flags.
type keyValues map[string]string

func (kv keyValues) String() string {
	parts := make([]string, 0, len(kv))
	for k, v := range kv {
		parts = append(parts, k+"="+v)
	}
	slices.Sort(parts)
	return strings.Join(parts, ",")
}

func (kv keyValues) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected KEY=VALUE, got %q", s)
	}
	kv[k] = v
	return nil
}

func listResource[T any](ctx context.Context, app *Application, c collection[T], args []string) error {
	flags := app.flagSet(c.name + " list")
	opts := billingsdk.ListOptions{Filters: keyValues{}}
	flags.IntVar(&opts.Page, "page", 1, "page number")
	flags.IntVar(&opts.PageSize, "page-size", app.cfg.PageSize, "items per page")
	flags.StringVar(&opts.Search, "search", "", "search text")
	flags.StringVar(&opts.Ordering, "ordering", "", "sort field, prefix with - for descending")
	flags.Var(keyValues(opts.Filters), "filter", "KEY=VALUE filter, repeatable")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if err := app.visit(c.listPath); err != nil {
		return err
	}

	page, err := c.res.List(ctx, &opts)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", c.name, err)
	}

	if app.jsonMode {
		return app.printJSON(page)
	}
	if err := printTable(app.out, c.table, page.Results); err != nil {
		return err
	}
	app.printf("\n%d of %d %s", len(page.Results), page.Count, c.name)
	if page.HasNext() {
		app.printf(", next: --page %d", opts.Page+1)
	}
	app.printf("\n")
	return nil
}

func getResource[T any](ctx context.Context, app *Application, c collection[T], args []string) error {
	id, _, err := parseID(c.name+" get", args)
	if err != nil {
		return err
	}

	if err := app.visitItem(c.listPath, c.detail, id); err != nil {
		return err
	}

	item, err := c.res.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get %s %d: %w", c.name, id, err)
	}

	if app.jsonMode {
		return app.printJSON(item)
	}
	return printRecord(app.out, c.table, *item)
}

// visitItem navigates to the detail page of id, or the list page when the
// collection has none.
func (app *Application) visitItem(listPath, detail string, id int64) error {
	if detail == "" {
		return app.visit(listPath)
	}
	path, err := app.router.URL(detail, "id", strconv.FormatInt(id, 10))
	if err != nil {
		return err
	}
	return app.visit(path)
}

// parseID takes the leading ID argument and returns the rest.
func parseID(usage string, args []string) (int64, []string, error) {
	if len(args) == 0 {
		return 0, nil, fmt.Errorf("%w: %s ID", ErrUsage, usage)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, nil, fmt.Errorf("%w: %s ID, got %q", ErrUsage, usage, args[0])
	}
	return id, args[1:], nil
}

func (app *Application) invoiceCollection() collection[billingsdk.Invoice] {
	return collection[billingsdk.Invoice]{
		name:     "invoices",
		listPath: "/invoices",
		detail:   "invoice-detail",
		table:    invoiceTable,
		res:      &app.client.Invoices().Resource,
	}
}

func (app *Application) cmdInvoices(ctx context.Context, args []string) error {
	if len(args) > 0 {
		switch args[0] {
		case "pdf":
			return app.invoicePDF(ctx, args[1:])
		case "send-email":
			return app.invoiceSendEmail(ctx, args[1:])
		case "mark-sent", "mark-paid":
			return app.invoiceMark(ctx, args[0], args[1:])
		}
	}
	return runResource(ctx, app, app.invoiceCollection(), args)
}

func (app *Application) invoicePDF(ctx context.Context, args []string) error {
	id, rest, err := parseID("invoices pdf", args)
	if err != nil {
		return err
	}
	flags := app.flagSet("invoices pdf")
	output := flags.String("o", "", "output file (default invoice-ID.pdf)")
	if err := flags.Parse(rest); err != nil {
		return err
	}
	if *output == "" {
		*output = fmt.Sprintf("invoice-%d.pdf", id)
	}

	if err := app.visitItem("/invoices", "invoice-detail", id); err != nil {
		return err
	}

	data, contentType, err := app.client.Invoices().PDF(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to download invoice %d: %w", id, err)
	}
	if err := os.WriteFile(*output, data, 0o600); err != nil {
		return fmt.Errorf("failed to save invoice: %w", err)
	}
	app.printf("Saved %d bytes (%s) to %s\n", len(data), contentType, *output)
	return nil
}

func (app *Application) invoiceSendEmail(ctx context.Context, args []string) error {
	id, rest, err := parseID("invoices send-email", args)
	if err != nil {
		return err
	}
	flags := app.flagSet("invoices send-email")
	to := flags.String("to", "", "comma separated recipients (default: the client's email)")
	subject := flags.String("subject", "", "email subject")
	message := flags.String("message", "", "email body")
	if err := flags.Parse(rest); err != nil {
		return err
	}

	if err := app.visitItem("/invoices", "invoice-detail", id); err != nil {
		return err
	}

	req := billingsdk.EmailRequest{Subject: *subject, Message: *message}
	for _, r := range strings.Split(*to, ",") {
		if r = strings.TrimSpace(r); r != "" {
			req.Recipients = append(req.Recipients, r)
		}
	}

	ack, err := app.client.Invoices().SendEmail(ctx, id, req)
	if err != nil {
		return fmt.Errorf("failed to send invoice %d: %w", id, err)
	}
	app.printAck(ack, fmt.Sprintf("Invoice %d sent", id))
	return nil
}

func (app *Application) invoiceMark(ctx context.Context, action string, args []string) error {
	id, _, err := parseID("invoices "+action, args)
	if err != nil {
		return err
	}
	if err := app.visitItem("/invoices", "invoice-detail", id); err != nil {
		return err
	}

	invoices := app.client.Invoices()
	mark, status := invoices.MarkSent, billingsdk.InvoiceSent
	if action == "mark-paid" {
		mark, status = invoices.MarkPaid, billingsdk.InvoicePaid
	}

	ack, err := mark(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to mark invoice %d %s: %w", id, status, err)
	}
	app.printAck(ack, fmt.Sprintf("Invoice %d marked %s", id, status))
	return nil
}

func (app *Application) printAck(ack *billingsdk.StatusMessage, fallback string) {
	if ack != nil && ack.Message != "" {
		app.printf("%s\n", ack.Message)
		return
	}
	app.printf("%s\n", fallback)
}

func (app *Application) cmdClients(ctx context.Context, args []string) error {
	return runResource(ctx, app, collection[billingsdk.Client]{
		name:     "clients",
		listPath: "/clients",
		detail:   "client-detail",
		table:    clientTable,
		res:      app.client.Clients(),
	}, args)
}

func (app *Application) cmdPayments(ctx context.Context, args []string) error {
	return runResource(ctx, app, collection[billingsdk.Payment]{
		name:     "payments",
		listPath: "/payments",
		detail:   "payment-detail",
		table:    paymentTable,
		res:      app.client.Payments(),
	}, args)
}

func (app *Application) cmdUsers(ctx context.Context, args []string) error {
	return runResource(ctx, app, collection[billingsdk.User]{
		name:     "users",
		listPath: "/users",
		table:    userTable,
		res:      app.client.Users(),
	}, args)
}

func (app *Application) cmdReports(ctx context.Context, args []string) error {
	if len(args) == 0 || !slices.Contains(billingsdk.ReportNames, args[0]) {
		return fmt.Errorf("%w: reports %s [--path P] [--filter K=V]", ErrUsage, strings.Join(billingsdk.ReportNames, "|"))
	}
	name := args[0]

	flags := app.flagSet("reports " + name)
	path := flags.String("path", "", "gjson path to print, e.g. totals.revenue")
	filters := keyValues{}
	flags.Var(filters, "filter", "KEY=VALUE query parameter, repeatable")
	if err := flags.Parse(args[1:]); err != nil {
		return err
	}

	if err := app.visit("/reports"); err != nil {
		return err
	}

	report, err := app.client.Reports().Get(ctx, name, &billingsdk.ListOptions{Filters: filters})
	if err != nil {
		return fmt.Errorf("failed to load %s report: %w", name, err)
	}

	if *path != "" {
		v := report.Get(*path)
		if !v.Exists() {
			return fmt.Errorf("%s report has no %q", name, *path)
		}
		app.printf("%s\n", v.String())
		return nil
	}
	return app.printJSON(report)
}
