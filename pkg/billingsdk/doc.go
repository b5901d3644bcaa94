/*
Package billingsdk provides a client SDK for the invoicing/billing REST API.

# Overview

SDKClient wraps every outbound call with a fixed base URL, a request timeout and a set of
default headers. It carries one piece of shared mutable state: the default Authorization
header, set after login and cleared on logout.

	client := billingsdk.NewSDKClient("https://billing.example.com/api/v1")

	// Exchange credentials for tokens
	login, err := client.Login(ctx, billingsdk.Credentials{Email: email, Password: password})

	// Every following request carries "Authorization: Bearer <access>"
	client.SetBearerToken(login.Access)

	page, err := client.Invoices().List(ctx, &billingsdk.ListOptions{Search: "ACME"})

# Token Refresh

When a request comes back with 401 Unauthorized, the client asks its Refresher for a new
access token and reissues the request once with the new header. A second 401 for the same
request is returned to the caller as an *APIError. If the refresh itself fails, its error is
returned instead of the original response.

	client.SetRefresher(sessionStore)

The auth endpoints that exchange tokens (login, refresh, logout) never trigger a refresh.

# Request Descriptors

Requests are built as explicit descriptors carrying their own attempt counter, so the retry
bookkeeping never leaks onto shared objects:

	req, _ := billingsdk.NewRequest(http.MethodGet, "/invoices/", nil)
	resp, err := client.Do(ctx, req)

GET requests get a "_t" cache-busting query parameter, recomputed on every attempt.

# Resources

	client.Clients()   // /clients/
	client.Invoices()  // /invoices/ plus pdf, send-email, mark-sent, mark-paid
	client.Payments()  // /payments/
	client.Users()     // /users/
	client.Reports()   // /reports/{dashboard,revenue,invoices,clients,payments}/

List calls decode the paginated envelope into a Page. Reports are loosely typed and are
navigated with gjson paths:

	report, err := client.Reports().Dashboard(ctx)
	outstanding := report.Get("invoices.outstanding_total").String()

# Error Handling

Non-2xx responses are returned as *APIError carrying the status code and the server
message (from "message", "detail", "error" or "non_field_errors", in that order):

	var apiErr *billingsdk.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		// ...
	}

Transport failures, including timeouts, are returned wrapped and are never retried.
*/
package billingsdk
