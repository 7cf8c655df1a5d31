/*
Package transport performs the byte transfer behind a navigation.

Download starts a request in the background and returns a Handle at once.
The handle resolves to a *Response, to nil when the server produced no
body (HEAD, 204, 205, 304 or a zero-length payload), or to an error for
transport failures. HTTP error statuses are responses, not errors.

Requests go through resty over a go-retryablehttp round tripper, wait on a
shared rate limiter, and are guarded by a circuit breaker per host.

	h := client.Download(ctx, transport.Request{URL: "https://example.com/", Method: "GET"})
	defer h.Cancel()

	resp, err := h.Await(ctx)
	if err != nil {
		return err
	}
	if resp != nil {
		defer resp.Close()
	}
*/
package transport
