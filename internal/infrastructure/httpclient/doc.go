// Package httpclient provides the outbound HTTP client used by network ops.
//
// Built on go-resty/resty with a go-retryablehttp transport:
//   - Automatic retries with exponential backoff
//   - Connection pooling and keep-alive
//   - Context-based cancellation
//   - Rate limiting per client instance (x/time/rate)
//   - Circuit breaker protection for failing upstreams
//
// Response bodies are transcoded to UTF-8 from the charset announced by the
// server (golang.org/x/net/html/charset).
//
// Example Usage:
//
//	client := httpclient.New(httpclient.DefaultOptions())
//	resp, err := client.Do(ctx, httpclient.Request{Method: "GET", URL: url})
package httpclient
