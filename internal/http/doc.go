// Package http provides the HTTP client used for workshop pages and map payloads.
//
// The Client in this package handles:
//   - User-Agent headers
//   - Per-request timeouts
//   - Retry with capped exponential backoff (RetryPolicy)
//   - Streaming file downloads into an afero.Fs with size checks
//
// # Retry policy
//
// Transient failures (network errors, timeouts, 5xx, 408, 429, empty or
// truncated payloads) are retried. The wait after failed attempt n is
//
//	BaseDelay * Multiplier^(n-1), capped at MaxDelay
//
// so the defaults (4 attempts, 3s base, x2) wait 3s, 6s and 12s.
//
// # Basic Usage
//
//	client := http.NewClient(http.ClientConfig{Retry: http.DefaultRetryPolicy()})
//
//	html, err := client.FetchString(ctx, "https://steamcommunity.com/workshop/browse/?appid=274190")
//
//	n, err := client.DownloadFile(ctx, afero.NewOsFs(), payloadURL, "/maps/.staging/42.part", nil)
package http
