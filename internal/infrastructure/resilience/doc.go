// Package resilience provides a circuit breaker for outbound calls made by
// network ops (fetch, download).
//
//	Closed --[ReadyToTrip]--> Open --[Timeout]--> Half-Open --[MaxRequests ok]--> Closed
//	                                                  |
//	                                               failure --> Open
//
// Usage:
//
//	b := resilience.New("http-external", resilience.Settings{Timeout: 30 * time.Second})
//	resp, err := resilience.Run(b, func() (*Response, error) {
//	    return client.Get(ctx, url)
//	})
package resilience
