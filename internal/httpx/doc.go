// Package httpx provides the resilient HTTP capability the platform clients
// are built on: send a request, get status plus body back.
//
// Transport-level failures (connect errors, timeouts) are retried a bounded
// number of times with a fixed wait between attempts; non-2xx responses are
// never retried and surface as *StatusError tagged with
// services.ErrHTTPStatus. Connect and request timeouts are bounded so a run
// can never hang indefinitely on a stalled peer.
package httpx
