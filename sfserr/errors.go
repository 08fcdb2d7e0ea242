// Package sfserr implements §7's error taxonomy as typed errors so callers
// can classify a failure with errors.As rather than string matching, in the
// teacher's style of wrapping with fmt.Errorf("...: %w", err)
// (weed/storage/disk_location_ec.go, weed/storage/sra_transport.go).
package sfserr

import (
	"fmt"
	"time"
)

// Transport reports a connection-level failure: refused, reset, DNS
// failure, or request timeout.
type Transport struct {
	URL     string
	Elapsed time.Duration
	Err     error
}

func (e *Transport) Error() string {
	return fmt.Sprintf("transport error calling %s after %s: %v", e.URL, e.Elapsed, e.Err)
}

func (e *Transport) Unwrap() error { return e.Err }

// ProtocolStatus reports an HTTP status outside the per-endpoint whitelist.
type ProtocolStatus struct {
	URL    string
	Status int
	Body   []byte
}

func (e *ProtocolStatus) Error() string {
	body := e.Body
	const maxBody = 256
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return fmt.Sprintf("unexpected status %d from %s: %s", e.Status, e.URL, body)
}

// ProtocolBody reports unparseable JSON, a missing `code`, or an
// unexpected `code` in an otherwise-200 response envelope.
type ProtocolBody struct {
	URL      string
	Envelope string
	Err      error
}

func (e *ProtocolBody) Error() string {
	return fmt.Sprintf("malformed response body from %s: %v (%s)", e.URL, e.Err, e.Envelope)
}

func (e *ProtocolBody) Unwrap() error { return e.Err }

// DigestMismatch reports receipts whose digests disagree across replicas
// (§4.4 step 7's integrity gate).
type DigestMismatch struct {
	Targets []string
	Digests map[string]string // target -> hex digest
}

func (e *DigestMismatch) Error() string {
	return fmt.Sprintf("digest mismatch across %d targets: %v", len(e.Targets), e.Digests)
}

// InsufficientCapacity reports that the planner could not find enough
// target volumes (§4.4 step 3).
type InsufficientCapacity struct {
	Requested int
	Obtained  int
}

func (e *InsufficientCapacity) Error() string {
	return fmt.Sprintf("insufficient capacity: requested %d, obtained %d", e.Requested, e.Obtained)
}

// Invariant reports an internal precondition violation. It is fatal and
// must never be caught — callers that would otherwise recover from it
// should instead let it propagate to a panic/crash boundary.
type Invariant struct {
	Message string
}

func (e *Invariant) Error() string {
	return "invariant violated: " + e.Message
}
