// Package blob implements §4.1's C1: typed operations against a peer
// node's /blob/001* endpoints, and the wire envelope types those endpoints
// exchange. Grounded on the teacher's weed/operation package (the closest
// real analogue of a typed HTTP client talking to a peer volume server)
// and weed/server/volume_server_handlers.go for the peer-side method
// dispatch a test fixture needs to mirror.
package blob

import (
	"encoding/json"
	"io"
	"net/http"
)

// DigestBlob is the receipt/checksum payload returned by checksum and
// createWriteStream (§4.1, §6): {volume, primary, replica, position,
// length, digests: {algo: hex}}.
type DigestBlob struct {
	VolumeID string            `json:"volume"`
	Primary  bool              `json:"primary"`
	Replica  bool              `json:"replica"`
	Position int64             `json:"position"`
	Length   int64             `json:"length"`
	Digests  map[string]string `json:"digests"`
}

// HeaderBlob wraps the response headers of a delete/acknowledge call whose
// body carries no JSON payload (§4.1).
type HeaderBlob struct {
	Headers http.Header
}

// ReadStreamBlob is an open, paused read stream for an existing blob
// (§4.1, §4.6). Body is the underlying HTTP response body; it must not be
// read until a pump attaches (§9's "subscribe on receipt").
type ReadStreamBlob struct {
	Length int64
	Body   io.ReadCloser
}

// Close releases the underlying connection. Safe to call multiple times.
func (r *ReadStreamBlob) Close() error {
	if r == nil || r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

// envelope is the {code, blob} shape every JSON-returning endpoint uses
// (§4.1, §6). blob is left raw so each operation can decode it into its
// own typed shape.
type envelope struct {
	Code int             `json:"code"`
	Blob json.RawMessage `json:"blob"`
}
