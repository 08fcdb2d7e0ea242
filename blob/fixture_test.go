package blob

import (
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/gorilla/mux"

	"github.com/siepkes/sfs/security"
)

// fixturePeer is a minimal in-process implementation of the /blob/001*
// surface (§6), enough to drive Client against real HTTP round trips in
// tests without a cluster. Routed with gorilla/mux the way the teacher
// routes weed/server/master_server.go, dispatching by method+path the way
// volume_server_handlers.go's privateStoreHandler switches on r.Method.
type fixturePeer struct {
	mu             sync.Mutex
	secret         []byte
	blobs          map[string][]byte // "volume:position" -> data
	digest         map[string]string // "volume:position" -> hex sha512
	denyCanPut     map[string]bool
	digestOverride map[string]string // optional per-volume:position digest override, for mismatch injection
}

func newFixturePeer(secret []byte) *fixturePeer {
	return &fixturePeer{
		secret:         secret,
		blobs:          map[string][]byte{},
		digest:         map[string]string{},
		denyCanPut:     map[string]bool{},
		digestOverride: map[string]string{},
	}
}

func blobKey(volume string, position int64) string {
	return volume + ":" + strconv.FormatInt(position, 10)
}

func (f *fixturePeer) authenticate(w http.ResponseWriter, r *http.Request) bool {
	token := security.Extract(r)
	if !token.Matches(f.secret) {
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}
	return true
}

func (f *fixturePeer) router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/blob/001/checksum", f.handleChecksum).Methods(http.MethodGet)
	r.HandleFunc("/blob/001/canput", f.handleCanPut).Methods(http.MethodPut)
	r.HandleFunc("/blob/001/ack", f.handleAck).Methods(http.MethodPut)
	r.HandleFunc("/blob/001", f.handleBlob).Methods(http.MethodGet, http.MethodPut, http.MethodDelete)
	return r
}

func (f *fixturePeer) handleChecksum(w http.ResponseWriter, r *http.Request) {
	if !f.authenticate(w, r) {
		return
	}
	key := blobKey(r.URL.Query().Get("volume"), mustAtoi64(r.URL.Query().Get("position")))

	f.mu.Lock()
	hexDigest, ok := f.digest[key]
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(envelopeOut{Code: http.StatusNotFound})
		return
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(envelopeOut{
		Code: http.StatusOK,
		Blob: DigestBlob{
			VolumeID: r.URL.Query().Get("volume"),
			Position: mustAtoi64(r.URL.Query().Get("position")),
			Digests:  map[string]string{"sha512": hexDigest},
		},
	})
}

func (f *fixturePeer) handleCanPut(w http.ResponseWriter, r *http.Request) {
	if !f.authenticate(w, r) {
		return
	}
	volume := r.URL.Query().Get("volume") // double-escaped by the client; fixture doesn't need to decode it to answer

	f.mu.Lock()
	deny := f.denyCanPut[volume]
	f.mu.Unlock()

	if deny {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (f *fixturePeer) handleAck(w http.ResponseWriter, r *http.Request) {
	if !f.authenticate(w, r) {
		return
	}
	key := blobKey(r.URL.Query().Get("volume"), mustAtoi64(r.URL.Query().Get("position")))
	f.mu.Lock()
	_, exists := f.blobs[key]
	f.mu.Unlock()
	if exists {
		w.WriteHeader(http.StatusNoContent)
	} else {
		w.WriteHeader(http.StatusNotModified)
	}
}

func (f *fixturePeer) handleBlob(w http.ResponseWriter, r *http.Request) {
	if !f.authenticate(w, r) {
		return
	}
	volume := r.URL.Query().Get("volume")
	position := mustAtoi64(r.URL.Query().Get("position"))
	key := blobKey(volume, position)

	switch r.Method {
	case http.MethodGet:
		f.mu.Lock()
		data, ok := f.blobs[key]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		w.Write(data)

	case http.MethodDelete:
		f.mu.Lock()
		_, existed := f.blobs[key]
		delete(f.blobs, key)
		delete(f.digest, key)
		f.mu.Unlock()
		if existed {
			w.WriteHeader(http.StatusNoContent)
		} else {
			w.WriteHeader(http.StatusNotModified)
		}

	case http.MethodPut:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		sum := sha512.Sum512(data)
		hexDigest := hex.EncodeToString(sum[:])

		f.mu.Lock()
		if override, ok := f.digestOverride[volume]; ok {
			hexDigest = override
		}
		nextPosition := int64(len(f.blobs))
		key = blobKey(volume, nextPosition)
		f.blobs[key] = data
		f.digest[key] = hexDigest
		f.mu.Unlock()

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(envelopeOut{
			Code: http.StatusOK,
			Blob: DigestBlob{
				VolumeID: volume,
				Primary:  true,
				Position: nextPosition,
				Length:   int64(len(data)),
				Digests:  map[string]string{"sha512": hexDigest},
			},
		})
	}
}

func mustAtoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// envelopeOut mirrors envelope but with a concrete Blob field so the
// fixture can marshal typed payloads without round-tripping through
// json.RawMessage.
type envelopeOut struct {
	Code int         `json:"code"`
	Blob interface{} `json:"blob,omitempty"`
}

func newFixtureServer(secret []byte) *httptest.Server {
	return newFixtureServerFromPeer(newFixturePeer(secret))
}

func newFixtureServerFromPeer(f *fixturePeer) *httptest.Server {
	return httptest.NewServer(f.router())
}
