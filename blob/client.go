package blob

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/siepkes/sfs/digest"
	"github.com/siepkes/sfs/glog"
	"github.com/siepkes/sfs/metrics"
	"github.com/siepkes/sfs/pump"
	"github.com/siepkes/sfs/security"
	"github.com/siepkes/sfs/sfserr"
	"github.com/siepkes/sfs/util"
)

// Client issues the six C1 operations against one peer node's /blob/001*
// surface (§4.1). One Client is built per peer; all Clients share the
// process-wide util.SharedClient connection pool (§5).
type Client struct {
	hostAndPort     string
	token           security.EncodedToken
	httpClient      *http.Client
	responseTimeout time.Duration
}

// NewClient builds a Client bound to one peer, base64-encoding the cluster
// secret once up front (§5's "the cluster shared secret is computed
// once").
func NewClient(hostAndPort string, secret []byte, responseTimeout time.Duration) *Client {
	return &Client{
		hostAndPort:     hostAndPort,
		token:           security.Encode(secret),
		httpClient:      util.SharedClient,
		responseTimeout: responseTimeout,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values) (*http.Request, error) {
	reqURL := util.MkURL(c.hostAndPort, path, query)
	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, err
	}
	security.SetHeader(req, c.token)
	util.SetRequestIDHeader(req, ctx)
	return req, nil
}

func (c *Client) keepAliveTimeout() string {
	return strconv.FormatInt(int64(c.responseTimeout/2/time.Millisecond), 10)
}

// do issues req and records its latency under the named C1 operation
// (§5's per-request timeout, metrics.RemoteRequestDuration's "operation"
// label).
func (c *Client) do(req *http.Request, operation string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(req.Context(), c.responseTimeout)
	defer cancel()
	start := time.Now()
	resp, err := c.httpClient.Do(req.WithContext(ctx))
	metrics.RemoteRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &sfserr.Transport{URL: req.URL.String(), Elapsed: time.Since(start), Err: err}
	}
	return resp, nil
}

func decodeEnvelope(url string, r io.Reader) (envelope, error) {
	var env envelope
	dec := json.NewDecoder(r)
	if err := dec.Decode(&env); err != nil {
		return env, &sfserr.ProtocolBody{URL: url, Err: err}
	}
	return env, nil
}

// Checksum implements checksum(volumeId, position, offset?, length?,
// digestAlgos[]) -> optional DigestBlob (§4.1).
func (c *Client) Checksum(ctx context.Context, volumeID string, position int64, offset, length *int64, algos []digest.Algo) (*DigestBlob, error) {
	q := url.Values{}
	q.Set("node", c.hostAndPort)
	q.Set("volume", volumeID)
	q.Set("position", strconv.FormatInt(position, 10))
	q.Set("keep_alive_timeout", c.keepAliveTimeout())
	if offset != nil {
		q.Set("offset", strconv.FormatInt(*offset, 10))
	}
	if length != nil {
		q.Set("length", strconv.FormatInt(*length, 10))
	}
	for _, algo := range algos {
		q.Set("x-computed-digest-"+string(algo), "true")
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/blob/001/checksum", q)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req, "checksum")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &sfserr.ProtocolStatus{URL: req.URL.String(), Status: resp.StatusCode, Body: body}
	}

	env, err := decodeEnvelope(req.URL.String(), resp.Body)
	if err != nil {
		return nil, err
	}
	if env.Code == http.StatusNotFound {
		return nil, nil
	}
	if env.Code != http.StatusOK {
		return nil, &sfserr.ProtocolBody{URL: req.URL.String(), Envelope: fmt.Sprintf("code=%d", env.Code)}
	}
	var d DigestBlob
	if err := json.Unmarshal(env.Blob, &d); err != nil {
		return nil, &sfserr.ProtocolBody{URL: req.URL.String(), Err: err}
	}
	return &d, nil
}

func (c *Client) headerOnly(ctx context.Context, method, path, volumeID string, position int64, operation string) (*HeaderBlob, error) {
	q := url.Values{}
	q.Set("node", c.hostAndPort)
	q.Set("volume", volumeID)
	q.Set("position", strconv.FormatInt(position, 10))

	req, err := c.newRequest(ctx, method, path, q)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req, operation)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusNoContent:
		return &HeaderBlob{Headers: resp.Header}, nil
	case http.StatusNotModified:
		return nil, nil
	default:
		return nil, &sfserr.ProtocolStatus{URL: req.URL.String(), Status: resp.StatusCode}
	}
}

// Delete implements delete(volumeId, position) -> optional HeaderBlob
// (§4.1).
func (c *Client) Delete(ctx context.Context, volumeID string, position int64) (*HeaderBlob, error) {
	return c.headerOnly(ctx, http.MethodDelete, "/blob/001", volumeID, position, "delete")
}

// Acknowledge implements acknowledge(volumeId, position) -> optional
// HeaderBlob (§4.1).
func (c *Client) Acknowledge(ctx context.Context, volumeID string, position int64) (*HeaderBlob, error) {
	return c.headerOnly(ctx, http.MethodPut, "/blob/001/ack", volumeID, position, "acknowledge")
}

// CanPut implements canPut(volumeId) -> bool (§4.1). Doubly escapes
// nodeId/volumeId to stay wire-compatible with peers expecting the
// original implementation's double-escape (§4.4, §9).
func (c *Client) CanPut(ctx context.Context, volumeID string) (bool, error) {
	req, err := c.newRequest(ctx, http.MethodPut, "/blob/001/canput", nil)
	if err != nil {
		return false, err
	}
	// The query is written by hand so that url.Values encoding does not
	// add a third layer of escaping on top of DoubleEscape.
	req.URL.RawQuery = "node=" + util.DoubleEscape(c.hostAndPort) + "&volume=" + util.DoubleEscape(volumeID)
	resp, err := c.do(req, "canput")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < http.StatusBadRequest {
		return true, nil
	}
	return false, &sfserr.ProtocolStatus{URL: req.URL.String(), Status: resp.StatusCode}
}

// CreateReadStream implements createReadStream(volumeId, position,
// offset?, length?) -> optional ReadStreamBlob (§4.1). The response body
// is returned un-drained; the caller (C6/C2) owns pumping and closing it.
func (c *Client) CreateReadStream(ctx context.Context, volumeID string, position int64, offset, length *int64) (*ReadStreamBlob, error) {
	q := url.Values{}
	q.Set("node", c.hostAndPort)
	q.Set("volume", volumeID)
	q.Set("position", strconv.FormatInt(position, 10))
	if offset != nil {
		q.Set("offset", strconv.FormatInt(*offset, 10))
	}
	if length != nil {
		q.Set("length", strconv.FormatInt(*length, 10))
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/blob/001", q)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req, "create_read_stream")
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return &ReadStreamBlob{Length: resp.ContentLength, Body: resp.Body}, nil
	case http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, nil
	default:
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &sfserr.ProtocolStatus{URL: req.URL.String(), Status: resp.StatusCode, Body: body}
	}
}

// WriteStream is the capability a createWriteStream result exposes: drive
// a byte source into it once and obtain the receipt. Both WriteStreamBlob
// (remote, HTTP-backed) and a LocalNode's store-backed equivalent satisfy
// this, which is what lets C4 and XNode stay polymorphic over local vs
// remote targets (§4.3, §9).
type WriteStream interface {
	Drive(ctx context.Context, source io.Reader) (DigestBlob, error)
}

// WriteStreamBlob is the open write endpoint createWriteStream returns
// (§4.1). Drive must be called exactly once to pump a source into it and
// obtain the receipt.
type WriteStreamBlob struct {
	client   *Client
	req      *http.Request
	volumeID string
}

// Drive pumps source into the write stream's request body and returns the
// parsed receipt. It combines the request-send completion with the
// response-parse completion via pump.CombineDelayError so either side's
// failure surfaces only after both have settled (§9, grounded on
// original_source's HttpClientResponseBodyBuffer combine-singles-delay-
// error usage).
func (w *WriteStreamBlob) Drive(ctx context.Context, source io.Reader) (DigestBlob, error) {
	type sendResult struct{}
	sendSingle := pump.NewSingle[sendResult]()
	respSingle := pump.NewSingle[DigestBlob]()

	pr, pw := io.Pipe()
	w.req.Body = pr

	go func() {
		resp, err := w.client.do(w.req, "create_write_stream")
		if err != nil {
			respSingle.Resolve(DigestBlob{}, err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			respSingle.Resolve(DigestBlob{}, &sfserr.ProtocolStatus{URL: w.req.URL.String(), Status: resp.StatusCode, Body: body})
			return
		}
		env, err := decodeEnvelope(w.req.URL.String(), resp.Body)
		if err != nil {
			respSingle.Resolve(DigestBlob{}, err)
			return
		}
		if env.Code != http.StatusOK {
			respSingle.Resolve(DigestBlob{}, &sfserr.ProtocolBody{URL: w.req.URL.String(), Envelope: fmt.Sprintf("code=%d", env.Code)})
			return
		}
		var d DigestBlob
		if err := json.Unmarshal(env.Blob, &d); err != nil {
			respSingle.Resolve(DigestBlob{}, &sfserr.ProtocolBody{URL: w.req.URL.String(), Err: err})
			return
		}
		respSingle.Resolve(d, nil)
	}()

	go func() {
		_, err := io.Copy(pw, source)
		pw.CloseWithError(err)
		sendSingle.Resolve(sendResult{}, err)
	}()

	return pump.CombineDelayError(ctx, sendSingle, respSingle, func(_ sendResult, d DigestBlob) (DigestBlob, error) {
		return d, nil
	})
}

// CreateWriteStream implements createWriteStream(volumeId, length,
// digestAlgos[]) -> WriteStreamBlob (§4.1). The returned stream must be
// driven exactly once with Drive.
func (c *Client) CreateWriteStream(ctx context.Context, volumeID string, length int64, algos []digest.Algo) (WriteStream, error) {
	q := url.Values{}
	q.Set("node", c.hostAndPort)
	q.Set("volume", volumeID)
	q.Set("keep_alive_timeout", c.keepAliveTimeout())
	for _, algo := range algos {
		q.Set("x-computed-digest-"+string(algo), "true")
	}

	req, err := c.newRequest(ctx, http.MethodPut, "/blob/001", q)
	if err != nil {
		return nil, err
	}
	req.ContentLength = length
	req.Header.Set("Content-Length", strconv.FormatInt(length, 10))

	glog.V(2).Infof("createWriteStream volume=%s length=%d node=%s", volumeID, length, c.hostAndPort)

	return &WriteStreamBlob{client: c, req: req, volumeID: volumeID}, nil
}
