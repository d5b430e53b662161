package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/containerd/log"
)

// IPFSScheme prefixes URLs served by the IPFS backends.
const IPFSScheme = "ipfs://"

// IPFSOptions configures an IPFS backend.
type IPFSOptions struct {
	// Headers are added to every request, e.g. an authorization token.
	Headers map[string]string
	Client  HTTPClient
	MaxSize int64
	Timeout time.Duration
}

// IPFS stores documents through a Kubo-compatible HTTP API. Payloads are
// zlib-compressed JSON.
type IPFS struct {
	api string
	httpFetcher
}

// NewIPFS returns a backend for the API at apiURL.
func NewIPFS(apiURL string, opts IPFSOptions) *IPFS {
	return &IPFS{
		api: strings.TrimRight(apiURL, "/"),
		httpFetcher: httpFetcher{
			client:  opts.Client,
			headers: opts.Headers,
			maxSize: opts.MaxSize,
			timeout: opts.Timeout,
		},
	}
}

func (b *IPFS) Scheme() string { return IPFSScheme }

func (b *IPFS) Label() string { return fmt.Sprintf("ipfs (%s)", redact(b.api)) }

func (b *IPFS) Read(ctx context.Context, u string) ([]byte, error) {
	cid, err := trimScheme(b.Label(), "read", IPFSScheme, u)
	if err != nil {
		return nil, err
	}
	body, err := b.do(ctx, http.MethodPost, b.endpoint("cat", url.Values{"arg": {cid}}), "", nil, b.maxSize)
	if err != nil {
		return nil, &Error{Backend: b.Label(), Operation: "read", URL: u, Err: err, Hint: "check that the IPFS API is reachable"}
	}
	data, err := inflate(body, b.maxSize)
	if err != nil {
		return nil, &Error{Backend: b.Label(), Operation: "read", URL: u, Err: err}
	}
	return data, nil
}

// addResponse is the final line of /api/v0/add output.
type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

func (b *IPFS) Put(ctx context.Context, data []byte) (string, error) {
	payload, err := deflate(data)
	if err != nil {
		return "", &Error{Backend: b.Label(), Operation: "put", Err: err}
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("data", "data")
	if err != nil {
		return "", &Error{Backend: b.Label(), Operation: "put", Err: err}
	}
	if _, err := part.Write(payload); err != nil {
		return "", &Error{Backend: b.Label(), Operation: "put", Err: err}
	}
	if err := mw.Close(); err != nil {
		return "", &Error{Backend: b.Label(), Operation: "put", Err: err}
	}

	resp, err := b.do(ctx, http.MethodPost, b.endpoint("add", url.Values{"pin": {"true"}}), mw.FormDataContentType(), &body, 0)
	if err != nil {
		return "", &Error{Backend: b.Label(), Operation: "put", Err: err, Hint: "check that the IPFS API is reachable and accepts writes"}
	}

	// Kubo streams one JSON object per line; the last one names the root.
	var added addResponse
	lines := bytes.Split(bytes.TrimSpace(resp), []byte("\n"))
	if err := json.Unmarshal(lines[len(lines)-1], &added); err != nil {
		return "", &Error{Backend: b.Label(), Operation: "put", Err: fmt.Errorf("decoding add response: %w", err)}
	}
	if added.Hash == "" {
		return "", nil
	}
	u := IPFSScheme + added.Hash
	log.G(ctx).WithField("url", u).Debug("stored blob")
	return u, nil
}

// pinList is the body of /api/v0/pin/ls.
type pinList struct {
	Keys map[string]struct {
		Type string `json:"Type"`
	} `json:"Keys"`
}

// List returns every recursively pinned document.
func (b *IPFS) List(ctx context.Context) ([]string, error) {
	resp, err := b.do(ctx, http.MethodPost, b.endpoint("pin/ls", url.Values{"type": {"recursive"}}), "", nil, 0)
	if err != nil {
		return nil, &Error{Backend: b.Label(), Operation: "list", Err: err}
	}
	var pins pinList
	if err := json.Unmarshal(resp, &pins); err != nil {
		return nil, &Error{Backend: b.Label(), Operation: "list", Err: fmt.Errorf("decoding pin list: %w", err)}
	}
	urls := make([]string, 0, len(pins.Keys))
	for cid := range pins.Keys {
		urls = append(urls, IPFSScheme+cid)
	}
	sort.Strings(urls)
	return urls, nil
}

// Remove unpins the document; the node garbage collects it later.
func (b *IPFS) Remove(ctx context.Context, u string) error {
	cid, err := trimScheme(b.Label(), "remove", IPFSScheme, u)
	if err != nil {
		return err
	}
	if _, err := b.do(ctx, http.MethodPost, b.endpoint("pin/rm", url.Values{"arg": {cid}}), "", nil, 0); err != nil {
		return &Error{Backend: b.Label(), Operation: "remove", URL: u, Err: err}
	}
	log.G(ctx).WithField("url", u).Debug("unpinned blob")
	return nil
}

func (b *IPFS) endpoint(cmd string, q url.Values) string {
	return b.api + "/api/v0/" + cmd + "?" + q.Encode()
}
