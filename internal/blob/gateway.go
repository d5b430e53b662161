package blob

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Gateway reads IPFS documents through a public HTTP gateway. It cannot
// write, list or remove.
type Gateway struct {
	base string
	httpFetcher
}

// NewGateway returns a read-only backend for the gateway at baseURL.
func NewGateway(baseURL string, opts IPFSOptions) *Gateway {
	return &Gateway{
		base: strings.TrimRight(baseURL, "/"),
		httpFetcher: httpFetcher{
			client:  opts.Client,
			headers: opts.Headers,
			maxSize: opts.MaxSize,
			timeout: opts.Timeout,
		},
	}
}

func (g *Gateway) Scheme() string { return IPFSScheme }

func (g *Gateway) Label() string { return fmt.Sprintf("ipfs-gateway (%s)", redact(g.base)) }

func (g *Gateway) Read(ctx context.Context, url string) ([]byte, error) {
	cid, err := trimScheme(g.Label(), "read", IPFSScheme, url)
	if err != nil {
		return nil, err
	}
	body, err := g.do(ctx, http.MethodGet, g.base+"/ipfs/"+cid, "", nil, g.maxSize)
	if err != nil {
		return nil, &Error{Backend: g.Label(), Operation: "read", URL: url, Err: err}
	}
	data, err := inflate(body, g.maxSize)
	if err != nil {
		return nil, &Error{Backend: g.Label(), Operation: "read", URL: url, Err: err}
	}
	return data, nil
}

func (g *Gateway) Put(context.Context, []byte) (string, error) {
	return "", unsupported(g.Label(), "put")
}

func (g *Gateway) List(context.Context) ([]string, error) {
	return nil, unsupported(g.Label(), "list")
}

func (g *Gateway) Remove(context.Context, string) error {
	return unsupported(g.Label(), "remove")
}
