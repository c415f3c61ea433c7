package auth

import (
	"context"
	"net/http"
	"strings"
)

// StaticTokenProvider sends a fixed bearer token, e.g. "root:Milvus" or an API key.
// An empty token sends no Authorization header.
type StaticTokenProvider struct {
	header string
	token  string
}

// NewStaticTokenProvider builds the header value once; it is reused for every request.
func NewStaticTokenProvider(token string) *StaticTokenProvider {
	token = strings.TrimSpace(token)
	p := &StaticTokenProvider{token: token}
	if token != "" {
		p.header = "Bearer " + token
	}
	return p
}

func (p *StaticTokenProvider) Token(ctx context.Context) (string, error) {
	return p.token, nil
}

func (p *StaticTokenProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	if p.header == "" {
		return nil
	}
	req.Header.Set("Authorization", p.header)
	return nil
}
