package httpclient

import (
	"net"
	"net/http"
	"time"
)

// NewClient returns a client shared by every worker. maxConnsPerHost sizes the
// idle pool so a level with that many workers can keep one connection each.
func NewClient(timeout time.Duration, maxConnsPerHost int) *http.Client {
	if timeout < 0 {
		timeout = 0
	}
	if maxConnsPerHost < 32 {
		maxConnsPerHost = 32
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          max(256, maxConnsPerHost),
		MaxIdleConnsPerHost:   maxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
