package httpclient

import (
	"fmt"
	"strings"
)

const maxLoggedBodyBytes = 1024

// HTTPError is returned when the search endpoint answers with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Body == "" {
		return fmt.Sprintf("http status %d", e.StatusCode)
	}
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

// ResponseCodeError is returned for a 2xx response whose JSON body carries a
// non-zero "code", which is how the vector database reports search failures.
type ResponseCodeError struct {
	Code    int64
	Message string
}

func (e *ResponseCodeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message == "" {
		return fmt.Sprintf("response code %d", e.Code)
	}
	return fmt.Sprintf("response code %d: %s", e.Code, e.Message)
}

func snippet(body []byte) string {
	if len(body) > maxLoggedBodyBytes {
		body = body[:maxLoggedBodyBytes]
	}
	return strings.TrimSpace(string(body))
}
