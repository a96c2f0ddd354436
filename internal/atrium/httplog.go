package atrium

import (
	"bytes"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxLoggedBody = 512

var sensitiveHeaders = map[string]bool{
	"Cookie":     true,
	"Set-Cookie": true,
	"X-Api-Key":  true,
}

var tokenFields = regexp.MustCompile(`("(?:access_token|refresh_token|id_token)"\s*:\s*")[^"]*(")|((?:access_token|refresh_token)=)[^&]*`)

// loggingTransport logs every outbound call with credentials redacted.
type loggingTransport struct {
	next http.RoundTripper
	log  *zap.SugaredLogger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	t.log.Debugw("http request",
		"method", req.Method,
		"url", req.URL.Redacted(),
		"request_id", req.Header.Get("X-Request-ID"),
		"headers", redactHeaders(req.Header))

	res, err := t.next.RoundTrip(req)
	took := time.Since(start)
	if err != nil {
		t.log.Warnw("http request failed", "method", req.Method, "url", req.URL.Redacted(), "took", took, "error", err)
		return nil, err
	}

	if res.StatusCode < 400 {
		t.log.Debugw("http response", "url", req.URL.Redacted(), "status", res.StatusCode, "took", took)
		return res, nil
	}

	// Peek at the error body for the log and hand an identical copy on.
	b, readErr := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	_ = res.Body.Close()
	res.Body = io.NopCloser(bytes.NewReader(b))
	if readErr != nil {
		return nil, readErr
	}
	t.log.Warnw("http error response",
		"url", req.URL.Redacted(),
		"status", res.StatusCode,
		"took", took,
		"body", redactBody(b))
	return res, nil
}

func redactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		val := strings.Join(v, ",")
		switch {
		case k == "Authorization":
			out[k] = redactBearer(val)
		case sensitiveHeaders[k]:
			out[k] = "[REDACTED]"
		default:
			out[k] = val
		}
	}
	return out
}

// redactBearer keeps the first 8 characters of a bearer token.
func redactBearer(v string) string {
	tok, ok := strings.CutPrefix(v, "Bearer ")
	if !ok {
		return "[REDACTED]"
	}
	if len(tok) > 8 {
		tok = tok[:8]
	}
	return "Bearer " + tok + "..."
}

func redactBody(b []byte) string {
	s := tokenFields.ReplaceAllString(string(b), "$1$3[REDACTED]$2")
	if len(s) > maxLoggedBody {
		s = s[:maxLoggedBody] + "...(truncated)"
	}
	return s
}
