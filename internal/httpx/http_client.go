package httpx

import (
	"net/http"
	"time"
)

const defaultExternalHTTPTimeout = 90 * time.Second

// externalHTTPClient is shared by every outbound integration that speaks
// plain HTTP (model providers without an SDK client).
var externalHTTPClient = &http.Client{
	Timeout: defaultExternalHTTPTimeout,
}

func ExternalHTTPClient() *http.Client {
	return externalHTTPClient
}

// ConfigureExternalHTTPClient applies the configured timeout and returns the
// value in effect. Non-positive values keep the default.
func ConfigureExternalHTTPClient(timeoutSeconds int) time.Duration {
	timeout := defaultExternalHTTPTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	externalHTTPClient.Timeout = timeout
	return timeout
}
