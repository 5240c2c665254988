package metrics

import "testing"

func TestFriendlyErrorName(t *testing.T) {
	tests := map[string]string{
		"":                                  "Unknown error",
		"*workload.HTTPError":               "HTTP error response",
		"workload.HTTPError":                "HTTP error response",
		"*workload.ExpectationError":        "Response expectation failed",
		"*engine.PanicError":                "Recovered panic",
		"*url.Error":                        "Request URL error",
		"context.deadlineExceededError":     "Context deadline exceeded",
		"*errors.errorString":               "Error",
		"*example.com/pkg/retry.TimeoutErr": "Timeout Err (retry)",
		"*tls.RecordHeaderError":            "Record Header Error (tls)",
		"*main.badEOFError":                 "Bad EOF Error",
		"*x509.Cert2Error":                  "Cert 2 Error (x509)",
		"plainError":                        "Plain Error",
	}
	for in, want := range tests {
		if got := FriendlyErrorName(in); got != want {
			t.Errorf("FriendlyErrorName(%q) = %q, want %q", in, got, want)
		}
	}
}
