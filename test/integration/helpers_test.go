package integration

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

func decodeInto(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func deadlineFor(t *testing.T) time.Time {
	t.Helper()
	return time.Now().Add(2 * time.Second)
}

// sleepUntil waits a poll interval and reports whether the deadline still
// allows another attempt.
func sleepUntil(deadline time.Time) bool {
	if time.Now().After(deadline) {
		return false
	}
	time.Sleep(20 * time.Millisecond)
	return true
}
