// Package testutil provides common test utilities for client and engine tests.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// CannedResponse is one scripted reply of a FakeAPI route.
type CannedResponse struct {
	Status int
	Body   string
}

// RecordedRequest is what FakeAPI saw for one call.
type RecordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
}

// FakeAPI is an httptest server that replays scripted responses per path.
// The last response of a route repeats once the script is exhausted; unknown
// paths answer 404 with an error-code body.
type FakeAPI struct {
	*httptest.Server

	mu       sync.Mutex
	routes   map[string][]CannedResponse
	requests []RecordedRequest
}

// NewFakeAPI starts a FakeAPI and closes it when the test ends.
func NewFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()
	api := &FakeAPI{routes: make(map[string][]CannedResponse)}
	api.Server = httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(api.Close)
	return api
}

// Script queues responses for path, e.g. "/users/111/profile".
func (f *FakeAPI) Script(path string, responses ...CannedResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[path] = append(f.routes[path], responses...)
}

// JSON is shorthand for a 200 response with body.
func JSON(body string) CannedResponse {
	return CannedResponse{Status: http.StatusOK, Body: body}
}

func (f *FakeAPI) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedRequest(nil), f.requests...)
}

// Count returns how many requests hit path.
func (f *FakeAPI) Count(path string) int {
	n := 0
	for _, r := range f.Requests() {
		if r.Path == path {
			n++
		}
	}
	return n
}

func (f *FakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
	})
	script := f.routes[r.URL.Path]
	var resp CannedResponse
	switch len(script) {
	case 0:
		resp = CannedResponse{Status: http.StatusNotFound, Body: `{"message":"Unknown User","code":10013}`}
	case 1:
		resp = script[0]
	default:
		resp = script[0]
		f.routes[r.URL.Path] = script[1:]
	}
	f.mu.Unlock()

	if strings.HasPrefix(strings.TrimSpace(resp.Body), "{") || strings.HasPrefix(strings.TrimSpace(resp.Body), "[") {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write([]byte(resp.Body))
}
