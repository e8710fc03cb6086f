package loopguard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddlewarePassesRequestsWithoutJobHeader(t *testing.T) {
	c := testClient(t)

	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/anything", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestMiddlewareGuardsJobRequests(t *testing.T) {
	c := testClient(t)

	served := 0
	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
		w.WriteHeader(http.StatusOK)
	}))

	request := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "http://example.com/api/items", nil)
		req.Header.Set(JobHeader, "job-http")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	// Identical endpoint retries count as duplicates; third trips cooldown.
	for i := 0; i < 2; i++ {
		if rec := request(); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, rec.Code)
		}
	}
	rec := request()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("cooldown response missing Retry-After")
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body["reason"] != ReasonDuplicateLoop {
		t.Errorf("reason = %v, want %q", body["reason"], ReasonDuplicateLoop)
	}
	if served != 2 {
		t.Errorf("served = %d, want 2", served)
	}
}

func TestMiddlewareDistinctPathsAllowed(t *testing.T) {
	c := testClient(t)

	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/a", "/b", "/c", "/d"} {
		req := httptest.NewRequest("GET", "http://example.com"+path, nil)
		req.Header.Set(JobHeader, "job-paths")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, rec.Code)
		}
	}
}

func TestActionFromRequestIgnoresQuery(t *testing.T) {
	r1 := httptest.NewRequest("GET", "http://example.com/search?q=first", nil)
	r2 := httptest.NewRequest("GET", "http://example.com/search?q=second", nil)

	s1, err := signatureFor(actionFromRequest(r1))
	if err != nil {
		t.Fatal(err)
	}
	s2, err := signatureFor(actionFromRequest(r2))
	if err != nil {
		t.Fatal(err)
	}
	if s1 != s2 {
		t.Error("query string changed the action signature")
	}
}
