package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	jsonpkg "github.com/ajitpratap0/posbridge/pkg/json"
)

// Default credentials accepted by the fake POS server
const (
	TestClientID     = "test-client"
	TestClientSecret = "test-secret"
)

// POSServer is an in-memory POS API: an auth endpoint issuing bearer tokens
// and paginated entity endpoints at /v1/{entity} serving fixed record sets.
// All knobs are safe for concurrent use.
type POSServer struct {
	server *httptest.Server

	mu        sync.Mutex
	records   map[string][]map[string]interface{}
	tokenSeq  int
	valid     map[string]bool
	expiresIn int64
	serverURL string
	failures  map[string][]int // pending failure statuses per entity, consumed FIFO

	authCalls   int
	entityCalls map[string]int
}

// NewPOSServer starts a fake POS API. Callers must Close it when done.
func NewPOSServer() *POSServer {
	s := &POSServer{
		records:     make(map[string][]map[string]interface{}),
		valid:       make(map[string]bool),
		expiresIn:   3600,
		failures:    make(map[string][]int),
		entityCalls: make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/token", s.handleAuth)
	mux.HandleFunc("/v1/", s.handleEntity)
	s.server = httptest.NewServer(mux)
	return s
}

// Close shuts the server down
func (s *POSServer) Close() {
	s.server.Close()
}

// AuthURL returns the token endpoint URL
func (s *POSServer) AuthURL() string {
	return s.server.URL + "/auth/token"
}

// URL returns the data API base URL
func (s *POSServer) URL() string {
	return s.server.URL
}

// SetRecords replaces the record set served for an entity
func (s *POSServer) SetRecords(entity string, records []map[string]interface{}) {
	s.mu.Lock()
	s.records[entity] = records
	s.mu.Unlock()
}

// SetExpiresIn sets the expires_in value of subsequent auth responses
func (s *POSServer) SetExpiresIn(seconds int64) {
	s.mu.Lock()
	s.expiresIn = seconds
	s.mu.Unlock()
}

// SetServerURL sets the server_url of subsequent auth responses. Empty means
// omit the field so clients fall back to their configured base URL.
func (s *POSServer) SetServerURL(u string) {
	s.mu.Lock()
	s.serverURL = u
	s.mu.Unlock()
}

// FailNext queues n failures with the given HTTP status for an entity's next
// data requests
func (s *POSServer) FailNext(entity string, status, n int) {
	s.mu.Lock()
	for i := 0; i < n; i++ {
		s.failures[entity] = append(s.failures[entity], status)
	}
	s.mu.Unlock()
}

// RevokeTokens invalidates every issued token. Subsequent data calls get a
// 401 until the client re-authenticates.
func (s *POSServer) RevokeTokens() {
	s.mu.Lock()
	s.valid = make(map[string]bool)
	s.mu.Unlock()
}

// AuthCalls returns how many times the auth endpoint was hit
func (s *POSServer) AuthCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authCalls
}

// EntityCalls returns how many data requests an entity received
func (s *POSServer) EntityCalls(entity string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entityCalls[entity]
}

func (s *POSServer) handleAuth(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.authCalls++
	if r.PostFormValue("client_id") != TestClientID || r.PostFormValue("client_secret") != TestClientSecret {
		s.mu.Unlock()
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
		return
	}
	s.tokenSeq++
	token := fmt.Sprintf("tok-%d", s.tokenSeq)
	s.valid[token] = true
	body := map[string]interface{}{
		"access_token": token,
		"expires_in":   s.expiresIn,
	}
	if s.serverURL != "" {
		body["server_url"] = s.serverURL
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = jsonpkg.NewEncoder(w).Encode(body)
}

func (s *POSServer) handleEntity(w http.ResponseWriter, r *http.Request) {
	entity := strings.TrimPrefix(r.URL.Path, "/v1/")

	s.mu.Lock()
	s.entityCalls[entity]++

	if queued := s.failures[entity]; len(queued) > 0 {
		status := queued[0]
		s.failures[entity] = queued[1:]
		s.mu.Unlock()
		http.Error(w, http.StatusText(status), status)
		return
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !s.valid[token] {
		s.mu.Unlock()
		http.Error(w, `{"error":"invalid_token"}`, http.StatusUnauthorized)
		return
	}

	all := s.records[entity]
	s.mu.Unlock()

	limit := intQuery(r, "limit", 100)
	offset := intQuery(r, "offset", 0)
	since := r.URL.Query().Get("since")

	filtered := all
	if since != "" {
		filtered = filterSince(all, since)
	}

	if offset > len(filtered) {
		offset = len(filtered)
	}
	end := offset + limit
	if end > len(filtered) {
		end = len(filtered)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = jsonpkg.NewEncoder(w).Encode(filtered[offset:end])
}

// filterSince keeps records modified at or after the cursor, matching the
// POS API's inclusive since semantics
func filterSince(records []map[string]interface{}, since string) []map[string]interface{} {
	cutoff, err := time.Parse(time.RFC3339, since)
	if err != nil {
		return records
	}

	out := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		ts, ok := recordTime(rec)
		if !ok || !ts.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}

func recordTime(rec map[string]interface{}) (time.Time, bool) {
	for _, field := range [...]string{"updated_at", "created_at"} {
		if s, ok := rec[field].(string); ok {
			if ts, err := time.Parse(time.RFC3339, s); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

func intQuery(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
