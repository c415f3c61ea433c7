// Command mocksearch serves a fake vector search endpoint for trying vecsweep
// without a database:
//
//	go run ./scripts/mocksearch -port 19530 -latency 5ms -jitter 3ms
//	go run ./cmd/vecsweep --conc-list 1,4 --conc-duration 5 --conc-intermission 1
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"
)

type searchRequest struct {
	CollectionName string      `json:"collectionName"`
	AnnsField      string      `json:"annsField"`
	Limit          int         `json:"limit"`
	Data           [][]float32 `json:"data"`
}

type server struct {
	token     string
	latency   time.Duration
	jitter    time.Duration
	errorRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

func main() {
	port := flag.Int("port", 19530, "Listening port")
	token := flag.String("token", "root:Milvus", "Expected bearer token (empty disables the check)")
	latency := flag.Duration("latency", 5*time.Millisecond, "Base service time per search")
	jitter := flag.Duration("jitter", 2*time.Millisecond, "Uniform random extra service time")
	errorRate := flag.Float64("error-rate", 0, "Fraction of searches answered with a non-zero code")
	flag.Parse()

	if *port <= 0 {
		log.Fatalf("port must be > 0")
	}
	if *errorRate < 0 || *errorRate > 1 {
		log.Fatalf("error-rate must be between 0 and 1")
	}

	s := &server{
		token:     strings.TrimSpace(*token),
		latency:   *latency,
		jitter:    *jitter,
		errorRate: *errorRate,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/vectordb/entities/search", s.handleSearch)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("mock search server listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondJSON(w, http.StatusMethodNotAllowed, map[string]any{"code": 405, "message": "method not allowed"})
		return
	}
	if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
		respondJSON(w, http.StatusOK, map[string]any{"code": 1800, "message": "user hasn't authenticated"})
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusOK, map[string]any{"code": 1801, "message": "can only accept json format request"})
		return
	}
	if req.CollectionName == "" || len(req.Data) == 0 {
		respondJSON(w, http.StatusOK, map[string]any{"code": 1802, "message": "missing required parameters"})
		return
	}

	wait, fail, seed := s.draw()
	time.Sleep(wait)
	if fail {
		respondJSON(w, http.StatusOK, map[string]any{"code": 65535, "message": "injected failure"})
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	hits := make([]map[string]any, limit)
	for i := range hits {
		hits[i] = map[string]any{"id": seed + int64(i), "distance": float64(i) * 0.01}
	}
	respondJSON(w, http.StatusOK, map[string]any{"code": 0, "data": hits})
}

// draw picks the service time, failure and result ids for one search.
func (s *server) draw() (time.Duration, bool, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wait := s.latency
	if s.jitter > 0 {
		wait += time.Duration(s.rng.Int63n(int64(s.jitter)))
	}
	return wait, s.rng.Float64() < s.errorRate, s.rng.Int63n(1_000_000)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
