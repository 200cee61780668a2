// Local development server that simulates downstream integrations and an
// incremental feed. Run it next to the pipeline and point DOWNSTREAM_URL_*
// and SYNC_FEEDS at it.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"
)

var (
	mu         sync.Mutex
	flakyHits  = map[string]int{}
	feedOrigin = time.Now().Add(-1 * time.Hour)
)

func main() {
	mux := http.NewServeMux()

	// Always succeeds.
	mux.HandleFunc("/downstream/success", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("success endpoint: %s %s", r.Header.Get("X-Event-Source"), r.Header.Get("X-Event-Type"))
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"ok":true}`)
	})

	// Fails twice per event id, then succeeds. Exercises the retry path.
	mux.HandleFunc("/downstream/flaky", func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Event-ID")
		mu.Lock()
		flakyHits[id]++
		hits := flakyHits[id]
		mu.Unlock()

		if hits <= 2 {
			log.Printf("flaky endpoint: failing attempt %d for %s", hits, id)
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":"temporarily unavailable"}`)
			return
		}
		log.Printf("flaky endpoint: succeeding attempt %d for %s", hits, id)
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"ok":true}`)
	})

	// Always rejects. Exercises the terminal path.
	mux.HandleFunc("/downstream/rejected", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"error":"validation failed"}`)
	})

	// Rate limited with an explicit hint.
	mux.HandleFunc("/downstream/ratelimited", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":"slow down"}`)
	})

	// Paged incremental feed. The cursor is an RFC3339 timestamp; each page
	// holds up to `limit` synthetic records spaced a minute apart.
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 || limit > 100 {
			limit = 100
		}

		since := feedOrigin
		if cursor := r.URL.Query().Get("modified_since"); cursor != "" {
			if t, err := time.Parse(time.RFC3339, cursor); err == nil {
				since = t
			}
		}

		type record struct {
			ID   string          `json:"id"`
			Data json.RawMessage `json:"data"`
		}
		var records []record
		cursor := since
		for i := 0; i < limit; i++ {
			next := cursor.Add(time.Minute)
			if next.After(time.Now()) {
				break
			}
			cursor = next
			records = append(records, record{
				ID:   fmt.Sprintf("rec-%d", cursor.Unix()),
				Data: json.RawMessage(fmt.Sprintf(`{"modified_at":%q,"value":%d}`, cursor.Format(time.RFC3339), cursor.Unix()%97)),
			})
		}

		resp := map[string]any{
			"records":     records,
			"next_cursor": "",
		}
		if len(records) > 0 {
			resp["next_cursor"] = cursor.Format(time.RFC3339)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	log.Println("mock endpoints listening on :9090")
	log.Fatal(http.ListenAndServe(":9090", mux))
}
