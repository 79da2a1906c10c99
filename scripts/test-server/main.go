// A local target server for exercising devstress by hand: configurable
// latency, error injection, and a tiny product API matching the scenario
// examples.
//
// Usage:
//
//	go run scripts/test-server/main.go -addr :8080 -delay 20ms -error-rate 0.05
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	delay := flag.Duration("delay", 0, "artificial latency added to every response")
	errorRate := flag.Float64("error-rate", 0, "fraction of requests answered with a 500")
	flag.Parse()

	withChaos := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if *delay > 0 {
				time.Sleep(*delay)
			}
			if *errorRate > 0 && rand.Float64() < *errorRate {
				http.Error(w, "injected failure", http.StatusInternalServerError)
				return
			}
			h(w, r)
		}
	}

	http.HandleFunc("/", withChaos(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "OK")
	}))
	http.HandleFunc("/health", withChaos(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "healthy")
	}))
	http.HandleFunc("/products", withChaos(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"products": [{"id": "p-1", "name": "widget"}, {"id": "p-2", "name": "gadget"}]}`)
	}))
	http.HandleFunc("/products/", withChaos(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": "p-1", "name": "widget", "price": 9.99}`)
	}))
	http.HandleFunc("/cart", withChaos(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"cartId": "c-42"}`)
	}))

	server := &http.Server{
		Addr:              *addr,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	log.Printf("test server listening on %s (delay=%v, error-rate=%.2f)", *addr, *delay, *errorRate)
	if err := server.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}
