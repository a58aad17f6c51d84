package testutils

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
)

// Product is a catalogue entry served by Storefront.
type Product struct {
	SKU   string  `json:"sku"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Storefront is a small fake shop API for tests.
//
//	GET  /api/products          catalogue
//	GET  /api/products/{sku}    one product or 404
//	POST /api/cart              {"sku": "...", "qty": n}, 401 without a bearer token
//	GET  /api/flaky             503 for the first FailFirst calls, then 200
//	GET  /                      HTML home page
type Storefront struct {
	*httptest.Server

	mu        sync.Mutex
	products  []Product
	cart      map[string]int
	flakyHits int
	failFirst int
}

// NewStorefront starts a fake storefront that shuts down with the test.
// /api/flaky fails with 503 for the first failFirst calls.
func NewStorefront(t testing.TB, failFirst int) *Storefront {
	t.Helper()
	s := &Storefront{
		products: []Product{
			{SKU: "SKU-1", Name: "Trail Runner", Price: 89.99},
			{SKU: "SKU-2", Name: "Rain Shell", Price: 129.5},
		},
		cart:      map[string]int{},
		failFirst: failFirst,
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Storefront) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><h1 id="title">Storecheck Outfitters</h1><button id="add">Add to cart</button></body></html>`))
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/products", s.listProducts)
		r.Get("/products/{sku}", s.getProduct)
		r.Post("/cart", s.addToCart)
		r.Get("/flaky", s.flaky)
	})
	return r
}

func (s *Storefront) listProducts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"items": s.products, "count": len(s.products)})
}

func (s *Storefront) getProduct(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.SKU == sku {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}

func (s *Storefront) addToCart(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "login required"})
		return
	}
	var item struct {
		SKU string `json:"sku"`
		Qty int    `json:"qty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil || item.SKU == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad item"})
		return
	}
	if item.Qty == 0 {
		item.Qty = 1
	}

	s.mu.Lock()
	s.cart[item.SKU] += item.Qty
	total := 0
	for _, n := range s.cart {
		total += n
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"sku": item.SKU, "items": total})
}

func (s *Storefront) flaky(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.flakyHits++
	hit := s.flakyHits
	s.mu.Unlock()

	if hit <= s.failFirst {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "try again"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "attempt": hit})
}

// FlakyHits returns how many times /api/flaky was called.
func (s *Storefront) FlakyHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flakyHits
}

// CartItems returns the quantity of sku in the cart.
func (s *Storefront) CartItems(sku string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cart[sku]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
