package main

import (
	"net/http"
)

type productsResponse struct {
	Source Source    `json:"source"`
	Data   []Product `json:"data"`
}

// HandleProducts serves the cached or freshly fetched product list.
// GET /api/products
func (a *App) HandleProducts(w http.ResponseWriter, r *http.Request) {
	products, source, err := a.Products.Get(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if products == nil {
		products = []Product{}
	}
	writeJSON(w, http.StatusOK, productsResponse{Source: source, Data: products})
}

func (a *App) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReady reports whether the credential store is reachable.
func (a *App) HandleReady(w http.ResponseWriter, r *http.Request) {
	if p, ok := a.DB.(interface{ ping() bool }); ok && !p.ping() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}
