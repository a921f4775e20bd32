package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxUpstreamBody caps how much of an upstream response is read.
const maxUpstreamBody = 8 << 20

// Candidate upstream keys per canonical field, first match wins.
var (
	idKeys    = []string{"id", "product_id"}
	titleKeys = []string{"name", "title"}
	priceKeys = []string{"price", "harga"}
	stockKeys = []string{"stock", "qty"}
	imageKeys = []string{"image", "image_url"}
	soldKeys  = []string{"sold", "terjual"}
)

// ProductFetcher calls the upstream product API.
type ProductFetcher struct {
	Endpoint string
	Token    string
	Timeout  time.Duration
	Client   *http.Client
}

func NewProductFetcher(endpoint, token string, timeout time.Duration) *ProductFetcher {
	return &ProductFetcher{
		Endpoint: endpoint,
		Token:    token,
		Timeout:  timeout,
		Client:   &http.Client{},
	}
}

// Fetch performs one bounded upstream call and returns normalized records.
// Missing configuration fails before any network I/O.
func (f *ProductFetcher) Fetch(ctx context.Context) ([]Product, error) {
	if strings.TrimSpace(f.Endpoint) == "" || strings.TrimSpace(f.Token) == "" {
		return nil, ErrMisconfiguredUpstream
	}

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid endpoint %q: %v", ErrMisconfiguredUpstream, f.Endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+f.Token)
	req.Header.Set("Accept", "application/json")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: upstream returned %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	products, err := normalizeProducts(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	return products, nil
}

// normalizeProducts accepts either a bare array of items or an object that
// wraps the array under "data".
func normalizeProducts(body []byte) ([]Product, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}

	var items []interface{}
	switch v := payload.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		data, ok := v["data"].([]interface{})
		if !ok {
			return nil, fmt.Errorf("payload object has no data array")
		}
		items = data
	default:
		return nil, fmt.Errorf("unexpected payload type %T", payload)
	}

	products := make([]Product, 0, len(items))
	for _, it := range items {
		raw, ok := it.(map[string]interface{})
		if !ok {
			continue
		}
		products = append(products, normalizeProduct(raw))
	}
	return products, nil
}

func normalizeProduct(raw map[string]interface{}) Product {
	p := Product{
		ID:    firstString(raw, idKeys),
		Title: firstString(raw, titleKeys),
		Price: firstNumber(raw, priceKeys),
		Stock: firstNumber(raw, stockKeys),
		Sold:  firstNumber(raw, soldKeys),
	}
	if img := firstString(raw, imageKeys); img != "" {
		p.Image = &img
	}
	return p
}

func firstValue(raw map[string]interface{}, keys []string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func firstString(raw map[string]interface{}, keys []string) string {
	v, ok := firstValue(raw, keys)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

// firstNumber reads a numeric field, accepting numeric strings. Missing,
// unparseable, non-finite and negative values all become zero.
func firstNumber(raw map[string]interface{}, keys []string) float64 {
	v, ok := firstValue(raw, keys)
	if !ok {
		return 0
	}
	var n float64
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0
		}
		n = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		n = f
	default:
		return 0
	}
	if n < 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}
