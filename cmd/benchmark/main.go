// Benchmark tool for load-testing Kestrel with synthetic storefront orders.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -count 10000
//
// This tool:
//   1. Generates synthetic orders with known traffic scenarios
//   2. Sends each order to Kestrel for classification
//   3. Compares the detected channel with the scenario's expected channel
//   4. Measures ingestion throughput and dashboard latency
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// scenario is one synthetic traffic pattern with its expected channel.
type scenario struct {
	name     string
	expected string
	weight   int
	build    func(r *rand.Rand, o *orderRequest)
}

// orderRequest mirrors the POST /orders body.
type orderRequest struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Currency       string          `json:"currency"`
	TotalPrice     float64         `json:"totalPrice"`
	ReferringSite  string          `json:"referringSite,omitempty"`
	LandingSite    string          `json:"landingSite,omitempty"`
	UTMSource      string          `json:"utmSource,omitempty"`
	UTMMedium      string          `json:"utmMedium,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	NoteAttributes []noteAttribute `json:"noteAttributes,omitempty"`
	CustomerID     string          `json:"customerId,omitempty"`
	NewCustomer    bool            `json:"newCustomer"`
}

type noteAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ingestResponse is the POST /orders response format.
type ingestResponse struct {
	OrderID   string `json:"orderId"`
	Channel   string `json:"channel"`
	Narrative string `json:"narrative"`
}

// metrics tracks benchmark results.
type metrics struct {
	Correct     int64 // expected channel detected
	Wrong       int64 // an AI channel detected, but not the expected one
	Missed      int64 // AI scenario classified as no-signal
	FalseAlarms int64 // organic scenario classified as AI

	TotalProcessed int64
	TotalAI        int64
	TotalOrganic   int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

var scenarios = []scenario{
	{name: "chatgpt-referrer", expected: "ChatGPT", weight: 8, build: func(r *rand.Rand, o *orderRequest) {
		o.ReferringSite = "https://chatgpt.com/c/" + randomHex(r, 8)
	}},
	{name: "perplexity-referrer", expected: "Perplexity", weight: 5, build: func(r *rand.Rand, o *orderRequest) {
		o.ReferringSite = "https://www.perplexity.ai/search?q=" + randomHex(r, 6)
	}},
	{name: "copilot-bing-chat", expected: "Copilot", weight: 3, build: func(r *rand.Rand, o *orderRequest) {
		o.ReferringSite = "https://www.bing.com/chat?form=" + randomHex(r, 4)
	}},
	{name: "gemini-utm", expected: "Gemini", weight: 3, build: func(r *rand.Rand, o *orderRequest) {
		o.UTMSource = "gemini"
		o.UTMMedium = "referral"
	}},
	{name: "claude-landing-utm", expected: "Claude", weight: 2, build: func(r *rand.Rand, o *orderRequest) {
		o.LandingSite = "/products/widget?utm_source=claude.ai&utm_medium=ai"
		o.UTMSource = "claude.ai"
	}},
	{name: "ai-source-tag", expected: "ChatGPT", weight: 2, build: func(r *rand.Rand, o *orderRequest) {
		o.Tags = []string{"vip", "ai-source:chatgpt"}
	}},
	{name: "note-annotation", expected: "Other AI", weight: 1, build: func(r *rand.Rand, o *orderRequest) {
		o.NoteAttributes = []noteAttribute{{Name: "ai_source", Value: "shopbot"}}
	}},
	{name: "organic-google", expected: "", weight: 40, build: func(r *rand.Rand, o *orderRequest) {
		o.ReferringSite = "https://www.google.com/"
	}},
	{name: "organic-newsletter", expected: "", weight: 20, build: func(r *rand.Rand, o *orderRequest) {
		o.UTMSource = "newsletter"
		o.UTMMedium = "email"
	}},
	{name: "organic-direct", expected: "", weight: 16, build: func(r *rand.Rand, o *orderRequest) {}},
}

func main() {
	// Parse flags
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	shopID := flag.String("shop", "benchmark.myshopify.com", "Shop domain for requests")
	count := flag.Int("count", 10000, "Number of synthetic orders to send")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	seed := flag.Int64("seed", 42, "Random seed for reproducible order streams")
	verbose := flag.Bool("verbose", false, "Print each order result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        KESTREL BENCHMARK - Synthetic Order Attribution        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Shop:        %s\n", *shopID)
	fmt.Printf("Orders:      %d\n", *count)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Seed:        %d\n", *seed)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Generate synthetic orders
	orders, expected := generateOrders(*count, *seed)
	aiCount := 0
	for _, e := range expected {
		if e != "" {
			aiCount++
		}
	}
	fmt.Printf("✓ Generated %d orders\n", len(orders))
	fmt.Printf("  - AI scenarios:      %d (%.2f%%)\n", aiCount, 100*float64(aiCount)/float64(len(orders)))
	fmt.Printf("  - Organic scenarios: %d (%.2f%%)\n", len(orders)-aiCount, 100*float64(len(orders)-aiCount)/float64(len(orders)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	m := runBenchmark(orders, expected, *baseURL, *shopID, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(m, duration)

	// Measure dashboard latency on the ingested data set
	measureDashboard(*baseURL, *shopID)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func randomHex(r *rand.Rand, n int) string {
	const hexDigits = "0123456789abcdef"
	b := make([]byte, n)
	for i := range b {
		b[i] = hexDigits[r.Intn(len(hexDigits))]
	}
	return string(b)
}

// generateOrders builds the synthetic order stream plus its expected
// channel labels, deterministic for a given seed.
func generateOrders(count int, seed int64) ([]orderRequest, []string) {
	r := rand.New(rand.NewSource(seed))

	totalWeight := 0
	for _, s := range scenarios {
		totalWeight += s.weight
	}

	orders := make([]orderRequest, count)
	expected := make([]string, count)

	for i := 0; i < count; i++ {
		pick := r.Intn(totalWeight)
		var chosen scenario
		for _, s := range scenarios {
			if pick < s.weight {
				chosen = s
				break
			}
			pick -= s.weight
		}

		o := orderRequest{
			ID:          fmt.Sprintf("bench-%06d", i),
			Name:        fmt.Sprintf("#B%06d", i),
			Currency:    "USD",
			TotalPrice:  10 + r.Float64()*490,
			CustomerID:  fmt.Sprintf("cust-%04d", r.Intn(count/4+1)),
			NewCustomer: r.Intn(3) == 0,
		}
		chosen.build(r, &o)

		orders[i] = o
		expected[i] = chosen.expected
	}

	return orders, expected
}

func runBenchmark(orders []orderRequest, expected []string, baseURL, shopID string, numWorkers int, verbose bool) *metrics {
	m := &metrics{}

	type job struct {
		order    orderRequest
		expected string
	}

	work := make(chan job, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for j := range work {
				start := time.Now()
				result, err := ingestOrder(client, baseURL, shopID, j.order)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&m.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&m.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&m.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", j.order.ID, err)
					}
					continue
				}

				if j.expected != "" {
					atomic.AddInt64(&m.TotalAI, 1)
				} else {
					atomic.AddInt64(&m.TotalOrganic, 1)
				}

				switch {
				case result.Channel == j.expected:
					atomic.AddInt64(&m.Correct, 1)
				case j.expected == "":
					atomic.AddInt64(&m.FalseAlarms, 1)
				case result.Channel == "":
					atomic.AddInt64(&m.Missed, 1)
				default:
					atomic.AddInt64(&m.Wrong, 1)
				}

				if verbose {
					status := "✓"
					if result.Channel != j.expected {
						status = "✗"
					}
					fmt.Printf("%s %-12s | Expected: %-10s | Detected: %-10s | $%8.2f\n",
						status,
						j.order.ID,
						orDash(j.expected),
						orDash(result.Channel),
						j.order.TotalPrice,
					)
				}
			}
		}()
	}

	// Send work
	for i, o := range orders {
		work <- job{order: o, expected: expected[i]}
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return m
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func ingestOrder(client *http.Client, baseURL, shopID string, order orderRequest) (*ingestResponse, error) {
	body, err := json.Marshal(order)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Shop-Domain", shopID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ingestResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

// measureDashboard times a cold aggregation over the ingested orders and
// a warm cached repeat.
func measureDashboard(baseURL, shopID string) {
	fmt.Printf("\n📊 DASHBOARD LATENCY\n")

	client := &http.Client{Timeout: 60 * time.Second}

	fetch := func() (time.Duration, error) {
		req, err := http.NewRequest(http.MethodGet, baseURL+"/dashboard?range=30d", nil)
		if err != nil {
			return 0, err
		}
		req.Header.Set("X-Shop-Domain", shopID)

		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode != http.StatusOK {
			return 0, fmt.Errorf("status %d", resp.StatusCode)
		}
		return time.Since(start), nil
	}

	cold, err := fetch()
	if err != nil {
		fmt.Printf("   ERROR: dashboard fetch failed: %v\n", err)
		return
	}
	warm, err := fetch()
	if err != nil {
		fmt.Printf("   ERROR: cached dashboard fetch failed: %v\n", err)
		return
	}

	fmt.Printf("   Cold (aggregate): %v\n", cold.Round(time.Millisecond))
	fmt.Printf("   Warm (cached):    %v\n", warm.Round(time.Millisecond))
}

func printResults(m *metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   AI Scenarios:     %d\n", m.TotalAI)
	fmt.Printf("   Organic:          %d\n", m.TotalOrganic)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n🎯 ATTRIBUTION ACCURACY\n")
	fmt.Printf("   Correct:       %d\n", m.Correct)
	fmt.Printf("   Wrong Channel: %d\n", m.Wrong)
	fmt.Printf("   Missed AI:     %d\n", m.Missed)
	fmt.Printf("   False Alarms:  %d\n", m.FalseAlarms)

	scored := m.Correct + m.Wrong + m.Missed + m.FalseAlarms
	if scored > 0 {
		fmt.Printf("   Accuracy:      %.4f\n", float64(m.Correct)/float64(scored))
	}
	if m.TotalAI > 0 {
		aiCaught := m.TotalAI - m.Missed
		fmt.Printf("   AI Recall:     %.4f  (AI orders attributed to any channel)\n", float64(aiCaught)/float64(m.TotalAI))
	}
	if m.TotalOrganic > 0 {
		fmt.Printf("   False Alarm:   %.4f  (organic orders attributed to AI)\n", float64(m.FalseAlarms)/float64(m.TotalOrganic))
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		ops := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f orders/sec\n", ops)
	}

	fmt.Println()
}
