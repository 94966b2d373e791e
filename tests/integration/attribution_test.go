//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel attribution engine.
//
// These tests verify the COMPLETE pipeline:
//
//	Order → Signal Extraction → Attribution Chain → Persistence → Dashboard
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. ORDER: A storefront purchase carrying traffic context (referrer,
//    landing page, UTM parameters, tags, note attributes)
//
// 2. ATTRIBUTION CHAIN: Ordered detection stages, first match wins:
//    custom rules → platform overrides → referrer domain → utm_source →
//    utm_medium → note attributes → tags
//
// 3. CHANNEL: The AI assistant credited for the order, e.g. "ChatGPT",
//    "Perplexity", "Claude". Empty channel means no AI signal was found.
//
// 4. DASHBOARD: Aggregated view over a date range - GMV, order counts,
//    per-channel breakdown, daily trend.
//
// These tests expect a clean shop. They use a dedicated shop domain per
// run so earlier test data does not skew dashboard assertions.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL string
	ShopID  string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("KESTREL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL: baseURL,
		ShopID:  fmt.Sprintf("it-%d.myshopify.com", time.Now().UnixNano()),
	}
}

// ============================================================================
// API Request/Response Types (matching Kestrel's API contract)
// ============================================================================

// OrderRequest is the order sent to POST /orders
type OrderRequest struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Currency       string          `json:"currency"`
	TotalPrice     float64         `json:"totalPrice"`
	ReferringSite  string          `json:"referringSite,omitempty"`
	LandingSite    string          `json:"landingSite,omitempty"`
	UTMSource      string          `json:"utmSource,omitempty"`
	UTMMedium      string          `json:"utmMedium,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	NoteAttributes []NoteAttribute `json:"noteAttributes,omitempty"`
	CustomerID     string          `json:"customerId,omitempty"`
	NewCustomer    bool            `json:"newCustomer"`
}

type NoteAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// IngestResponse is what POST /orders returns
type IngestResponse struct {
	OrderID    string           `json:"orderId"`
	Channel    string           `json:"channel"`
	Confidence string           `json:"confidence"`
	Narrative  string           `json:"narrative"`
	Signals    []string         `json:"signals"`
	Metadata   ResponseMetadata `json:"metadata"`
}

type ResponseMetadata struct {
	TraceID string `json:"traceId"`
	TotalMs int64  `json:"totalMs"`
	Version string `json:"version"`
}

// DashboardResponse is the subset of GET /dashboard asserted here
type DashboardResponse struct {
	Overview struct {
		TotalOrders int     `json:"totalOrders"`
		TotalGMV    float64 `json:"totalGmv"`
		AIOrders    int     `json:"aiOrders"`
		AIGMV       float64 `json:"aiGmv"`
		Currency    string  `json:"currency"`
	} `json:"overview"`
	Channels []struct {
		Channel string  `json:"channel"`
		Orders  int     `json:"orders"`
		GMV     float64 `json:"gmv"`
	} `json:"channels"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func ingest(t *testing.T, config TestConfig, req OrderRequest) IngestResponse {
	t.Helper()

	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}

	httpReq, err := http.NewRequest("POST", config.BaseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Shop-Domain", config.ShopID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.StatusCode, string(respBody))
	}

	var result IngestResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(respBody))
	}

	return result
}

func fetchDashboard(t *testing.T, config TestConfig, query string) DashboardResponse {
	t.Helper()

	httpReq, err := http.NewRequest("GET", config.BaseURL+"/dashboard"+query, nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("X-Shop-Domain", config.ShopID)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(respBody))
	}

	var result DashboardResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		t.Fatalf("Failed to unmarshal dashboard: %v (body: %s)", err, string(respBody))
	}

	return result
}

// ============================================================================
// SCENARIO 1: AI Referrer Order
// ============================================================================

func TestChatGPTReferrer_Attributed(t *testing.T) {
	/*
	   SCENARIO: A customer clicks through from a ChatGPT conversation

	   EXPECTED BEHAVIOR:
	   - Referrer host "chatgpt.com" matches the built-in domain table
	   - Channel: "ChatGPT" with high confidence
	   - Signals include the matched referrer domain
	*/
	config := getTestConfig()

	req := OrderRequest{
		ID:            "it-chatgpt-001",
		Name:          "#IT1001",
		Currency:      "USD",
		TotalPrice:    149.00,
		ReferringSite: "https://chatgpt.com/c/abc123",
		CustomerID:    "it-cust-001",
		NewCustomer:   true,
	}

	result := ingest(t, config, req)

	if result.Channel != "ChatGPT" {
		t.Errorf("Expected channel ChatGPT, got %q", result.Channel)
	}
	if result.Confidence != "high" {
		t.Errorf("Expected high confidence for referrer match, got %q", result.Confidence)
	}
	if len(result.Signals) == 0 {
		t.Error("Expected at least one signal for a referrer match")
	}
	if result.Narrative == "" {
		t.Error("Expected a narrative explaining the attribution")
	}

	t.Logf("✓ ChatGPT referrer attributed: channel=%s, confidence=%s", result.Channel, result.Confidence)
}

// ============================================================================
// SCENARIO 2: Organic Order (No AI Signal)
// ============================================================================

func TestOrganicOrder_NoChannel(t *testing.T) {
	/*
	   SCENARIO: A regular order from a Google search click

	   EXPECTED BEHAVIOR:
	   - google.com is not in the domain table and carries no chat markers
	   - Channel: "" (no AI signal)
	   - The order is still persisted and counts toward dashboard totals
	*/
	config := getTestConfig()

	req := OrderRequest{
		ID:            "it-organic-001",
		Name:          "#IT1002",
		Currency:      "USD",
		TotalPrice:    59.00,
		ReferringSite: "https://www.google.com/",
		UTMSource:     "google",
		UTMMedium:     "organic",
	}

	result := ingest(t, config, req)

	if result.Channel != "" {
		t.Errorf("Expected no channel for organic traffic, got %q", result.Channel)
	}

	t.Logf("✓ Organic order left unattributed: channel=%q", result.Channel)
}

// ============================================================================
// SCENARIO 3: UTM Fallback When Referrer Is Stripped
// ============================================================================

func TestUTMSourceFallback_Attributed(t *testing.T) {
	/*
	   SCENARIO: The AI platform strips the referrer but the merchant's
	   tracked links carry utm_source=perplexity

	   EXPECTED BEHAVIOR:
	   - Referrer stage finds nothing (empty referrer)
	   - utm_source stage matches "perplexity" → channel "Perplexity"
	   - Confidence is medium (UTM is weaker evidence than a referrer)
	*/
	config := getTestConfig()

	req := OrderRequest{
		ID:          "it-utm-001",
		Name:        "#IT1003",
		Currency:    "USD",
		TotalPrice:  89.00,
		LandingSite: "/products/kettle?utm_source=perplexity&utm_medium=referral",
		UTMSource:   "perplexity",
		UTMMedium:   "referral",
	}

	result := ingest(t, config, req)

	if result.Channel != "Perplexity" {
		t.Errorf("Expected channel Perplexity from utm_source, got %q", result.Channel)
	}
	if result.Confidence != "medium" {
		t.Errorf("Expected medium confidence for UTM match, got %q", result.Confidence)
	}

	t.Logf("✓ UTM fallback attributed: channel=%s, confidence=%s", result.Channel, result.Confidence)
}

// ============================================================================
// SCENARIO 4: Merchant Custom Rule Shadows the Chain
// ============================================================================

func TestCustomRule_TakesPrecedence(t *testing.T) {
	/*
	   SCENARIO: Merchant defines a CEL rule mapping their in-house bot's
	   utm_source to "Other AI", then ingests a matching order

	   EXPECTED BEHAVIOR:
	   - POST /rules/custom compiles and stores the rule
	   - Custom rules run BEFORE every built-in stage
	   - The matching order is attributed to "Other AI" even though
	     "housebot" appears in no built-in table
	*/
	config := getTestConfig()

	rule := map[string]any{
		"id":         "it-rule-housebot",
		"name":       "In-house bot traffic",
		"expression": `utm_source == "housebot"`,
		"channel":    "Other AI",
		"enabled":    true,
	}

	body, _ := json.Marshal(rule)
	httpReq, _ := http.NewRequest("POST", config.BaseURL+"/rules/custom", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Shop-Domain", config.ShopID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Rule creation failed: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 creating custom rule, got %d", resp.StatusCode)
	}

	result := ingest(t, config, OrderRequest{
		ID:         "it-custom-001",
		Name:       "#IT1004",
		Currency:   "USD",
		TotalPrice: 25.00,
		UTMSource:  "housebot",
	})

	if result.Channel != "Other AI" {
		t.Errorf("Expected custom rule channel Other AI, got %q", result.Channel)
	}

	t.Logf("✓ Custom rule attributed: channel=%s", result.Channel)
}

// ============================================================================
// SCENARIO 5: Dashboard Aggregation Over Ingested Orders
// ============================================================================

func TestDashboard_ReflectsIngestedOrders(t *testing.T) {
	/*
	   SCENARIO: Ingest a known mix of AI and organic orders into a fresh
	   shop, then read GET /dashboard?range=30d

	   EXPECTED BEHAVIOR:
	   - TotalOrders counts every order, AIOrders only attributed ones
	   - AIGMV sums attributed order totals in the primary currency
	   - The channel table carries a row for the attributed channel
	*/
	config := getTestConfig()
	// Fresh shop so totals are exact
	config.ShopID = fmt.Sprintf("it-dash-%d.myshopify.com", time.Now().UnixNano())

	ingest(t, config, OrderRequest{
		ID: "it-dash-001", Name: "#D1", Currency: "USD", TotalPrice: 100.00,
		ReferringSite: "https://claude.ai/chat/xyz",
	})
	ingest(t, config, OrderRequest{
		ID: "it-dash-002", Name: "#D2", Currency: "USD", TotalPrice: 40.00,
		ReferringSite: "https://www.google.com/",
	})
	ingest(t, config, OrderRequest{
		ID: "it-dash-003", Name: "#D3", Currency: "USD", TotalPrice: 60.00,
		UTMSource: "newsletter", UTMMedium: "email",
	})

	dash := fetchDashboard(t, config, "?range=30d")

	if dash.Overview.TotalOrders != 3 {
		t.Errorf("Expected 3 total orders, got %d", dash.Overview.TotalOrders)
	}
	if dash.Overview.AIOrders != 1 {
		t.Errorf("Expected 1 AI order, got %d", dash.Overview.AIOrders)
	}
	if dash.Overview.AIGMV != 100.00 {
		t.Errorf("Expected AI GMV 100.00, got %.2f", dash.Overview.AIGMV)
	}
	if dash.Overview.TotalGMV != 200.00 {
		t.Errorf("Expected total GMV 200.00, got %.2f", dash.Overview.TotalGMV)
	}

	foundClaude := false
	for _, row := range dash.Channels {
		if row.Channel == "Claude" {
			foundClaude = true
			if row.Orders != 1 {
				t.Errorf("Expected 1 Claude order, got %d", row.Orders)
			}
			if row.GMV != 100.00 {
				t.Errorf("Expected Claude GMV 100.00, got %.2f", row.GMV)
			}
		}
	}
	if !foundClaude {
		t.Error("Expected a Claude row in the channel table")
	}

	t.Logf("✓ Dashboard totals: orders=%d, aiOrders=%d, aiGmv=%.2f",
		dash.Overview.TotalOrders, dash.Overview.AIOrders, dash.Overview.AIGMV)
}

// ============================================================================
// SCENARIO 6: Shop Isolation
// ============================================================================

func TestShopIsolation_OrdersDoNotLeak(t *testing.T) {
	/*
	   SCENARIO: Two shops ingest orders; each dashboard must only see
	   its own

	   WHY THIS MATTERS:
	   Every query is scoped by the X-Shop-Domain header. A leak here
	   would expose one merchant's revenue to another.
	*/
	shopA := getTestConfig()
	shopA.ShopID = fmt.Sprintf("it-iso-a-%d.myshopify.com", time.Now().UnixNano())
	shopB := shopA
	shopB.ShopID = fmt.Sprintf("it-iso-b-%d.myshopify.com", time.Now().UnixNano())

	ingest(t, shopA, OrderRequest{
		ID: "it-iso-001", Name: "#A1", Currency: "USD", TotalPrice: 500.00,
		ReferringSite: "https://chatgpt.com/",
	})

	dashB := fetchDashboard(t, shopB, "?range=30d")

	if dashB.Overview.TotalOrders != 0 {
		t.Errorf("Shop B dashboard leaked %d orders from shop A", dashB.Overview.TotalOrders)
	}

	t.Logf("✓ Shop isolation holds: shop B sees %d orders", dashB.Overview.TotalOrders)
}

// ============================================================================
// SCENARIO 7: Input Validation
// ============================================================================

func TestMissingOrderID_Error(t *testing.T) {
	/*
	   SCENARIO: Request missing the required order id

	   EXPECTED: HTTP 400 Bad Request
	*/
	config := getTestConfig()

	req := OrderRequest{
		ID:         "", // Missing!
		Currency:   "USD",
		TotalPrice: 100,
	}

	body, _ := json.Marshal(req)
	httpReq, _ := http.NewRequest("POST", config.BaseURL+"/orders", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Shop-Domain", config.ShopID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing order id, got %d", resp.StatusCode)
	}

	t.Logf("✓ Validation test passed: missing order id → HTTP %d", resp.StatusCode)
}

func TestMissingShopHeader_Error(t *testing.T) {
	/*
	   SCENARIO: Request without X-Shop-Domain header

	   EXPECTED: HTTP 400 Bad Request. The shop domain is validated as a
	   required field, not as auth.
	*/
	config := getTestConfig()

	req := OrderRequest{
		ID:         "it-noshop-001",
		Currency:   "USD",
		TotalPrice: 100,
	}

	body, _ := json.Marshal(req)
	httpReq, _ := http.NewRequest("POST", config.BaseURL+"/orders", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	// NO X-Shop-Domain header!

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing shop header, got %d", resp.StatusCode)
	}

	t.Logf("✓ Validation test passed: missing shop header → HTTP %d", resp.StatusCode)
}

// ============================================================================
// SCENARIO 8: Response Metadata Verification
// ============================================================================

func TestResponseMetadata(t *testing.T) {
	/*
	   SCENARIO: Verify the ingest response includes all required metadata

	   This ensures the API contract is stable for clients.
	*/
	config := getTestConfig()

	result := ingest(t, config, OrderRequest{
		ID:            "it-meta-001",
		Name:          "#IT1005",
		Currency:      "USD",
		TotalPrice:    100,
		ReferringSite: "https://www.perplexity.ai/",
	})

	if result.OrderID != "it-meta-001" {
		t.Errorf("Expected echoed order id, got %q", result.OrderID)
	}

	if result.Metadata.TraceID == "" {
		t.Error("Missing metadata.traceId")
	}

	// TotalMs can be 0 for sub-millisecond classifications
	if result.Metadata.TotalMs < 0 {
		t.Error("Invalid metadata.totalMs (negative)")
	}

	if result.Metadata.Version == "" {
		t.Error("Missing metadata.version")
	}

	t.Logf("✓ Metadata complete: orderId=%s, traceId=%s, totalMs=%d",
		result.OrderID, result.Metadata.TraceID, result.Metadata.TotalMs)
}
