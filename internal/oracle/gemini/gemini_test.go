package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"thinkpay/internal/core"
	"thinkpay/internal/oracle"
)

// fakeGemini answers generateContent calls with the given model text.
func fakeGemini(t *testing.T, status int, modelText string) (*httptest.Server, *[]string) {
	t.Helper()
	var prompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		_ = json.Unmarshal(body, &req)
		if len(req.Contents) > 0 && len(req.Contents[0].Parts) > 0 {
			prompts = append(prompts, req.Contents[0].Parts[0].Text)
		}
		if !strings.Contains(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"code":500,"message":"boom"}}`))
			return
		}
		resp := map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{
					"role":  "model",
					"parts": []any{map[string]any{"text": modelText}},
				},
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &prompts
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(context.Background(), Config{Model: "test-model", Timeout: 2 * time.Second},
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication())
	require.NoError(t, err)
	return c
}

func TestClient_Categorize(t *testing.T) {
	srv, prompts := fakeGemini(t, http.StatusOK,
		`{"category":"Dining","confidence":0.92,"suggestedVault":"Food","explanation":"Cafe purchase"}`)
	c := newTestClient(t, srv)

	got := c.Categorize(context.Background(), "Cafe X", core.Units(1200))
	assert.Equal(t, "Dining", got.Category)
	assert.Equal(t, core.Food, got.SuggestedVault)
	assert.InDelta(t, 0.92, got.Confidence, 1e-9)
	assert.False(t, got.Fallback)
	require.Len(t, *prompts, 1)
	assert.Contains(t, (*prompts)[0], `"Cafe X"`)
	assert.Contains(t, (*prompts)[0], "1200.00")
}

func TestClient_CategorizeFallsBack(t *testing.T) {
	cases := []struct {
		name   string
		status int
		text   string
	}{
		{"server error", http.StatusInternalServerError, ""},
		{"not json", http.StatusOK, "Food, probably"},
		{"missing field", http.StatusOK, `{"category":"Dining","confidence":0.5,"suggestedVault":"Food"}`},
		{"unknown vault", http.StatusOK, `{"category":"Travel","confidence":0.5,"suggestedVault":"Travel","explanation":"x"}`},
		{"confidence out of range", http.StatusOK, `{"category":"Dining","confidence":7,"suggestedVault":"Food","explanation":"x"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := fakeGemini(t, tc.status, tc.text)
			c := newTestClient(t, srv)
			got := c.Categorize(context.Background(), "Somewhere", core.Units(10))
			assert.Equal(t, oracle.FallbackCategorization(), got)
		})
	}
}

func TestClient_MonthlyInsights(t *testing.T) {
	srv, prompts := fakeGemini(t, http.StatusOK,
		`{"tips":["Cook at home","Cap dining"],"summary":"Food heavy month","savingsPotential":"₹2,000"}`)
	c := newTestClient(t, srv)

	var txs []core.Transaction
	for i := 0; i < 20; i++ {
		txs = append(txs, core.Transaction{Merchant: "M" + string(rune('A'+i)), Amount: core.Units(100)})
	}
	vaults := core.DefaultVaults("u1")

	got := c.MonthlyInsights(context.Background(), txs, vaults)
	assert.Equal(t, []string{"Cook at home", "Cap dining"}, got.Tips)
	assert.Equal(t, "₹2,000", got.SavingsPotential)
	assert.False(t, got.Fallback)

	require.Len(t, *prompts, 1)
	assert.Contains(t, (*prompts)[0], "MO: ₹100")
	assert.NotContains(t, (*prompts)[0], "MP: ")
}

func TestClient_MonthlyInsightsFallsBack(t *testing.T) {
	srv, _ := fakeGemini(t, http.StatusOK, `{"tips":[],"summary":"","savingsPotential":""}`)
	c := newTestClient(t, srv)
	got := c.MonthlyInsights(context.Background(), nil, nil)
	assert.Equal(t, oracle.FallbackInsights(), got)
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestParseCategorization_NormalizesVaultCase(t *testing.T) {
	got, err := ParseCategorization(`{"category":" Bills ","confidence":0,"suggestedVault":"bills","explanation":""}`)
	require.NoError(t, err)
	assert.Equal(t, core.Bills, got.SuggestedVault)
	assert.Equal(t, "Bills", got.Category)
}
