package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"thinkpay/internal/core"
)

func TestAmountField(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantCents int64
		wantErr   bool
	}{
		{"number", `1200.5`, 120050, false},
		{"string", `"1200.50"`, 120050, false},
		{"integer", `42`, 4200, false},
		{"null leaves zero", `null`, 0, false},
		{"zero", `0`, 0, true},
		{"negative", `-5`, 0, true},
		{"garbage string", `"12abc"`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f amountField
			err := json.Unmarshal([]byte(tt.input), &f)
			if tt.wantErr {
				if !errors.Is(err, core.ErrInvalidAmount) {
					t.Errorf("err = %v, want ErrInvalidAmount", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.Cents != tt.wantCents {
				t.Errorf("Cents = %d, want %d", f.Cents, tt.wantCents)
			}
		})
	}
}

func TestShareField_AcceptsZero(t *testing.T) {
	for _, input := range []string{`0`, `"0"`, `0.00`, `"0.0"`} {
		var f shareField
		if err := json.Unmarshal([]byte(input), &f); err != nil {
			t.Errorf("%s: unexpected error %v", input, err)
		}
		if !f.IsZero() {
			t.Errorf("%s: Cents = %d, want 0", input, f.Cents)
		}
	}

	var f shareField
	if err := json.Unmarshal([]byte(`"250"`), &f); err != nil || f.Cents != 25000 {
		t.Errorf("250: cents=%d err=%v", f.Cents, err)
	}
	if err := json.Unmarshal([]byte(`"."`), &f); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf(`".": err = %v, want ErrInvalidAmount`, err)
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Merchant string      `json:"merchant"`
		Amount   amountField `json:"amount"`
	}

	tests := []struct {
		name        string
		body        string
		contentType string
		wantErr     error
	}{
		{"valid", `{"merchant":"Cafe","amount":"12"}`, "application/json", nil},
		{"charset suffix", `{"merchant":"Cafe"}`, "application/json; charset=utf-8", nil},
		{"empty body", ``, "application/json", errBadRequest},
		{"wrong content type", `merchant=Cafe`, "application/x-www-form-urlencoded", errBadRequest},
		{"unknown field", `{"merchant":"Cafe","tip":1}`, "application/json", errBadRequest},
		{"trailing data", `{"merchant":"Cafe"}{"merchant":"Bar"}`, "application/json", errBadRequest},
		{"bad amount", `{"merchant":"Cafe","amount":"-3"}`, "application/json", core.ErrInvalidAmount},
		{"too large", `{"merchant":"` + strings.Repeat("a", maxBodyBytes) + `"}`, "application/json", errBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			w := httptest.NewRecorder()

			var dst payload
			err := decodeJSON(w, req, &dst)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("decodeJSON() error = %v", err)
				}
				if dst.Merchant != "Cafe" {
					t.Errorf("Merchant = %q, want Cafe", dst.Merchant)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("decodeJSON() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeOptionalJSON_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	w := httptest.NewRecorder()

	var dst beginPaymentRequest
	if err := decodeOptionalJSON(w, req, &dst); err != nil {
		t.Fatalf("decodeOptionalJSON() error = %v", err)
	}
	if dst.Emergency {
		t.Error("Emergency should stay false")
	}
}

func TestParseMonthParams(t *testing.T) {
	now := time.Date(2025, time.March, 14, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		query     url.Values
		wantYear  int
		wantMonth int
		wantErr   bool
	}{
		{"both values provided", url.Values{"year": {"2024"}, "month": {"12"}}, 2024, 12, false},
		{"only year", url.Values{"year": {"2023"}}, 2023, 3, false},
		{"only month", url.Values{"month": {"5"}}, 2025, 5, false},
		{"defaults", url.Values{}, 2025, 3, false},
		{"invalid month", url.Values{"month": {"abc"}}, 0, 0, true},
		{"invalid year", url.Values{"year": {"20x5"}}, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseMonthParams(tt.query, now)
			if tt.wantErr {
				if !errors.Is(err, errBadRequest) {
					t.Errorf("err = %v, want errBadRequest", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Year != tt.wantYear {
				t.Errorf("Year = %d, want %d", result.Year, tt.wantYear)
			}
			if result.Month != tt.wantMonth {
				t.Errorf("Month = %d, want %d", result.Month, tt.wantMonth)
			}
		})
	}
}

func TestParseAmountParam(t *testing.T) {
	m, err := ParseAmountParam(url.Values{"amount": {" 99.9 "}}, "amount")
	if err != nil || m.Cents != 9990 {
		t.Errorf("ParseAmountParam() = %d, %v", m.Cents, err)
	}
	if _, err := ParseAmountParam(url.Values{}, "amount"); !errors.Is(err, errBadRequest) {
		t.Errorf("missing amount: err = %v", err)
	}
	if _, err := ParseAmountParam(url.Values{"amount": {"0"}}, "amount"); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("zero amount: err = %v", err)
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Cafe X  ", "Cafe X"},
		{"Cafe\x00\x07 X", "Cafe X"},
		{"line\tbreak", "line\tbreak"},
	}
	for _, tt := range tests {
		if got := SanitizeInput(tt.in); got != tt.want {
			t.Errorf("SanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def", "abc.def", true},
		{"bearer abc", "abc", true},
		{"Basic dXNlcjpwYXNz", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		got, ok := bearerToken(req)
		if got != tt.want || ok != tt.ok {
			t.Errorf("bearerToken(%q) = %q, %v; want %q, %v", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}
