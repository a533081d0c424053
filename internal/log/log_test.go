package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogger_JSONCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Format: "json", Component: ComponentPayment, Output: &buf})

	l.Info("Payment committed", FieldMerchant, "Cafe X")
	l.Debug("hidden")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "Payment committed", rec["msg"])
	assert.Equal(t, ComponentPayment, rec[FieldComponent])
	assert.Equal(t, "Cafe X", rec[FieldMerchant])
}

func TestLogFields(t *testing.T) {
	f := NewFields().
		WithUser("u1").
		WithPayment("Cafe X", 120000, "razorpay").
		WithError(nil, "").
		WithRequestID("")

	assert.Equal(t, "u1", f[FieldUserID])
	assert.Equal(t, int64(120000), f[FieldAmountCents])
	assert.NotContains(t, f, FieldError)
	assert.NotContains(t, f, FieldRequestID)
	assert.Len(t, f.ToSlice(), 2*len(f))
}

func TestRequestLogging(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Format: "json", Output: &buf})

	var inner *Logger
	h := RequestLogging(l,
		func(*http.Request) string { return "req-1" },
		func(*http.Request) string { return "10.0.0.1" },
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session?x=1", nil))

	require.NotNil(t, inner)
	assert.Equal(t, ComponentHTTP, inner.Component())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "req-1", entry[FieldRequestID])
	assert.Equal(t, float64(http.StatusTeapot), entry[FieldStatusCode])
	assert.Equal(t, "/api/session", entry[FieldPath])
	assert.Equal(t, "10.0.0.1", entry[FieldClientIP])
}

func TestFromContext_Default(t *testing.T) {
	l := FromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.Equal(t, "unknown", l.Component())
}
