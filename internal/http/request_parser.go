package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"thinkpay/internal/core"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 64 << 10

// amountField accepts an amount as a JSON number (1200.5) or a decimal
// string ("1200.50"). Null or absent leaves it zero.
type amountField struct {
	core.Money
}

func (a *amountField) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	s := string(data)
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(data, &s); err != nil {
			return core.ErrInvalidAmount
		}
	}
	m, err := core.ParseMoney(s)
	if err != nil {
		return err
	}
	a.Money = m
	return nil
}

// shareField is one vault's share of a split. Unlike amountField it accepts
// zero, which drops the vault from the split.
type shareField struct {
	core.Money
}

func (a *shareField) UnmarshalJSON(data []byte) error {
	var f amountField
	err := f.UnmarshalJSON(data)
	if errors.Is(err, core.ErrInvalidAmount) && isZeroLiteral(data) {
		a.Money = core.Money{}
		return nil
	}
	a.Money = f.Money
	return err
}

func isZeroLiteral(data []byte) bool {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	return strings.Contains(s, "0") && strings.Trim(s, "0.") == "" && strings.Count(s, ".") <= 1
}

// decodeJSON reads a single JSON object from the body into dst. Unknown
// fields and trailing data are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return fmt.Errorf("%w: content type must be application/json", errBadRequest)
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: empty body", errBadRequest)
		case errors.As(err, &maxErr):
			return fmt.Errorf("%w: body exceeds %d bytes", errBadRequest, maxErr.Limit)
		case errors.Is(err, core.ErrInvalidAmount):
			return err
		default:
			return fmt.Errorf("%w: %v", errBadRequest, err)
		}
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after JSON object", errBadRequest)
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.ContentLength == 0 {
		return nil
	}
	return decodeJSON(w, r, dst)
}

// MonthParams holds parsed year/month values.
type MonthParams struct {
	Year  int
	Month int
}

// ParseMonthParams extracts year and month from query parameters, using the
// month of now as defaults. Unparseable values are an error.
func ParseMonthParams(query url.Values, now time.Time) (MonthParams, error) {
	params := MonthParams{Year: now.Year(), Month: int(now.Month())}

	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return params, fmt.Errorf("%w: invalid year %q", errBadRequest, v)
		}
		params.Year = y
	}
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return params, fmt.Errorf("%w: invalid month %q", errBadRequest, v)
		}
		params.Month = m
	}
	return params, nil
}

// ParseAmountParam parses a required amount query parameter.
func ParseAmountParam(query url.Values, name string) (core.Money, error) {
	v := strings.TrimSpace(query.Get(name))
	if v == "" {
		return core.Money{}, fmt.Errorf("%w: %s is required", errBadRequest, name)
	}
	return core.ParseMoney(v)
}

// SanitizeInput removes control characters and trims whitespace.
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
