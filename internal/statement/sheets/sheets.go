// Package sheets delivers statements to a tab of a Google Spreadsheet.
package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"thinkpay/internal/statement"
)

// Scope is the OAuth scope the sink needs.
const Scope = gsheet.SpreadsheetsScope

// Credentials select how the sink authenticates: a service account file,
// or an OAuth client plus a stored token (file or inline JSON).
type Credentials struct {
	ServiceAccountFile string
	OAuthClientFile    string
	OAuthClientJSON    string
	OAuthTokenFile     string
	OAuthTokenJSON     string
}

// ClientOptions turns creds into API client options.
func ClientOptions(ctx context.Context, creds Credentials) ([]option.ClientOption, error) {
	if creds.ServiceAccountFile != "" {
		b, err := os.ReadFile(creds.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return []option.ClientOption{option.WithCredentialsJSON(b), option.WithScopes(Scope)}, nil
	}

	clientJSON, err := inlineOrFile(creds.OAuthClientJSON, creds.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client: %w", err)
	}
	tokenJSON, err := inlineOrFile(creds.OAuthTokenJSON, creds.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	if clientJSON == nil || tokenJSON == nil {
		return nil, errors.New("missing Google credentials: set a service account or an OAuth client and token")
	}

	cfg, err := google.ConfigFromJSON(clientJSON, Scope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	tok, err := ParseToken(tokenJSON)
	if err != nil {
		return nil, err
	}
	return []option.ClientOption{option.WithTokenSource(cfg.TokenSource(ctx, tok))}, nil
}

// ParseToken decodes a token stored by oauth-init.
func ParseToken(b []byte) (*oauth2.Token, error) {
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, errors.New("decode oauth token: token has neither access nor refresh token")
	}
	return &tok, nil
}

func inlineOrFile(inline, path string) ([]byte, error) {
	switch {
	case strings.TrimSpace(inline) != "":
		return []byte(inline), nil
	case path != "":
		return os.ReadFile(path)
	}
	return nil, nil
}

type Sink struct {
	svc           *gsheet.Service
	spreadsheetID string
}

var _ statement.Sink = (*Sink)(nil)

func New(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*Sink, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("sheets sink: spreadsheet id is required")
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Sink{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// tabTitle names the tab holding one statement.
func tabTitle(st statement.Statement) string {
	return st.Period() + " " + st.UserID
}

// Deliver writes the statement rows to its own tab, creating the tab on
// first export and overwriting it on re-export.
func (s *Sink) Deliver(ctx context.Context, st statement.Statement) (string, error) {
	title := tabTitle(st)
	if err := s.ensureTab(ctx, title); err != nil {
		return "", err
	}

	quoted := "'" + strings.ReplaceAll(title, "'", "''") + "'"
	if _, err := s.svc.Spreadsheets.Values.Clear(s.spreadsheetID, quoted, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear tab %s: %w", title, err)
	}

	rows := st.Rows()
	values := make([][]any, len(rows))
	for i, row := range rows {
		cells := make([]any, len(row))
		for j, c := range row {
			cells[j] = c
		}
		values[i] = cells
	}
	rng := fmt.Sprintf("%s!A1:H%d", quoted, len(rows))
	if _, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("update %s: %w", rng, err)
	}

	slog.DebugContext(ctx, "Statement written to spreadsheet", "range", rng, "rows", len(rows))
	return fmt.Sprintf("sheets://%s/%s", s.spreadsheetID, rng), nil
}

func (s *Sink) ensureTab(ctx context.Context, title string) error {
	ss, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return nil
		}
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	if _, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add tab %s: %w", title, err)
	}
	return nil
}
