// Package google exports annual summaries to a Google Sheets spreadsheet.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finny/internal/finance"
	"finny/internal/log"
)

// Config selects the spreadsheet and the OAuth credentials. Inline JSON
// takes precedence over files.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenJSON  string
	OAuthTokenFile  string
}

// Exporter writes one tab per user and year.
type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	maxElapsed    time.Duration

	mu    sync.Mutex
	known map[string]bool
}

func New(svc *gsheet.Service, spreadsheetID, sheetName string) *Exporter {
	return &Exporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		maxElapsed:    30 * time.Second,
		known:         make(map[string]bool),
	}
}

// NewFromConfig builds a Sheets service authorized with the stored OAuth
// token. The token refreshes itself through the client credentials.
func NewFromConfig(ctx context.Context, cfg Config) (*Exporter, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	clientJSON, err := readSecret(cfg.OAuthClientJSON, cfg.OAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("oauth client: %w", err)
	}
	tokenJSON, err := readSecret(cfg.OAuthTokenJSON, cfg.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("oauth token: %w", err)
	}
	oauthCfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	svc, err := gsheet.NewService(ctx, goption.WithHTTPClient(oauthCfg.Client(ctx, &tok)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return New(svc, cfg.SpreadsheetID, cfg.SheetName), nil
}

func readSecret(inline, file string) ([]byte, error) {
	switch {
	case strings.TrimSpace(inline) != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		return b, nil
	}
	return nil, errors.New("neither inline JSON nor file provided")
}

// newHTTPClientWithPooling creates an HTTP client for the Sheets API with
// connection pooling and bounded timeouts.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// SheetTitle names the tab of a year. A blank userID gives the shared
// "<year> <sheet>" tab used by single-user exports.
func SheetTitle(sheetName string, year int, userID string) string {
	title := yearPrefixedName(sheetName, year)
	if userID != "" {
		title += " " + userID
	}
	return title
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	if base == "" {
		return strconv.Itoa(year)
	}
	return fmt.Sprintf("%d %s", year, base)
}

// AnnualRows lays out a summary as a header row, one row per month, the
// totals row and the averages row. Amounts are plain decimals so that
// Sheets parses them as numbers.
func AnnualRows(sum finance.AnnualSummary) [][]any {
	rows := make([][]any, 0, len(sum.Months)+3)
	rows = append(rows, []any{"Month", "Income", "Expenses", "Balance", "Savings goal"})
	for _, m := range sum.Months {
		rows = append(rows, []any{
			time.Month(m.Month).String(),
			m.Income.String(),
			m.Expenses.String(),
			m.Balance.String(),
			m.Goal.String(),
		})
	}
	rows = append(rows,
		[]any{"Total", sum.TotalIncome.String(), sum.TotalExpenses.String(), sum.TotalSaved.String(), ""},
		[]any{"Monthly average", "", sum.AverageMonthlyExpenses.String(), sum.AverageMonthlySaved.String(), ""},
	)
	return rows
}

// ExportAnnual writes sum to the tab of userID and year, creating the tab
// when it does not exist yet.
func (e *Exporter) ExportAnnual(ctx context.Context, userID string, sum finance.AnnualSummary) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}
	title := SheetTitle(e.sheetName, sum.Year, userID)
	if err := e.ensureSheet(ctx, title); err != nil {
		return err
	}
	rows := AnnualRows(sum)
	rng := fmt.Sprintf("'%s'!A1:E%d", title, len(rows))
	vr := &gsheet.ValueRange{Values: rows}
	err := e.retry(ctx, func() error {
		_, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, rng, vr).
			ValueInputOption("USER_ENTERED").Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	log.FromContext(ctx).InfoContext(ctx, "Exported annual summary",
		log.FieldUserID, userID,
		log.FieldYear, sum.Year,
		"sheet", title)
	return nil
}

func (e *Exporter) ensureSheet(ctx context.Context, title string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.known[title] {
		return nil
	}

	var ss *gsheet.Spreadsheet
	err := e.retry(ctx, func() error {
		var err error
		ss, err = e.svc.Spreadsheets.Get(e.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			e.known[sh.Properties.Title] = true
		}
	}
	if e.known[title] {
		return nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		}},
	}
	err = e.retry(ctx, func() error {
		_, err := e.svc.Spreadsheets.BatchUpdate(e.spreadsheetID, req).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("add sheet %q: %w", title, err)
	}
	e.known[title] = true
	return nil
}

// retry repeats op on rate limiting and server errors.
func (e *Exporter) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = e.maxElapsed
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
}

func isRetryable(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500
	}
	return false
}
