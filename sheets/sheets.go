// Package sheets mirrors video records into a Google Sheets worksheet,
// upserting rows by video ID.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ktappdev/ytstats/model"
	"github.com/ktappdev/ytstats/retry"
)

var (
	// ErrAuth reports missing or rejected credentials.
	ErrAuth = errors.New("spreadsheet authentication failed")
	// ErrPermission reports a spreadsheet the credentials cannot reach.
	ErrPermission = errors.New("spreadsheet access denied")
	// ErrWorksheetNotFound reports a missing worksheet title.
	ErrWorksheetNotFound = errors.New("worksheet not found")
)

// MaxCellLength is the Sheets per-cell character limit.
const MaxCellLength = 50000

// Header is the fixed column layout of the worksheet.
var Header = []string{
	"Video ID",
	"Channel ID",
	"Title",
	"Video URL",
	"Thumbnail URL",
	"Published Date",
	"View Count",
	"Like Count",
	"Comment Count",
	"Transcript",
}

// lastColumn is the A1 letter of the final header column.
var lastColumn = string(rune('A' + len(Header) - 1))

// Config locates the worksheet and the service account key.
type Config struct {
	SpreadsheetID   string
	Worksheet       string
	CredentialsFile string
}

// Outcome counts what one export did.
type Outcome struct {
	Appended int
	Updated  int
	Skipped  int
}

// Written is the number of rows appended or updated.
func (o Outcome) Written() int {
	return o.Appended + o.Updated
}

// Sink writes records to one worksheet.
type Sink struct {
	svc           *sheets.Service
	spreadsheetID string
	title         string
	retry         retry.Policy
	logger        zerolog.Logger
}

// New authenticates with the service account key in cfg.CredentialsFile and
// opens the configured worksheet.
func New(ctx context.Context, cfg Config, logger zerolog.Logger, opts ...option.ClientOption) (*Sink, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("%w: no spreadsheet id configured", ErrAuth)
	}

	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: read credentials: %v", ErrAuth, err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("%w: parse credentials: %v", ErrAuth, err)
	}

	opts = append([]option.ClientOption{option.WithCredentials(creds)}, opts...)
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating Sheets client: %w", err)
	}
	return open(ctx, svc, cfg, logger)
}

func open(ctx context.Context, svc *sheets.Service, cfg Config, logger zerolog.Logger) (*Sink, error) {
	s := &Sink{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		retry:         retry.DefaultPolicy(),
		logger:        logger,
	}

	var ss *sheets.Spreadsheet
	err := s.do(ctx, func(ctx context.Context) (err error) {
		ss, err = svc.Spreadsheets.Get(cfg.SpreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}

	title, ok := matchWorksheet(ss, cfg.Worksheet)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrWorksheetNotFound, cfg.Worksheet)
	}
	s.title = title
	logger.Debug().Str("worksheet", title).Msg("connected to spreadsheet")
	return s, nil
}

// matchWorksheet finds a worksheet by exact title, then by title with
// surrounding whitespace ignored on both sides.
func matchWorksheet(ss *sheets.Spreadsheet, name string) (string, bool) {
	var titles []string
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			titles = append(titles, sh.Properties.Title)
		}
	}
	for _, t := range titles {
		if t == name {
			return t, true
		}
	}
	for _, t := range titles {
		if strings.TrimSpace(t) == strings.TrimSpace(name) {
			return t, true
		}
	}
	return "", false
}

// ExportBatch upserts records by video ID: existing rows are rewritten in
// place, new ones are appended. Row order in the sheet is never changed.
func (s *Sink) ExportBatch(ctx context.Context, records []model.VideoRecord) (Outcome, error) {
	var out Outcome
	if len(records) == 0 {
		return out, nil
	}

	if err := s.ensureHeader(ctx); err != nil {
		return out, err
	}
	rowOf, err := s.keyRows(ctx)
	if err != nil {
		return out, err
	}

	var (
		updates []*sheets.ValueRange
		appends [][]any
		seen    = make(map[string]bool, len(records))
	)
	for _, r := range records {
		if r.VideoID == "" || seen[r.VideoID] {
			out.Skipped++
			continue
		}
		seen[r.VideoID] = true

		if row, ok := rowOf[r.VideoID]; ok {
			updates = append(updates, &sheets.ValueRange{
				Range:  s.a1(fmt.Sprintf("A%d:%s%d", row, lastColumn, row)),
				Values: [][]any{rowValues(r)},
			})
			continue
		}
		appends = append(appends, rowValues(r))
	}

	if len(updates) > 0 {
		req := &sheets.BatchUpdateValuesRequest{ValueInputOption: "RAW", Data: updates}
		err := s.do(ctx, func(ctx context.Context) error {
			_, err := s.svc.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do()
			return err
		})
		if err != nil {
			return out, fmt.Errorf("update rows: %w", err)
		}
		out.Updated = len(updates)
	}

	if len(appends) > 0 {
		vr := &sheets.ValueRange{Values: appends}
		err := s.do(ctx, func(ctx context.Context) error {
			_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.a1("A1"), vr).
				ValueInputOption("RAW").
				InsertDataOption("INSERT_ROWS").
				Context(ctx).
				Do()
			return err
		})
		if err != nil {
			return out, fmt.Errorf("append rows: %w", err)
		}
		out.Appended = len(appends)
	}

	s.logger.Info().
		Int("appended", out.Appended).
		Int("updated", out.Updated).
		Int("skipped", out.Skipped).
		Msg("exported videos to spreadsheet")
	return out, nil
}

func (s *Sink) ensureHeader(ctx context.Context) error {
	var current *sheets.ValueRange
	err := s.do(ctx, func(ctx context.Context) (err error) {
		current, err = s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.a1("1:1")).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if headerMatches(current) {
		return nil
	}

	row := make([]any, len(Header))
	for i, h := range Header {
		row[i] = h
	}
	vr := &sheets.ValueRange{Values: [][]any{row}}
	err = s.do(ctx, func(ctx context.Context) error {
		_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, s.a1("A1:"+lastColumn+"1"), vr).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	s.logger.Info().Msg("header row written to spreadsheet")
	return nil
}

func headerMatches(vr *sheets.ValueRange) bool {
	if vr == nil || len(vr.Values) == 0 || len(vr.Values[0]) != len(Header) {
		return false
	}
	for i, h := range Header {
		if fmt.Sprint(vr.Values[0][i]) != h {
			return false
		}
	}
	return true
}

// keyRows maps each video ID in column A to its 1-based row number. The
// first occurrence wins.
func (s *Sink) keyRows(ctx context.Context) (map[string]int, error) {
	var col *sheets.ValueRange
	err := s.do(ctx, func(ctx context.Context) (err error) {
		col, err = s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.a1("A2:A")).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read video ids: %w", err)
	}

	rows := make(map[string]int, len(col.Values))
	for i, cells := range col.Values {
		if len(cells) == 0 {
			continue
		}
		id := strings.TrimSpace(fmt.Sprint(cells[0]))
		if _, dup := rows[id]; id != "" && !dup {
			rows[id] = i + 2
		}
	}
	return rows, nil
}

// a1 qualifies a range with the worksheet title.
func (s *Sink) a1(r string) string {
	return "'" + strings.ReplaceAll(s.title, "'", "''") + "'!" + r
}

func rowValues(r model.VideoRecord) []any {
	return []any{
		r.VideoID,
		r.ChannelID,
		truncate(r.Title),
		r.URL(),
		r.ThumbnailURL,
		r.PublishedString(),
		r.ViewCount,
		r.LikeCount,
		r.CommentCount,
		truncate(r.Transcript),
	}
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxCellLength {
		return s
	}
	return string([]rune(s)[:MaxCellLength])
}

// do runs a Sheets call, retrying on HTTP 429, and maps auth failures onto
// ErrAuth and ErrPermission.
func (s *Sink) do(ctx context.Context, call func(context.Context) error) error {
	return classify(retry.Do(ctx, s.retry, isRateLimited, call))
}

func isRateLimited(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests
}

func classify(err error) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", ErrAuth, err)
		case http.StatusForbidden, http.StatusNotFound:
			return fmt.Errorf("%w: %v", ErrPermission, err)
		}
		return err
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}
	return err
}
