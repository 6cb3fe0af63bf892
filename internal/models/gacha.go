package models

import (
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the timestamp format used in the winners sheet.
const TimeLayout = "2006/01/02 15:04"

// PrizeEntry represents a single prize tier in the gacha catalog.
// Weight is the relative probability mass for the draw; Stock is the
// number of units left. Message and Image are presentation payload and
// are passed through untouched.
type PrizeEntry struct {
	Name    string  `json:"name"`
	Rank    int     `json:"rank"`
	Weight  float64 `json:"weight"`
	Stock   int     `json:"stock"`
	Message string  `json:"message"`
	Image   string  `json:"image"`
}

// WinnerRecord is one registered win awaiting redemption.
// RedeemedAt is the zero time exactly when Redeemed is false.
type WinnerRecord struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	WinnerName string    `json:"winnerName"`
	PrizeName  string    `json:"prizeName"`
	Rank       int       `json:"rank"`
	Redeemed   bool      `json:"redeemed"`
	RedeemedAt time.Time `json:"redeemedAt"`
}

// Table is a whole worksheet as the store hands it to us: a header row
// plus string cells. All persistence goes through this shape because the
// store only supports full-table read and replace.
type Table struct {
	Header  []string   `json:"header"`
	Records [][]string `json:"records"`
}

var catalogHeader = []string{"name", "rank", "weight", "stock", "message", "image"}

var ledgerHeader = []string{"id", "timestamp", "name", "prize_name", "rank", "redeemed", "redeemed_at"}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.TrimSpace(strings.ToLower(col))] = i
	}
	return idx
}

func cell(record []string, idx map[string]int, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// parseNumber coerces a sheet cell to a float. Blank or malformed cells
// become 0 rather than an error; a kiosk must keep running when someone
// fat-fingers the spreadsheet.
func parseNumber(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseFlag(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// ParseCatalog decodes the settings worksheet into prize entries.
// Columns are matched by header name so the sheet may be reordered.
func ParseCatalog(t Table) []PrizeEntry {
	idx := columnIndex(t.Header)
	entries := make([]PrizeEntry, 0, len(t.Records))
	for _, rec := range t.Records {
		entries = append(entries, PrizeEntry{
			Name:    cell(rec, idx, "name"),
			Rank:    int(parseNumber(cell(rec, idx, "rank"))),
			Weight:  parseNumber(cell(rec, idx, "weight")),
			Stock:   int(parseNumber(cell(rec, idx, "stock"))),
			Message: cell(rec, idx, "message"),
			Image:   cell(rec, idx, "image"),
		})
	}
	return entries
}

// CatalogTable encodes prize entries back into the settings worksheet.
func CatalogTable(entries []PrizeEntry) Table {
	records := make([][]string, 0, len(entries))
	for _, e := range entries {
		records = append(records, []string{
			e.Name,
			strconv.Itoa(e.Rank),
			strconv.FormatFloat(e.Weight, 'f', -1, 64),
			strconv.Itoa(e.Stock),
			e.Message,
			e.Image,
		})
	}
	return Table{Header: catalogHeader, Records: records}
}

// ParseLedger decodes the winners worksheet. Timestamps that fail to
// parse are kept as zero times; the row itself is never dropped.
func ParseLedger(t Table) []WinnerRecord {
	idx := columnIndex(t.Header)
	records := make([]WinnerRecord, 0, len(t.Records))
	for _, rec := range t.Records {
		created, _ := time.ParseInLocation(TimeLayout, cell(rec, idx, "timestamp"), time.Local)
		redeemedAt, _ := time.ParseInLocation(TimeLayout, cell(rec, idx, "redeemed_at"), time.Local)
		records = append(records, WinnerRecord{
			ID:         cell(rec, idx, "id"),
			CreatedAt:  created,
			WinnerName: cell(rec, idx, "name"),
			PrizeName:  cell(rec, idx, "prize_name"),
			Rank:       int(parseNumber(cell(rec, idx, "rank"))),
			Redeemed:   parseFlag(cell(rec, idx, "redeemed")),
			RedeemedAt: redeemedAt,
		})
	}
	return records
}

// LedgerTable encodes winner records back into the winners worksheet.
func LedgerTable(records []WinnerRecord) Table {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		redeemedAt := ""
		if !r.RedeemedAt.IsZero() {
			redeemedAt = r.RedeemedAt.Format(TimeLayout)
		}
		rows = append(rows, []string{
			r.ID,
			r.CreatedAt.Format(TimeLayout),
			r.WinnerName,
			r.PrizeName,
			strconv.Itoa(r.Rank),
			strings.ToUpper(strconv.FormatBool(r.Redeemed)),
			redeemedAt,
		})
	}
	return Table{Header: ledgerHeader, Records: rows}
}
