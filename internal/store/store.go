package store

import (
	"context"
	"errors"

	"github.com/noah-nozomu/gacha-app/internal/models"
)

// Worksheet names shared by every backend. They match the tabs of the
// original spreadsheet.
const (
	CatalogTable = "settings"
	LedgerTable  = "winners"
)

var (
	// ErrVersionConflict is returned by a conditional Write when the
	// table changed since the version it was computed from. Callers
	// re-read and retry.
	ErrVersionConflict = errors.New("table version conflict")

	// ErrUnavailable wraps transport or backend failures. Anything
	// written in the failing call must be treated as not committed.
	ErrUnavailable = errors.New("table store unavailable")
)

// TableStore is the only persistence primitive the application has:
// read a whole table, replace a whole table. There is no partial-row
// update, so every mutation is snapshot → compute → conditional write.
type TableStore interface {
	// Read returns the table contents and an opaque version token.
	Read(ctx context.Context, table string) (models.Table, string, error)

	// Write replaces the table. With a non-empty version it succeeds
	// only if the stored version still matches, returning
	// ErrVersionConflict otherwise. An empty version replaces
	// unconditionally.
	Write(ctx context.Context, table string, t models.Table, version string) error
}
