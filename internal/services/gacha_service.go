package services

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/google/logger"
	"github.com/google/uuid"

	"github.com/noah-nozomu/gacha-app/internal/models"
	"github.com/noah-nozomu/gacha-app/internal/store"
)

var (
	// ErrOutOfStock means no entry with remaining stock can be drawn.
	// Terminal for the current draw; callers show "sold out".
	ErrOutOfStock = errors.New("すべての景品が終了しました")

	// ErrInvalidName rejects empty or whitespace-only winner names.
	ErrInvalidName = errors.New("お名前を入力してください")

	// ErrNotFound means the redemption target does not exist among the
	// unredeemed records. Marking an already-redeemed record fails with
	// this too, so stale admin screens cannot double-process.
	ErrNotFound = errors.New("対象の当選記録が見つかりません")

	// ErrContention means the optimistic write lost the race more times
	// than the retry budget allows. The whole operation is safe to
	// retry from the top.
	ErrContention = errors.New("混み合っています。もう一度お試しください")
)

const defaultDrawRetries = 3

// DefaultBaseline is the per-rank stock a reset restores. Ranks not
// listed reset to 0.
var DefaultBaseline = map[int]int{1: 5, 2: 5, 3: 50, 4: 140}

// GachaService owns the draw and the winner ledger. All state of
// record lives in the table store; the service itself is stateless and
// safe for concurrent use. Every mutation follows the same pattern:
// read a table snapshot with its version, compute the next snapshot,
// and write it back conditionally, retrying on conflict.
type GachaService struct {
	tables   store.TableStore
	retries  int
	baseline map[int]int
}

// NewGachaService creates a service over the given table store.
// retries bounds the optimistic-concurrency loop; values < 1 fall back
// to the default.
func NewGachaService(tables store.TableStore, retries int) *GachaService {
	if retries < 1 {
		retries = defaultDrawRetries
	}
	return &GachaService{
		tables:   tables,
		retries:  retries,
		baseline: DefaultBaseline,
	}
}

// Catalog returns the current prize catalog.
func (s *GachaService) Catalog(ctx context.Context) ([]models.PrizeEntry, error) {
	table, _, err := s.tables.Read(ctx, store.CatalogTable)
	if err != nil {
		return nil, err
	}
	return models.ParseCatalog(table), nil
}

// SoldOut reports whether the catalog has no stock left at all.
func (s *GachaService) SoldOut(ctx context.Context) (bool, error) {
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return false, err
	}
	for _, e := range catalog {
		if e.Stock > 0 {
			return false, nil
		}
	}
	return true, nil
}

// Draw selects one prize by weighted random sampling among entries with
// remaining stock, decrements that entry's stock by exactly one and
// persists the catalog. The returned entry carries the pre-decrement
// stock. The draw is only final once the conditional write committed;
// a conflicting kiosk session triggers a fresh read and retry.
func (s *GachaService) Draw(ctx context.Context) (models.PrizeEntry, error) {
	for attempt := 1; attempt <= s.retries; attempt++ {
		table, version, err := s.tables.Read(ctx, store.CatalogTable)
		if err != nil {
			return models.PrizeEntry{}, err
		}
		catalog := models.ParseCatalog(table)

		idx, err := pickWeighted(catalog)
		if err != nil {
			return models.PrizeEntry{}, err
		}
		selected := catalog[idx]
		catalog[idx].Stock--

		err = s.tables.Write(ctx, store.CatalogTable, models.CatalogTable(catalog), version)
		if errors.Is(err, store.ErrVersionConflict) {
			logger.Infof("Draw: catalog changed by another session, retry %d/%d", attempt, s.retries)
			continue
		}
		if err != nil {
			return models.PrizeEntry{}, err
		}
		return selected, nil
	}
	return models.PrizeEntry{}, ErrContention
}

// pickWeighted returns the index of the drawn entry. Only entries with
// stock remaining are sellable; among those, entries with a
// non-positive (or unparseable, coerced to 0) weight carry no
// probability mass and can never be drawn.
func pickWeighted(catalog []models.PrizeEntry) (int, error) {
	total := 0.0
	for _, e := range catalog {
		if e.Stock > 0 && e.Weight > 0 {
			total += e.Weight
		}
	}
	if total <= 0 {
		return 0, ErrOutOfStock
	}

	r := rand.Float64() * total
	for i, e := range catalog {
		if e.Stock <= 0 || e.Weight <= 0 {
			continue
		}
		r -= e.Weight
		if r < 0 {
			return i, nil
		}
	}
	// Float rounding can leave r at exactly the total; fall back to the
	// last sellable entry.
	for i := len(catalog) - 1; i >= 0; i-- {
		if catalog[i].Stock > 0 && catalog[i].Weight > 0 {
			return i, nil
		}
	}
	return 0, ErrOutOfStock
}

// Ledger returns every winner record.
func (s *GachaService) Ledger(ctx context.Context) ([]models.WinnerRecord, error) {
	table, _, err := s.tables.Read(ctx, store.LedgerTable)
	if err != nil {
		return nil, err
	}
	return models.ParseLedger(table), nil
}

// Unredeemed returns the winner records still awaiting redemption.
func (s *GachaService) Unredeemed(ctx context.Context) ([]models.WinnerRecord, error) {
	records, err := s.Ledger(ctx)
	if err != nil {
		return nil, err
	}
	pending := make([]models.WinnerRecord, 0, len(records))
	for _, r := range records {
		if !r.Redeemed {
			pending = append(pending, r)
		}
	}
	return pending, nil
}

// Register appends one winner record for a qualifying draw. A
// participant may register any number of times across separate draws;
// there is deliberately no uniqueness check. The record only exists
// once the ledger write committed.
func (s *GachaService) Register(ctx context.Context, name, prizeName string, rank int) (models.WinnerRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.WinnerRecord{}, ErrInvalidName
	}

	record := models.WinnerRecord{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now(),
		WinnerName: name,
		PrizeName:  prizeName,
		Rank:       rank,
	}

	// Appends commute, so losing the version race just means re-reading
	// and appending to the newer ledger.
	for attempt := 1; attempt <= s.retries; attempt++ {
		table, version, err := s.tables.Read(ctx, store.LedgerTable)
		if err != nil {
			return models.WinnerRecord{}, err
		}
		records := append(models.ParseLedger(table), record)

		err = s.tables.Write(ctx, store.LedgerTable, models.LedgerTable(records), version)
		if errors.Is(err, store.ErrVersionConflict) {
			logger.Infof("Register: ledger changed by another session, retry %d/%d", attempt, s.retries)
			continue
		}
		if err != nil {
			return models.WinnerRecord{}, err
		}
		logger.Infof("Registered winner %q for prize %q (rank %d)", name, prizeName, rank)
		return record, nil
	}
	return models.WinnerRecord{}, ErrContention
}

// MarkRedeemed transitions one unredeemed record to redeemed and stamps
// the redemption time. The transition only runs forward: a record that
// is already redeemed is not part of the unredeemed set and yields
// ErrNotFound, leaving the ledger untouched.
func (s *GachaService) MarkRedeemed(ctx context.Context, recordID string) (models.WinnerRecord, error) {
	for attempt := 1; attempt <= s.retries; attempt++ {
		table, version, err := s.tables.Read(ctx, store.LedgerTable)
		if err != nil {
			return models.WinnerRecord{}, err
		}
		records := models.ParseLedger(table)

		idx := -1
		for i, r := range records {
			if r.ID == recordID && !r.Redeemed {
				idx = i
				break
			}
		}
		if idx < 0 {
			return models.WinnerRecord{}, ErrNotFound
		}
		records[idx].Redeemed = true
		records[idx].RedeemedAt = time.Now()

		err = s.tables.Write(ctx, store.LedgerTable, models.LedgerTable(records), version)
		if errors.Is(err, store.ErrVersionConflict) {
			logger.Infof("MarkRedeemed: ledger changed by another session, retry %d/%d", attempt, s.retries)
			continue
		}
		if err != nil {
			return models.WinnerRecord{}, err
		}
		return records[idx], nil
	}
	return models.WinnerRecord{}, ErrContention
}

// ResetStock restores every entry's stock to the per-rank baseline,
// leaving all other fields alone. Ranks outside the baseline go to 0.
func (s *GachaService) ResetStock(ctx context.Context) error {
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return err
	}
	for i := range catalog {
		catalog[i].Stock = s.baseline[catalog[i].Rank]
	}
	if err := s.tables.Write(ctx, store.CatalogTable, models.CatalogTable(catalog), ""); err != nil {
		return err
	}
	logger.Info("Stock reset to baseline")
	return nil
}

// SaveCatalog persists an administrator-edited catalog verbatim.
// Administrators are trusted; no invariant checks beyond parsing.
func (s *GachaService) SaveCatalog(ctx context.Context, catalog []models.PrizeEntry) error {
	return s.tables.Write(ctx, store.CatalogTable, models.CatalogTable(catalog), "")
}

// ClearLedger empties the winner ledger, keeping only the header row.
func (s *GachaService) ClearLedger(ctx context.Context) error {
	if err := s.tables.Write(ctx, store.LedgerTable, models.LedgerTable(nil), ""); err != nil {
		return err
	}
	logger.Info("Winner ledger cleared")
	return nil
}
