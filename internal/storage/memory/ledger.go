package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/shopspring/decimal"
)

type ledgerRepo struct {
	t *tx
}

func (r ledgerRepo) Get(_ context.Context, key model.LedgerKey) (*model.LedgerEntry, error) {
	e, ok := r.t.ledgerEntry(key)
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r ledgerRepo) ListByStore(_ context.Context, storeID string) ([]model.LedgerEntry, error) {
	rows := map[model.LedgerKey]model.LedgerEntry{}
	r.t.read(func(st *state) {
		for k, v := range st.ledger {
			if k.StoreID == storeID {
				rows[k] = v
			}
		}
	})
	for k, v := range r.t.w.ledger {
		rows[k] = v
	}
	return sortedLedger(rows, storeID), nil
}

func (r ledgerRepo) Increment(ctx context.Context, key model.LedgerKey, delta decimal.Decimal) (decimal.Decimal, error) {
	if _, err := r.t.lock(ctx, ledgerRow(key)); err != nil {
		return decimal.Zero, err
	}
	e, _ := r.t.ledgerEntry(key)
	e.ProductID, e.StoreID, e.UnitID = key.ProductID, key.StoreID, key.UnitID
	e.Quantity = e.Quantity.Add(delta)
	if e.Quantity.IsNegative() {
		return decimal.Zero, fmt.Errorf("ledger row %s/%s would go negative: %w", key.ProductID, key.UnitID, apperror.ErrInsufficientStock)
	}
	e.UpdatedAt = time.Now()
	r.t.w.ledger[key] = e
	return e.Quantity, nil
}

// DecrementIfAvailable keeps the row lock only when it writes, like a
// guarded UPDATE whose WHERE clause matched nothing.
func (r ledgerRepo) DecrementIfAvailable(ctx context.Context, key model.LedgerKey, delta decimal.Decimal) (decimal.Decimal, bool, error) {
	fresh, err := r.t.lock(ctx, ledgerRow(key))
	if err != nil {
		return decimal.Zero, false, err
	}
	e, ok := r.t.ledgerEntry(key)
	if !ok || e.Quantity.LessThan(delta) {
		if _, written := r.t.w.ledger[key]; fresh && !written {
			r.t.unlock(ledgerRow(key))
		}
		return decimal.Zero, false, nil
	}
	e.Quantity = e.Quantity.Sub(delta)
	e.UpdatedAt = time.Now()
	r.t.w.ledger[key] = e
	return e.Quantity, true, nil
}

func (r ledgerRepo) AdjustCounter(ctx context.Context, productID, storeID string, delta decimal.Decimal) error {
	if _, err := r.t.lock(ctx, counterRow(productID, storeID)); err != nil {
		return err
	}
	k := counterKey{productID, storeID}
	c := r.t.counter(k)
	c.ProductID, c.StoreID = productID, storeID
	c.Quantity = c.Quantity.Add(delta)
	c.UpdatedAt = time.Now()
	r.t.w.counters[k] = c
	return nil
}

func (r ledgerRepo) Counters(_ context.Context, storeID string) ([]model.StockCounter, error) {
	rows := map[counterKey]model.StockCounter{}
	r.t.read(func(st *state) {
		for k, v := range st.counters {
			if k.StoreID == storeID {
				rows[k] = v
			}
		}
	})
	for k, v := range r.t.w.counters {
		if k.StoreID == storeID {
			rows[k] = v
		}
	}
	out := make([]model.StockCounter, 0, len(rows))
	for _, v := range rows {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (r ledgerRepo) TryLockStore(_ context.Context, storeID string) (bool, error) {
	return r.t.tryLock(syncRow(storeID)), nil
}

func (r ledgerRepo) LogMovement(_ context.Context, m *model.InventoryMovement) error {
	r.t.w.movements = append(r.t.w.movements, *m)
	return nil
}

func (r ledgerRepo) LogConversion(_ context.Context, c *model.UnitConversionLog) error {
	r.t.w.conversions = append(r.t.w.conversions, *c)
	return nil
}

func (r ledgerRepo) movements() []model.InventoryMovement {
	var out []model.InventoryMovement
	r.t.read(func(st *state) { out = append(out, st.movements...) })
	return append(out, r.t.w.movements...)
}

func (r ledgerRepo) conversions() []model.UnitConversionLog {
	var out []model.UnitConversionLog
	r.t.read(func(st *state) { out = append(out, st.conversions...) })
	return append(out, r.t.w.conversions...)
}

func (r ledgerRepo) ListMovements(_ context.Context, f *dto.MovementFilters) ([]model.InventoryMovement, error) {
	all := r.movements()
	var out []model.InventoryMovement
	for i := len(all) - 1; i >= 0; i-- {
		m := all[i]
		switch {
		case f.StoreID != "" && m.StoreID != f.StoreID,
			f.ProductID != "" && m.ProductID != f.ProductID,
			f.MovementType != "" && m.MovementType != f.MovementType,
			f.ReferenceID != "" && (m.ReferenceID == nil || *m.ReferenceID != f.ReferenceID),
			f.StartDate != nil && m.CreatedAt.Before(*f.StartDate),
			f.EndDate != nil && !m.CreatedAt.Before(*f.EndDate):
			continue
		}
		out = append(out, m)
	}
	return paginate(out, f.Page, f.PageSize), nil
}

func (r ledgerRepo) ListConversions(_ context.Context, f *dto.ConversionFilters) ([]model.UnitConversionLog, error) {
	all := r.conversions()
	var out []model.UnitConversionLog
	for i := len(all) - 1; i >= 0; i-- {
		c := all[i]
		switch {
		case f.StoreID != "" && c.StoreID != f.StoreID,
			f.ProductID != "" && c.ProductID != f.ProductID,
			f.Kind != "" && c.Kind != f.Kind:
			continue
		}
		out = append(out, c)
	}
	return paginate(out, f.Page, f.PageSize), nil
}

func paginate[T any](items []T, page, size int) []T {
	if size <= 0 {
		return items
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	if start >= len(items) {
		return nil
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
