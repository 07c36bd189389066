package memory

import (
	"context"
	"fmt"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/shopspring/decimal"
)

type saleRepo struct {
	t *tx
}

func (r saleRepo) NextInvoiceSequence(ctx context.Context, storeID string) (int64, error) {
	if _, err := r.t.lock(ctx, sequenceRow(storeID)); err != nil {
		return 0, err
	}
	n := r.t.sequence(storeID) + 1
	r.t.w.sequences[storeID] = n
	return n, nil
}

// InsertHeader waits on a concurrent insert of the same id and then reports
// it as already present, like ON CONFLICT DO NOTHING.
func (r saleRepo) InsertHeader(ctx context.Context, s *model.Sale) (bool, error) {
	if _, err := r.t.lock(ctx, saleRow(s.ID)); err != nil {
		return false, err
	}
	if _, ok := r.t.sale(s.ID); ok {
		return false, nil
	}
	if r.invoiceTaken(s.InvoiceNumber) {
		return false, fmt.Errorf("invoice number %s already used", s.InvoiceNumber)
	}
	h := *s
	h.Items = nil
	r.t.w.sales[s.ID] = h
	return true, nil
}

func (r saleRepo) invoiceTaken(number string) bool {
	for _, other := range r.t.w.sales {
		if other.InvoiceNumber == number {
			return true
		}
	}
	taken := false
	r.t.read(func(st *state) {
		for _, other := range st.sales {
			if other.InvoiceNumber == number {
				taken = true
				return
			}
		}
	})
	return taken
}

func (r saleRepo) InsertItem(ctx context.Context, item *model.SaleItem) error {
	if _, err := r.t.lock(ctx, saleRow(item.SaleID)); err != nil {
		return err
	}
	s, ok := r.t.sale(item.SaleID)
	if !ok {
		return fmt.Errorf("sale %s: %w", item.SaleID, apperror.ErrSaleNotFound)
	}
	for _, existing := range s.Items {
		if existing.LineNo == item.LineNo {
			return fmt.Errorf("sale %s line %d already exists", item.SaleID, item.LineNo)
		}
	}
	s.Items = append(s.Items, *item)
	r.t.w.sales[item.SaleID] = s
	return nil
}

func (r saleRepo) GetByID(_ context.Context, saleID string) (*model.Sale, error) {
	s, ok := r.t.sale(saleID)
	if !ok {
		return nil, fmt.Errorf("sale %s: %w", saleID, apperror.ErrSaleNotFound)
	}
	return &s, nil
}

func (r saleRepo) LockForUpdate(ctx context.Context, saleID string) (*model.Sale, error) {
	if _, err := r.t.lock(ctx, saleRow(saleID)); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, saleID)
}

func (r saleRepo) UpdateStatus(ctx context.Context, saleID string, status model.SaleStatus) error {
	if _, err := r.t.lock(ctx, saleRow(saleID)); err != nil {
		return err
	}
	s, ok := r.t.sale(saleID)
	if !ok {
		return fmt.Errorf("sale %s: %w", saleID, apperror.ErrSaleNotFound)
	}
	s.Status = status
	r.t.w.sales[saleID] = s
	return nil
}

func (r saleRepo) UpdateItemRefunded(ctx context.Context, itemID string, refunded decimal.Decimal) error {
	saleID, ok := r.saleOfItem(itemID)
	if !ok {
		return fmt.Errorf("sale item %s: %w", itemID, apperror.ErrInvalidRefund)
	}
	if _, err := r.t.lock(ctx, saleRow(saleID)); err != nil {
		return err
	}
	s, _ := r.t.sale(saleID)
	for i, it := range s.Items {
		if it.ID != itemID {
			continue
		}
		if refunded.GreaterThan(it.Quantity) {
			return fmt.Errorf("sale item %s: %w", itemID, apperror.ErrInvalidRefund)
		}
		s.Items[i].RefundedQuantity = refunded
		r.t.w.sales[saleID] = s
		return nil
	}
	return fmt.Errorf("sale item %s: %w", itemID, apperror.ErrInvalidRefund)
}

func (r saleRepo) saleOfItem(itemID string) (string, bool) {
	find := func(sales map[string]model.Sale) (string, bool) {
		for id, s := range sales {
			for _, it := range s.Items {
				if it.ID == itemID {
					return id, true
				}
			}
		}
		return "", false
	}
	if id, ok := find(r.t.w.sales); ok {
		return id, true
	}
	var (
		id string
		ok bool
	)
	r.t.read(func(st *state) { id, ok = find(st.sales) })
	return id, ok
}
