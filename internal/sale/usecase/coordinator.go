package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	invusecase "github.com/fekuna/omnipos-stock-service/internal/inventory/usecase"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/sale"
	"github.com/fekuna/omnipos-stock-service/internal/sale/dto"
	"github.com/fekuna/omnipos-stock-service/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type txState string

const (
	stateStarted         txState = "started"
	stateHeaderPersisted txState = "header_persisted"
	stateItemPersisting  txState = "item_persisting"
	stateStockDeducting  txState = "stock_deducting"
	stateCommitted       txState = "committed"
	stateRolledBack      txState = "rolled_back"
)

// errSaleRecorded aborts a transaction that lost the insert race for its
// sale id.
var errSaleRecorded = errors.New("sale id already recorded")

// Coordinator persists sales and their stock effects as one unit.
type Coordinator struct {
	stores storage.Provider
	ledger *invusecase.Ledger
	logger logger.ZapLogger
	tracer trace.Tracer
	now    func() time.Time
}

var _ sale.UseCase = (*Coordinator)(nil)

func NewCoordinator(stores storage.Provider, ledger *invusecase.Ledger, log logger.ZapLogger) *Coordinator {
	return &Coordinator{
		stores: stores,
		ledger: ledger,
		logger: log,
		tracer: otel.Tracer("omnipos-stock-service/sale"),
		now:    time.Now,
	}
}

func (c *Coordinator) transition(log logger.ZapLogger, s txState, fields ...zap.Field) {
	log.Debug("sale transaction "+string(s), fields...)
}

// CreateSale writes the header, every item and every deduction in a single
// transaction. Any failure undoes all of it and is returned as is, so an
// *apperror.InsufficientStockError reaches the caller unchanged.
func (c *Coordinator) CreateSale(ctx context.Context, tenantID string, in *dto.CreateSaleInput) (*dto.SaleResult, error) {
	ctx, span := c.tracer.Start(ctx, "sale.create", trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	defer span.End()

	res, err := c.createSale(ctx, tenantID, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("sale.id", res.SaleID),
		attribute.Bool("sale.replayed", res.Replayed),
	)
	return res, nil
}

func (c *Coordinator) createSale(ctx context.Context, tenantID string, in *dto.CreateSaleInput) (*dto.SaleResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	store, err := c.stores.Store(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	saleID := in.SaleID
	if saleID == "" {
		saleID = uuid.New().String()
	}
	log := c.logger.With(zap.String("tenant_id", tenantID), zap.String("sale_id", saleID))
	c.transition(log, stateStarted, zap.Int("items", len(in.Items)))

	var result *dto.SaleResult
	err = store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		repo := tx.Sales()

		existing, err := repo.GetByID(ctx, saleID)
		if err == nil {
			result = resultOf(existing, true)
			return nil
		}
		if !errors.Is(err, apperror.ErrSaleNotFound) {
			return err
		}

		seq, err := repo.NextInvoiceSequence(ctx, in.StoreID)
		if err != nil {
			return err
		}
		now := c.now()
		var cashierID *string
		if in.CashierID != "" {
			cashierID = &in.CashierID
		}
		s := &model.Sale{
			BaseModel:     model.BaseModel{ID: saleID, CreatedAt: now, UpdatedAt: now},
			StoreID:       in.StoreID,
			InvoiceNumber: invoiceNumber(in.StoreID, now, seq),
			Status:        model.SaleStatusPending,
			Subtotal:      in.Subtotal(),
			Discount:      in.Discount,
			Tax:           in.Tax,
			Total:         in.Total(),
			CashierID:     cashierID,
		}
		inserted, err := repo.InsertHeader(ctx, s)
		if err != nil {
			return err
		}
		if !inserted {
			return errSaleRecorded
		}
		c.transition(log, stateHeaderPersisted, zap.String("invoice_number", s.InvoiceNumber))

		stock := c.ledger.Within(tx, invusecase.Reference{
			MovementType: model.MovementSale,
			RefType:      "sale",
			RefID:        saleID,
			UserID:       in.CashierID,
		})
		for i, it := range in.Items {
			item := model.SaleItem{
				ID:               uuid.New().String(),
				SaleID:           saleID,
				LineNo:           i + 1,
				ProductID:        it.ProductID,
				UnitID:           it.UnitID,
				Quantity:         it.Quantity,
				Price:            it.Price,
				RefundedQuantity: decimal.Zero,
				CreatedAt:        now,
			}
			c.transition(log, stateItemPersisting, zap.Int("line", item.LineNo))
			if err := repo.InsertItem(ctx, &item); err != nil {
				return err
			}

			c.transition(log, stateStockDeducting, zap.Int("line", item.LineNo), zap.String("product_id", it.ProductID))
			key := model.LedgerKey{ProductID: it.ProductID, StoreID: in.StoreID, UnitID: it.UnitID}
			if _, err := stock.Deduct(ctx, key, it.Quantity); err != nil {
				return err
			}
			s.Items = append(s.Items, item)
		}

		if err := repo.UpdateStatus(ctx, saleID, model.SaleStatusUnprinted); err != nil {
			return err
		}
		s.Status = model.SaleStatusUnprinted
		result = resultOf(s, false)
		return nil
	})

	if errors.Is(err, errSaleRecorded) {
		// A concurrent submission of the same id committed first.
		var existing *model.Sale
		existing, err = c.getSale(ctx, store, saleID)
		if err == nil {
			result = resultOf(existing, true)
		}
	}
	if err != nil {
		c.transition(log, stateRolledBack, zap.Error(err))
		return nil, err
	}
	c.transition(log, stateCommitted,
		zap.String("invoice_number", result.InvoiceNumber),
		zap.Bool("replayed", result.Replayed),
	)
	return result, nil
}

// ReverseSale puts refunded quantities back on the shelf in the unit they
// were sold in and advances the sale to refunded or partially_refunded.
func (c *Coordinator) ReverseSale(ctx context.Context, tenantID string, in *dto.ReverseSaleInput) (*model.Sale, error) {
	ctx, span := c.tracer.Start(ctx, "sale.reverse", trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	defer span.End()

	s, err := c.reverseSale(ctx, tenantID, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return s, nil
}

func (c *Coordinator) reverseSale(ctx context.Context, tenantID string, in *dto.ReverseSaleInput) (*model.Sale, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	store, err := c.stores.Store(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var out *model.Sale
	err = store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		repo := tx.Sales()
		s, err := repo.LockForUpdate(ctx, in.SaleID)
		if err != nil {
			return err
		}
		if s.Status == model.SaleStatusRefunded {
			return fmt.Errorf("sale %s: %w", s.ID, apperror.ErrSaleAlreadyRefunded)
		}
		if !s.Status.CanTransition(model.SaleStatusPartiallyRefunded) {
			return fmt.Errorf("sale %s is %s: %w", s.ID, s.Status, apperror.ErrInvalidStatusTransition)
		}

		lines, err := refundLines(s, in.Lines)
		if err != nil {
			return err
		}

		stock := c.ledger.Within(tx, invusecase.Reference{
			MovementType: model.MovementRefund,
			RefType:      "sale_refund",
			RefID:        s.ID,
			Notes:        in.Reason,
			UserID:       in.UserID,
		})
		for _, l := range lines {
			item := &s.Items[l.index]
			key := model.LedgerKey{ProductID: item.ProductID, StoreID: s.StoreID, UnitID: item.UnitID}
			if _, err := stock.Add(ctx, key, l.qty); err != nil {
				return err
			}
			refunded := item.RefundedQuantity.Add(l.qty)
			if err := repo.UpdateItemRefunded(ctx, item.ID, refunded); err != nil {
				return err
			}
			item.RefundedQuantity = refunded
		}

		next := model.SaleStatusRefunded
		for _, it := range s.Items {
			if it.Refundable().IsPositive() {
				next = model.SaleStatusPartiallyRefunded
				break
			}
		}
		if err := repo.UpdateStatus(ctx, s.ID, next); err != nil {
			return err
		}
		s.Status = next
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Sale reversed",
		zap.String("tenant_id", tenantID),
		zap.String("sale_id", out.ID),
		zap.String("status", string(out.Status)),
	)
	return out, nil
}

type refund struct {
	index int
	qty   decimal.Decimal
}

func refundLines(s *model.Sale, lines []dto.RefundLine) ([]refund, error) {
	if len(lines) == 0 {
		var all []refund
		for i, it := range s.Items {
			if q := it.Refundable(); q.IsPositive() {
				all = append(all, refund{index: i, qty: q})
			}
		}
		if len(all) == 0 {
			return nil, fmt.Errorf("sale %s: %w", s.ID, apperror.ErrSaleAlreadyRefunded)
		}
		return all, nil
	}

	byLine := make(map[int]int, len(s.Items))
	for i, it := range s.Items {
		byLine[it.LineNo] = i
	}
	out := make([]refund, 0, len(lines))
	for _, l := range lines {
		i, ok := byLine[l.LineNo]
		if !ok {
			return nil, fmt.Errorf("sale %s has no line %d: %w", s.ID, l.LineNo, apperror.ErrInvalidRefund)
		}
		if l.Quantity.GreaterThan(s.Items[i].Refundable()) {
			return nil, fmt.Errorf("line %d: refund %s exceeds refundable %s: %w",
				l.LineNo, l.Quantity, s.Items[i].Refundable(), apperror.ErrInvalidRefund)
		}
		out = append(out, refund{index: i, qty: l.Quantity})
	}
	return out, nil
}

func (c *Coordinator) GetSale(ctx context.Context, tenantID, saleID string) (*model.Sale, error) {
	if saleID == "" {
		return nil, apperror.Invalid("sale_id", "is required")
	}
	store, err := c.stores.Store(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return c.getSale(ctx, store, saleID)
}

func (c *Coordinator) getSale(ctx context.Context, store storage.Store, saleID string) (*model.Sale, error) {
	var s *model.Sale
	err := store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		s, err = tx.Sales().GetByID(ctx, saleID)
		return err
	})
	return s, err
}

// UpdateStatus moves a sale along the print workflow. Refund states are only
// reachable through ReverseSale.
func (c *Coordinator) UpdateStatus(ctx context.Context, tenantID, saleID string, status model.SaleStatus) (*model.Sale, error) {
	if !status.Valid() {
		return nil, apperror.Invalid("status", fmt.Sprintf("unknown status %q", status))
	}
	if status == model.SaleStatusRefunded || status == model.SaleStatusPartiallyRefunded {
		return nil, fmt.Errorf("status %s requires a reversal: %w", status, apperror.ErrInvalidStatusTransition)
	}
	store, err := c.stores.Store(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var out *model.Sale
	err = store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		s, err := tx.Sales().LockForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if !s.Status.CanTransition(status) {
			return fmt.Errorf("sale %s %s -> %s: %w", saleID, s.Status, status, apperror.ErrInvalidStatusTransition)
		}
		if err := tx.Sales().UpdateStatus(ctx, saleID, status); err != nil {
			return err
		}
		s.Status = status
		out = s
		return nil
	})
	return out, err
}

func (c *Coordinator) MarkPrinted(ctx context.Context, tenantID, saleID string) (*model.Sale, error) {
	return c.UpdateStatus(ctx, tenantID, saleID, model.SaleStatusPrinted)
}

func invoiceNumber(storeID string, at time.Time, seq int64) string {
	return fmt.Sprintf("INV-%s-%s-%06d", storeID, at.Format("20060102"), seq)
}

func resultOf(s *model.Sale, replayed bool) *dto.SaleResult {
	return &dto.SaleResult{
		SaleID:        s.ID,
		InvoiceNumber: s.InvoiceNumber,
		Status:        s.Status,
		Total:         s.Total,
		Replayed:      replayed,
	}
}
