package handler

import (
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/structrpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// keyFromStruct falls back to the caller's store when the request names none.
func keyFromStruct(s *structpb.Struct, storeID string) model.LedgerKey {
	key := model.LedgerKey{
		ProductID: structrpc.String(s, "product_id"),
		StoreID:   structrpc.String(s, "store_id"),
		UnitID:    structrpc.String(s, "unit_id"),
	}
	if key.StoreID == "" {
		key.StoreID = storeID
	}
	return key
}

func balancesToStruct(balances []inventory.Balance) (*structpb.Struct, error) {
	out := make([]interface{}, 0, len(balances))
	for _, b := range balances {
		out = append(out, map[string]interface{}{
			"product_id": b.Key.ProductID,
			"store_id":   b.Key.StoreID,
			"unit_id":    b.Key.UnitID,
			"quantity":   b.Quantity.String(),
		})
	}
	return structpb.NewStruct(map[string]interface{}{"balances": out})
}

func syncReportToStruct(r *inventory.SyncReport) (*structpb.Struct, error) {
	adjusted := make([]interface{}, 0, len(r.Adjusted))
	for _, a := range r.Adjusted {
		adjusted = append(adjusted, map[string]interface{}{
			"product_id":    a.ProductID,
			"counter":       a.Counter.String(),
			"ledger_before": a.LedgerBefore.String(),
			"delta":         a.Delta.String(),
		})
	}
	skipped := make([]interface{}, 0, len(r.Skipped))
	for _, id := range r.Skipped {
		skipped = append(skipped, id)
	}
	return structpb.NewStruct(map[string]interface{}{
		"store_id": r.StoreID,
		"checked":  r.Checked,
		"adjusted": adjusted,
		"skipped":  skipped,
	})
}

func movementFiltersFromStruct(s *structpb.Struct, storeID string) (*dto.MovementFilters, error) {
	f := &dto.MovementFilters{
		StoreID:      structrpc.String(s, "store_id"),
		ProductID:    structrpc.String(s, "product_id"),
		MovementType: model.MovementType(structrpc.String(s, "movement_type")),
		ReferenceID:  structrpc.String(s, "reference_id"),
	}
	if f.StoreID == "" {
		f.StoreID = storeID
	}

	var err error
	if f.StartDate, err = timeField(s, "start_date"); err != nil {
		return nil, err
	}
	if f.EndDate, err = timeField(s, "end_date"); err != nil {
		return nil, err
	}
	if f.Page, err = structrpc.Int(s, "page"); err != nil {
		return nil, err
	}
	if f.PageSize, err = structrpc.Int(s, "page_size"); err != nil {
		return nil, err
	}
	return f, nil
}

func timeField(s *structpb.Struct, key string) (*time.Time, error) {
	raw := structrpc.String(s, key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperror.Invalid(key, "must be an RFC 3339 timestamp")
	}
	return &t, nil
}

func movementsToStruct(mvs []model.InventoryMovement) (*structpb.Struct, error) {
	out := make([]interface{}, 0, len(mvs))
	for _, m := range mvs {
		out = append(out, map[string]interface{}{
			"id":              m.ID,
			"store_id":        m.StoreID,
			"product_id":      m.ProductID,
			"unit_id":         m.UnitID,
			"movement_type":   string(m.MovementType),
			"quantity_change": m.QuantityChange.String(),
			"quantity_before": m.QuantityBefore.String(),
			"quantity_after":  m.QuantityAfter.String(),
			"reference_type":  deref(m.ReferenceType),
			"reference_id":    deref(m.ReferenceID),
			"notes":           m.Notes,
			"created_by":      deref(m.CreatedBy),
			"created_at":      m.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return structpb.NewStruct(map[string]interface{}{"movements": out})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ref(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// BalancesFromStruct decodes a response carrying a "balances" list.
func BalancesFromStruct(s *structpb.Struct) ([]inventory.Balance, error) {
	rows, err := structrpc.Structs(s, "balances")
	if err != nil {
		return nil, err
	}
	out := make([]inventory.Balance, 0, len(rows))
	for _, r := range rows {
		qty, err := structrpc.Decimal(r, "quantity")
		if err != nil {
			return nil, err
		}
		out = append(out, inventory.Balance{Key: keyFromStruct(r, ""), Quantity: qty})
	}
	return out, nil
}

// SyncReportFromStruct decodes a SyncStore response.
func SyncReportFromStruct(s *structpb.Struct) (*inventory.SyncReport, error) {
	r := &inventory.SyncReport{
		StoreID: structrpc.String(s, "store_id"),
		Skipped: structrpc.Strings(s, "skipped"),
	}
	var err error
	if r.Checked, err = structrpc.Int(s, "checked"); err != nil {
		return nil, err
	}
	adjusted, err := structrpc.Structs(s, "adjusted")
	if err != nil {
		return nil, err
	}
	for _, a := range adjusted {
		adj := inventory.SyncAdjustment{ProductID: structrpc.String(a, "product_id")}
		if adj.Counter, err = structrpc.Decimal(a, "counter"); err != nil {
			return nil, err
		}
		if adj.LedgerBefore, err = structrpc.Decimal(a, "ledger_before"); err != nil {
			return nil, err
		}
		if adj.Delta, err = structrpc.Decimal(a, "delta"); err != nil {
			return nil, err
		}
		r.Adjusted = append(r.Adjusted, adj)
	}
	return r, nil
}

// MovementsFromStruct decodes a ListMovements response. Empty reference and
// author fields decode as nil.
func MovementsFromStruct(s *structpb.Struct) ([]model.InventoryMovement, error) {
	rows, err := structrpc.Structs(s, "movements")
	if err != nil {
		return nil, err
	}
	out := make([]model.InventoryMovement, 0, len(rows))
	for _, r := range rows {
		m := model.InventoryMovement{
			ID:            structrpc.String(r, "id"),
			StoreID:       structrpc.String(r, "store_id"),
			ProductID:     structrpc.String(r, "product_id"),
			UnitID:        structrpc.String(r, "unit_id"),
			MovementType:  model.MovementType(structrpc.String(r, "movement_type")),
			ReferenceType: ref(structrpc.String(r, "reference_type")),
			ReferenceID:   ref(structrpc.String(r, "reference_id")),
			Notes:         structrpc.String(r, "notes"),
			CreatedBy:     ref(structrpc.String(r, "created_by")),
		}
		if m.QuantityChange, err = structrpc.Decimal(r, "quantity_change"); err != nil {
			return nil, err
		}
		if m.QuantityBefore, err = structrpc.Decimal(r, "quantity_before"); err != nil {
			return nil, err
		}
		if m.QuantityAfter, err = structrpc.Decimal(r, "quantity_after"); err != nil {
			return nil, err
		}
		at, err := timeField(r, "created_at")
		if err != nil {
			return nil, err
		}
		if at != nil {
			m.CreatedAt = *at
		}
		out = append(out, m)
	}
	return out, nil
}
