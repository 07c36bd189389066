// Package memory is a process-local storage.Store that mirrors the row
// behaviour of a tenant database: writes take row locks held until the
// transaction ends, are buffered until commit, and are discarded on
// rollback. Reads see committed rows, or one snapshot at repeatable read.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/sale"
	"github.com/fekuna/omnipos-stock-service/internal/storage"
	"github.com/fekuna/omnipos-stock-service/internal/unit"
	"github.com/shopspring/decimal"
)

const defaultLockTimeout = 2 * time.Second

type counterKey struct {
	ProductID string
	StoreID   string
}

type state struct {
	products    map[string]model.Product
	ledger      map[model.LedgerKey]model.LedgerEntry
	counters    map[counterKey]model.StockCounter
	movements   []model.InventoryMovement
	conversions []model.UnitConversionLog
	sales       map[string]model.Sale
	sequences   map[string]int64
	versions    map[string]uint64 // row key -> commits that touched it
}

func newState() *state {
	return &state{
		products:  map[string]model.Product{},
		ledger:    map[model.LedgerKey]model.LedgerEntry{},
		counters:  map[counterKey]model.StockCounter{},
		sales:     map[string]model.Sale{},
		sequences: map[string]int64{},
		versions:  map[string]uint64{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.ledger {
		c.ledger[k] = v
	}
	for k, v := range s.counters {
		c.counters[k] = v
	}
	c.movements = append([]model.InventoryMovement(nil), s.movements...)
	c.conversions = append([]model.UnitConversionLog(nil), s.conversions...)
	for k, v := range s.sales {
		v.Items = append([]model.SaleItem(nil), v.Items...)
		c.sales[k] = v
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	for k, v := range s.versions {
		c.versions[k] = v
	}
	return c
}

func ledgerRow(k model.LedgerKey) string         { return "ledger/" + k.ProductID + "/" + k.StoreID + "/" + k.UnitID }
func counterRow(productID, storeID string) string { return "counter/" + productID + "/" + storeID }
func saleRow(id string) string                    { return "sale/" + id }
func sequenceRow(storeID string) string           { return "sequence/" + storeID }
func productRow(id string) string                 { return "product/" + id }
func syncRow(storeID string) string               { return "sync/" + storeID }

type Store struct {
	mu          sync.Mutex // guards st and rows; never held while waiting for a row
	st          *state
	rows        map[string]chan struct{}
	lockTimeout time.Duration
}

func New() *Store {
	return &Store{st: newState(), rows: map[string]chan struct{}{}, lockTimeout: defaultLockTimeout}
}

// SetLockTimeout bounds how long a transaction waits for a row another
// transaction holds before failing with apperror.ErrConcurrencyConflict.
func (s *Store) SetLockTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockTimeout = d
}

func (s *Store) row(key string) (chan struct{}, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.rows[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.rows[key] = ch
	}
	return ch, s.lockTimeout
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error, opts ...storage.TxOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{s: s, held: map[string]bool{}, w: newState()}
	if storage.ApplyTxOptions(opts).Isolation == storage.RepeatableRead {
		s.mu.Lock()
		t.snapshot = s.st.clone()
		s.mu.Unlock()
	}
	defer t.release()

	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.commit()
	return nil
}

type tx struct {
	s        *Store
	snapshot *state // nil at read committed
	held     map[string]bool
	w        *state // rows written by this transaction
}

func (t *tx) Ledger() inventory.Repository { return ledgerRepo{t} }
func (t *tx) Sales() sale.Repository       { return saleRepo{t} }
func (t *tx) Units() unit.Repository       { return unitRepo{t} }

// lock takes the row lock for key, waiting for its holder to finish. At
// repeatable read a row committed after the snapshot is a conflict, the
// first writer wins. fresh reports whether this call acquired the lock.
func (t *tx) lock(ctx context.Context, key string) (fresh bool, err error) {
	if t.held[key] {
		return false, nil
	}
	ch, timeout := t.s.row(key)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
		return false, fmt.Errorf("lock %s: %w", key, apperror.ErrConcurrencyConflict)
	}
	t.held[key] = true

	if t.snapshot != nil {
		t.s.mu.Lock()
		changed := t.s.st.versions[key] != t.snapshot.versions[key]
		t.s.mu.Unlock()
		if changed {
			return true, fmt.Errorf("row %s changed since the transaction began: %w", key, apperror.ErrConcurrencyConflict)
		}
	}
	return true, nil
}

// tryLock takes the row lock for key only if nobody holds it.
func (t *tx) tryLock(key string) bool {
	if t.held[key] {
		return true
	}
	ch, _ := t.s.row(key)
	select {
	case ch <- struct{}{}:
		t.held[key] = true
		return true
	default:
		return false
	}
}

// unlock gives back a row this transaction locked but did not write.
func (t *tx) unlock(key string) {
	if !t.held[key] {
		return
	}
	delete(t.held, key)
	ch, _ := t.s.row(key)
	<-ch
}

func (t *tx) release() {
	for key := range t.held {
		t.unlock(key)
	}
}

// read runs fn against committed rows, or the snapshot at repeatable read.
func (t *tx) read(fn func(st *state)) {
	if t.snapshot != nil {
		fn(t.snapshot)
		return
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	fn(t.s.st)
}

func (t *tx) ledgerEntry(k model.LedgerKey) (model.LedgerEntry, bool) {
	if e, ok := t.w.ledger[k]; ok {
		return e, true
	}
	var (
		e  model.LedgerEntry
		ok bool
	)
	t.read(func(st *state) { e, ok = st.ledger[k] })
	return e, ok
}

func (t *tx) counter(k counterKey) model.StockCounter {
	if c, ok := t.w.counters[k]; ok {
		return c
	}
	var c model.StockCounter
	t.read(func(st *state) { c = st.counters[k] })
	return c
}

func (t *tx) product(id string) (model.Product, bool) {
	if p, ok := t.w.products[id]; ok {
		return p, true
	}
	var (
		p  model.Product
		ok bool
	)
	t.read(func(st *state) { p, ok = st.products[id] })
	return p, ok
}

func (t *tx) sale(id string) (model.Sale, bool) {
	if s, ok := t.w.sales[id]; ok {
		s.Items = append([]model.SaleItem(nil), s.Items...)
		return s, true
	}
	var (
		s  model.Sale
		ok bool
	)
	t.read(func(st *state) {
		s, ok = st.sales[id]
		s.Items = append([]model.SaleItem(nil), s.Items...)
	})
	return s, ok
}

func (t *tx) sequence(storeID string) int64 {
	if n, ok := t.w.sequences[storeID]; ok {
		return n
	}
	var n int64
	t.read(func(st *state) { n = st.sequences[storeID] })
	return n
}

// commit publishes the buffered rows. Every written row is locked by t, so
// no other transaction can have changed it in between.
func (t *tx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	st := t.s.st
	for k, v := range t.w.products {
		st.products[k] = v
		st.versions[productRow(k)]++
	}
	for k, v := range t.w.ledger {
		st.ledger[k] = v
		st.versions[ledgerRow(k)]++
	}
	for k, v := range t.w.counters {
		st.counters[k] = v
		st.versions[counterRow(k.ProductID, k.StoreID)]++
	}
	for k, v := range t.w.sales {
		st.sales[k] = v
		st.versions[saleRow(k)]++
	}
	for k, v := range t.w.sequences {
		st.sequences[k] = v
		st.versions[sequenceRow(k)]++
	}
	st.movements = append(st.movements, t.w.movements...)
	st.conversions = append(st.conversions, t.w.conversions...)
}

// PutProduct seeds or replaces a product record.
func (s *Store) PutProduct(p model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[p.ID] = p
	s.st.versions[productRow(p.ID)]++
}

// Seed sets a ledger row and moves the product counter by the same base
// quantity, as a receipt would.
func (s *Store) Seed(key model.LedgerKey, qty decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.st.ledger[key].Quantity
	s.st.ledger[key] = model.LedgerEntry{ProductID: key.ProductID, StoreID: key.StoreID, UnitID: key.UnitID, Quantity: qty}
	s.st.versions[ledgerRow(key)]++

	base := qty.Sub(prev)
	if p, ok := s.st.products[key.ProductID]; ok {
		if b, err := unit.FamilyOf(&p).ToBase(base, key.UnitID); err == nil {
			base = b
		}
	}
	ck := counterKey{key.ProductID, key.StoreID}
	c := s.st.counters[ck]
	s.st.counters[ck] = model.StockCounter{ProductID: key.ProductID, StoreID: key.StoreID, Quantity: c.Quantity.Add(base)}
	s.st.versions[counterRow(key.ProductID, key.StoreID)]++
}

// SetCounter overwrites a primary counter without touching the ledger.
func (s *Store) SetCounter(productID, storeID string, qty decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.counters[counterKey{productID, storeID}] = model.StockCounter{ProductID: productID, StoreID: storeID, Quantity: qty}
	s.st.versions[counterRow(productID, storeID)]++
}

// HoldSyncLock takes the store's reconciliation lock as another session would.
func (s *Store) HoldSyncLock(storeID string) (release func()) {
	ch, _ := s.row(syncRow(storeID))
	ch <- struct{}{}
	var once sync.Once
	return func() { once.Do(func() { <-ch }) }
}

func (s *Store) Quantity(key model.LedgerKey) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ledger[key].Quantity
}

func (s *Store) Counter(productID, storeID string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.counters[counterKey{productID, storeID}].Quantity
}

func (s *Store) SaleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.sales)
}

func (s *Store) Movements() []model.InventoryMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.InventoryMovement(nil), s.st.movements...)
}

func (s *Store) Conversions() []model.UnitConversionLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.UnitConversionLog(nil), s.st.conversions...)
}

func sortedLedger(m map[model.LedgerKey]model.LedgerEntry, storeID string) []model.LedgerEntry {
	var out []model.LedgerEntry
	for k, v := range m {
		if k.StoreID == storeID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].UnitID < out[j].UnitID
	})
	return out
}
