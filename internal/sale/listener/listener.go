package listener

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/sale"
	"github.com/fekuna/omnipos-stock-service/internal/sale/dto"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	EventSaleRequested = "SaleRequested"
	tenantHeader       = "x-tenant-id"
	maxAttempts        = 3
)

// MessageReader is the subset of *kafka.Reader the listener needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// SaleListener turns SaleRequested events from POS terminals into sales.
// The event's sale id makes redelivered messages harmless, so a message is
// committed only once it is recorded or can never be.
type SaleListener struct {
	reader    MessageReader
	uc        sale.UseCase
	logger    logger.ZapLogger
	backoff   time.Duration // between attempts on one message
	holdPause time.Duration // before a held message is tried again
}

func NewSaleListener(reader MessageReader, uc sale.UseCase, log logger.ZapLogger) *SaleListener {
	return &SaleListener{
		reader:    reader,
		uc:        uc,
		logger:    log,
		backoff:   100 * time.Millisecond,
		holdPause: time.Second,
	}
}

func (l *SaleListener) Start(ctx context.Context) {
	l.logger.Info("Starting Sale Kafka Listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping Sale Kafka Listener")
			return
		default:
			msg, err := l.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				if !wait(ctx, time.Second) {
					return
				}
				continue
			}
			if !l.handle(ctx, msg) {
				return
			}
			if err := l.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				l.logger.Error("Failed to commit kafka message", zap.Int64("offset", msg.Offset), zap.Error(err))
			}
		}
	}
}

// handle processes msg until it no longer fails with a retryable error. The
// offset stays uncommitted meanwhile, since committing a later message would
// skip past it. It reports false when ctx ends first; the message is then
// redelivered to the next consumer.
func (l *SaleListener) handle(ctx context.Context, msg kafka.Message) bool {
	for {
		err := l.processMessage(ctx, msg)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		l.logger.Warn("Holding sale event for another try",
			zap.String("topic", msg.Topic), zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset), zap.Error(err))
		if !wait(ctx, l.holdPause) {
			return false
		}
	}
}

// wait sleeps for d or until ctx ends, reporting whether d elapsed.
func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type SaleRequestedEvent struct {
	EventID   string      `json:"event_id"`
	EventType string      `json:"event_type"`
	Payload   SalePayload `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

type SalePayload struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenant_id"`
	StoreID   string            `json:"store_id"`
	CashierID string            `json:"cashier_id"`
	Discount  decimal.Decimal   `json:"discount"`
	Tax       decimal.Decimal   `json:"tax"`
	Items     []SaleItemPayload `json:"items"`
}

type SaleItemPayload struct {
	ProductID string          `json:"product_id"`
	UnitID    string          `json:"unit_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

func (p SalePayload) toInput() *dto.CreateSaleInput {
	in := &dto.CreateSaleInput{
		SaleID:    p.ID,
		StoreID:   p.StoreID,
		CashierID: p.CashierID,
		Discount:  p.Discount,
		Tax:       p.Tax,
		Items:     make([]dto.SaleItemInput, len(p.Items)),
	}
	for i, it := range p.Items {
		in.Items[i] = dto.SaleItemInput{
			ProductID: it.ProductID,
			UnitID:    it.UnitID,
			Quantity:  it.Quantity,
			Price:     it.Price,
		}
	}
	return in
}

// processMessage returns an error only for a retryable failure that
// outlasted maxAttempts. Malformed events and permanent failures are logged
// and return nil so the message is committed.
func (l *SaleListener) processMessage(ctx context.Context, msg kafka.Message) error {
	var event SaleRequestedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return nil
	}
	if event.EventType != EventSaleRequested {
		return nil
	}

	tenantID := event.Payload.TenantID
	if tenantID == "" {
		tenantID = header(msg, tenantHeader)
	}
	if tenantID == "" || event.Payload.ID == "" {
		l.logger.Warn("Dropping sale event without tenant or sale id", zap.String("event_id", event.EventID))
		return nil
	}

	log := l.logger.With(zap.String("tenant_id", tenantID), zap.String("sale_id", event.Payload.ID))
	log.Info("Processing SaleRequested event")

	input := event.Payload.toInput()
	for attempt := 1; ; attempt++ {
		res, err := l.uc.CreateSale(ctx, tenantID, input)
		if err == nil {
			log.Info("Sale recorded", zap.String("invoice_number", res.InvoiceNumber), zap.Bool("replayed", res.Replayed))
			return nil
		}
		if !apperror.IsRetryable(err) {
			log.Error("Failed to record sale from event", zap.Int("attempt", attempt), zap.Error(err))
			return nil
		}
		if attempt == maxAttempts {
			return err
		}
		if !wait(ctx, l.backoff) {
			return ctx.Err()
		}
	}
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
