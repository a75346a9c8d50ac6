package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/TemirB/order-service/internal/config"
	"github.com/TemirB/order-service/internal/domain"
	"github.com/TemirB/order-service/internal/pkg/retry"
)

//go:generate mockgen -source handler.go -destination=handler_mock_test.go -package=handler

var (
	ErrBadJSON     = errors.New("bad json")
	ErrInvalid     = errors.New("invalid order")
	ErrCreate      = errors.New("create failed")
	ErrCircuitOpen = errors.New("circuit breaker open")
)

type Service interface {
	CreateOrder(ctx context.Context, order domain.Order) (domain.OrderResponse, error)
}

type brk interface {
	Allow() error
	Success()
	Failure()
}

// Handler turns Kafka messages into created orders. A message value is an
// order JSON without id: {"products":[...],"totalAmount":N}.
//
// Creates are retried, so every order carries an idempotency key: the
// message key, or topic/partition/offset when the key is empty. A create
// whose insert committed but whose reply was lost is not stored twice.
// Only create failures count against the breaker; a bad message says
// nothing about the store.
type Handler struct {
	service     Service
	breaker     brk
	logger      *zap.Logger
	retryPolicy config.Retry
}

func NewHandler(service Service, breaker brk, retryPolicy config.Retry, logger *zap.Logger) *Handler {
	return &Handler{
		service:     service,
		breaker:     breaker,
		logger:      logger,
		retryPolicy: retryPolicy,
	}
}

// Handle is called by the consumer for a single message.
// The consumer commits the offset itself after Handle returns nil.
func (h *Handler) Handle(ctx context.Context, message kafkago.Message) error {
	if err := h.breaker.Allow(); err != nil {
		h.logger.Warn("circuit breaker is open",
			zap.Error(err),
			zap.Int("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}

	var order domain.Order
	if err := json.Unmarshal(message.Value, &order); err != nil {
		h.logger.Error("bad json format",
			zap.Error(err),
			zap.Int("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
		return ErrBadJSON
	}
	if err := order.Validate(); err != nil {
		h.logger.Error("invalid order",
			zap.Error(err),
			zap.Int("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	order.IdempotencyKey = idempotencyKey(message)

	var created domain.Order
	if err := retry.Do(ctx, h.retryPolicy, func() error {
		resp, err := h.service.CreateOrder(ctx, order)
		if err != nil {
			return err
		}
		created, _ = resp.Data.(domain.Order)
		return nil
	}); err != nil {
		h.logger.Error("create failed after retries",
			zap.Error(err),
			zap.Int("partition", message.Partition),
			zap.Int64("offset", message.Offset),
		)
		h.breaker.Failure()
		return fmt.Errorf("%w: %v", ErrCreate, err)
	}

	h.breaker.Success()
	h.logger.Info("successfully processed order",
		zap.Int64("order_id", created.ID),
		zap.Int("partition", message.Partition),
		zap.Int64("offset", message.Offset),
		zap.Int("key_bytes", len(message.Key)),
		zap.Int("value_bytes", len(message.Value)),
	)
	return nil
}

func idempotencyKey(message kafkago.Message) string {
	if len(message.Key) > 0 {
		return string(message.Key)
	}
	return fmt.Sprintf("%s/%d/%d", message.Topic, message.Partition, message.Offset)
}
