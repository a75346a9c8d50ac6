package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/TemirB/order-service/internal/domain"
	"github.com/TemirB/order-service/internal/observability"
)

//go:generate mockgen -source service.go -destination=service_mock_test.go -package=service

// DefaultCacheTTL applies when NewService is given a non-positive ttl.
const DefaultCacheTTL = 5 * time.Minute

const allOrdersKey = "all-orders"

func orderKey(id int64) string {
	return "order:" + strconv.FormatInt(id, 10)
}

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Storage must return domain.ErrNotFound from FindByID, UpdateByID and
// DeleteByID when no row has the given id.
type Storage interface {
	Save(ctx context.Context, order domain.Order) (domain.Order, error)
	FindAndCount(ctx context.Context) ([]domain.Order, int, error)
	FindByID(ctx context.Context, id int64) (domain.Order, error)
	UpdateByID(ctx context.Context, id int64, patch domain.OrderPatch) error
	DeleteByID(ctx context.Context, id int64) error
}

// ordersSnapshot is the cached value of the all-orders key.
type ordersSnapshot struct {
	Data  []domain.Order `json:"data"`
	Count int            `json:"count"`
}

type Service struct {
	cache   Cache
	storage Storage
	ttl     time.Duration
	logger  *zap.Logger
	metrics observability.Metrics
}

func NewService(cache Cache, storage Storage, ttl time.Duration, logger *zap.Logger, metrics observability.Metrics) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if metrics == nil {
		metrics = observability.NewNoop()
	}
	return &Service{
		cache:   cache,
		storage: storage,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

// CreateOrder saves the order and returns it with its new id. The cache is
// left alone: a cached listing stays as it is until it expires or a write
// invalidates it.
func (s *Service) CreateOrder(ctx context.Context, order domain.Order) (domain.OrderResponse, error) {
	order.ID = 0

	t0 := time.Now()
	saved, err := s.storage.Save(ctx, order)
	if err != nil {
		s.logger.Error(
			"Error while saving order in db",
			zap.Error(err),
		)
		return domain.OrderResponse{}, domain.CreationFailed(err)
	}
	dbMs := convertToMs(t0)

	s.metrics.ObserveWrite("create", dbMs)
	s.logger.Info("Order created",
		zap.Int64("order_id", saved.ID),
		zap.Float64("db_write_ms", dbMs),
	)

	return domain.OrderResponse{
		Success: true,
		Message: domain.MsgOrderCreated,
		Data:    saved,
	}, nil
}

func (s *Service) GetOrders(ctx context.Context) (domain.OrderResponse, error) {
	resp, _, err := s.GetOrdersWithStats(ctx)
	return resp, err
}

// GetOrdersWithStats serves the whole listing from the all-orders entry or,
// on a miss, from the store, filling the entry for the next caller.
// Every failure on this path is a retrieval error.
func (s *Service) GetOrdersWithStats(ctx context.Context) (domain.OrderResponse, LookupStats, error) {
	var st LookupStats

	// Try cache
	tCacheStart := time.Now()
	raw, ok, err := s.cache.Get(ctx, allOrdersKey)
	if err != nil {
		s.logger.Error("Error while reading orders from cache", zap.Error(err))
		return domain.OrderResponse{}, st, domain.RetrievalFailed(err)
	}
	if ok {
		var snap ordersSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			s.logger.Error("Cached orders are not valid json", zap.Error(err))
			return domain.OrderResponse{}, st, domain.RetrievalFailed(err)
		}
		if snap.Data == nil {
			snap.Data = []domain.Order{}
		}

		st.Source = SourceCache
		st.CacheMs = convertToMs(tCacheStart)
		s.metrics.IncCacheHit()
		s.metrics.ObserveLookup(string(st.Source), st.CacheMs, 0)

		s.logger.Info("Orders fetched from cache",
			zap.Int("count", snap.Count),
			zap.Float64("cache_ms", st.CacheMs),
		)

		return listResponse(domain.MsgOrdersRetrievedCached, snap), st, nil
	}

	// Try DB
	s.metrics.IncCacheMiss()
	st.CacheMs = convertToMs(tCacheStart)

	tDbStart := time.Now()
	orders, count, err := s.storage.FindAndCount(ctx)
	if err != nil {
		s.logger.Error(
			"Can't list orders",
			zap.Error(err),
			zap.Float64("cache_ms", st.CacheMs),
		)
		return domain.OrderResponse{}, st, domain.RetrievalFailed(err)
	}
	st.Source = SourceDB
	st.DBMs = convertToMs(tDbStart)

	if orders == nil {
		orders = []domain.Order{}
	}
	snap := ordersSnapshot{Data: orders, Count: count}

	value, err := json.Marshal(snap)
	if err != nil {
		return domain.OrderResponse{}, st, domain.RetrievalFailed(err)
	}
	if err := s.cache.Set(ctx, allOrdersKey, value, s.ttl); err != nil {
		s.logger.Error("Error while caching orders", zap.Error(err))
		return domain.OrderResponse{}, st, domain.RetrievalFailed(err)
	}

	s.metrics.ObserveLookup(string(st.Source), st.CacheMs, st.DBMs)
	s.logger.Info("Orders fetched from DB",
		zap.Int("count", count),
		zap.Float64("cache_ms", st.CacheMs),
		zap.Float64("db_ms", st.DBMs),
	)

	return listResponse(domain.MsgOrdersRetrieved, snap), st, nil
}

func listResponse(msg string, snap ordersSnapshot) domain.OrderResponse {
	count := snap.Count
	return domain.OrderResponse{
		Success: true,
		Message: msg,
		Count:   &count,
		Data:    snap.Data,
	}
}

func (s *Service) GetOrderByID(ctx context.Context, id int64) (domain.OrderResponse, error) {
	resp, _, err := s.GetOrderByIDWithStats(ctx, id)
	return resp, err
}

// GetOrderByIDWithStats reads through the order:{id} entry. Any failure,
// including a store or cache outage, is reported as NotFound(id); outages
// are logged at warn level.
func (s *Service) GetOrderByIDWithStats(ctx context.Context, id int64) (domain.OrderResponse, LookupStats, error) {
	var st LookupStats
	key := orderKey(id)

	// Try cache
	tCacheStart := time.Now()
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Error while reading order from cache",
			zap.Int64("order_id", id),
			zap.Error(err),
		)
		return domain.OrderResponse{}, st, domain.NotFound(id)
	}
	if ok {
		var order domain.Order
		if err := json.Unmarshal(raw, &order); err != nil {
			s.logger.Warn("Cached order is not valid json",
				zap.Int64("order_id", id),
				zap.Error(err),
			)
			return domain.OrderResponse{}, st, domain.NotFound(id)
		}

		st.Source = SourceCache
		st.CacheMs = convertToMs(tCacheStart)
		s.metrics.IncCacheHit()
		s.metrics.ObserveLookup(string(st.Source), st.CacheMs, 0)

		s.logger.Info("Order fetched from cache",
			zap.Int64("order_id", id),
			zap.Float64("cache_ms", st.CacheMs),
		)

		return orderResponse(domain.MsgOrderRetrievedCached, order), st, nil
	}

	// Try DB
	s.metrics.IncCacheMiss()
	st.CacheMs = convertToMs(tCacheStart)

	tDbStart := time.Now()
	order, err := s.storage.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn(
				"Can't find order",
				zap.Int64("order_id", id),
				zap.Error(err),
				zap.Float64("cache_ms", st.CacheMs),
			)
		}
		return domain.OrderResponse{}, st, domain.NotFound(id)
	}

	st.Source = SourceDB
	st.DBMs = convertToMs(tDbStart)

	value, err := json.Marshal(order)
	if err != nil {
		return domain.OrderResponse{}, st, domain.NotFound(id)
	}
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		s.logger.Warn("Error while caching order",
			zap.Int64("order_id", id),
			zap.Error(err),
		)
		return domain.OrderResponse{}, st, domain.NotFound(id)
	}

	// metrics
	s.metrics.ObserveLookup(string(st.Source), st.CacheMs, st.DBMs)
	s.logger.Info("Order fetched from DB",
		zap.Int64("order_id", id),
		zap.Float64("cache_ms", st.CacheMs),
		zap.Float64("db_ms", st.DBMs),
	)

	return orderResponse(domain.MsgOrderRetrieved, order), st, nil
}

func orderResponse(msg string, order domain.Order) domain.OrderResponse {
	return domain.OrderResponse{
		Success: true,
		Message: msg,
		Data:    order,
	}
}

// UpdateOrder applies patch to an existing order. The existence check runs
// before the empty-patch check, so a missing id is NotFound whatever the patch.
func (s *Service) UpdateOrder(ctx context.Context, id int64, patch domain.OrderPatch) (domain.OrderResponse, error) {
	if _, err := s.storage.FindByID(ctx, id); err != nil {
		return domain.OrderResponse{}, s.writeError("update", id, err, domain.UpdateFailed)
	}
	if patch.IsEmpty() {
		return domain.OrderResponse{}, domain.NoFieldsProvided()
	}

	t0 := time.Now()
	if err := s.storage.UpdateByID(ctx, id, patch); err != nil {
		return domain.OrderResponse{}, s.writeError("update", id, err, domain.UpdateFailed)
	}
	dbMs := convertToMs(t0)

	if err := s.invalidate(ctx, id); err != nil {
		return domain.OrderResponse{}, s.writeError("update", id, err, domain.UpdateFailed)
	}

	updated, err := s.storage.FindByID(ctx, id)
	if err != nil {
		return domain.OrderResponse{}, s.writeError("update", id, err, domain.UpdateFailed)
	}

	s.metrics.ObserveWrite("update", dbMs)
	s.logger.Info("Order updated",
		zap.Int64("order_id", id),
		zap.Float64("db_write_ms", dbMs),
	)

	return orderResponse(domain.MsgOrderUpdated, updated), nil
}

func (s *Service) DeleteOrder(ctx context.Context, id int64) (domain.DeleteResponse, error) {
	if _, err := s.storage.FindByID(ctx, id); err != nil {
		return domain.DeleteResponse{}, s.writeError("delete", id, err, domain.DeletionFailed)
	}

	t0 := time.Now()
	if err := s.storage.DeleteByID(ctx, id); err != nil {
		return domain.DeleteResponse{}, s.writeError("delete", id, err, domain.DeletionFailed)
	}
	dbMs := convertToMs(t0)

	if err := s.invalidate(ctx, id); err != nil {
		return domain.DeleteResponse{}, s.writeError("delete", id, err, domain.DeletionFailed)
	}

	s.metrics.ObserveWrite("delete", dbMs)
	s.logger.Info("Order deleted",
		zap.Int64("order_id", id),
		zap.Float64("db_write_ms", dbMs),
	)

	return domain.DeleteResponse{
		Success: true,
		Message: domain.MsgOrderDeleted,
	}, nil
}

// invalidate drops the listing first, then the per-order entry.
func (s *Service) invalidate(ctx context.Context, id int64) error {
	if err := s.cache.Delete(ctx, allOrdersKey); err != nil {
		return err
	}
	return s.cache.Delete(ctx, orderKey(id))
}

// writeError maps a write-path failure: a missing row stays NotFound(id),
// anything else is wrapped by the operation's own kind.
func (s *Service) writeError(op string, id int64, err error, wrap func(int64, error) *domain.OrderError) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NotFound(id)
	}
	s.logger.Error("Error while writing order",
		zap.String("op", op),
		zap.Int64("order_id", id),
		zap.Error(err),
	)
	return wrap(id, err)
}
