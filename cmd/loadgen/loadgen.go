package main

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/TemirB/order-service/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Loadgen publishes generated orders to the orders topic at a fixed rate.
type Loadgen struct {
	writer messageWriter
	logger *zap.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning atomic.Bool
	totalSent atomic.Int64
	failed    atomic.Int64
	startedAt time.Time
	rate      int
}

type StartRequest struct {
	Rate     int    `json:"rate"`
	Duration string `json:"duration"`
}

type Stats struct {
	IsRunning bool    `json:"is_running"`
	TotalSent int64   `json:"total_sent"`
	Failed    int64   `json:"failed"`
	Rate      int     `json:"rate"`
	Elapsed   string  `json:"elapsed"`
	Effective float64 `json:"effective_rate"`
}

func NewKafkaWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}
}

func NewLoadgen(writer messageWriter, logger *zap.Logger) *Loadgen {
	return &Loadgen{
		writer: writer,
		logger: logger,
	}
}

// Start is a no-op while a run is in progress.
func (l *Loadgen) Start(rate int, duration time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.isRunning.Load() {
		return false
	}
	if rate <= 0 {
		rate = 10
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.rate = rate
	l.startedAt = time.Now()
	l.totalSent.Store(0)
	l.failed.Store(0)
	l.isRunning.Store(true)

	l.logger.Info("load started", zap.Int("rate", rate), zap.Duration("duration", duration))

	l.wg.Add(1)
	go l.run(ctx, rate, duration)
	return true
}

func (l *Loadgen) run(ctx context.Context, rate int, duration time.Duration) {
	defer l.wg.Done()
	defer l.isRunning.Store(false)

	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	var deadline <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ticker.C:
			l.send(ctx)
		case <-deadline:
			l.logger.Info("load completed", zap.Int64("total_sent", l.totalSent.Load()))
			return
		case <-ctx.Done():
			l.logger.Info("load stopped", zap.Int64("total_sent", l.totalSent.Load()))
			return
		}
	}
}

func (l *Loadgen) send(ctx context.Context) {
	payload, err := json.Marshal(generateOrder())
	if err != nil {
		l.logger.Error("marshal order", zap.Error(err))
		l.failed.Add(1)
		return
	}

	err = l.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(uuid.NewString()),
		Value: payload,
		Time:  time.Now(),
	})
	if err != nil {
		if ctx.Err() == nil {
			l.logger.Warn("write message", zap.Error(err))
		}
		l.failed.Add(1)
		return
	}
	l.totalSent.Add(1)
}

func (l *Loadgen) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	l.wg.Wait()
}

func (l *Loadgen) Stats() Stats {
	l.mu.Lock()
	startedAt, rate := l.startedAt, l.rate
	l.mu.Unlock()

	st := Stats{
		IsRunning: l.isRunning.Load(),
		TotalSent: l.totalSent.Load(),
		Failed:    l.failed.Load(),
		Rate:      rate,
	}
	if !startedAt.IsZero() {
		elapsed := time.Since(startedAt)
		st.Elapsed = elapsed.Round(time.Millisecond).String()
		if secs := elapsed.Seconds(); secs > 0 {
			st.Effective = float64(st.TotalSent) / secs
		}
	}
	return st
}

func (l *Loadgen) Close() error {
	l.Stop()
	return l.writer.Close()
}

// generateOrder builds a valid order whose total matches its line items.
func generateOrder() domain.Order {
	n := 1 + rand.Intn(4)
	products := make([]domain.ProductItem, 0, n)
	var total int64
	for i := 0; i < n; i++ {
		item := domain.ProductItem{
			ProductID: int64(1 + rand.Intn(10000)),
			Quantity:  float64(1 + rand.Intn(5)),
			Price:     int64(50 + rand.Intn(5000)),
		}
		total += int64(item.Quantity) * item.Price
		products = append(products, item)
	}
	return domain.Order{
		Products:    products,
		TotalAmount: total,
	}
}
