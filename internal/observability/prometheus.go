package observability

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var durationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// Prometheus exports the same observations as Inmem through a registerer.
type Prometheus struct {
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	lookups     *prometheus.HistogramVec
	writes      *prometheus.HistogramVec
	http        *prometheus.HistogramVec
	kafka       *prometheus.HistogramVec
}

func NewPrometheus(registerer prometheus.Registerer) *Prometheus {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Prometheus{
		cacheHits: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orders_cache_hits_total",
			Help: "Total number of order reads served from cache",
		}),
		cacheMisses: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orders_cache_misses_total",
			Help: "Total number of order reads that fell through to the store",
		}),
		lookups: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "orders_lookup_duration_seconds",
			Help:    "Duration of order reads by source",
			Buckets: durationBuckets,
		}, []string{"source"}),
		writes: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "orders_write_duration_seconds",
			Help:    "Duration of store writes by operation",
			Buckets: durationBuckets,
		}, []string{"op"}),
		http: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "orders_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: durationBuckets,
		}, []string{"method", "route", "status"}),
		kafka: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "orders_kafka_message_duration_seconds",
			Help:    "Duration of Kafka message processing by result",
			Buckets: durationBuckets,
		}, []string{"result"}),
	}
}

func (p *Prometheus) ObserveLookup(source string, cacheMs, dbMs float64) {
	p.lookups.WithLabelValues(source).Observe(msToSeconds(cacheMs + dbMs))
}

func (p *Prometheus) ObserveWrite(op string, dbMs float64) {
	p.writes.WithLabelValues(op).Observe(msToSeconds(dbMs))
}

func (p *Prometheus) ObserveHTTP(method, route string, status int, durMs float64) {
	p.http.WithLabelValues(method, route, strconv.Itoa(status)).Observe(msToSeconds(durMs))
}

func (p *Prometheus) ObserveKafka(processMs float64, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	p.kafka.WithLabelValues(result).Observe(msToSeconds(processMs))
}

func (p *Prometheus) IncCacheHit()  { p.cacheHits.Inc() }
func (p *Prometheus) IncCacheMiss() { p.cacheMisses.Inc() }

func msToSeconds(ms float64) float64 {
	if ms < 0 {
		return 0
	}
	return ms / 1000
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}
