package store

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "warden_store_query_duration_seconds",
		Help:    "Store query latency by statement verb and outcome",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
	}, []string{"verb", "result"})
)

type traceKey struct{}

type traceStart struct {
	verb  string
	start time.Time
}

// Tracer is a pgx.QueryTracer recording statement timings.
type Tracer struct{}

var _ pgx.QueryTracer = Tracer{}

func (Tracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceKey{}, traceStart{verb: statementVerb(data.SQL), start: time.Now()})
}

func (Tracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	ts, ok := ctx.Value(traceKey{}).(traceStart)
	if !ok {
		return
	}
	result := "ok"
	if data.Err != nil && data.Err != pgx.ErrNoRows {
		result = "error"
	}
	queryDuration.WithLabelValues(ts.verb, result).Observe(time.Since(ts.start).Seconds())
}

// statementVerb returns the leading keyword of a statement, lower-cased.
func statementVerb(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	switch v := strings.ToLower(fields[0]); v {
	case "select", "insert", "update", "delete", "begin", "commit", "rollback", "with":
		return v
	default:
		return "other"
	}
}
