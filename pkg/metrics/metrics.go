package metrics

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// DefaultRegistry holds every agent collector. Go runtime collectors are not
// registered so the exposition stays limited to agent behaviour.
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		OracleRepliesTotal, OracleDuration, OracleTokensTotal,
		ToolInvocationsTotal, ToolDuration,
		ProtocolViolationsTotal, TurnsTotal,
	)
}

// OracleRepliesTotal counts decoded oracle replies by protocol type.
var OracleRepliesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "todo_agent_oracle_replies_total",
		Help: "Oracle replies by protocol message type.",
	},
	[]string{"type"}, // plan | action | output
)

var OracleDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "todo_agent_oracle_duration_seconds",
		Help:    "Oracle round-trip latency in seconds.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"backend"},
)

var OracleTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "todo_agent_oracle_tokens_total",
		Help: "Tokens consumed by oracle calls.",
	},
	[]string{"direction"}, // input | output
)

var ToolInvocationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "todo_agent_tool_invocations_total",
		Help: "Tool invocations by tool and outcome.",
	},
	[]string{"tool", "status"}, // ok | invalid_input | store_error
)

var ToolDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "todo_agent_tool_duration_seconds",
		Help:    "Tool invocation latency in seconds.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"tool"},
)

var ProtocolViolationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "todo_agent_protocol_violations_total",
		Help: "Oracle replies rejected as protocol violations.",
	},
	[]string{"reason"}, // malformed | unknown_tool
)

var TurnsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "todo_agent_turns_total",
		Help: "User turns by outcome.",
	},
	[]string{"status"}, // completed | failed
)

type Config struct {
	Addr string `envconfig:"ADDR" split_words:"true"`
	Path string `envconfig:"HANDLER_PATH" split_words:"true" default:"/metrics"`
}

// Handler exposes DefaultRegistry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(DefaultRegistry, promhttp.HandlerOpts{Registry: DefaultRegistry})
}

// Serve exposes metrics on cfg.Addr until ctx is done. An empty address
// disables the endpoint.
func Serve(ctx context.Context, cfg Config) error {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil
	}
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Str("path", path).Msg("metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
