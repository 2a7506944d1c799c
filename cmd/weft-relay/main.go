// weft-relay is a reference ordering service for weft replicas: it assigns
// each submitted operation a global sequence number, fans envelopes out to
// every connected client in strict order, and replays history to late
// joiners. It is a demonstration embedding; production transports own
// their own ordering and durability concerns.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/phroun/weft"
	"github.com/phroun/weft/wire"
)

var (
	opsSequenced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weft_relay_ops_sequenced_total",
		Help: "Operations assigned a sequence number, by type.",
	}, []string{"type"})
	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "weft_relay_connected_clients",
		Help: "Currently connected clients.",
	})
)

type submission struct {
	clientID string
	op       weft.Op
}

type relay struct {
	log      *zap.Logger
	upgrader websocket.Upgrader
	subs     chan submission

	mu      sync.Mutex
	clients map[string]*client
	seq     int64
	history []weft.Envelope
}

type client struct {
	id     string
	conn   *websocket.Conn
	sendMu sync.Mutex
	refSeq int64
}

func (c *client) send(f wire.Frame) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.conn.WriteJSON(f)
}

func newRelay(log *zap.Logger) *relay {
	return &relay{
		log:     log,
		subs:    make(chan submission, 256),
		clients: make(map[string]*client),
	}
}

// minSeq is the lowest refSeq any connected client may still submit,
// gating tombstone eviction on the replicas.
func (r *relay) minSeqLocked() int64 {
	min := r.seq
	for _, c := range r.clients {
		if c.refSeq < min {
			min = c.refSeq
		}
	}
	return min
}

func (r *relay) handleConn(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	c := &client{id: uuid.NewString(), conn: conn}

	r.mu.Lock()
	c.refSeq = r.seq
	hello := wire.Frame{Type: wire.FrameHello, ClientID: c.id, Seq: r.seq}
	replay := append([]weft.Envelope(nil), r.history...)
	r.clients[c.id] = c
	r.mu.Unlock()
	connectedClients.Inc()
	defer func() {
		r.mu.Lock()
		delete(r.clients, c.id)
		r.mu.Unlock()
		connectedClients.Dec()
	}()

	if err := c.send(hello); err != nil {
		return
	}
	for i := range replay {
		if err := c.send(wire.Frame{Type: wire.FrameOp, Envelope: &replay[i]}); err != nil {
			return
		}
	}
	r.log.Info("client joined", zap.String("client", c.id), zap.Int("replayed", len(replay)))

	for {
		var op weft.Op
		if err := conn.ReadJSON(&op); err != nil {
			r.log.Info("client left", zap.String("client", c.id), zap.Error(err))
			return
		}
		r.subs <- submission{clientID: c.id, op: op}
	}
}

// sequence serializes submissions: one goroutine assigns sequence numbers
// and broadcasts, so every client observes the same total order.
func (r *relay) sequence(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub := <-r.subs:
			r.mu.Lock()
			r.seq++
			if c, ok := r.clients[sub.clientID]; ok && sub.op.RefSeq > c.refSeq {
				c.refSeq = sub.op.RefSeq
			}
			env := weft.Envelope{
				Seq:      r.seq,
				MinSeq:   r.minSeqLocked(),
				ClientID: sub.clientID,
				Op:       sub.op,
			}
			r.history = append(r.history, env)
			targets := make([]*client, 0, len(r.clients))
			for _, c := range r.clients {
				targets = append(targets, c)
			}
			r.mu.Unlock()

			opsSequenced.WithLabelValues(string(sub.op.Type)).Inc()
			for _, c := range targets {
				if err := c.send(wire.Frame{Type: wire.FrameOp, Envelope: &env}); err != nil {
					r.log.Warn("send failed, dropping client",
						zap.String("client", c.id), zap.Error(err))
					c.conn.Close()
				}
			}
		}
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	r := newRelay(logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/", r.handleConn)
	srv := &http.Server{Addr: viper.GetString("listen"), Handler: mux}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: viper.GetString("metrics-listen"), Handler: metricsMux}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return r.sequence(ctx) })
	eg.Go(func() error {
		logger.Info("relay listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		logger.Info("metrics listening", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return multierr.Combine(srv.Shutdown(shutdownCtx), metricsSrv.Shutdown(shutdownCtx))
	})

	err = eg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func main() {
	cmd := &cobra.Command{
		Use:          "weft-relay",
		Short:        "Reference ordering service for weft replicas",
		RunE:         run,
		SilenceUsage: true,
	}
	cmd.Flags().String("listen", ":9010", "client websocket listen address")
	cmd.Flags().String("metrics-listen", ":9011", "prometheus metrics listen address")
	viper.BindPFlags(cmd.Flags())
	viper.SetEnvPrefix("WEFT_RELAY")
	viper.AutomaticEnv()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
