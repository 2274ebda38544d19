package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/canwire/mcan/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	CANTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "can_tx_frames_total",
		Help: "Total CAN frames transmitted by the controller.",
	})
	CANRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "can_rx_frames_total",
		Help: "Total CAN frames drained from the controller RX FIFO.",
	})
	CANRxLost = promauto.NewCounter(prometheus.CounterOpts{
		Name: "can_rx_lost_total",
		Help: "Total CAN frames lost to RX FIFO overruns.",
	})
	CANTxTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "can_tx_timeouts_total",
		Help: "Total transmissions whose completion indicator never set.",
	})
	CANSpuriousIRQs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "can_spurious_interrupts_total",
		Help: "Total interrupts for channels with no registered controller.",
	})
	SlcanRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slcan_rx_frames_total",
		Help: "Total CAN frames decoded from the SLCAN serial link.",
	})
	SlcanTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slcan_tx_frames_total",
		Help: "Total CAN frames written to the SLCAN serial link.",
	})
	SocketCANRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socketcan_rx_frames_total",
		Help: "Total CAN frames read from the SocketCAN interface.",
	})
	SocketCANTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socketcan_tx_frames_total",
		Help: "Total CAN frames written to the SocketCAN interface.",
	})
	TCPRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_rx_frames_total",
		Help: "Total CAN frames received from TCP clients.",
	})
	TCPTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_tx_frames_total",
		Help: "Total CAN frames sent to TCP clients.",
	})
	HubDroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_dropped_frames_total",
		Help: "Total CAN frames dropped by hub due to slow clients.",
	})
	HubKickedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_kicked_clients_total",
		Help: "Total clients disconnected due to backpressure kick policy.",
	})
	HubRejectedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_rejected_clients_total",
		Help: "Total client connection attempts rejected (e.g., max-clients).",
	})
	HubActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_active_clients",
		Help: "Current number of active connected clients.",
	})
	HubBroadcastFanout = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_broadcast_fanout",
		Help: "Number of clients targeted in the most recent broadcast.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total rejected malformed frames (protocol violations, invalid length, truncated).",
	})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrTCPRead        = "tcp_read"
	ErrTCPWrite       = "tcp_write"
	ErrHandshake      = "handshake"
	ErrCANTx          = "can_tx"
	ErrSlcanWrite     = "slcan_write"
	ErrSlcanOverflow  = "slcan_tx_overflow"
	ErrSlcanRead      = "slcan_read"
	ErrSocketCANWrite = "socketcan_write"
	ErrSocketCANOver  = "socketcan_tx_overflow"
	ErrSocketCANRead  = "socketcan_read"
)

// StartHTTP serves Prometheus metrics at /metrics plus a /ready endpoint.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localCANTx       uint64
	localCANRx       uint64
	localCANRxLost   uint64
	localCANTxTO     uint64
	localCANSpurious uint64
	localSlcanRx     uint64
	localSlcanTx     uint64
	localSocketCANRx uint64
	localSocketCANTx uint64
	localTCPRx       uint64
	localTCPTx       uint64
	localHubDrop     uint64
	localHubKick     uint64
	localHubReject   uint64
	localErrors      uint64
	localHubClients  uint64
	localFanout      uint64
	localMalformed   uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	CANTx        uint64
	CANRx        uint64
	CANRxLost    uint64
	CANTxTimeout uint64
	CANSpurious  uint64
	SlcanRx      uint64
	SlcanTx      uint64
	SocketCANRx  uint64
	SocketCANTx  uint64
	TCPRx        uint64
	TCPTx        uint64
	HubDrops     uint64
	HubKicks     uint64
	HubRejects   uint64
	Errors       uint64 // sum across error labels
	HubClients   uint64
	Fanout       uint64
	Malformed    uint64
}

func Snap() Snapshot {
	return Snapshot{
		CANTx:        atomic.LoadUint64(&localCANTx),
		CANRx:        atomic.LoadUint64(&localCANRx),
		CANRxLost:    atomic.LoadUint64(&localCANRxLost),
		CANTxTimeout: atomic.LoadUint64(&localCANTxTO),
		CANSpurious:  atomic.LoadUint64(&localCANSpurious),
		SlcanRx:      atomic.LoadUint64(&localSlcanRx),
		SlcanTx:      atomic.LoadUint64(&localSlcanTx),
		SocketCANRx:  atomic.LoadUint64(&localSocketCANRx),
		SocketCANTx:  atomic.LoadUint64(&localSocketCANTx),
		TCPRx:        atomic.LoadUint64(&localTCPRx),
		TCPTx:        atomic.LoadUint64(&localTCPTx),
		HubDrops:     atomic.LoadUint64(&localHubDrop),
		HubKicks:     atomic.LoadUint64(&localHubKick),
		HubRejects:   atomic.LoadUint64(&localHubReject),
		Errors:       atomic.LoadUint64(&localErrors),
		HubClients:   atomic.LoadUint64(&localHubClients),
		Fanout:       atomic.LoadUint64(&localFanout),
		Malformed:    atomic.LoadUint64(&localMalformed),
	}
}

// Wrapper helpers to keep call sites simple.
func IncCANTx() {
	CANTxFrames.Inc()
	atomic.AddUint64(&localCANTx, 1)
}

func IncCANRx() {
	CANRxFrames.Inc()
	atomic.AddUint64(&localCANRx, 1)
}

// IncCANRxLost counts RX FIFO overruns reported by the peripheral.
func IncCANRxLost() {
	CANRxLost.Inc()
	atomic.AddUint64(&localCANRxLost, 1)
}

func IncTxTimeout() {
	CANTxTimeouts.Inc()
	atomic.AddUint64(&localCANTxTO, 1)
}

func IncSpuriousIRQ() {
	CANSpuriousIRQs.Inc()
	atomic.AddUint64(&localCANSpurious, 1)
}

func IncSlcanRx() {
	SlcanRxFrames.Inc()
	atomic.AddUint64(&localSlcanRx, 1)
}

func IncSlcanTx() {
	SlcanTxFrames.Inc()
	atomic.AddUint64(&localSlcanTx, 1)
}

// IncSocketCANRx increments SocketCAN receive counters.
func IncSocketCANRx() {
	SocketCANRxFrames.Inc()
	atomic.AddUint64(&localSocketCANRx, 1)
}

// IncSocketCANTx increments SocketCAN transmit counters.
func IncSocketCANTx() {
	SocketCANTxFrames.Inc()
	atomic.AddUint64(&localSocketCANTx, 1)
}

func IncTCPRx() {
	TCPRxFrames.Inc()
	atomic.AddUint64(&localTCPRx, 1)
}

func AddTCPTx(n int) {
	TCPTxFrames.Add(float64(n))
	atomic.AddUint64(&localTCPTx, uint64(n))
}

func IncHubDrop() {
	HubDroppedFrames.Inc()
	atomic.AddUint64(&localHubDrop, 1)
}

func IncHubKick() {
	HubKickedClients.Inc()
	atomic.AddUint64(&localHubKick, 1)
}

func IncHubReject() {
	HubRejectedClients.Inc()
	atomic.AddUint64(&localHubReject, 1)
}

func SetHubClients(n int) {
	HubActiveClients.Set(float64(n))
	atomic.StoreUint64(&localHubClients, uint64(n))
}

func SetBroadcastFanout(n int) {
	HubBroadcastFanout.Set(float64(n))
	atomic.StoreUint64(&localFanout, uint64(n))
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register common error label series so first error does not log a registration latency.
	for _, lbl := range []string{
		ErrTCPRead, ErrTCPWrite, ErrHandshake, ErrCANTx,
		ErrSlcanWrite, ErrSlcanOverflow, ErrSlcanRead,
		ErrSocketCANWrite, ErrSocketCANOver, ErrSocketCANRead,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
