package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/canwire/mcan"
	"github.com/canwire/mcan/can"
	"github.com/canwire/mcan/internal/hub"
	"github.com/canwire/mcan/internal/metrics"
	"github.com/canwire/mcan/internal/transport"
	"github.com/canwire/mcan/sim"
)

// initSimBackend stands up an in-process CAN controller on the simulated
// peripheral, in loopback mode so the bridge behaves as a virtual bus:
// every frame a client sends is echoed back to all connected clients.
func initSimBackend(ctx context.Context, cfg *appConfig, h *hub.Hub, l *slog.Logger, wg *sync.WaitGroup) (func(can.Frame) error, func(), error) {
	p := sim.New()
	ctrl := mcan.New(p,
		mcan.WithPins(simTxPin, simRxPin),
		mcan.WithPinMux(p),
		mcan.WithClockControl(p),
		mcan.WithInterruptMask(p),
		mcan.WithClockHz(uint32(cfg.clockHz)),
		mcan.WithLogger(l),
	)
	p.SetInterruptHandler(func() { mcan.ServiceInterrupt(ctrl.Channel()) })
	if err := ctrl.Begin(uint32(cfg.bitrate)); err != nil {
		return nil, func() {}, fmt.Errorf("sim begin: %w", err)
	}
	if err := ctrl.Loopback(); err != nil {
		ctrl.End()
		return nil, func() {}, fmt.Errorf("sim loopback: %w", err)
	}
	ctrl.OnReceive(func(fr can.Frame) { h.Broadcast(fr) })
	tx := transport.NewAsyncTx(ctx, txQueueSize, ctrl.Send, transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrCANTx)
			l.Error("sim_tx_error", "error", err)
		},
	})
	l.Info("sim_backend_ready", "bitrate", cfg.bitrate, "clock_hz", cfg.clockHz)
	return tx.SendFrame, func() { tx.Close(); ctrl.End() }, nil
}
