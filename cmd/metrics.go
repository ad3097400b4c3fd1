package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flashctl/config"
	"github.com/michaelpento.lv/flashctl/utils/metrics"
	"github.com/michaelpento.lv/flashctl/utils/monitor"
)

var (
	metricsServer  *http.Server
	processMonitor *monitor.ProcessMonitor

	rpcMetrics            *metrics.RPCMetrics
	rpcMetricsOnce        sync.Once
	controllerMetrics     *metrics.ControllerMetrics
	controllerMetricsOnce sync.Once
)

// sharedRPCMetrics registers the RPC collectors on the served registry the
// first time metrics are enabled. It returns nil while they are disabled.
func sharedRPCMetrics() *metrics.RPCMetrics {
	if !cfg.Metrics.Enabled {
		return nil
	}
	rpcMetricsOnce.Do(func() {
		rpcMetrics = metrics.NewRPCMetrics(cfg.Metrics.Namespace+"_rpc", metrics.Registry())
	})
	return rpcMetrics
}

func sharedControllerMetrics() *metrics.ControllerMetrics {
	if !cfg.Metrics.Enabled {
		return nil
	}
	controllerMetricsOnce.Do(func() {
		controllerMetrics = metrics.NewControllerMetrics(cfg.Metrics.Namespace, metrics.Registry())
	})
	return controllerMetrics
}

func startMetricsServer(ctx context.Context, mc config.MetricsConfig, log *zap.Logger) error {
	if !mc.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))

	listener, err := net.Listen("tcp", mc.ListenAddr)
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:              listener.Addr().String(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsServer = server

	// Gauges register once on the shared registry.
	if processMonitor == nil {
		processMonitor = monitor.NewProcessMonitor(mc.Namespace, metrics.Registry(), 5*time.Second, nil)
	}
	processMonitor.Start(ctx)

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server stopped", zap.Error(err))
		}
	}()
	log.Info("Serving metrics", zap.String("addr", listener.Addr().String()))
	return nil
}

func stopMetricsServer(log *zap.Logger) {
	if processMonitor != nil {
		processMonitor.Stop()
	}
	if metricsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(ctx); err != nil {
		log.Warn("Failed to stop metrics server", zap.Error(err))
	}
	metricsServer = nil
}
