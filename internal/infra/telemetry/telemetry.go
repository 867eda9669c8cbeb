package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/config"
)

const metricsNamespace = "hackreg"

// Provider owns the metrics registry and the service level collectors.
type Provider struct {
	registry   *prometheus.Registry
	rejections *prometheus.CounterVec
}

// Attach builds a dedicated registry with runtime collectors and the limiter rejection counter.
func Attach(cfg *config.AppConfig) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   metricsNamespace,
		Subsystem:   "ratelimit",
		Name:        "rejections_total",
		Help:        "Requests rejected by a rate limiter, partitioned by limiter namespace.",
		ConstLabels: prometheus.Labels{"env": cfg.App.Env},
	}, []string{"namespace"})
	if err := registry.Register(rejections); err != nil {
		return nil, fmt.Errorf("register rejection counter: %w", err)
	}

	return &Provider{registry: registry, rejections: rejections}, nil
}

// Registerer is where the HTTP layer registers its collectors.
func (p *Provider) Registerer() prometheus.Registerer {
	return p.registry
}

// ObserveRejection counts one limiter rejection.
func (p *Provider) ObserveRejection(namespace string) {
	if p == nil {
		return
	}
	p.rejections.WithLabelValues(namespace).Inc()
}

// Rejections exposes the limiter rejection counter.
func (p *Provider) Rejections() *prometheus.CounterVec {
	return p.rejections
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
