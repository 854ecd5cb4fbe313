// Package metrics exposes bus, scheduler and store figures to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/talgya/shopfloor/internal/agents"
	"github.com/talgya/shopfloor/internal/bus"
	"github.com/talgya/shopfloor/internal/engine"
)

const namespace = "shopfloor"

// Source is what the collector reads on every scrape.
type Source interface {
	BusStats() bus.Stats
	Summary() engine.Summary
}

var (
	busPublished = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "bus", "messages_published_total"),
		"Messages published on the bus.", nil, nil)
	busProcessed = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "bus", "messages_processed_total"),
		"Messages delivered to a handler.", nil, nil)
	busPending = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "bus", "messages_pending"),
		"Messages published but not yet processed.", nil, nil)
	busAgents = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "bus", "registered_agents"),
		"Agents with a mailbox.", nil, nil)
	busSubscriptions = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "bus", "subscriptions"),
		"Active subscriptions across all message types.", nil, nil)
	busByType = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "bus", "messages_by_type_total"),
		"Messages published, by type.", []string{"type"}, nil)

	schedTick = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "scheduler", "tick"),
		"Completed ticks.", nil, nil)
	schedActive = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "scheduler", "active_agents"),
		"Scheduled agents, by kind.", []string{"kind"}, nil)

	storeRevenue = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "store", "revenue"),
		"Revenue after discounts.", nil, nil)
	storeTransactions = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "store", "transactions_total"),
		"Completed checkouts.", nil, nil)
	storeBusy = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "store", "busy_employees"),
		"Employees not available for new work.", nil, nil)
	storeLowStock = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "store", "low_stock_books"),
		"Titles at or below their reorder point.", nil, nil)
	storeSatisfaction = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "store", "customer_satisfaction"),
		"Mean customer satisfaction.", nil, nil)
)

// Collector reads a Source at scrape time.
type Collector struct {
	src Source
}

// NewCollector returns a collector over src.
func NewCollector(src Source) *Collector {
	return &Collector{src: src}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		busPublished, busProcessed, busPending, busAgents, busSubscriptions, busByType,
		schedTick, schedActive,
		storeRevenue, storeTransactions, storeBusy, storeLowStock, storeSatisfaction,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.src.BusStats()
	sum := c.src.Summary()

	ch <- prometheus.MustNewConstMetric(busPublished, prometheus.CounterValue, float64(stats.TotalMessages))
	ch <- prometheus.MustNewConstMetric(busProcessed, prometheus.CounterValue, float64(stats.ProcessedMessages))
	ch <- prometheus.MustNewConstMetric(busPending, prometheus.GaugeValue, float64(stats.PendingMessages))
	ch <- prometheus.MustNewConstMetric(busAgents, prometheus.GaugeValue, float64(stats.RegisteredAgents))
	ch <- prometheus.MustNewConstMetric(busSubscriptions, prometheus.GaugeValue, float64(stats.ActiveSubscriptions))
	for typ, n := range stats.MessageTypes {
		ch <- prometheus.MustNewConstMetric(busByType, prometheus.CounterValue, float64(n), typ.String())
	}

	ch <- prometheus.MustNewConstMetric(schedTick, prometheus.CounterValue, float64(sum.Tick))
	for _, kind := range []agents.Kind{agents.KindBook, agents.KindCustomer, agents.KindEmployee} {
		ch <- prometheus.MustNewConstMetric(schedActive, prometheus.GaugeValue, float64(sum.ActiveByKind[kind]), string(kind))
	}

	ch <- prometheus.MustNewConstMetric(storeRevenue, prometheus.GaugeValue, sum.Revenue)
	ch <- prometheus.MustNewConstMetric(storeTransactions, prometheus.CounterValue, float64(sum.Transactions))
	ch <- prometheus.MustNewConstMetric(storeBusy, prometheus.GaugeValue, float64(sum.BusyEmployees))
	ch <- prometheus.MustNewConstMetric(storeLowStock, prometheus.GaugeValue, float64(sum.LowStockBooks))
	ch <- prometheus.MustNewConstMetric(storeSatisfaction, prometheus.GaugeValue, sum.Satisfaction)
}

// NewRegistry returns a registry holding a collector over src plus the Go
// runtime and process collectors.
func NewRegistry(src Source) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(src),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
