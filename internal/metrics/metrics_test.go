package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/shopfloor/internal/agents"
	"github.com/talgya/shopfloor/internal/bus"
	"github.com/talgya/shopfloor/internal/engine"
)

type fixedSource struct {
	stats bus.Stats
	sum   engine.Summary
}

func (f fixedSource) BusStats() bus.Stats     { return f.stats }
func (f fixedSource) Summary() engine.Summary { return f.sum }

func sample() fixedSource {
	return fixedSource{
		stats: bus.Stats{
			TotalMessages:       12,
			ProcessedMessages:   10,
			PendingMessages:     2,
			RegisteredAgents:    7,
			ActiveSubscriptions: 4,
			MessageTypes: map[bus.MessageType]int{
				bus.InventoryUpdate: 9,
				bus.LowStockAlert:   3,
			},
		},
		sum: engine.Summary{
			Tick:          90,
			Revenue:       250.5,
			Transactions:  6,
			BusyEmployees: 1,
			ActiveByKind: map[agents.Kind]int{
				agents.KindBook:     20,
				agents.KindCustomer: 8,
				agents.KindEmployee: 5,
			},
		},
	}
}

func TestCollectorBusFigures(t *testing.T) {
	c := NewCollector(sample())

	expected := `
# HELP shopfloor_bus_messages_pending Messages published but not yet processed.
# TYPE shopfloor_bus_messages_pending gauge
shopfloor_bus_messages_pending 2
# HELP shopfloor_bus_messages_published_total Messages published on the bus.
# TYPE shopfloor_bus_messages_published_total counter
shopfloor_bus_messages_published_total 12
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"shopfloor_bus_messages_pending", "shopfloor_bus_messages_published_total")
	require.NoError(t, err)
}

func TestCollectorLabelledFigures(t *testing.T) {
	c := NewCollector(sample())

	expected := `
# HELP shopfloor_scheduler_active_agents Scheduled agents, by kind.
# TYPE shopfloor_scheduler_active_agents gauge
shopfloor_scheduler_active_agents{kind="book"} 20
shopfloor_scheduler_active_agents{kind="customer"} 8
shopfloor_scheduler_active_agents{kind="employee"} 5
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "shopfloor_scheduler_active_agents"))

	// every type published so far gets its own series
	assert.Equal(t, 2, testutil.CollectAndCount(c, "shopfloor_bus_messages_by_type_total"))
}

func TestCollectorStoreFigures(t *testing.T) {
	c := NewCollector(sample())

	expected := `
# HELP shopfloor_store_revenue Revenue after discounts.
# TYPE shopfloor_store_revenue gauge
shopfloor_store_revenue 250.5
# HELP shopfloor_store_transactions_total Completed checkouts.
# TYPE shopfloor_store_transactions_total counter
shopfloor_store_transactions_total 6
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"shopfloor_store_revenue", "shopfloor_store_transactions_total"))
}

func TestRegistryGathers(t *testing.T) {
	reg := NewRegistry(sample())
	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["shopfloor_scheduler_tick"])
	assert.True(t, names["go_goroutines"])
}
