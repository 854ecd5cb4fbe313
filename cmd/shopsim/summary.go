package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/shopfloor/internal/agents"
	"github.com/talgya/shopfloor/internal/economy"
	"github.com/talgya/shopfloor/internal/engine"
)

func money(v float64) string {
	return "$" + humanize.FormatFloat("#,###.##", v)
}

// printSummary writes the end-of-run report.
func printSummary(w io.Writer, sim *engine.Simulation, elapsed time.Duration) {
	sum := sim.Summary()
	rule := strings.Repeat("=", 60)

	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "SIMULATION SUMMARY")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Simulated %s (%s ticks) in %s, seed %d\n",
		sum.SimTime, humanize.Comma(int64(sum.Tick)), elapsed.Round(time.Millisecond), sim.Seed())

	fmt.Fprintln(w, "\nBusiness:")
	fmt.Fprintf(w, "  Revenue:           %s\n", money(sum.Revenue))
	fmt.Fprintf(w, "  Transactions:      %s\n", humanize.Comma(int64(sum.Transactions)))
	fmt.Fprintf(w, "  Avg transaction:   %s\n", money(sum.AvgTransaction))
	fmt.Fprintf(w, "  Customers served:  %s of %s visits\n",
		humanize.Comma(int64(sum.CustomersServed)), humanize.Comma(int64(sum.CustomerVisits)))
	fmt.Fprintf(w, "  Satisfaction:      %.1f/10\n", sum.Satisfaction)

	fmt.Fprintln(w, "\nTop books:")
	for i, b := range sim.TopBooks(5) {
		fmt.Fprintf(w, "  %s %v - %v sold\n", humanize.Ordinal(i+1), b.Details["title"], b.Details["total_sales"])
	}

	fmt.Fprintln(w, "\nStaff on shift:")
	for _, e := range sim.Snapshots(agents.KindEmployee) {
		fmt.Fprintf(w, "  %v (%v): %v in sales, %v customers helped\n",
			e.Details["name"], e.Details["role"], e.Details["daily_sales"], e.Details["customers_served"])
	}

	fmt.Fprintln(w, "\nCustomers:")
	insights := sim.CustomerInsights()
	types := make([]economy.CustomerType, 0, len(insights))
	for t := range insights {
		types = append(types, t)
	}
	slices.Sort(types)
	for _, t := range types {
		st := insights[t]
		fmt.Fprintf(w, "  %-8s %4d customers, avg spend %s\n", t, st.Count, money(st.AverageSpent))
	}

	stats := sim.BusStats()
	fmt.Fprintln(w, "\nInventory and messaging:")
	fmt.Fprintf(w, "  Low stock titles:  %d\n", sum.LowStockBooks)
	fmt.Fprintf(w, "  Reorder alerts:    %d\n", sum.InventoryAlerts)
	fmt.Fprintf(w, "  Messages:          %s published, %s processed, %d pending\n",
		humanize.Comma(int64(stats.TotalMessages)), humanize.Comma(int64(stats.ProcessedMessages)), stats.PendingMessages)
}
