// Records the store keeps about what happened during a run.
package economy

// Line is one title on a receipt.
type Line struct {
	ISBN      string  `json:"isbn"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Subtotal sums quantity × unit price.
func Subtotal(lines []Line) float64 {
	total := 0.0
	for _, l := range lines {
		total += float64(l.Quantity) * l.UnitPrice
	}
	return total
}

// Transaction is a completed checkout.
type Transaction struct {
	ID         string  `json:"id"`
	CustomerID string  `json:"customer_id"`
	EmployeeID string  `json:"employee_id"`
	Lines      []Line  `json:"lines"`
	Total      float64 `json:"total"`
	Discount   float64 `json:"discount"`
	Tick       uint64  `json:"tick"`
}

// Net is what the customer actually paid.
func (t Transaction) Net() float64 {
	return t.Total - t.Discount
}

// Visit summarizes one shopper's time in the store.
type Visit struct {
	CustomerID   string `json:"customer_id"`
	Duration     int    `json:"duration"` // ticks spent shopping
	Purchased    bool   `json:"purchased"`
	Interactions int    `json:"interactions"`
	Tick         uint64 `json:"tick"`
}

// InventoryAlert notes a title that has fallen to its reorder point.
type InventoryAlert struct {
	ISBN      string  `json:"isbn"`
	Stock     int     `json:"stock"`
	Suggested int     `json:"suggested_quantity"`
	Demand    float64 `json:"demand"`
	Tick      uint64  `json:"tick"`
}
