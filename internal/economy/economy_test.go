package economy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/shopfloor/internal/entropy"
)

func TestDiscount(t *testing.T) {
	tests := []struct {
		typ  CustomerType
		want float64
	}{
		{Premium, 0.15},
		{Student, 0.10},
		{Senior, 0.12},
		{Regular, 0.05},
		{CustomerType(9), 0},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Discount(tt.typ))
		})
	}
}

func TestLoyaltyPoints(t *testing.T) {
	assert.Equal(t, 0, LoyaltyPoints(9.99))
	assert.Equal(t, 1, LoyaltyPoints(10))
	assert.Equal(t, 4, LoyaltyPoints(47.50))
	assert.Equal(t, 0, LoyaltyPoints(-20))
}

func TestCatalogAddValidates(t *testing.T) {
	c := NewCatalog()
	_, err := c.Add(Book{ISBN: "1", Price: 10, Stock: 2})
	require.NoError(t, err)

	_, err = c.Add(Book{ISBN: "1", Price: 10})
	assert.True(t, errors.Is(err, ErrDuplicateISBN))

	_, err = c.Add(Book{ISBN: "2", Price: -1})
	assert.True(t, errors.Is(err, ErrInvalidBook))

	_, err = c.Add(Book{ISBN: "3", Stock: -1})
	assert.True(t, errors.Is(err, ErrInvalidBook))

	assert.Equal(t, 1, c.Len())
}

func TestCatalogReadsAreCopies(t *testing.T) {
	c := NewCatalog()
	rec, err := c.Add(Book{ISBN: "1", Price: 10, Stock: 2})
	require.NoError(t, err)

	got, ok := c.Get("1")
	require.True(t, ok)
	got.Stock = 99
	assert.Equal(t, 2, rec.Stock)

	rec.Stock = 0
	assert.False(t, c.Available("1", 1))
	assert.Empty(t, c.InStock())
	assert.Len(t, c.LowStock(5), 1)
}

func TestGenerateCatalog(t *testing.T) {
	a, err := GenerateCatalog(entropy.New(11), 40)
	require.NoError(t, err)
	b, err := GenerateCatalog(entropy.New(11), 40)
	require.NoError(t, err)

	assert.Equal(t, 40, a.Len())
	assert.Equal(t, a.ISBNs(), b.ISBNs())
	assert.Equal(t, "978-0-123456-78-9", a.ISBNs()[0])

	small, err := GenerateCatalog(entropy.New(11), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, small.Len())
}

func TestRecommend(t *testing.T) {
	c := NewCatalog()
	for _, b := range []Book{
		{ISBN: "f1", Category: Fiction, Stock: 1},
		{ISBN: "m1", Category: Mystery, Stock: 1},
		{ISBN: "r1", Category: Romance, Stock: 1},
		{ISBN: "t1", Category: Technology, Stock: 1},
		{ISBN: "m2", Category: Mystery, Stock: 1},
	} {
		_, err := c.Add(b)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"m2", "r1"}, Recommend(c, []string{"f1", "m1"}, 5))
	assert.Equal(t, []string{"m1"}, Recommend(c, []string{"f1"}, 1))
	assert.Nil(t, Recommend(c, nil, 5))
	assert.Empty(t, Recommend(c, []string{"t1"}, 5))
}

func TestSeasons(t *testing.T) {
	assert.Equal(t, Winter, SeasonOfDay(1))
	assert.Equal(t, Spring, SeasonOfDay(80))
	assert.Equal(t, Summer, SeasonOfDay(200))
	assert.Equal(t, Fall, SeasonOfDay(300))
	assert.Equal(t, Winter, SeasonOfDay(360))

	assert.Equal(t, 2.0, SeasonalFactor(Textbook, Fall))
	assert.Equal(t, 0.3, SeasonalFactor(Textbook, Summer))
	assert.Equal(t, 1.0, SeasonalFactor(Category(200), Summer))
}

func TestCapabilities(t *testing.T) {
	assert.Contains(t, Capabilities(Cashier), ProcessTransaction)
	assert.NotContains(t, Capabilities(InventoryClerk), ProcessTransaction)
	assert.Contains(t, Capabilities(Manager), InventoryManagement)
	assert.True(t, CanProcessTransaction(SalesAssociate))
	assert.False(t, CanProcessTransaction(CustomerServiceRep))

	caps := Capabilities(Cashier)
	caps[0] = "mutated"
	assert.Equal(t, ProcessTransaction, Capabilities(Cashier)[0])
}

func TestDemandFieldBounds(t *testing.T) {
	f := NewDemandField(5)
	g := NewDemandField(5)
	for slot := 0; slot < 20; slot++ {
		for tick := uint64(0); tick < 200; tick += 7 {
			v := f.Variation(slot, tick)
			assert.GreaterOrEqual(t, v, 0.9)
			assert.LessOrEqual(t, v, 1.1)
			assert.Equal(t, v, g.Variation(slot, tick))
		}
	}
}

func TestTransactionNet(t *testing.T) {
	lines := []Line{{ISBN: "a", Quantity: 2, UnitPrice: 10}, {ISBN: "b", Quantity: 1, UnitPrice: 5}}
	tx := Transaction{Lines: lines, Total: Subtotal(lines), Discount: 2.5}
	assert.Equal(t, 25.0, tx.Total)
	assert.Equal(t, 22.5, tx.Net())
}
