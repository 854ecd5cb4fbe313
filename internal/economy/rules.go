// Store rules: discounts, loyalty, recommendations, and the demand tables
// book agents price from.
package economy

import (
	"fmt"
	"math"
	"slices"
)

// Discount returns the fraction taken off a purchase for a customer type.
func Discount(t CustomerType) float64 {
	switch t {
	case Premium:
		return 0.15
	case Student:
		return 0.10
	case Senior:
		return 0.12
	case Regular:
		return 0.05
	default:
		return 0
	}
}

// LoyaltyPoints awards one point per 10 spent, rounded down.
func LoyaltyPoints(amount float64) int {
	if amount <= 0 {
		return 0
	}
	return int(math.Floor(amount / 10))
}

// BudgetRange returns the spending range a shopper of type t arrives with.
func BudgetRange(t CustomerType) (lo, hi float64) {
	switch t {
	case Premium:
		return 100, 500
	case Regular:
		return 50, 200
	case Student:
		return 20, 100
	case Senior:
		return 30, 150
	default:
		return 20, 100
	}
}

var relatedCategories = map[Category][]Category{
	Fiction:    {Mystery, Romance, Fantasy},
	Science:    {Technology},
	NonFiction: {Biography, History},
}

// RelatedCategories returns the categories shoppers of c tend to move to.
func RelatedCategories(c Category) []Category {
	return slices.Clone(relatedCategories[c])
}

// Recommend suggests up to limit ISBNs from categories related to what the
// customer already bought, skipping anything already bought.
func Recommend(cat *Catalog, history []string, limit int) []string {
	if len(history) == 0 || limit <= 0 {
		return nil
	}

	var bought []Category
	for _, isbn := range history {
		if b, ok := cat.Get(isbn); ok && !slices.Contains(bought, b.Category) {
			bought = append(bought, b.Category)
		}
	}

	var out []string
	for _, c := range bought {
		for _, related := range RelatedCategories(c) {
			for _, isbn := range cat.order {
				b := cat.books[isbn]
				if b.Category != related || slices.Contains(history, isbn) || slices.Contains(out, isbn) {
					continue
				}
				out = append(out, isbn)
				if len(out) == limit {
					return out
				}
			}
		}
	}
	return out
}

// BaseDemand is the category's share of shoppers' interest before price.
func BaseDemand(c Category) float64 {
	switch c {
	case Fiction:
		return 0.8
	case Mystery, Children:
		return 0.7
	case Romance:
		return 0.9
	case Fantasy, Biography, NonFiction:
		return 0.6
	case Science:
		return 0.4
	case Technology:
		return 0.3
	case History, Textbook:
		return 0.5
	case Reference:
		return 0.2
	default:
		return 0.5
	}
}

// Elasticity is the price elasticity of demand; essentials are less elastic.
func Elasticity(c Category) float64 {
	switch c {
	case Textbook, Reference:
		return -0.3
	case Science, Technology:
		return -0.4
	case Fiction, Mystery:
		return -0.8
	case Romance:
		return -0.9
	case Fantasy:
		return -0.7
	case Children, NonFiction:
		return -0.6
	case Biography, History:
		return -0.5
	default:
		return -0.6
	}
}

// Season of the year.
type Season uint8

const (
	Spring Season = iota
	Summer
	Fall
	Winter
)

var seasonNames = [4]string{"spring", "summer", "fall", "winter"}

func (s Season) String() string {
	if int(s) < len(seasonNames) {
		return seasonNames[s]
	}
	return fmt.Sprintf("season(%d)", uint8(s))
}

// SeasonOfDay maps a 1-based day of the year onto a season.
func SeasonOfDay(day int) Season {
	switch {
	case day >= 80 && day < 172:
		return Spring
	case day >= 172 && day < 266:
		return Summer
	case day >= 266 && day < 356:
		return Fall
	default:
		return Winter
	}
}

// seasonal factors per category, indexed by Season.
var seasonalFactors = map[Category][4]float64{
	Textbook:   {1.5, 0.3, 2.0, 0.8},
	Children:   {1.0, 1.5, 1.2, 1.8},
	Romance:    {1.3, 1.2, 1.0, 0.8},
	Mystery:    {1.0, 1.1, 1.2, 1.1},
	Fantasy:    {1.0, 1.2, 1.1, 1.0},
	Science:    {1.0, 0.9, 1.1, 1.0},
	Technology: {1.1, 0.8, 1.2, 1.0},
	History:    {1.0, 1.0, 1.0, 1.0},
	Biography:  {1.0, 1.1, 1.0, 1.0},
	Reference:  {1.2, 0.7, 1.3, 1.0},
	NonFiction: {1.0, 1.0, 1.0, 1.0},
	Fiction:    {1.0, 1.2, 1.0, 1.1},
}

// SeasonalFactor scales demand for c in season s.
func SeasonalFactor(c Category, s Season) float64 {
	f, ok := seasonalFactors[c]
	if !ok || int(s) >= len(f) {
		return 1.0
	}
	return f[s]
}

// BaseEfficiency is how quickly a role gets through work, before rating.
func BaseEfficiency(r Role) float64 {
	switch r {
	case Cashier:
		return 0.8
	case SalesAssociate:
		return 0.7
	case Manager:
		return 0.9
	case InventoryClerk:
		return 0.6
	case CustomerServiceRep:
		return 0.75
	default:
		return 0.7
	}
}
