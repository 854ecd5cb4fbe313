// Package economy provides the store catalog, the customer and staff
// records, and the pricing and loyalty rules the agents consult.
package economy

import (
	"errors"
	"fmt"
	"math"

	"github.com/talgya/shopfloor/internal/entropy"
)

// Category is a book genre.
type Category uint8

const (
	Fiction Category = iota
	NonFiction
	Science
	Technology
	History
	Biography
	Children
	Reference
	Textbook
	Mystery
	Romance
	Fantasy
)

// NumCategories is the number of book categories.
const NumCategories = 12

var categoryNames = [NumCategories]string{
	"Fiction", "Non-Fiction", "Science", "Technology", "History", "Biography",
	"Children", "Reference", "Textbook", "Mystery", "Romance", "Fantasy",
}

func (c Category) String() string {
	if int(c) < NumCategories {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Book is a catalog record. Only the owning book agent mutates Price and Stock.
type Book struct {
	ISBN      string   `json:"isbn"`
	Title     string   `json:"title"`
	Author    string   `json:"author"`
	Category  Category `json:"category"`
	Price     float64  `json:"price"`
	Stock     int      `json:"stock"`
	Publisher string   `json:"publisher"`
	Year      int      `json:"year"`
}

var (
	ErrDuplicateISBN = errors.New("duplicate isbn")
	ErrInvalidBook   = errors.New("invalid book")
)

// Catalog holds every book record in insertion order. It is read-shared by
// all agents; reads return copies.
type Catalog struct {
	books map[string]*Book
	order []string
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{books: make(map[string]*Book)}
}

// Add inserts a record and returns the owner handle for it.
func (c *Catalog) Add(b Book) (*Book, error) {
	if b.ISBN == "" {
		return nil, fmt.Errorf("%w: empty isbn", ErrInvalidBook)
	}
	if b.Price < 0 {
		return nil, fmt.Errorf("%w: %s has negative price", ErrInvalidBook, b.ISBN)
	}
	if b.Stock < 0 {
		return nil, fmt.Errorf("%w: %s has negative stock", ErrInvalidBook, b.ISBN)
	}
	if _, ok := c.books[b.ISBN]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateISBN, b.ISBN)
	}
	rec := b
	c.books[b.ISBN] = &rec
	c.order = append(c.order, b.ISBN)
	return &rec, nil
}

// Get returns a copy of the record for isbn.
func (c *Catalog) Get(isbn string) (Book, bool) {
	b, ok := c.books[isbn]
	if !ok {
		return Book{}, false
	}
	return *b, true
}

// Record returns the owner handle for isbn. Only the agent that owns the
// title may write through it.
func (c *Catalog) Record(isbn string) (*Book, bool) {
	b, ok := c.books[isbn]
	return b, ok
}

// Len returns the number of records.
func (c *Catalog) Len() int {
	return len(c.order)
}

// ISBNs returns every isbn in insertion order.
func (c *Catalog) ISBNs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Available reports whether isbn has at least qty copies in stock.
func (c *Catalog) Available(isbn string, qty int) bool {
	b, ok := c.books[isbn]
	return ok && b.Stock >= qty
}

// InStock returns copies of every record with stock, in insertion order.
func (c *Catalog) InStock() []Book {
	return c.filter(func(b *Book) bool { return b.Stock > 0 })
}

// LowStock returns copies of every record with stock below threshold.
func (c *Catalog) LowStock(threshold int) []Book {
	return c.filter(func(b *Book) bool { return b.Stock < threshold })
}

// InCategories returns in-stock records whose category is in cats.
func (c *Catalog) InCategories(cats []Category) []Book {
	return c.filter(func(b *Book) bool {
		if b.Stock <= 0 {
			return false
		}
		for _, cat := range cats {
			if b.Category == cat {
				return true
			}
		}
		return false
	})
}

func (c *Catalog) filter(keep func(*Book) bool) []Book {
	var out []Book
	for _, isbn := range c.order {
		if b := c.books[isbn]; keep(b) {
			out = append(out, *b)
		}
	}
	return out
}

var sampleBooks = []Book{
	{ISBN: "978-0-123456-78-9", Title: "The Great Adventure", Author: "John Smith", Category: Fiction, Price: 15.99, Stock: 25},
	{ISBN: "978-0-234567-89-0", Title: "Python Programming", Author: "Jane Doe", Category: Technology, Price: 49.99, Stock: 15},
	{ISBN: "978-0-345678-90-1", Title: "World History", Author: "Bob Johnson", Category: History, Price: 29.99, Stock: 20},
	{ISBN: "978-0-456789-01-2", Title: "Mystery of the Castle", Author: "Alice Brown", Category: Mystery, Price: 12.99, Stock: 30},
	{ISBN: "978-0-567890-12-3", Title: "Children's Tales", Author: "Carol White", Category: Children, Price: 8.99, Stock: 40},
	{ISBN: "978-0-678901-23-4", Title: "Science Explained", Author: "David Green", Category: Science, Price: 39.99, Stock: 12},
	{ISBN: "978-0-789012-34-5", Title: "Love in Spring", Author: "Emma Davis", Category: Romance, Price: 11.99, Stock: 35},
	{ISBN: "978-0-890123-45-6", Title: "Dragon Quest", Author: "Frank Miller", Category: Fantasy, Price: 16.99, Stock: 22},
	{ISBN: "978-0-901234-56-7", Title: "Biography of Leaders", Author: "Grace Wilson", Category: Biography, Price: 24.99, Stock: 18},
	{ISBN: "978-0-012345-67-8", Title: "Math Textbook", Author: "Henry Taylor", Category: Textbook, Price: 89.99, Stock: 8},
}

var catalogAuthors = []string{
	"Michael Johnson", "Sarah Connor", "Tom Anderson", "Lisa Park",
	"James Wilson", "Maria Garcia", "Robert Lee", "Jennifer Kim",
}

// GenerateCatalog builds a catalog of n books: the fixed sample titles
// first, then random titles drawn from rng.
func GenerateCatalog(rng *entropy.Source, n int) (*Catalog, error) {
	c := NewCatalog()
	for i := 0; i < len(sampleBooks) && i < n; i++ {
		b := sampleBooks[i]
		b.Publisher = b.Author + " Publications"
		b.Year = rng.IntRange(2018, 2024)
		if _, err := c.Add(b); err != nil {
			return nil, fmt.Errorf("add sample book: %w", err)
		}
	}

	for i := c.Len(); i < n; i++ {
		cat := Category(rng.Intn(NumCategories))
		author := catalogAuthors[rng.Intn(len(catalogAuthors))]
		isbn := randomISBN(rng)
		for {
			if _, taken := c.books[isbn]; !taken {
				break
			}
			isbn = randomISBN(rng)
		}
		b := Book{
			ISBN:      isbn,
			Title:     fmt.Sprintf("%s Book %d", cat, i+1),
			Author:    author,
			Category:  cat,
			Price:     math.Round(rng.Uniform(9.99, 79.99)*100) / 100,
			Stock:     rng.IntRange(5, 50),
			Publisher: author + " Publications",
			Year:      rng.IntRange(2015, 2024),
		}
		if _, err := c.Add(b); err != nil {
			return nil, fmt.Errorf("add generated book: %w", err)
		}
	}
	return c, nil
}

func randomISBN(rng *entropy.Source) string {
	return fmt.Sprintf("978-%d", rng.IntRange(1000000000, 9999999999))
}
