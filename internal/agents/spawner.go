// Store population spawning: customer loyalty records and staff records
// with names, types, roles, and starting ratings.
package agents

import (
	"fmt"

	"github.com/talgya/shopfloor/internal/economy"
	"github.com/talgya/shopfloor/internal/entropy"
)

// Spawner creates customer and staff records for the simulation.
type Spawner struct {
	rng          *entropy.Source
	nextCustomer int
	nextEmployee int
}

// NewSpawner creates a spawner drawing from rng.
func NewSpawner(rng *entropy.Source) *Spawner {
	return &Spawner{rng: rng, nextCustomer: 1, nextEmployee: 1}
}

// Customer creates a loyalty record. Walk-ins who have never shopped here
// start with an empty history; the opening population has some spend and
// points behind it.
func (s *Spawner) Customer(newcomer bool) economy.Customer {
	id := s.nextCustomer
	s.nextCustomer++

	rec := economy.Customer{
		ID:   fmt.Sprintf("customer_%04d", id),
		Name: s.name(),
		Type: economy.CustomerType(s.rng.Intn(economy.NumCustomerTypes)),
	}
	if !newcomer {
		rec.TotalPurchases = s.rng.Uniform(0, 500)
		rec.LoyaltyPoints = s.rng.IntRange(0, 100)
	}
	return rec
}

// Employee creates a staff record. Roles rotate so every role is staffed
// once there are at least as many employees as roles.
func (s *Spawner) Employee() economy.Employee {
	i := s.nextEmployee - 1
	s.nextEmployee++

	return economy.Employee{
		ID:                fmt.Sprintf("employee_%03d", i+1),
		Name:              fmt.Sprintf("%s %d", staffNames[i%len(staffNames)], i+1),
		Role:              economy.Role(i % economy.NumRoles),
		PerformanceRating: s.rng.Uniform(5, 9),
	}
}

func (s *Spawner) name() string {
	first := firstNames[s.rng.Intn(len(firstNames))]
	last := lastNames[s.rng.Intn(len(lastNames))]
	return first + " " + last
}

// Name pools for procedural generation.
var staffNames = []string{
	"Alice", "Bob", "Carol", "David", "Emma", "Frank", "Grace", "Henry",
}

var firstNames = []string{
	"Astrid", "Brenna", "Calla", "Daria", "Elara", "Freya", "Greta",
	"Helene", "Iris", "Juno", "Kira", "Lena", "Mira", "Nessa",
	"Aldric", "Bram", "Cedric", "Doran", "Erik", "Finn", "Gareth",
	"Halvard", "Ivan", "Jasper", "Kael", "Leif", "Magnus", "Nils",
}

var lastNames = []string{
	"Voss", "Ashford", "Dunmore", "Millward", "Copperfield", "Silverdale",
	"Brightwater", "Windholm", "Goldhaven", "Nightingale", "Holloway",
	"Farrow", "Wyatt", "Thatcher", "Caldwell", "Harper", "Mercer", "Ward",
}
