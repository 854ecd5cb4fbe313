// Customer and staff records.
package economy

import (
	"fmt"
	"slices"
)

// CustomerType drives discount and budget.
type CustomerType uint8

const (
	Regular CustomerType = iota
	Premium
	Student
	Senior
)

// NumCustomerTypes is the number of customer types.
const NumCustomerTypes = 4

var customerTypeNames = [NumCustomerTypes]string{"Regular", "Premium", "Student", "Senior"}

func (t CustomerType) String() string {
	if int(t) < NumCustomerTypes {
		return customerTypeNames[t]
	}
	return fmt.Sprintf("customer_type(%d)", uint8(t))
}

func (t CustomerType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Customer is the loyalty record for a shopper.
type Customer struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Type            CustomerType `json:"type"`
	TotalPurchases  float64      `json:"total_purchases"`
	LoyaltyPoints   int          `json:"loyalty_points"`
	PurchaseHistory []string     `json:"purchase_history,omitempty"` // ISBNs, oldest first
}

// Role is an employee job title.
type Role uint8

const (
	Cashier Role = iota
	SalesAssociate
	Manager
	InventoryClerk
	CustomerServiceRep
)

// NumRoles is the number of employee roles.
const NumRoles = 5

var roleNames = [NumRoles]string{"Cashier", "Sales Associate", "Manager", "Inventory Clerk", "Customer Service"}

func (r Role) String() string {
	if int(r) < NumRoles {
		return roleNames[r]
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Capability is a kind of work an employee may take on.
type Capability string

const (
	ProcessTransaction    Capability = "process_transaction"
	HandleReturns         Capability = "handle_returns"
	CustomerService       Capability = "customer_service"
	CustomerAssistance    Capability = "customer_assistance"
	ProductRecommendation Capability = "product_recommendation"
	InventoryCheck        Capability = "inventory_check"
	InventoryManagement   Capability = "inventory_management"
	StaffSupervision      Capability = "staff_supervision"
	HandleComplaints      Capability = "handle_complaints"
	StockReplenishment    Capability = "stock_replenishment"
)

var roleCapabilities = [NumRoles][]Capability{
	Cashier:            {ProcessTransaction, HandleReturns, CustomerService},
	SalesAssociate:     {CustomerAssistance, ProductRecommendation, InventoryCheck, ProcessTransaction},
	Manager:            {ProcessTransaction, CustomerService, InventoryManagement, StaffSupervision, HandleComplaints},
	InventoryClerk:     {InventoryManagement, StockReplenishment, InventoryCheck},
	CustomerServiceRep: {CustomerAssistance, HandleComplaints, ProductRecommendation, HandleReturns},
}

// Capabilities returns the work a role may take on.
func Capabilities(r Role) []Capability {
	if int(r) >= NumRoles {
		return []Capability{CustomerService}
	}
	return slices.Clone(roleCapabilities[r])
}

// Employee is the staff record.
type Employee struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Role              Role    `json:"role"`
	PerformanceRating float64 `json:"performance_rating"` // 0–10
	SalesCount        int     `json:"sales_count"`
}

// CanProcessTransaction reports whether a role may run a till.
func CanProcessTransaction(r Role) bool {
	return r == Cashier || r == SalesAssociate || r == Manager
}
