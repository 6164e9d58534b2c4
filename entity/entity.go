// Package entity defines the six field-sales domain records and their
// adapters: the remote JSON mapping for the android_api endpoints plus the
// foreign-name enrichment resolved from the local store.
package entity

import (
	"context"
	"database/sql"

	"github.com/fieldsales/go-fieldsync/syncdb"
)

// Entity type names, used as ledger keys, queue entity types and log fields.
const (
	TypeCustomer = "customer"
	TypeSale     = "sale"
	TypePayment  = "payment"
	TypeVisit    = "visit"
	TypeDelivery = "delivery"
	TypeProduct  = "product"
)

// Store aliases, one local table per entity type.
type (
	CustomerStore = syncdb.Store[Customer, *Customer]
	SaleStore     = syncdb.Store[Sale, *Sale]
	PaymentStore  = syncdb.Store[Payment, *Payment]
	VisitStore    = syncdb.Store[Visit, *Visit]
	DeliveryStore = syncdb.Store[Delivery, *Delivery]
	ProductStore  = syncdb.Store[Product, *Product]
)

// NewCustomerStore opens the customers table.
func NewCustomerStore(db *sql.DB) (*CustomerStore, error) {
	return syncdb.NewStore[Customer, *Customer](db, "customers")
}

// NewSaleStore opens the sales table.
func NewSaleStore(db *sql.DB) (*SaleStore, error) {
	return syncdb.NewStore[Sale, *Sale](db, "sales")
}

// NewPaymentStore opens the payments table.
func NewPaymentStore(db *sql.DB) (*PaymentStore, error) {
	return syncdb.NewStore[Payment, *Payment](db, "payments")
}

// NewVisitStore opens the visits table.
func NewVisitStore(db *sql.DB) (*VisitStore, error) {
	return syncdb.NewStore[Visit, *Visit](db, "visits")
}

// NewDeliveryStore opens the deliveries table.
func NewDeliveryStore(db *sql.DB) (*DeliveryStore, error) {
	return syncdb.NewStore[Delivery, *Delivery](db, "deliveries")
}

// NewProductStore opens the products table.
func NewProductStore(db *sql.DB) (*ProductStore, error) {
	return syncdb.NewStore[Product, *Product](db, "products")
}

// CustomerLookup resolves a customer by server ID for name denormalization.
// A CustomerStore satisfies it.
type CustomerLookup interface {
	GetByID(ctx context.Context, id int64) (*Customer, error)
}

// lookupCustomerName resolves the denormalized customer name. A missing
// related customer yields "", never an error.
func lookupCustomerName(ctx context.Context, customers CustomerLookup, id int64) (string, error) {
	if customers == nil || id == 0 {
		return "", nil
	}
	customer, err := customers.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if customer == nil {
		return "", nil
	}
	return customer.Name, nil
}
