package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fieldsales/go-fieldsync/entity"
	"github.com/fieldsales/go-fieldsync/odooapi"
	"github.com/fieldsales/go-fieldsync/syncdb"
	"github.com/fieldsales/go-fieldsync/syncer"
)

// entitySyncer is the slice of the engine the CLI drives.
type entitySyncer interface {
	EntityName() string
	Sync(ctx context.Context) error
	FullSync(ctx context.Context) error
}

// app holds the wired sync stack for one local database.
type app struct {
	db       *sql.DB
	settings *syncdb.Settings
	queue    *syncer.Queue
	syncers  map[string]entitySyncer
	order    []string
	logger   *slog.Logger
}

// newApp opens the local database and wires every entity's store, engine and
// creator against the configured backend.
func newApp(ctx context.Context, dbPath string, logger *slog.Logger) (*app, error) {
	db, err := syncdb.Open(dbPath)
	if err != nil {
		return nil, err
	}

	settings := syncdb.NewSettings(db)
	baseURL, err := settings.BaseURL(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	if baseURL == "" {
		baseURL = os.Getenv("FIELDSYNC_BASE_URL")
	}
	if key := os.Getenv("FIELDSYNC_API_KEY"); key != "" {
		if err := settings.SetAPIKey(ctx, key); err != nil {
			db.Close()
			return nil, err
		}
	}
	client := odooapi.NewClient(baseURL)

	customers, err := entity.NewCustomerStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	sales, err := entity.NewSaleStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	payments, err := entity.NewPaymentStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	visits, err := entity.NewVisitStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	deliveries, err := entity.NewDeliveryStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	products, err := entity.NewProductStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	queue := syncer.NewQueue(syncdb.NewQueueStore(db), client, settings, nil, logger)

	customerAdapter := entity.CustomerAdapter{}
	a := &app{
		db:       db,
		settings: settings,
		queue:    queue,
		syncers:  make(map[string]entitySyncer),
		order: []string{
			entity.TypeCustomer, entity.TypeProduct, entity.TypeSale,
			entity.TypePayment, entity.TypeVisit, entity.TypeDelivery,
		},
		logger: logger,
	}
	a.add(syncer.NewEngine(customers, client, settings, customerAdapter, logger))
	a.add(syncer.NewEngine(sales, client, settings, entity.SaleAdapter{Customers: customers}, logger))
	a.add(syncer.NewEngine(payments, client, settings, entity.PaymentAdapter{Customers: customers}, logger))
	a.add(syncer.NewEngine(visits, client, settings, entity.VisitAdapter{Customers: customers}, logger))
	a.add(syncer.NewEngine(deliveries, client, settings, entity.DeliveryAdapter{Customers: customers}, logger))
	a.add(syncer.NewEngine(products, client, settings, entity.ProductAdapter{}, logger))

	// Creators register their queue replay routes as a side effect, so the
	// queue can promote replayed records even when the CLI session only runs
	// `queue process`.
	syncer.NewCreator(customers, client, settings, customerAdapter, queue, logger)
	syncer.NewCreator(sales, client, settings, entity.SaleAdapter{Customers: customers}, queue, logger)
	syncer.NewCreator(payments, client, settings, entity.PaymentAdapter{Customers: customers}, queue, logger)
	syncer.NewCreator(visits, client, settings, entity.VisitAdapter{Customers: customers}, queue, logger)

	return a, nil
}

func (a *app) add(s entitySyncer) {
	a.syncers[s.EntityName()] = s
}

func (a *app) syncer(name string) (entitySyncer, error) {
	s, ok := a.syncers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown entity %q (expected one of %s)",
			name, strings.Join(a.order, ", "))
	}
	return s, nil
}

// dashboardSyncers returns the engines in display order for a concurrent
// refresh of everything.
func (a *app) dashboardSyncers() []syncer.Syncer {
	out := make([]syncer.Syncer, 0, len(a.order))
	for _, name := range a.order {
		out = append(out, a.syncers[name])
	}
	return out
}

func (a *app) close() error {
	return a.db.Close()
}
