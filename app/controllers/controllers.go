package controllers

import (
	"sync"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/faxsnap/faxsnap/internal/pkg/database"
	"github.com/faxsnap/faxsnap/internal/pkg/docstorage"
	"github.com/faxsnap/faxsnap/internal/pkg/fax"
	"github.com/faxsnap/faxsnap/internal/pkg/ledger"
	"github.com/faxsnap/faxsnap/internal/pkg/payments"
	"github.com/faxsnap/faxsnap/internal/pkg/webhookinbox"
)

var (
	ledgerService    *ledger.Service
	faxService       *fax.Service
	paymentsService  *payments.Service
	webhookInbox     *webhookinbox.Inbox
	docStorageClient *docstorage.Client

	initControllersOnce sync.Once
)

// InitializeControllers wires the services every handler depends on. Must run
// after SetupDatabase.
func InitializeControllers() {
	initControllersOnce.Do(func() {
		db := database.GetDB()
		ledgerService = ledger.NewServiceFromDB(db)
		faxService = fax.NewServiceFromDB(db, fax.NewTelnyxClientFromEnv())
		paymentsService = payments.NewServiceFromDB(db, payments.NewStripeClientFromEnv())
		webhookInbox = webhookinbox.NewInboxFromDB(db)

		cfg, err := docstorage.LoadConfig()
		if err != nil {
			fiberlog.Errorf("[Controllers] document storage misconfigured: %v", err)
			return
		}
		if !cfg.IsEnabled() {
			fiberlog.Info("[Controllers] document storage disabled, only document_url submissions accepted")
			return
		}
		client, err := docstorage.NewClient(cfg)
		if err != nil {
			fiberlog.Errorf("[Controllers] document storage unavailable: %v", err)
			return
		}
		docStorageClient = client
	})
}
