package controllers

import (
	"sync"

	"github.com/gofiber/fiber/v2/log"

	"github.com/creatorengine/creatorengine/app/repository"
	"github.com/creatorengine/creatorengine/internal/pkg/accounts"
	"github.com/creatorengine/creatorengine/internal/pkg/affiliate"
	"github.com/creatorengine/creatorengine/internal/pkg/database"
	"github.com/creatorengine/creatorengine/internal/pkg/dispatch"
	"github.com/creatorengine/creatorengine/internal/pkg/jobs"
	"github.com/creatorengine/creatorengine/internal/pkg/payments"
	"github.com/creatorengine/creatorengine/internal/pkg/quota"
	"github.com/creatorengine/creatorengine/internal/pkg/storage"
)

// Service singletons, built lazily on first use so tests can swap the global
// repository factory before any controller runs.
var (
	servicesOnce      sync.Once
	quotaLedger       *quota.Ledger
	jobRegistry       *jobs.Registry
	payReconciler     *payments.Reconciler
	affiliateEngine   *affiliate.Engine
	paymentClient     *payments.Client
	storageClient     *storage.Client
	accountTerminator *accounts.Terminator
)

func initServices() {
	servicesOnce.Do(func() {
		repos := repository.GetGlobalFactory().GetRepositories()
		quotaLedger = quota.NewLedger(database.GetDB())
		jobRegistry = jobs.NewRegistry(repos.Job, quotaLedger, dispatch.NewClientFromEnv())
		payReconciler = payments.NewReconciler(repos.User, repos.Payment, repos.Affiliate, quotaLedger)
		affiliateEngine = affiliate.NewEngine(repos.Affiliate)
		paymentClient = payments.NewClientFromEnv()

		if cfg, err := storage.LoadConfig(); err != nil {
			log.Warnf("[Bootstrap] storage config invalid, downloads disabled: %v", err)
		} else if cfg.IsEnabled() {
			client, err := storage.NewClient(cfg)
			if err != nil {
				log.Errorf("[Bootstrap] storage client init failed, downloads disabled: %v", err)
			} else {
				storageClient = client
			}
		}

		var objects accounts.ObjectPurger
		if storageClient != nil {
			objects = storageClient
		}
		accountTerminator = accounts.NewTerminator(repos.User, repos.Job, repos.Affiliate, objects)
	})
}

func getJobRegistry() *jobs.Registry {
	initServices()
	return jobRegistry
}

func getQuotaLedger() *quota.Ledger {
	initServices()
	return quotaLedger
}

func getReconciler() *payments.Reconciler {
	initServices()
	return payReconciler
}

func getAffiliateEngine() *affiliate.Engine {
	initServices()
	return affiliateEngine
}

func getPaymentClient() *payments.Client {
	initServices()
	return paymentClient
}

func getStorageClient() *storage.Client {
	initServices()
	return storageClient
}

func getAccountTerminator() *accounts.Terminator {
	initServices()
	return accountTerminator
}
