package main

import (
	"context"
	"os"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/dataset"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/queue"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/rubric"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/store"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/workflow"
	"github.com/marcuswonder/marketoffer-services-sub000/pkg/companieshouse"
	"github.com/marcuswonder/marketoffer-services-sub000/pkg/landregistry"
	"github.com/marcuswonder/marketoffer-services-sub000/pkg/openregister"
	sfpkg "github.com/marcuswonder/marketoffer-services-sub000/pkg/salesforce"
	"github.com/marcuswonder/marketoffer-services-sub000/pkg/verifier"
)

// env bundles the wired store and orchestrator for the worker, serve, and
// resolve commands.
type env struct {
	store store.Store
	enq   *queue.Enqueuer
	orch  *workflow.Orchestrator
}

func (e *env) Close() {
	_ = e.store.Close()
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "resolutions.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv wires the store, the API clients, and the orchestrator.
func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	registry := companieshouse.NewClient(cfg.CompaniesHouse.Key,
		companieshouse.WithBaseURL(cfg.CompaniesHouse.BaseURL),
		companieshouse.WithRateLimit(cfg.CompaniesHouse.RateLimit))
	register := openregister.NewClient(cfg.OpenRegister.Key, cfg.OpenRegister.BaseURL,
		openregister.WithRateLimit(cfg.OpenRegister.RateLimit))
	land := landregistry.NewClient(cfg.LandRegistry.BaseURL)

	// Verification is optional: without a key the pipeline skips the
	// confirmation wave and review-band candidates go straight to
	// needs_confirmation.
	var verify verifier.Client
	if cfg.Anthropic.Key != "" {
		verify = verifier.NewClient(cfg.Anthropic.Key, verifier.WithModel(cfg.Anthropic.Model))
	}

	rubricCfg, err := rubric.LoadFile(cfg.Rubric.File)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	enq := queue.NewEnqueuer(st)
	orch := workflow.New(st, enq, dataset.NewCache(st), registry, land, register, verify, rubricCfg, cfg.Workflow)

	return &env{store: st, enq: enq, orch: orch}, nil
}

func initSalesforce() (sfpkg.Client, error) {
	if cfg.Export.Salesforce.ClientID == "" {
		return nil, eris.New("salesforce client ID is required (MARKETOFFER_EXPORT_SALESFORCE_CLIENT_ID)")
	}

	pemData, err := os.ReadFile(cfg.Export.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.Export.Salesforce.LoginURL,
		Username:       cfg.Export.Salesforce.Username,
		ConsumerKey:    cfg.Export.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf), nil
}
