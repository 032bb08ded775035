package main

import (
	"log"
	"os"

	toolgate "github.com/Desarso/toolgate"
	models "github.com/Desarso/toolgate/models"
	"github.com/Desarso/toolgate/models/gemini"
	"github.com/Desarso/toolgate/models/openai"
	"github.com/Desarso/toolgate/server"
	"github.com/Desarso/toolgate/stores"
	"github.com/Desarso/toolgate/tools"
)

func main() {
	logger := log.New(os.Stderr, "toolgate: ", log.LstdFlags)
	cfg := toolgate.LoadConfig()

	store, err := stores.NewStore(stores.NewStoreConfig(cfg.StoreType, cfg.StoreConnection))
	if err != nil {
		logger.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	registry := tools.NewRegistry()
	searchSvc := tools.NewSearchService(cfg.Search)
	searchDecl, searchFn := tools.SearchTool(searchSvc)
	newsDecl, newsFn := tools.NewsTool(searchSvc)
	crawlDecl, crawlFn := tools.CrawlerTool()
	for _, reg := range []struct {
		decl models.FunctionDeclaration
		fn   tools.Func
	}{
		{searchDecl, searchFn},
		{newsDecl, newsFn},
		{crawlDecl, crawlFn},
	} {
		if err := registry.Register(reg.decl, reg.fn); err != nil {
			logger.Fatalf("failed to register tool %s: %v", reg.decl.Name, err)
		}
	}

	var provider models.Completer
	switch cfg.Provider {
	case "gemini":
		provider = gemini.NewClient(cfg.Model)
	default:
		provider = openai.NewClient(cfg.Model, cfg.ProviderBase, cfg.ProviderKeyEnv)
	}

	pricing, err := toolgate.NewPricingResolver(store, logger)
	if err != nil {
		logger.Fatalf("failed to build pricing resolver: %v", err)
	}
	if err := pricing.StartRefresh(cfg.PricingSchedule); err != nil {
		logger.Fatalf("failed to start pricing refresh: %v", err)
	}
	defer pricing.StopRefresh()

	executor := tools.NewExecutor(logger)
	executor.PerCallTimeout = cfg.PerCallTimeout

	gw := &toolgate.Gateway{
		Provider:       provider,
		Registry:       registry,
		Executor:       executor,
		Strategy:       toolgate.NewKeywordStrategy(),
		Pricing:        pricing,
		Meter:          toolgate.NewUsageMeter(store, logger),
		Store:          store,
		Logger:         logger,
		MaxToolRounds:  cfg.MaxToolRounds,
		RequestTimeout: cfg.RequestTimeout,
		Provider_Name:  cfg.Provider,
	}

	srv := server.NewServer(gw, store, pricing, logger)
	logger.Printf("listening on %s (provider=%s model=%s store=%s)", cfg.ListenAddr, cfg.Provider, cfg.Model, cfg.StoreType)
	if err := srv.Run(cfg.ListenAddr); err != nil {
		logger.Fatalf("server stopped: %v", err)
	}
}
