package main

import (
	"trading-console/src/apiclient"
	datasource "trading-console/src/data_source"
	"trading-console/src/interfaces"
	"trading-console/src/logger"
	"trading-console/src/models"
	"trading-console/src/network"
	"trading-console/src/querycache"
	"trading-console/src/storage"
	"trading-console/src/timeseries"
)

// -----------------------------------------------------------------------------

// setupStorage opens the configured candle repository. A nil repository means memory only.
func setupStorage(config *models.MConfig, appLogger *logger.Logger) (interfaces.ICandleRepository, error) {
	repo, err := storage.NewRepository(config, logger.NewLogger(config, "Storage"))
	if err != nil {
		appLogger.Critical("Failed to init storage: %v", err)
		return nil, err
	}
	if repo == nil {
		appLogger.Info("Storage disabled, candles are kept in memory only")
		return nil, nil
	}
	if err := repo.Initialize(); err != nil {
		appLogger.Critical("Failed to migrate storage: %v", err)
		return nil, err
	}
	return repo, nil
}

// -----------------------------------------------------------------------------

// setupStore builds the candle store, writing through to repo when present
func setupStore(config *models.MConfig, repo interfaces.ICandleRepository) *timeseries.Store {
	store := timeseries.NewStore(logger.NewLogger(config, "Store"))
	if repo != nil {
		store.WithRepository(repo)
	}
	return store
}

// -----------------------------------------------------------------------------

// setupNetwork initializes the network manager
func setupNetwork(config *models.MConfig) *network.AsyncNetworkManager {
	nm := network.NewAsyncNetworkManager(config, logger.NewLogger(config, "NetworkManager"))
	if nm.ProxyManager.HasProxies() {
		nm.Logger.Info("Routing backend traffic through %d proxies", len(config.Network.Proxies))
	}
	return nm
}

// -----------------------------------------------------------------------------

// setupSources builds the per-attempt source factory
func setupSources(config *models.MConfig, nm *network.AsyncNetworkManager) *datasource.SourceManager {
	return datasource.NewSourceManager(config, logger.NewLogger(config, "Sources"), nm)
}

// -----------------------------------------------------------------------------

// setupBackend builds the REST client and the query cache. Demo mode has no backend: both are nil.
func setupBackend(config *models.MConfig, appLogger *logger.Logger, nm *network.AsyncNetworkManager) (*apiclient.Client, *querycache.Cache) {
	if config.Stream.DemoMode {
		appLogger.Info("Demo mode: no bot backend, query cache disabled")
		return nil, nil
	}

	api := apiclient.NewClient(config, logger.NewLogger(config, "APIClient"), nm)
	cache := querycache.NewCache(config, logger.NewLogger(config, "QueryCache"))
	querycache.RegisterAPI(cache, api, config.Stream)
	appLogger.Info("Backend: %s (%d cached queries)", api, len(cache.Keys()))
	return api, cache
}
