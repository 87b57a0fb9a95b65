package server

import (
	"fmt"

	"autotrader/src/connectors"
	"autotrader/src/orders"
	"autotrader/src/repository"
	"autotrader/src/risk"
	"autotrader/src/security"
	"autotrader/src/trader"
)

// DefaultDeps wires the production object graph: broker client with resolved
// credentials, risk gate, order manager, coordinator and the gorm-backed
// repositories. InitMainDB must have run first.
func DefaultDeps() (Deps, error) {
	kiwoomCfg := connectors.GetConfig()

	appKey, err := security.ResolveCredential(kiwoomCfg.AppKey, kiwoomCfg.AppKeyCR)
	if err != nil {
		return Deps{}, fmt.Errorf("resolving broker app key: %w", err)
	}
	appSecret, err := security.ResolveCredential(kiwoomCfg.AppSecret, kiwoomCfg.AppSecretCR)
	if err != nil {
		return Deps{}, fmt.Errorf("resolving broker app secret: %w", err)
	}

	client := connectors.NewClient(appKey, appSecret, kiwoomCfg.BaseURL, kiwoomCfg.RequestTimeout)

	watchlist := repository.NewWatchlistRepository()
	conditions := repository.NewConditionRepository()
	signals := repository.NewSignalRepository()

	gate := risk.NewGate(risk.GetConfig())
	manager := orders.NewManager(client, client)

	traderCfg := trader.GetConfig()
	coordinator := trader.NewCoordinator(traderCfg, gate, manager, watchlist, conditions, signals, client)
	if traderCfg.RealtimeConditions {
		coordinator = coordinator.WithRealtime(connectors.NewConditionSearchClient(kiwoomCfg.SocketURL), client)
	}

	return Deps{
		Trader:     coordinator,
		Watchlist:  watchlist,
		Conditions: conditions,
		Signals:    signals,
	}, nil
}
