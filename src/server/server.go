package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"

	"autotrader/src/handler"
	"autotrader/src/repository"
	"autotrader/src/trader"
)

// Deps holds everything the HTTP surface needs. The coordinator and the
// repositories are built once in main and shared with the scan loop.
type Deps struct {
	Trader     *trader.Coordinator
	Watchlist  *repository.WatchlistRepository
	Conditions *repository.ConditionRepository
	Signals    *repository.SignalRepository
}

func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("healthcheck write failed")
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/trader", func(r chi.Router) {
			r.Post("/start", handler.StartTraderHandler(deps.Trader))
			r.Post("/stop", handler.StopTraderHandler(deps.Trader))
			r.Get("/status", handler.TraderStatusHandler(deps.Trader))
			r.Get("/cooldown", handler.GetCooldownHandler(deps.Trader))
			r.Put("/cooldown", handler.SetCooldownHandler(deps.Trader))
			r.Post("/cooldown", handler.SetCooldownHandler(deps.Trader))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/pending", handler.PendingOrdersHandler(deps.Trader))
			r.Get("/history", handler.OrderHistoryHandler(deps.Trader))
			r.Delete("/{orderID}", handler.CancelOrderHandler(deps.Trader))
		})

		r.Route("/watchlist", func(r chi.Router) {
			r.Get("/", handler.ListWatchlistHandler(deps.Watchlist))
			r.Post("/", handler.AddWatchlistHandler(deps.Watchlist))
			r.Delete("/{symbol}", handler.RemoveWatchlistHandler(deps.Watchlist))
		})

		r.Route("/conditions", func(r chi.Router) {
			r.Get("/", handler.ListConditionsHandler(deps.Conditions))
			r.Post("/", handler.AddConditionHandler(deps.Conditions))
			r.Delete("/{conditionID}", handler.RemoveConditionHandler(deps.Conditions))
			r.Patch("/{conditionID}/active", handler.SetConditionActiveHandler(deps.Conditions))
		})

		r.Get("/signals/recent", handler.RecentSignalsHandler(deps.Signals))
	})

	return r
}

func StartServer(port string, deps Deps) {
	r := NewRouter(deps)

	// Graceful server
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	if deps.Trader != nil && deps.Trader.Running() {
		deps.Trader.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
