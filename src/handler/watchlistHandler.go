package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autotrader/src/model"
)

type watchlistStore interface {
	Add(ctx context.Context, symbol, symbolName string) error
	Remove(ctx context.Context, symbol string) error
	List(ctx context.Context) ([]model.WatchlistItem, error)
}

type conditionStore interface {
	Add(ctx context.Context, condition *model.Condition) error
	Remove(ctx context.Context, id uint) error
	ListActive(ctx context.Context, symbol string) ([]model.Condition, error)
	SetActive(ctx context.Context, id uint, active bool) error
}

type signalHistory interface {
	Recent(ctx context.Context, limit int) ([]model.SignalRecord, error)
}

// ListWatchlistHandler returns every watched symbol.
func ListWatchlistHandler(store watchlistStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := store.List(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to list watchlist")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

type addWatchlistRequest struct {
	Symbol     string `json:"symbol"`
	SymbolName string `json:"symbol_name"`
}

// AddWatchlistHandler adds or reactivates a watched symbol.
func AddWatchlistHandler(store watchlistStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload addWatchlistRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if payload.Symbol == "" {
			http.Error(w, "symbol is required", http.StatusBadRequest)
			return
		}

		if err := store.Add(r.Context(), payload.Symbol, payload.SymbolName); err != nil {
			logger.WithError(err).Error("failed to add watchlist symbol")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"symbol": payload.Symbol})
	}
}

// RemoveWatchlistHandler removes a watched symbol.
func RemoveWatchlistHandler(store watchlistStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		symbol := chi.URLParam(r, "symbol")
		if symbol == "" {
			http.Error(w, "missing symbol", http.StatusBadRequest)
			return
		}

		if err := store.Remove(r.Context(), symbol); err != nil {
			if err == gorm.ErrRecordNotFound {
				http.Error(w, "symbol not found", http.StatusNotFound)
				return
			}
			logger.WithError(err).Error("failed to remove watchlist symbol")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"symbol": symbol, "status": "removed"})
	}
}

// ListConditionsHandler returns active conditions, optionally for one symbol.
func ListConditionsHandler(store conditionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conditions, err := store.ListActive(r.Context(), r.URL.Query().Get("symbol"))
		if err != nil {
			logger.WithError(err).Error("failed to list conditions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, conditions)
	}
}

type addConditionRequest struct {
	Symbol      string `json:"symbol"`
	Direction   string `json:"direction"`
	Category    string `json:"category"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

// AddConditionHandler stores a new trading condition.
func AddConditionHandler(store conditionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload addConditionRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if payload.Symbol == "" || payload.Value == "" {
			http.Error(w, "symbol and value are required", http.StatusBadRequest)
			return
		}
		if payload.Direction != model.OrderSideBuy && payload.Direction != model.OrderSideSell {
			http.Error(w, "direction must be buy or sell", http.StatusBadRequest)
			return
		}

		condition := &model.Condition{
			Symbol:      payload.Symbol,
			Direction:   payload.Direction,
			Category:    payload.Category,
			Value:       payload.Value,
			Description: payload.Description,
			Active:      true,
		}
		if err := store.Add(r.Context(), condition); err != nil {
			logger.WithError(err).Error("failed to add condition")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, condition)
	}
}

// RemoveConditionHandler deletes a condition by id.
func RemoveConditionHandler(store conditionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "conditionID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid condition id", http.StatusBadRequest)
			return
		}

		if err := store.Remove(r.Context(), uint(id)); err != nil {
			if err == gorm.ErrRecordNotFound {
				http.Error(w, "condition not found", http.StatusNotFound)
				return
			}
			logger.WithError(err).Error("failed to remove condition")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]uint64{"id": id})
	}
}

type setConditionActiveRequest struct {
	Active bool `json:"active"`
}

// SetConditionActiveHandler toggles a condition without deleting it.
func SetConditionActiveHandler(store conditionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "conditionID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid condition id", http.StatusBadRequest)
			return
		}

		var payload setConditionActiveRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if err := store.SetActive(r.Context(), uint(id), payload.Active); err != nil {
			if err == gorm.ErrRecordNotFound {
				http.Error(w, "condition not found", http.StatusNotFound)
				return
			}
			logger.WithError(err).Error("failed to update condition")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "active": payload.Active})
	}
}

// RecentSignalsHandler lists the latest gating decisions. Accepts ?limit=N.
func RecentSignalsHandler(store signalHistory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 10
		if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
			parsed, err := strconv.Atoi(limitParam)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		signals, err := store.Recent(r.Context(), limit)
		if err != nil {
			logger.WithError(err).Error("failed to list recent signals")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, signals)
	}
}
