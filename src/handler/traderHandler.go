package handler

import (
	"context"
	"encoding/json"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"autotrader/src/model"
)

type traderControl interface {
	Start(quantity int) bool
	Stop() bool
	Status(ctx context.Context) model.TraderStatus
	SetCooldown(minutes int)
	CooldownMinutes() int
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}

type startTraderRequest struct {
	Quantity int `json:"quantity"`
}

// StartTraderHandler starts the scan loop. Starting an already running trader
// answers 409.
func StartTraderHandler(trader traderControl) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload startTraderRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				http.Error(w, "invalid request body", http.StatusBadRequest)
				return
			}
		}
		if payload.Quantity < 0 {
			http.Error(w, "quantity must not be negative", http.StatusBadRequest)
			return
		}

		if !trader.Start(payload.Quantity) {
			http.Error(w, "trader already running", http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"running":  true,
			"quantity": payload.Quantity,
		})
	}
}

// StopTraderHandler stops the scan loop. Stopping a stopped trader answers 409.
func StopTraderHandler(trader traderControl) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !trader.Stop() {
			http.Error(w, "trader not running", http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"running": false})
	}
}

// TraderStatusHandler reports the coordinator's externally visible state.
func TraderStatusHandler(trader traderControl) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, trader.Status(r.Context()))
	}
}

type cooldownRequest struct {
	Minutes int `json:"minutes"`
}

// SetCooldownHandler updates the per-symbol order cooldown.
func SetCooldownHandler(trader traderControl) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload cooldownRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if payload.Minutes < 0 {
			http.Error(w, "minutes must not be negative", http.StatusBadRequest)
			return
		}

		trader.SetCooldown(payload.Minutes)
		writeJSON(w, http.StatusOK, map[string]int{"cooldown_minutes": trader.CooldownMinutes()})
	}
}

// GetCooldownHandler reports the active cooldown.
func GetCooldownHandler(trader traderControl) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"cooldown_minutes": trader.CooldownMinutes()})
	}
}
