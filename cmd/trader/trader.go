package trader

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"autotrader/src/database"
	"autotrader/src/server"
)

type Trader struct {
}

// Start runs the scan loop headless, without the HTTP surface. Blocks until
// SIGINT or SIGTERM, then stops the loop cleanly.
func (t *Trader) Start() error {
	config := GetConfig()

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
		return err
	}

	deps, err := server.DefaultDeps()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to wire dependencies")
		return err
	}

	if !deps.Trader.Start(config.Quantity) {
		logrus.Error("Failed to start trader loop")
		return nil
	}
	logrus.WithField("quantity", config.Quantity).Info("Trader loop started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logrus.Info("Stopping trader loop...")
	deps.Trader.Stop()
	return nil
}
