package apiserver

import (
	"github.com/sirupsen/logrus"

	"autotrader/src/database"
	"autotrader/src/server"
)

type APIServer struct {
}

// Start brings up the full HTTP surface. Blocks until SIGINT or SIGTERM.
func (s *APIServer) Start() error {
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

	server.StartServer(config.Port, deps)
	return nil
}
