package trader

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ScanInterval       time.Duration `envconfig:"TRADER_SCAN_INTERVAL" default:"30s"`
	TestMode           bool          `envconfig:"TRADER_TEST_MODE" default:"true"`
	DefaultQuantity    int           `envconfig:"TRADER_DEFAULT_QUANTITY" default:"1"`
	OrderMaxAge        time.Duration `envconfig:"TRADER_ORDER_MAX_AGE" default:"24h"`
	RealtimeConditions bool          `envconfig:"TRADER_REALTIME_CONDITIONS" default:"false"`
	RealtimeSeqs       []string      `envconfig:"TRADER_REALTIME_CONDITION_SEQS"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
