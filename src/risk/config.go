package risk

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	MaxDailyOrdersLive  int           `envconfig:"RISK_MAX_DAILY_ORDERS_LIVE" default:"10"`
	MaxDailyOrdersTest  int           `envconfig:"RISK_MAX_DAILY_ORDERS_TEST" default:"50"`
	OrderCooldown       time.Duration `envconfig:"RISK_ORDER_COOLDOWN" default:"60s"`
	PositionSizePercent float64       `envconfig:"RISK_POSITION_SIZE_PERCENT" default:"10"`
	MaxPositionValue    float64       `envconfig:"RISK_MAX_POSITION_VALUE" default:"1000000"`
	StopLossPercent     float64       `envconfig:"RISK_STOP_LOSS_PERCENT" default:"2.0"`
	TakeProfitPercent   float64       `envconfig:"RISK_TAKE_PROFIT_PERCENT" default:"5.0"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
