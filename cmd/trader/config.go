package trader

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Quantity int `envconfig:"TRADE_QUANTITY" default:"0"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
