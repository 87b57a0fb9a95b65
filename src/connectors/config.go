package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BaseURL        string        `envconfig:"KIWOOM_BASE_URL" default:"https://mockapi.kiwoom.com"`
	SocketURL      string        `envconfig:"KIWOOM_SOCKET_URL" default:"wss://mockapi.kiwoom.com:10000/api/dostk/websocket"`
	AppKey         string        `envconfig:"KIWOOM_APP_KEY"`
	AppSecret      string        `envconfig:"KIWOOM_APP_SECRET"`
	AppKeyCR       string        `envconfig:"KIWOOM_APP_KEY_CR"`
	AppSecretCR    string        `envconfig:"KIWOOM_APP_SECRET_CR"`
	RequestTimeout time.Duration `envconfig:"KIWOOM_REQUEST_TIMEOUT" default:"10s"`
	RSIPeriod      int           `envconfig:"RSI_PERIOD" default:"14"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
