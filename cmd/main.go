package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"autotrader/cmd/apiserver"
	"autotrader/cmd/trader"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "AutoTrader CMD"
	app.Usage = "The AutoTrader command line interface"

	app.Commands = []cli.Command{
		apiserverCMD,
		traderCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	apiserverCMD = cli.Command{
		Name:        "server",
		Usage:       "run API server",
		Action:      apiserverAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the trading API server`,
	}
	traderCMD = cli.Command{
		Name:        "trader",
		Usage:       "run headless trader",
		Action:      traderAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the scan loop without the HTTP surface`,
	}
)

func apiserverAction(_ *cli.Context) error {

	logrus.Info("Starting apiserver CMD")
	logrus.WithField("cmd", "apiserver")

	srv := &apiserver.APIServer{}
	err := srv.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func traderAction(_ *cli.Context) error {

	logrus.Info("Starting trader CMD")
	logrus.WithField("cmd", "trader")

	loop := &trader.Trader{}
	err := loop.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}
