package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kinfolk-ai/kinfolk/internal/config"
	"github.com/kinfolk-ai/kinfolk/internal/server"
	"github.com/kinfolk-ai/kinfolk/internal/util"
	"github.com/kinfolk-ai/kinfolk/pkg/logger"
	"github.com/kinfolk-ai/kinfolk/pkg/logger/console"
)

func main() {
	configFile := flag.String("config", "", "path to kinfolk.yaml")
	flag.Parse()

	util.LoadEnv()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: cfg.Debug,
		JSON:  cfg.LogJSON,
	})
	logger.Init(consoleLogger)

	server.Init(cfg)
}
