package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"spe/internal/app"
	"spe/internal/config"
)

var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("SPE_CONFIG"), "path to the YAML config file")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, app.Options{Version: version})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	runErr := a.Run(ctx, os.Stdin, os.Stdout)
	if err := a.Close(); err != nil {
		a.Logger().Warn("shutdown", "error", err)
	}
	if runErr != nil {
		a.Logger().Error("exiting", "error", runErr)
		os.Exit(1)
	}
}
