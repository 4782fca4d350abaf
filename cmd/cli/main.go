package main

import (
	"context"
	"log"
	"os"

	"github.com/webissues/webissues-go/internal/buildinfo"
	"github.com/webissues/webissues-go/internal/cli"
	"github.com/webissues/webissues-go/internal/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()
	if cfg.ServerURL == "" {
		log.Fatal("server URL is required: pass -u or set server_url in the config file")
	}

	app, err := cli.NewApp(cfg)
	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)

}
