package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kahva/goferry/cli"
	"github.com/kahva/goferry/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	if err := cli.New(cfg).Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
