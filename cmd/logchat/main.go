package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"logchat/internal/app"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./logchat.yaml", "path to config (json or yaml)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	err = a.Run(ctx)
	_ = a.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal run:", err)
		os.Exit(1)
	}
}
