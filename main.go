package main

import (
	"context"
	"os/signal"
	"syscall"

	realtime "github.com/carebridge/realtime/app"
)

func main() {
	ctx, _ := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)

	app := realtime.New(ctx, nil)
	app.Start()
}
