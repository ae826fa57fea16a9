package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/authconnector/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cli.Run(ctx, os.Args[1:], nil, cli.IO{
		In:   os.Stdin,
		Out:  os.Stdout,
		Err:  os.Stderr,
		InFd: int(os.Stdin.Fd()),
	})
	if err != nil {
		stop()
		log.Fatalf("%v", err)
	}
}
