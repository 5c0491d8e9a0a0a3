package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jhoicas/mercado-local/internal/cli"
)

func main() {
	// Ctrl+C cancela el intento de inicio de sesión en curso.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, cli.Message(err))
		stop()
		os.Exit(1)
	}
}
