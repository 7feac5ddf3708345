package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// Initialize context that cancelled on SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Getenv, os.Getwd, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}

// run loads config (defaults < .env < environment < flags) and executes the command
func run(
	ctx context.Context,
	getenv func(string) string,
	getwd func() (string, error),
	args []string,
	stdin io.Reader,
	stdout io.Writer,
) error {
	cfg := NewConfig()

	if err := cfg.LoadDotEnv(getwd); err != nil {
		return fmt.Errorf("error while loading .env file: %w", err)
	}
	if err := cfg.LoadEnv(getenv); err != nil {
		return err
	}

	return newCLI(cfg).execute(ctx, args, stdin, stdout)
}
