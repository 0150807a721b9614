package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/streamfork/relay/internal/channel"
	"github.com/streamfork/relay/internal/config"
	"github.com/streamfork/relay/internal/logging"
	"github.com/streamfork/relay/internal/relay"
	"github.com/streamfork/relay/internal/transport"
	"github.com/streamfork/relay/internal/version"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <input_address> <output_address>\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Example: %s 0.0.0.0:10001 0.0.0.0:11001\n", os.Args[0])
}

func main() {
	addrs, err := config.ParseArgs(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)

	info := version.Get()
	slog.Info("Relay starting",
		"version", info.Version,
		"commit", info.Commit,
		"go_version", info.GoVersion,
		"input", addrs.Input,
		"output", addrs.Output,
		"channel_capacity", cfg.ChannelCapacity,
	)

	clock := clockwork.NewRealClock()
	ch := channel.New(cfg.ChannelCapacity)

	// Bind both endpoints before serving anything: either failure is
	// fatal, there is no partial startup.
	inputLn, err := transport.Listen(addrs.Input,
		transport.WithClock(clock),
		transport.WithWriteTimeout(cfg.WriteTimeout),
	)
	if err != nil {
		slog.Error("Failed to bind input listener", "addr", addrs.Input, "error", err)
		os.Exit(1)
	}

	outputLn, err := transport.Listen(addrs.Output,
		transport.WithClock(clock),
		transport.WithWriteTimeout(cfg.WriteTimeout),
	)
	if err != nil {
		slog.Error("Failed to bind output listener", "addr", addrs.Output, "error", err)
		os.Exit(1)
	}

	r := relay.New(ch, clock, cfg.MaxPublishers, cfg.MaxSubscribers)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.ServePublishers(inputLn)
	}()
	go func() {
		defer wg.Done()
		r.ServeSubscribers(outputLn)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	slog.Info("Shutdown signal received, cleaning up...")

	_ = inputLn.Close()
	_ = outputLn.Close()
	ch.Close()
	wg.Wait()

	slog.Info("Relay stopped")
}
