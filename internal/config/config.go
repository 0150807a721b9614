package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// Config carries the environment-driven settings of the relay.
// The two bind addresses come from positional arguments, not the
// environment (see ParseArgs).
type Config struct {
	LogLevel        string
	LogFormat       string
	ChannelCapacity int
	WriteTimeout    time.Duration
	MaxPublishers   int
	MaxSubscribers  int
}

// Addresses holds the two bind addresses given on the command line.
type Addresses struct {
	Input  string
	Output string
}

// ParseArgs validates the positional arguments. args is os.Args, i.e.
// args[0] is the program name. Exactly two addresses are required.
func ParseArgs(args []string) (Addresses, error) {
	if len(args) != 3 {
		return Addresses{}, fmt.Errorf("expected 2 arguments, got %d", len(args)-1)
	}

	addrs := Addresses{Input: args[1], Output: args[2]}

	if _, err := net.ResolveTCPAddr("tcp", addrs.Input); err != nil {
		return Addresses{}, fmt.Errorf("invalid input address %q: %w", addrs.Input, err)
	}
	if _, err := net.ResolveTCPAddr("tcp", addrs.Output); err != nil {
		return Addresses{}, fmt.Errorf("invalid output address %q: %w", addrs.Output, err)
	}

	return addrs, nil
}

func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	var err error
	if cfg.ChannelCapacity, err = getEnvInt("CHANNEL_CAPACITY", 1024); err != nil {
		return nil, err
	}
	if cfg.ChannelCapacity <= 0 {
		return nil, fmt.Errorf("CHANNEL_CAPACITY must be positive, got %d", cfg.ChannelCapacity)
	}

	if cfg.WriteTimeout, err = getEnvDuration("WRITE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.WriteTimeout <= 0 {
		return nil, fmt.Errorf("WRITE_TIMEOUT must be positive, got %v", cfg.WriteTimeout)
	}

	// 0 means unlimited for both caps
	if cfg.MaxPublishers, err = getEnvInt("MAX_PUBLISHERS", 0); err != nil {
		return nil, err
	}
	if cfg.MaxPublishers < 0 {
		return nil, fmt.Errorf("MAX_PUBLISHERS must not be negative, got %d", cfg.MaxPublishers)
	}
	if cfg.MaxSubscribers, err = getEnvInt("MAX_SUBSCRIBERS", 0); err != nil {
		return nil, err
	}
	if cfg.MaxSubscribers < 0 {
		return nil, fmt.Errorf("MAX_SUBSCRIBERS must not be negative, got %d", cfg.MaxSubscribers)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 5s: %w", key, err)
	}
	return d, nil
}
