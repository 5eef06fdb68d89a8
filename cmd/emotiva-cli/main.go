// Command emotiva-cli is an interactive console for networked Emotiva
// A/V receivers.
//
// It discovers a receiver, connects, and exposes commands, property
// polling and subscriptions through a line-based shell.
//
// Usage:
//
//	emotiva-cli [flags]
//
// Flags:
//
//	-host string          Receiver hostname or IP (required unless -browse)
//	-config string        YAML configuration file path
//	-browse               Browse the local network for receivers via mDNS
//	-protocol-log string  Write protocol events to a CBOR log file
//	-log-level string     Console log level: debug, info, warn, error (default "warn")
//
// Examples:
//
//	# Connect to a receiver by address
//	emotiva-cli -host 192.168.1.50
//
//	# Connect with settings from a config file, capturing protocol logs
//	emotiva-cli -config xmc2.yaml -protocol-log session.elog
//
//	# Find receivers on the local network
//	emotiva-cli -browse
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emotiva-protocol/emotiva-go/cmd/emotiva-cli/interactive"
	"github.com/emotiva-protocol/emotiva-go/pkg/discovery"
	"github.com/emotiva-protocol/emotiva-go/pkg/emotiva"
	"github.com/emotiva-protocol/emotiva-go/pkg/log"
)

func main() {
	host := flag.String("host", "", "Receiver hostname or IP")
	configFile := flag.String("config", "", "YAML configuration file path")
	browse := flag.Bool("browse", false, "Browse the local network for receivers via mDNS")
	protocolLog := flag.String("protocol-log", "", "Write protocol events to a CBOR log file")
	logLevel := flag.String("log-level", "warn", "Console log level: debug, info, warn, error")
	flag.Parse()

	if *browse {
		runBrowse()
		return
	}

	config, err := buildConfig(*host, *configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	logger, closeLogger, err := buildLogger(*logLevel, *protocolLog)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	defer closeLogger()

	client := emotiva.NewClient(config, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	shell, err := interactive.New(client, config.Host)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	shell.Run(ctx, cancel)

	disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer disconnectCancel()
	_ = client.Disconnect(disconnectCtx)
}

func buildConfig(host, configFile string) (emotiva.Config, error) {
	if configFile != "" {
		config, err := emotiva.LoadConfig(configFile)
		if err != nil {
			return emotiva.Config{}, err
		}
		if host != "" {
			config.Host = host
		}
		return config, nil
	}

	if host == "" {
		return emotiva.Config{}, fmt.Errorf("either -host or -config is required")
	}
	return emotiva.DefaultConfig(host), nil
}

func buildLogger(level, protocolLog string) (log.Logger, func(), error) {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("unknown log level %q", level)
	}

	console := log.NewSlogAdapter(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slogLevel,
	})))

	if protocolLog == "" {
		return console, func() {}, nil
	}

	file, err := log.NewFileLogger(protocolLog)
	if err != nil {
		return nil, nil, fmt.Errorf("open protocol log: %w", err)
	}
	return log.NewMultiLogger(console, file), func() { _ = file.Close() }, nil
}

func runBrowse() {
	fmt.Println("Browsing for receivers (10s, Ctrl-C to stop)...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	go func() {
		<-sigCh
		cancel()
	}()

	receivers, err := discovery.Browse(ctx, discovery.BrowserConfig{})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	found := 0
	for r := range receivers {
		found++
		fmt.Printf("  %s", r.InstanceName)
		if r.Model != "" {
			fmt.Printf(" (%s)", r.Model)
		}
		fmt.Printf(" at %v\n", r.Addresses)
	}

	if found == 0 {
		fmt.Println("No receivers found")
	}
}
