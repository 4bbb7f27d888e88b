package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Raghava-Ch/goiolink/pkg/al"
	"github.com/Raghava-Ch/goiolink/pkg/device"
	"github.com/Raghava-Ch/goiolink/pkg/phy"
	_ "github.com/Raghava-Ch/goiolink/pkg/phy/serial"
	_ "github.com/Raghava-Ch/goiolink/pkg/phy/virtual"
)

var DEFAULT_DRIVER = "serial"
var DEFAULT_CHANNEL = "/dev/ttyUSB0"

func main() {
	// Command line arguments
	driver := flag.String("d", DEFAULT_DRIVER, "transceiver driver e.g. serial,virtual")
	channel := flag.String("i", DEFAULT_CHANNEL, "port e.g. /dev/ttyUSB0")
	configPath := flag.String("p", "", "device configuration ini file path")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	cfg := device.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = device.LoadConfig(*configPath)
		if err != nil {
			logger.Error("config load failed", "path", *configPath, "err", err)
			os.Exit(1)
		}
	}

	transceiver, err := phy.NewTransceiver(*driver, *channel, cfg.Rate)
	if err != nil {
		logger.Error("transceiver creation failed", "driver", *driver, "err", err)
		os.Exit(1)
	}

	handlers := al.Handlers{
		OnProcessDataOut: func(data []byte) {
			logger.Debug("process data out", "data", data)
		},
		OnSystemCommand: func(cmd uint8) error {
			logger.Info("system command", "cmd", cmd)
			return nil
		},
	}
	dev, err := device.NewDevice(cfg, transceiver, handlers, logger)
	if err != nil {
		logger.Error("device creation failed", "err", err)
		os.Exit(1)
	}
	if err := dev.Start(); err != nil {
		logger.Error("device start failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := dev.Run(ctx); err != nil {
		logger.Error("device stopped with error", "err", err)
		os.Exit(1)
	}
}
