// This file is part of meshbus, a peer-to-peer publish/subscribe broker.
//
// Daemon entrypoint. Grounded on gnunet-go's
// cmd/gnunet-service-dht-go/main.go: flag-parsed config path, build one
// service object, start it, then block on an OS signal loop with a
// heartbeat tick. Carried over with the DHT-specific bootstrap/RPC
// flag handling dropped, since meshbus reads peers and the admin
// endpoint entirely from the config file (§4.10).

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meshbus"
	"meshbus/config"

	"github.com/bfix/gospel/logger"
)

func main() {
	defer func() {
		logger.Println(logger.INFO, "[meshbusd] Bye.")
		logger.Flush()
	}()

	var (
		cfgFile  string
		logLevel int
	)
	flag.StringVar(&cfgFile, "c", "meshbus-config.json", "meshbus configuration file")
	flag.IntVar(&logLevel, "L", logger.INFO, "log level")
	flag.Parse()
	logger.SetLogLevel(logLevel)

	if err := config.ParseConfig(cfgFile); err != nil {
		logger.Printf(logger.ERROR, "[meshbusd] invalid configuration file: %s\n", err.Error())
		return
	}

	ep, err := meshbus.New(config.Cfg)
	if err != nil {
		logger.Printf(logger.ERROR, "[meshbusd] failed to build endpoint: %s\n", err.Error())
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := ep.Start(ctx); err != nil {
		logger.Printf(logger.ERROR, "[meshbusd] failed to start endpoint: %s\n", err.Error())
		cancel()
		return
	}

	sigCh := make(chan os.Signal, 5)
	signal.Notify(sigCh)

	tick := time.NewTicker(5 * time.Minute)
	defer tick.Stop()

loop:
	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGKILL, syscall.SIGINT, syscall.SIGTERM:
				logger.Printf(logger.INFO, "[meshbusd] terminating (on signal '%s')\n", sig)
				break loop
			case syscall.SIGHUP:
				logger.Println(logger.INFO, "[meshbusd] SIGHUP")
			default:
				logger.Println(logger.INFO, "[meshbusd] unhandled signal: "+sig.String())
			}
		case now := <-tick.C:
			logger.Println(logger.INFO, "[meshbusd] heart beat at "+now.String())
		}
	}

	cancel()
}
