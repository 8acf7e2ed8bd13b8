package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/validatorlabs/solana-validator-exporter/pkg/price"
	"github.com/validatorlabs/solana-validator-exporter/pkg/rpc"
	"github.com/validatorlabs/solana-validator-exporter/pkg/slog"
)

func main() {
	slog.Init()
	logger := slog.Get()
	//goland:noinspection GoUnhandledErrorResult
	defer slog.Sync()

	config, err := NewExporterConfigFromEnv()
	if err != nil {
		logger.Fatal(err)
	}

	// one connection pool for every outbound call in the process lifetime:
	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
			MaxConnsPerHost:     config.MaxConnections,
			MaxIdleConns:        config.MaxConnections,
			MaxIdleConnsPerHost: config.MaxConnections,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	defer httpClient.CloseIdleConnections()

	rpcClient := rpc.NewClient(httpClient, config.RpcUrl, config.HttpTimeout)
	var localClient *rpc.Client
	if config.LocalRpcUrl != "" {
		localClient = rpc.NewClient(httpClient, config.LocalRpcUrl, config.HttpTimeout)
	}
	priceClient := price.NewClient(httpClient, config.PriceApiUrl, config.HttpTimeout)

	collector := NewSolanaCollector(config, rpcClient, localClient, priceClient)
	server := NewServer(config, rpcClient, collector)

	httpServer := &http.Server{Addr: config.ListenAddress, Handler: server.Handler()}
	go func() {
		logger.Infof("listening on %s", config.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("error shutting down http server: %v", err)
	}
}
