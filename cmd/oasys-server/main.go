package main

import (
	"flag"
	"net/http"
	"os"
	"time"

	"oasys-backend/lib/configutil"
	"oasys-backend/lib/serviceutil"
	"oasys-backend/services/gateway"
)

type GatewayConfig struct {
	PortalBaseUrl     string `json:"portal_base_url"`
	SessionTtlMinutes int    `json:"session_ttl_minutes"`
}

type Config struct {
	Port    int           `json:"port"`
	Gateway GatewayConfig `json:"gateway"`
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	InitTelemetry(ctx, *verbose)

	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil && !os.IsNotExist(err) {
		serviceutil.Fatal("read config", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.Gateway.PortalBaseUrl == "" {
		cfg.Gateway.PortalBaseUrl = "https://sp.srmist.edu.in"
	}

	mux := http.NewServeMux()

	service := gateway.NewService(gateway.Options{
		PortalBaseUrl: cfg.Gateway.PortalBaseUrl,
		SessionTtl:    time.Duration(cfg.Gateway.SessionTtlMinutes) * time.Minute,
	})
	service.Register(mux)

	go serviceutil.StartHttpServer(cfg.Port, mux)
	<-ctx.Done()
}
