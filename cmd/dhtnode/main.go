package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prxssh/dhtnode/internal/config"
	"github.com/prxssh/dhtnode/internal/dht"
	"github.com/prxssh/dhtnode/internal/logging"
	"github.com/prxssh/dhtnode/internal/resolver"
)

func main() {
	setupLogger()

	listenAddr := flag.String("listen", "0.0.0.0:6881", "UDP address to listen on")
	nodeIDHex := flag.String("id", "", "local node id as 40 hex chars (random if unset)")
	bootstrap := flag.String("bootstrap", "", "comma-separated host[:port] bootstrap nodes")
	pingTarget := flag.String("ping", "", "optional host:port to ping once at startup")
	flag.Parse()

	cfg, err := config.Default()
	if err != nil {
		slog.Error("failed to build default config", "error", err)
		os.Exit(1)
	}
	cfg.ListenAddr = *listenAddr

	if *nodeIDHex != "" {
		id, ok := parseHexID(*nodeIDHex)
		if !ok {
			slog.Error("invalid -id: must be 40 hex characters")
			os.Exit(1)
		}
		cfg.LocalID = id
	}

	if *bootstrap != "" {
		cfg.BootstrapNodes = strings.Split(*bootstrap, ",")
	}

	service, err := dht.NewService(cfg)
	if err != nil {
		slog.Error("failed to create dht service", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := service.Start(ctx); err != nil {
		slog.Error("failed to start dht service", "error", err)
		os.Exit(1)
	}

	bootstrapService(ctx, service, cfg.BootstrapNodes)

	if *pingTarget != "" {
		pingOnce(ctx, service, *pingTarget)
	}

	<-ctx.Done()
	slog.Info("shutting down")
	service.Finalize()
	if err := service.Wait(); err != nil {
		slog.Error("dht service exited with error", "error", err)
		os.Exit(1)
	}
}

func setupLogger() {
	opts := logging.DefaultOptions()
	opts.SlogOpts.Level = slog.LevelInfo
	opts.SlogOpts.AddSource = false

	h := logging.NewPrettyHandler(os.Stdout, &opts)
	slog.SetDefault(slog.New(h))
}

func parseHexID(s string) ([20]byte, bool) {
	var id [20]byte
	if len(s) != 40 {
		return id, false
	}
	for i := 0; i < 20; i++ {
		hi, ok1 := hexNibble(s[i*2])
		lo, ok2 := hexNibble(s[i*2+1])
		if !ok1 || !ok2 {
			return id, false
		}
		id[i] = hi<<4 | lo
	}
	return id, true
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}

// bootstrapService resolves every configured bootstrap host and pings it
// once to seed the routing table.
func bootstrapService(ctx context.Context, service *dht.Service, hosts []string) {
	if len(hosts) == 0 {
		return
	}

	for _, r := range resolver.Resolve(ctx, nil, hosts) {
		if r.Err != nil {
			slog.Warn("failed to resolve bootstrap node", "error", r.Err)
			continue
		}
		go pingAddr(ctx, service, r.Addr)
	}
}

func pingOnce(ctx context.Context, service *dht.Service, hostPort string) {
	addr, err := net.ResolveUDPAddr("udp", hostPort)
	if err != nil {
		slog.Warn("failed to resolve ping target", "target", hostPort, "error", err)
		return
	}
	pingAddr(ctx, service, addr)
}

func pingAddr(ctx context.Context, service *dht.Service, addr *net.UDPAddr) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	id, err := service.PingNode(ctx, addr)
	if err != nil {
		slog.Warn("ping failed", "addr", addr.String(), "error", err)
		return
	}
	slog.Info("ping succeeded", "addr", addr.String(), "id", id.String())
}
