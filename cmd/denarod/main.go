// Command denarod runs a full node: it loads configuration from the
// environment, connects to Postgres and migrates the schema, loads or
// generates the node's identity, and serves the HTTP surface while
// running the synchroniser's periodic discovery loop in the background.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/The-Sycorax/denaro/internal/config"
	"github.com/The-Sycorax/denaro/internal/httpapi"
	"github.com/The-Sycorax/denaro/internal/logger"
	"github.com/The-Sycorax/denaro/internal/mempool"
	"github.com/The-Sycorax/denaro/internal/node"
	"github.com/The-Sycorax/denaro/internal/peer"
	"github.com/The-Sycorax/denaro/internal/storage"
	syncpkg "github.com/The-Sycorax/denaro/internal/sync"
)

// gcInterval and healthInterval pace the mempool-GC/peer-prune sweep and
// the health-ticker log line, the two background tasks §5 names besides
// periodic discovery.
const (
	gcInterval     = 10 * time.Minute
	healthInterval = 5 * time.Minute
)

// Exit codes.
const (
	exitOK             = 0
	exitConfigError    = 1
	exitStorageError   = 2
	exitIdentityError  = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %s\n", err)
		return exitConfigError
	}

	logger.Init(filepath.Join("logs", "denarod.log"), cfg.LogLevel)
	defer logger.Close()
	log := logger.Get(logger.SubsystemTags.NODE)

	store, err := storage.Open(storage.Config{
		Host:     cfg.DatabaseHost,
		Name:     cfg.DatabaseName,
		User:     cfg.PostgresUser,
		Password: cfg.PostgresPass,
	})
	if err != nil {
		log.Errorf("connect to storage: %s", err)
		return exitStorageError
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		log.Errorf("migrate schema: %s", err)
		return exitStorageError
	}

	id, err := loadOrCreateIdentity(filepath.Join("data", "node.key"))
	if err != nil {
		log.Errorf("load node identity: %s", err)
		return exitIdentityError
	}
	log.Infof("node identity: %s", id.NodeID)

	n := node.New(cfg, id, store, 0)

	router := httpapi.NewRouter(n)
	httpServer := &http.Server{
		Addr:    n.Config.ListenAddr(),
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	bootstrapPeer(n, cfg.BootstrapNode)

	stopDiscovery := make(chan struct{})
	discoveryDone := make(chan struct{})
	go runDiscoveryLoop(n, stopDiscovery, discoveryDone)

	stopHousekeeping := make(chan struct{})
	housekeepingDone := make(chan struct{})
	go runHousekeepingLoop(n, stopHousekeeping, housekeepingDone)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Infof("received %s, shutting down", sig)
	case err := <-serveErr:
		log.Errorf("http server failed: %s", err)
	}

	close(stopDiscovery)
	<-discoveryDone
	close(stopHousekeeping)
	<-housekeepingDone

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Errorf("http shutdown: %s", err)
	}

	return exitOK
}

// bootstrapPeer contacts the configured bootstrap node once at startup, if
// one is named explicitly ("discover" means rely on periodic discovery
// alone once peers are learned from elsewhere).
func bootstrapPeer(n *node.Node, bootstrapNode string) {
	if bootstrapNode == "" || bootstrapNode == "discover" {
		return
	}
	log := logger.Get(logger.SubsystemTags.SYNC)
	info, err := syncpkg.Handshake(n, bootstrapNode)
	if err != nil {
		log.Warnf("bootstrap handshake with %s failed: %s", bootstrapNode, err)
		return
	}
	if syncpkg.ShouldSync(0, info) {
		if err := syncpkg.PullSync(n, bootstrapNode); err != nil {
			log.Warnf("initial sync with %s failed: %s", bootstrapNode, err)
		}
	}
}

// runDiscoveryLoop invokes RunDiscovery on DiscoveryInterval until stop is
// closed.
func runDiscoveryLoop(n *node.Node, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(syncpkg.DiscoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			syncpkg.RunDiscovery(n)
		}
	}
}

// runHousekeepingLoop runs the mempool-GC/peer-prune sweep and the health
// ticker on their own intervals until stop is closed: mempool garbage
// collection evicts pending transactions that no longer validate, peer
// pruning drops long-inactive unbanned records, and the health ticker logs
// a heartbeat line with the current tip height and uptime.
func runHousekeepingLoop(n *node.Node, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	log := logger.Get(logger.SubsystemTags.NODE)
	gcTicker := time.NewTicker(gcInterval)
	defer gcTicker.Stop()
	healthTicker := time.NewTicker(healthInterval)
	defer healthTicker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-gcTicker.C:
			n.Peers.Prune(time.Now())
			if err := mempool.GC(n.Store); err != nil {
				log.Warnf("mempool gc failed: %s", err)
			}
		case <-healthTicker.C:
			tip, err := n.Store.GetTip()
			height := int64(0)
			if err == nil && tip != nil {
				height = tip.ID
			}
			log.Infof("health: height=%d uptime=%ds", height, n.Uptime())
		}
	}
}

// loadOrCreateIdentity reads a persisted private key from keyPath, or
// generates and persists a fresh one if none exists yet. The key is
// stored as raw hex; encrypting it at rest is out of core scope.
func loadOrCreateIdentity(keyPath string) (*peer.Identity, error) {
	raw, err := os.ReadFile(keyPath)
	if err == nil {
		keyBytes, decodeErr := hex.DecodeString(string(raw))
		if decodeErr != nil {
			return nil, fmt.Errorf("decode persisted key: %w", decodeErr)
		}
		return peer.LoadIdentity(keyBytes)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	id, err := peer.NewIdentity()
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	encoded := hex.EncodeToString(id.Private.Bytes())
	if err := os.WriteFile(keyPath, []byte(encoded), 0600); err != nil {
		return nil, fmt.Errorf("persist key: %w", err)
	}
	return id, nil
}
