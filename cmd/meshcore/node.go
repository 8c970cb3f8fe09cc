package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cuemby/meshcore/pkg/api"
	"github.com/cuemby/meshcore/pkg/auth"
	"github.com/cuemby/meshcore/pkg/conncache"
	"github.com/cuemby/meshcore/pkg/crdt"
	"github.com/cuemby/meshcore/pkg/dns"
	"github.com/cuemby/meshcore/pkg/dnszone"
	"github.com/cuemby/meshcore/pkg/gossip"
	"github.com/cuemby/meshcore/pkg/log"
	"github.com/cuemby/meshcore/pkg/metrics"
	"github.com/cuemby/meshcore/pkg/nat"
	"github.com/cuemby/meshcore/pkg/overlay"
	"github.com/cuemby/meshcore/pkg/poc"
	"github.com/cuemby/meshcore/pkg/queue"
	"github.com/cuemby/meshcore/pkg/signing"
	"github.com/cuemby/meshcore/pkg/types"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	bolt "go.etcd.io/bbolt"
)

var nodeCmd = &cobra.Command{
	Use: "node",
	Short: "Run or inspect this fleet node",
}

var nodeStartCmd = &cobra.Command{
	Use: "start",
	Short: "Start this node's control plane: state store, gossip, scheduler, API, and DNS",
	RunE: runNodeStart,
}

func init() {
	nodeStartCmd.Flags().String("data-dir", defaultDataDir, "Directory for the state store, queue, and connection cache")
	nodeStartCmd.Flags().String("identity", "", "Path to the node's signing identity file (default: <data-dir>/identity.key)")
	nodeStartCmd.Flags().String("api-addr", "0.0.0.0:7850", "Address the authenticated HTTP API listens on")
	nodeStartCmd.Flags().String("health-addr", "127.0.0.1:7851", "Address the unauthenticated health/metrics endpoint listens on")
	nodeStartCmd.Flags().Bool("dns-enabled", false, "Serve the fleet's authoritative DNS zone")
	nodeStartCmd.Flags().String("dns-addr", dns.DefaultListenAddr, "Address the DNS server listens on")
	nodeStartCmd.Flags().String("dns-domain", dns.DefaultDomain, "Search domain served by the DNS zone store")
	nodeStartCmd.Flags().String("dns-upstream", "", "Comma-separated upstream DNS servers for non-authoritative queries")
	nodeStartCmd.Flags().String("wireguard-iface", "", "WireGuard interface to reconcile overlay peers onto (empty disables device sync)")
	nodeStartCmd.Flags().Uint64("queue-max-bytes", defaultQueueMaxBytes, "Per-topic Event Queue log size ceiling in bytes before writes are refused (0 disables the limit)")

	nodeCmd.AddCommand(nodeStartCmd)
}

func runNodeStart(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	identityPath, _ := cmd.Flags().GetString("identity")
	if identityPath == "" {
		identityPath = filepath.Join(dataDir, defaultIdentityFile)
	}
	dnsUpstream, _ := cmd.Flags().GetString("dns-upstream")
	wireguardIface, _ := cmd.Flags().GetString("wireguard-iface")
	apiAddr, _ := cmd.Flags().GetString("api-addr")
	healthAddr, _ := cmd.Flags().GetString("health-addr")
	dnsAddr, _ := cmd.Flags().GetString("dns-addr")
	dnsDomain, _ := cmd.Flags().GetString("dns-domain")
	dnsEnabled, _ := cmd.Flags().GetBool("dns-enabled")
	queueMaxBytes, _ := cmd.Flags().GetUint64("queue-max-bytes")

	cfg := loadConfig(configFlags{
		dataDir: dataDir, apiAddr: apiAddr, healthAddr: healthAddr,
		dnsAddr: dnsAddr, dnsDomain: dnsDomain, dnsUpstream: dnsUpstream,
		wireguardIface: wireguardIface, queueMaxBytes: queueMaxBytes,
	})

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	logger := log.WithComponent("node")

	identity, err := signing.LoadOrGenerateKeyPair(identityPath)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	logger.Info().Str("address", string(identity.Address)).Msg("identity loaded")

	store, err := crdt.NewStore(cfg.DataDir, identity, logOrphan(logger))
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()
	if err := store.RestoreFromDisk(); err != nil {
		return fmt.Errorf("restore state store snapshot: %w", err)
	}

	membership := overlay.New(store, identity)
	transport := gossip.New(identity, membershipDirectory{membership: membership})
	transport.SetLogf(func(format string, a ...interface{}) {
		logger.Warn().Msgf(format, a...)
	})

	queueDB, err := bolt.Open(filepath.Join(cfg.DataDir, "queue.db"), 0600, nil)
	if err != nil {
		return fmt.Errorf("open queue db: %w", err)
	}
	defer queueDB.Close()
	q := queue.New(queueDB, transport, cfg.QueueMaxBytes)
	q.SetLogf(func(format string, a ...interface{}) {
		logger.Warn().Msgf(format, a...)
	})

	connCache, err := conncache.Load(filepath.Join(cfg.DataDir, "connection-cache.json"))
	if err != nil {
		return fmt.Errorf("load connection cache: %w", err)
	}
	relays := nat.NewRelayRegistry()
	traverser := nat.NewTraverser(connCache, relays, &udpReachabilityDialer{}, relaySessionDialer{})

	zone := dnszone.New(store.DNSRecords)

	apiKeyAuth := auth.NewAPIKeyAuthenticator(auth.AccountsFromMap(store.Accounts))
	var jwtAuth *auth.JWTAuthenticator
	if cfg.JWKSURL != "" {
		jwtCfg := auth.JWTConfig{JWKSURL: cfg.JWKSURL, Issuer: cfg.JWTIssuer, Audience: cfg.JWTAudience, Leeway: cfg.JWTLeeway}
		jwks := auth.NewJWKSManager(jwtCfg)
		if err := jwks.Refresh(); err != nil {
			logger.Warn().Err(err).Msg("initial JWKS refresh failed, will retry lazily")
		}
		jwtAuth = auth.NewJWTAuthenticator(jwks, jwtCfg)
	}
	authr := auth.NewAuthenticator(apiKeyAuth, jwtAuth)
	access := auth.NewProjectAccessStore()

	srv := api.NewServer(api.Deps{
		Store: store, Queue: q, Membership: membership, Traverser: traverser,
		Relays: relays, ConnCache: connCache, Zone: zone, Authr: authr,
		Access: access, NodeID: identity.Address,
	})

	metrics.SetVersion(Version)
	metrics.RegisterComponent("state_store", true, "ready")
	metrics.RegisterComponent("event_queue", true, "ready")
	metrics.RegisterComponent("api", false, "starting")

	collector := metrics.NewCollector(store, q, membership, api.Topics())
	collector.Start()
	defer collector.Stop()

	healthSrv := api.NewHealthServer(srv)
	go func() {
		if err := healthSrv.Start(cfg.HealthAddr); err != nil {
			logger.Error().Err(err).Msg("health server stopped")
		}
	}()
	logger.Info().Str("addr", cfg.HealthAddr).Msg("health/metrics endpoint listening")

	dnsCtx, cancelDNS := context.WithCancel(context.Background())
	defer cancelDNS()
	if dnsEnabled {
		dnsServer := dns.NewServer(zone, &dns.Config{ListenAddr: cfg.DNSAddr, Domain: cfg.DNSDomain, Upstream: cfg.DNSUpstream})
		go func() {
			if err := dnsServer.Start(dnsCtx); err != nil {
				logger.Error().Err(err).Msg("DNS server stopped")
			}
		}()
		logger.Info().Str("addr", cfg.DNSAddr).Str("domain", cfg.DNSDomain).Msg("DNS server listening")
	}

	deviceSyncStop := make(chan struct{})
	if cfg.WireguardIface != "" {
		deviceSync, err := overlay.NewDeviceSync(cfg.WireguardIface)
		if err != nil {
			logger.Warn().Err(err).Str("iface", cfg.WireguardIface).Msg("WireGuard device sync disabled")
		} else {
			defer deviceSync.Close()
			go reconcileDeviceLoop(deviceSync, membership, deviceSyncStop, logger)
			defer close(deviceSyncStop)
		}
	}

	snapshotStop := make(chan struct{})
	go snapshotLoop(store, snapshotStop, logger)
	defer close(snapshotStop)

	claimStop := make(chan struct{})
	go claimLoop(store, q, identity.Address, claimStop, logger)
	defer close(claimStop)

	httpServer := &http.Server{Addr: cfg.APIAddr, Handler: srv.Router()}
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("API server: %w", err)
		}
	}()
	metrics.RegisterComponent("api", true, "ready")
	logger.Info().Str("addr", cfg.APIAddr).Str("node_id", string(identity.Address)).Msg("API server listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("fatal server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("API server shutdown")
	}
	if err := store.SnapshotToDisk(); err != nil {
		logger.Error().Err(err).Msg("final snapshot failed")
	}
	if err := connCache.Flush(); err != nil {
		logger.Error().Err(err).Msg("final connection cache flush failed")
	}
	return nil
}

// logOrphan builds a RequestPredecessorFunc that logs a missing-parent
// warning. There is no backfill RPC yet: a node missing a predecessor op
// relies on the next full gossip round to eventually deliver it.
func logOrphan(logger zerolog.Logger) crdt.RequestPredecessorFunc {
	return func(actor types.Address, key string, missingParent string) {
		logger.Warn().
			Str("actor", string(actor)).
			Str("key", key).
			Str("missing_parent", missingParent).
			Msg("op buffered pending predecessor")
	}
}

// snapshotLoop persists the State Store on a fixed cadence, rather than
// after every successful local op. The Event Queue durably logs every op
// on its own, so a periodic snapshot bounds recovery replay cost without
// coupling every API handler to the store's persistence mechanism.
func snapshotLoop(store *crdt.Store, stop <-chan struct{}, logger zerolog.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := store.SnapshotToDisk(); err != nil {
				logger.Error().Err(err).Msg("periodic snapshot failed")
			}
		case <-stop:
			return
		}
	}
}

// claimLoop runs Proof-of-Claim (Component E) against every task in the
// State Store on a fixed tick: pending tasks get a responsible-node set
// assigned, and tasks this node is responsible for are claimed. Every peer
// runs the same deterministic function independently — there is no
// coordinator.
func claimLoop(store *crdt.Store, q *queue.Queue, self types.Address, stop <-chan struct{}, logger zerolog.Logger) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	tick := func() {
		nodes := store.Nodes.List()
		nodePtrs := make([]*types.Node, len(nodes))
		for i := range nodes {
			nodePtrs[i] = &nodes[i]
		}

		for _, task := range store.Tasks.List() {
			switch task.Status {
			case types.TaskPendingPoCAssessment:
				t := task
				t.ResponsibleNodes = poc.DetermineResponsibleNodes(&t, nodePtrs)
				t.Status = types.TaskPoCAssigned
				t.UpdatedAt = time.Now().UTC()
				if err := commitTask(store, q, self, t); err != nil {
					logger.Error().Err(err).Str("task_id", t.ID).Msg("PoC assignment failed")
				}
			case types.TaskPoCAssigned:
				if !poc.IsResponsible(&task, self) {
					continue
				}
				t := task
				t.Status = types.TaskClaimed
				t.AssignedTo = self
				t.UpdatedAt = time.Now().UTC()
				if err := commitTask(store, q, self, t); err != nil {
					logger.Error().Err(err).Str("task_id", t.ID).Msg("task claim failed")
				} else {
					logger.Info().Str("task_id", t.ID).Str("variant", string(t.Variant)).Msg("claimed task")
				}
			}
		}
	}
	for {
		select {
		case <-ticker.C:
			tick()
		case <-stop:
			return
		}
	}
}

// commitTask signs, applies, and gossips one task state transition — the
// same direct-apply-then-enqueue sequence pkg/api's handlers use, minus the
// HTTP response write.
func commitTask(store *crdt.Store, q *queue.Queue, self types.Address, task types.Task) error {
	op, err := store.Tasks.UpdateLocal(task.ID, task)
	if err != nil {
		return err
	}
	content, err := json.Marshal(op)
	if err != nil {
		return err
	}
	_, err = q.Operation(api.TopicTasks, 0, content, self)
	return err
}

// reconcileDeviceLoop periodically pushes the active peer set onto the
// local WireGuard device so the kernel's idea of the mesh matches the
// State Store's.
func reconcileDeviceLoop(sync *overlay.DeviceSync, membership *overlay.Membership, stop <-chan struct{}, logger zerolog.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	reconcile := func() {
		peers := make([]overlay.PeerEndpoint, 0)
		for _, p := range membership.ActivePeers() {
			if len(p.Candidates) == 0 {
				continue
			}
			endpoint, err := net.ResolveUDPAddr("udp", p.Candidates[0])
			if err != nil {
				logger.Warn().Err(err).Str("candidate", p.Candidates[0]).Msg("unresolvable peer candidate")
				continue
			}
			peers = append(peers, overlay.PeerEndpoint{
				PublicKeyHex: p.PublicKey,
				MeshIP: p.MeshIP,
				Endpoint: endpoint,
			})
		}
		if err := sync.Reconcile(0, peers); err != nil {
			logger.Error().Err(err).Msg("WireGuard device reconcile failed")
		}
	}
	reconcile()
	for {
		select {
		case <-ticker.C:
			reconcile()
		case <-stop:
			return
		}
	}
}
