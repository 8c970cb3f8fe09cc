package dns

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/meshcore/pkg/dnszone"
	"github.com/cuemby/meshcore/pkg/log"
	"github.com/miekg/dns"
)

const (
	// DefaultListenAddr is the Docker-compatible DNS address.
	DefaultListenAddr = "127.0.0.11:53"

	// DefaultDomain is the default search domain served by the zone store.
	DefaultDomain = "mesh"

	// DefaultUpstream is the fallback DNS server for external queries.
	DefaultUpstream = "8.8.8.8:53"
)

// Server serves the fleet's authoritative DNS zone, falling back to
// upstream resolvers for anything the zone store doesn't carry.
type Server struct {
	resolver   *Resolver
	dnsServer  *dns.Server
	listenAddr string
	upstream   []string
	mu         sync.RWMutex
	running    bool
}

// Config holds DNS server configuration.
type Config struct {
	ListenAddr string
	Domain     string
	Upstream   []string
}

// NewServer constructs a Server over zone.
func NewServer(zone *dnszone.Store, config *Config) *Server {
	if config == nil {
		config = &Config{}
	}
	if config.ListenAddr == "" {
		config.ListenAddr = DefaultListenAddr
	}
	if config.Domain == "" {
		config.Domain = DefaultDomain
	}
	if len(config.Upstream) == 0 {
		config.Upstream = []string{DefaultUpstream}
	}

	return &Server{
		listenAddr: config.ListenAddr,
		upstream:   config.Upstream,
		resolver:   NewResolver(zone, config.Domain),
	}
}

// Start starts the DNS server, listening on UDP.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("DNS server already running")
	}
	s.running = true
	s.mu.Unlock()

	log.Logger.Info().
		Str("component", "dns").
		Str("address", s.listenAddr).
		Msg("starting DNS server")

	mux := dns.NewServeMux()
	mux.HandleFunc(".", s.handleDNSQuery)

	s.dnsServer = &dns.Server{
		Addr:    s.listenAddr,
		Net:     "udp",
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.dnsServer.ListenAndServe(); err != nil {
			log.Logger.Error().Err(err).Str("component", "dns").Msg("DNS server error")
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		return s.Stop()
	default:
		log.Logger.Info().Str("component", "dns").Str("address", s.listenAddr).Msg("DNS server started successfully")
		return nil
	}
}

// Stop stops the DNS server.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	log.Logger.Info().Str("component", "dns").Msg("stopping DNS server")
	if s.dnsServer != nil {
		if err := s.dnsServer.Shutdown(); err != nil {
			log.Logger.Error().Err(err).Str("component", "dns").Msg("error stopping DNS server")
			return err
		}
	}
	s.running = false
	return nil
}

func (s *Server) handleDNSQuery(w dns.ResponseWriter, r *dns.Msg) {
	msg := &dns.Msg{}
	msg.SetReply(r)
	msg.Authoritative = true

	for _, q := range r.Question {
		if q.Qtype != dns.TypeA && q.Qtype != dns.TypeAAAA && q.Qtype != dns.TypeCNAME {
			s.forwardQuery(w, r)
			return
		}

		answers, err := s.resolver.Resolve(q.Name, q.Qtype)
		if err != nil {
			log.Logger.Debug().Err(err).Str("component", "dns").Str("query", q.Name).Msg("not in zone store, forwarding to upstream")
			s.forwardQuery(w, r)
			return
		}
		msg.Answer = append(msg.Answer, answers...)
	}

	if err := w.WriteMsg(msg); err != nil {
		log.Logger.Error().Err(err).Str("component", "dns").Msg("failed to write DNS response")
	}
}

func (s *Server) forwardQuery(w dns.ResponseWriter, r *dns.Msg) {
	client := &dns.Client{Net: "udp"}

	for _, upstream := range s.upstream {
		resp, _, err := client.Exchange(r, upstream)
		if err != nil {
			log.Logger.Debug().Err(err).Str("component", "dns").Str("upstream", upstream).Msg("failed to forward query")
			continue
		}
		if err := w.WriteMsg(resp); err != nil {
			log.Logger.Error().Err(err).Str("component", "dns").Msg("failed to write forwarded DNS response")
		}
		return
	}

	msg := &dns.Msg{}
	msg.SetReply(r)
	msg.Rcode = dns.RcodeServerFailure
	if err := w.WriteMsg(msg); err != nil {
		log.Logger.Error().Err(err).Str("component", "dns").Msg("failed to write DNS error response")
	}
}

// IsRunning reports whether the server is currently listening.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
