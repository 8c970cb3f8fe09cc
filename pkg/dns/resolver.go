package dns

import (
	"fmt"
	"strings"

	"github.com/cuemby/meshcore/pkg/dnszone"
	"github.com/cuemby/meshcore/pkg/log"
	"github.com/cuemby/meshcore/pkg/types"
	"github.com/miekg/dns"
)

// Resolver answers DNS queries from the fleet's zone store rather than
// from a live service/container registry — every name here is a record
// published through the State Store.
type Resolver struct {
	zone   *dnszone.Store
	domain string // search domain appended when a query omits it, e.g. "mesh"
}

// NewResolver constructs a Resolver over zone, serving names under domain.
func NewResolver(zone *dnszone.Store, domain string) *Resolver {
	return &Resolver{zone: zone, domain: domain}
}

// Resolve resolves a DNS query name to resource records.
func (r *Resolver) Resolve(queryName string, qtype uint16) ([]dns.RR, error) {
	name := strings.TrimSuffix(queryName, ".")

	log.Logger.Debug().
		Str("component", "dns.resolver").
		Str("query", name).
		Msg("resolving DNS query")

	record, ok := r.zone.Lookup(name)
	if !ok && !strings.HasSuffix(name, "."+r.domain) {
		record, ok = r.zone.Lookup(name + "." + r.domain)
	}
	if !ok {
		return nil, fmt.Errorf("query not resolvable by the zone store: %s", name)
	}

	fqdn := r.makeFQDN(name)
	switch record.Type {
	case types.RecordA:
		if qtype != dns.TypeA || record.IP == nil {
			return nil, fmt.Errorf("no A record for %s", name)
		}
		return []dns.RR{&dns.A{
			Hdr: dns.RR_Header{Name: fqdn, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: record.TTL},
			A:   record.IP,
		}}, nil

	case types.RecordAAAA:
		if qtype != dns.TypeAAAA || record.IP == nil {
			return nil, fmt.Errorf("no AAAA record for %s", name)
		}
		return []dns.RR{&dns.AAAA{
			Hdr:  dns.RR_Header{Name: fqdn, Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: record.TTL},
			AAAA: record.IP,
		}}, nil

	case types.RecordCNAME:
		if record.Target == "" {
			return nil, fmt.Errorf("CNAME record for %s has no target", name)
		}
		return []dns.RR{&dns.CNAME{
			Hdr:    dns.RR_Header{Name: fqdn, Rrtype: dns.TypeCNAME, Class: dns.ClassINET, Ttl: record.TTL},
			Target: r.makeFQDN(record.Target),
		}}, nil

	default:
		return nil, fmt.Errorf("unsupported record type %q for %s", record.Type, name)
	}
}

// stripDomain removes the search domain suffix from a name.
// "www.alice.mesh" -> "www.alice" when domain is "mesh".
func (r *Resolver) stripDomain(name string) string {
	suffix := "." + r.domain
	return strings.TrimSuffix(name, suffix)
}

// makeFQDN ensures a name ends with a dot (fully qualified).
func (r *Resolver) makeFQDN(name string) string {
	if !strings.HasSuffix(name, ".") {
		return name + "."
	}
	return name
}
