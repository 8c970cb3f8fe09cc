// Package dns serves the fleet's DNS zone: an embedded, Docker-compatible
// server (127.0.0.11:53 by default) that answers authoritatively for
// records published through the DNS Zone Store (pkg/dnszone) and forwards
// everything else to an upstream resolver.
//
// A query for a name under the configured search domain is answered from
// the zone store's A/AAAA/CNAME records; any other name, or a record type
// the zone store doesn't carry for that name, falls through to the
// upstream servers configured in Config.Upstream.
package dns
