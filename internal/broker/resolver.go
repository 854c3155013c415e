package broker

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
)

// MDNSResolver finds brokers advertised over multicast DNS.
type MDNSResolver struct {
	domain string
}

// NewMDNSResolver creates a resolver browsing the "local." domain.
func NewMDNSResolver() *MDNSResolver {
	return &MDNSResolver{domain: "local."}
}

// Resolve returns host:port of the first instance of service seen before
// ctx expires.
func (r *MDNSResolver) Resolve(ctx context.Context, service string) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 4)
	if err := resolver.Browse(ctx, service, r.domain, entries); err != nil {
		return "", fmt.Errorf("mDNS browse failed: %w", err)
	}

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", ErrNotFound
			}
			if addr := entryAddress(entry); addr != "" {
				return addr, nil
			}
		case <-ctx.Done():
			return "", ErrNotFound
		}
	}
}

func entryAddress(e *zeroconf.ServiceEntry) string {
	if e == nil || e.Port == 0 {
		return ""
	}
	host := strings.TrimSuffix(e.HostName, ".")
	if len(e.AddrIPv4) > 0 {
		host = e.AddrIPv4[0].String()
	} else if len(e.AddrIPv6) > 0 {
		host = e.AddrIPv6[0].String()
	}
	if host == "" {
		return ""
	}
	return net.JoinHostPort(host, strconv.Itoa(e.Port))
}
