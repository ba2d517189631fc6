package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

// DefaultBrowseTimeout bounds how long FindRelay waits for an answer.
const DefaultBrowseTimeout = 3 * time.Second

// MDNSResolver is the interface for mDNS service resolution.
// This allows for dependency injection in tests.
type MDNSResolver interface {
	// Browse browses for services of the given type.
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// zeroconfResolver is the production implementation using grandcat/zeroconf.
type zeroconfResolver struct {
	resolver *zeroconf.Resolver
}

func (z *zeroconfResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	return z.resolver.Browse(ctx, service, domain, entries)
}

// Relay is a relay found on the local network.
type Relay struct {
	Instance string
	Host     string
	Port     int
	Path     string
	Version  string
}

// URL returns the relay's websocket endpoint.
func (r Relay) URL() string {
	path := r.Path
	if path == "" {
		path = "/ws"
	}
	return "ws://" + net.JoinHostPort(r.Host, strconv.Itoa(r.Port)) + path
}

// Resolver finds relays via DNS-SD.
type Resolver struct {
	resolver MDNSResolver
	timeout  time.Duration
}

// NewResolver creates a Resolver. A nil resolver uses zeroconf; a zero
// timeout uses DefaultBrowseTimeout.
func NewResolver(resolver MDNSResolver, timeout time.Duration) (*Resolver, error) {
	if resolver == nil {
		r, err := zeroconf.NewResolver(nil)
		if err != nil {
			return nil, fmt.Errorf("resolver: %w", err)
		}
		resolver = &zeroconfResolver{resolver: r}
	}
	if timeout == 0 {
		timeout = DefaultBrowseTimeout
	}
	return &Resolver{resolver: resolver, timeout: timeout}, nil
}

// FindRelay returns the first relay that answers with a usable address.
func (r *Resolver) FindRelay(ctx context.Context) (*Relay, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	entries := make(chan *zeroconf.ServiceEntry)
	errc := make(chan error, 1)
	go func() {
		errc <- r.resolver.Browse(ctx, Service, DefaultDomain, entries)
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return nil, ErrRelayNotFound
			}
			if relay, ok := entryToRelay(entry); ok {
				return relay, nil
			}
		case err := <-errc:
			if err != nil {
				return nil, fmt.Errorf("resolver: browse %s: %w", Service, err)
			}
			// zeroconf browses in the background; keep waiting for entries.
		case <-ctx.Done():
			return nil, ErrRelayNotFound
		}
	}
}

func entryToRelay(entry *zeroconf.ServiceEntry) (*Relay, bool) {
	if entry == nil || entry.Port == 0 {
		return nil, false
	}

	var host string
	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0].String()
	default:
		return nil, false
	}

	relay := &Relay{Instance: entry.Instance, Host: host, Port: entry.Port}
	for _, kv := range entry.Text {
		key, value, _ := strings.Cut(kv, "=")
		switch key {
		case "path":
			relay.Path = value
		case "version":
			relay.Version = value
		}
	}
	return relay, true
}
