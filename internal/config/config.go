package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Default configuration values
const (
	DefaultServerURL = "ws://localhost:5000/ws"
	DefaultSTUN      = "stun:stun.l.google.com:19302"
	DefaultSTUNAlt   = "stun:stun1.l.google.com:19302"
	DefaultPort      = 5000
)

// Config holds participant configuration
type Config struct {
	// ServerURL is the relay's websocket endpoint
	ServerURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ForceRelay restricts ICE to TURN candidates
	ForceRelay bool
}

// Options for loading config with CLI flag overrides
type Options struct {
	ServerURL  string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	serverURL := firstNonEmpty(opts.ServerURL, os.Getenv("SERVER_URL"), DefaultServerURL)
	normalized, err := NormalizeServerURL(serverURL)
	if err != nil {
		return nil, err
	}

	// An empty STUN server means the two public defaults.
	stunServer := firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER"))

	turnServer := firstNonEmpty(opts.TURNServer, os.Getenv("TURN_SERVER"))
	turnUser := firstNonEmpty(opts.TURNUser, os.Getenv("TURN_USERNAME"))
	turnPass := firstNonEmpty(opts.TURNPass, os.Getenv("TURN_PASSWORD"))

	forceRelay := opts.ForceRelay
	if !forceRelay {
		forceRelay = envBool("FORCE_RELAY")
	}
	if forceRelay && turnServer == "" {
		return nil, fmt.Errorf("relay-only ICE needs a TURN server")
	}

	return &Config{
		ServerURL:  normalized,
		STUNServer: stunServer,
		TURNServer: turnServer,
		TURNUser:   turnUser,
		TURNPass:   turnPass,
		ForceRelay: forceRelay,
	}, nil
}

// NormalizeServerURL accepts ws, wss, http or https URLs, or a bare
// host:port, and returns the websocket endpoint.
func NormalizeServerURL(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", raw, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server URL %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q: missing host", raw)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// HTTPBase returns the relay's HTTP origin, for the room listing and health
// endpoints.
func (c *Config) HTTPBase() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return ""
	}
	if u.Scheme == "wss" {
		u.Scheme = "https"
	} else {
		u.Scheme = "http"
	}
	u.Path = ""
	u.RawQuery = ""
	return u.String()
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return []string{DefaultSTUN, DefaultSTUNAlt}
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured. A bare host expands
// to the usual UDP, TCP and TLS endpoints.
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	if strings.HasPrefix(c.TURNServer, "turn:") || strings.HasPrefix(c.TURNServer, "turns:") {
		if strings.Contains(c.TURNServer, "?transport=") || strings.Count(c.TURNServer, ":") > 1 {
			return []string{c.TURNServer}
		}
	}
	host := strings.TrimPrefix(strings.TrimPrefix(c.TURNServer, "turns:"), "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// RelayConfig holds relay process configuration.
type RelayConfig struct {
	Port int
	MDNS bool
}

// RelayOptions carries relay CLI flag overrides. Zero values defer to the
// environment.
type RelayOptions struct {
	Port int
	MDNS bool
}

// LoadRelay reads relay configuration: flag > PORT / MESHROOM_MDNS > default.
func LoadRelay(opts RelayOptions) (*RelayConfig, error) {
	port := opts.Port
	if port == 0 {
		if raw := strings.TrimSpace(os.Getenv("PORT")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid PORT %q: %w", raw, err)
			}
			port = n
		}
	}
	if port == 0 {
		port = DefaultPort
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("port %d out of range", port)
	}

	mdns := opts.MDNS
	if !mdns {
		mdns = envBool("MESHROOM_MDNS")
	}

	return &RelayConfig{Port: port, MDNS: mdns}, nil
}

// Addr returns the listen address.
func (c *RelayConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && v
}
