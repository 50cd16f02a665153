package discovery

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Service constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of an MCP server.
	ServiceType = "_mcp._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the port an MCP server listens on when none is advertised.
	DefaultPort = 9000
)

// TXT record keys.
const (
	TXTKeyPath    = "path" // Websocket path
	TXTKeyVersion = "ver"  // Server version
	TXTKeyName    = "name" // Server name
	TXTKeySecure  = "tls"  // "1" if wss is required
)

// Timing constants.
const (
	// BrowseTimeout is the default duration of a browse.
	BrowseTimeout = 3 * time.Second

	// DefaultTTL is the default DNS record TTL for advertisements.
	DefaultTTL = 120 * time.Second
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTValueLen bounds a single key=value string.
	MaxTXTValueLen = 255
)

// Errors.
var (
	ErrNotFound            = errors.New("server not found")
	ErrInvalidInstanceName = errors.New("invalid instance name")
	ErrTXTTooLong          = errors.New("TXT record too long")
	ErrNoAddress           = errors.New("server has no address")
)

// Server is an MCP server found by browsing.
type Server struct {
	// Instance is the DNS-SD instance name.
	Instance string

	// Host is the advertised host name, e.g. "esp32-mcp.local.".
	Host string

	// Port is the advertised port.
	Port uint16

	// Addresses are the IP addresses seen for the instance, IPv4 first.
	Addresses []string

	// Path is the websocket path from TXT, empty for "/".
	Path string

	// Name and Version are informational TXT values.
	Name    string
	Version string

	// Secure is set when the server requires wss.
	Secure bool
}

// URL returns the websocket URL of the server. It prefers the first
// advertised address and falls back to the host name.
func (s *Server) URL() (string, error) {
	host := ""
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	} else {
		host = strings.TrimSuffix(s.Host, ".")
	}
	if host == "" {
		return "", ErrNoAddress
	}

	port := s.Port
	if port == 0 {
		port = DefaultPort
	}

	scheme := "ws"
	if s.Secure {
		scheme = "wss"
	}

	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, strconv.Itoa(int(port))),
		Path:   s.Path,
	}
	if u.Path != "" && !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}
	return u.String(), nil
}

// DisplayName returns the server name, or the instance name if none was advertised.
func (s *Server) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Instance
}

// ServiceInfo describes a server to advertise.
type ServiceInfo struct {
	Instance string
	Port     uint16
	Path     string
	Name     string
	Version  string
	Secure   bool
}

// Validate checks that the info can be advertised.
func (i *ServiceInfo) Validate() error {
	if err := ValidateInstanceName(i.Instance); err != nil {
		return err
	}
	for _, s := range TXTRecordsToStrings(EncodeServerTXT(i)) {
		if len(s) > MaxTXTValueLen {
			return ErrTXTTooLong
		}
	}
	return nil
}
