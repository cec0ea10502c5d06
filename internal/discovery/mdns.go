// ABOUTME: mDNS browsing for Sendspin servers on the local network
// ABOUTME: Turns _sendspin-server._tcp service entries into host, port and path
package discovery

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"
)

const (
	// ServiceType is the mDNS service Sendspin servers advertise
	ServiceType = "_sendspin-server._tcp"

	defaultDomain       = "local"
	defaultQueryTimeout = 3 * time.Second
	defaultRoundPause   = 500 * time.Millisecond
	defaultPath         = "/sendspin"
)

// ErrNotFound is returned by First when no server answered before the context ended
var ErrNotFound = errors.New("no sendspin server found")

// Server describes a discovered server
type Server struct {
	Name string
	Host string
	Port int
	Path string
}

// Addr returns host:port
func (s Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s Server) key() string {
	return s.Name + "|" + s.Addr() + s.Path
}

// queryFunc runs one mDNS query, sending answers on params.Entries until it returns
type queryFunc func(params *mdns.QueryParam) error

// Option configures a Browser
type Option func(*Browser)

// WithLogger sets the browser logger
func WithLogger(logger *zap.Logger) Option {
	return func(b *Browser) {
		if logger != nil {
			b.log = logger
		}
	}
}

// WithQueryTimeout sets how long each query round listens for answers
func WithQueryTimeout(d time.Duration) Option {
	return func(b *Browser) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// Browser repeatedly queries for Sendspin servers
type Browser struct {
	log     *zap.Logger
	service string
	domain  string
	timeout time.Duration
	pause   time.Duration
	query   queryFunc
}

// NewBrowser creates a browser for ServiceType
func NewBrowser(opts ...Option) *Browser {
	b := &Browser{
		log:     zap.NewNop(),
		service: ServiceType,
		domain:  defaultDomain,
		timeout: defaultQueryTimeout,
		pause:   defaultRoundPause,
		query:   mdns.Query,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Browse queries until ctx ends, emitting each server once. The channel is
// closed when browsing stops.
func (b *Browser) Browse(ctx context.Context) <-chan Server {
	out := make(chan Server, 10)

	go func() {
		defer close(out)
		seen := make(map[string]bool)

		for ctx.Err() == nil {
			for _, srv := range b.round() {
				if seen[srv.key()] {
					continue
				}
				seen[srv.key()] = true

				b.log.Info("discovered server",
					zap.String("name", srv.Name),
					zap.String("host", srv.Host),
					zap.Int("port", srv.Port),
					zap.String("path", srv.Path))

				select {
				case out <- srv:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-time.After(b.pause):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// First returns the first server found before ctx ends
func (b *Browser) First(ctx context.Context) (Server, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv, ok := <-b.Browse(ctx)
	if !ok {
		return Server{}, ErrNotFound
	}
	return srv, nil
}

// round runs one query and collects the usable answers
func (b *Browser) round() []Server {
	entries := make(chan *mdns.ServiceEntry, 10)
	collected := make(chan []Server, 1)

	go func() {
		var servers []Server
		for entry := range entries {
			if srv, ok := serverFromEntry(entry); ok {
				servers = append(servers, srv)
			}
		}
		collected <- servers
	}()

	params := mdns.DefaultParams(b.service)
	params.Domain = b.domain
	params.Timeout = b.timeout
	params.Entries = entries
	params.DisableIPv6 = true

	if err := b.query(params); err != nil {
		b.log.Warn("mdns query failed", zap.Error(err))
	}
	close(entries)

	return <-collected
}

// serverFromEntry extracts an address and the advertised path from an answer
func serverFromEntry(entry *mdns.ServiceEntry) (Server, bool) {
	if entry == nil || entry.Port <= 0 {
		return Server{}, false
	}

	host := ""
	switch {
	case entry.AddrV4 != nil:
		host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		host = entry.AddrV6.String()
	default:
		host = strings.TrimSuffix(entry.Host, ".")
	}
	if host == "" {
		return Server{}, false
	}

	return Server{
		Name: instanceName(entry.Name),
		Host: host,
		Port: entry.Port,
		Path: pathFromTXT(entry.InfoFields),
	}, true
}

// instanceName strips the service suffix from a full mDNS instance name
func instanceName(full string) string {
	if i := strings.Index(full, "."+ServiceType); i > 0 {
		return strings.ReplaceAll(full[:i], `\ `, " ")
	}
	return strings.TrimSuffix(full, ".")
}

// pathFromTXT reads the path= record, defaulting to /sendspin
func pathFromTXT(fields []string) string {
	for _, f := range fields {
		key, value, ok := strings.Cut(f, "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "path") {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			break
		}
		if !strings.HasPrefix(value, "/") {
			value = "/" + value
		}
		return value
	}
	return defaultPath
}
