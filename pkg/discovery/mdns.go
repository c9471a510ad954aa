package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Advertiser publishes an HWCP server on the local network.
type Advertiser interface {
	// Advertise starts advertising info, replacing any earlier advertisement.
	Advertise(ctx context.Context, info *ServerInfo) error

	// Update replaces the TXT records of the running advertisement.
	Update(info *ServerInfo) error

	// Stop withdraws the advertisement.
	Stop()
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL (0 = DefaultTTL).
	TTL time.Duration

	// Log receives operational messages (nil = slog.Default()).
	Log *slog.Logger
}

// MDNSAdvertiser implements Advertiser using zeroconf.
type MDNSAdvertiser struct {
	config AdvertiserConfig
	slog   *slog.Logger

	mu       sync.Mutex
	server   *zeroconf.Server
	instance string
}

// NewMDNSAdvertiser creates a new mDNS advertiser.
func NewMDNSAdvertiser(config AdvertiserConfig) *MDNSAdvertiser {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	l := config.Log
	if l == nil {
		l = slog.Default()
	}
	return &MDNSAdvertiser{config: config, slog: l.With("component", "mdns")}
}

// Advertise registers the server under ServiceType.
func (a *MDNSAdvertiser) Advertise(ctx context.Context, info *ServerInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	instance := info.InstanceName()
	if err := ValidateInstanceName(instance); err != nil {
		return err
	}
	txt := TXTRecordsToStrings(EncodeTXT(info))
	if err := ValidateTXT(txt); err != nil {
		return err
	}

	port := int(info.Port)
	if port == 0 {
		port = DefaultPort
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	server, err := zeroconf.Register(
		instance,
		ServiceType,
		Domain,
		port,
		txt,
		interfaces(a.config.Interface),
		zeroconf.TTL(uint32(a.config.TTL.Seconds())),
	)
	if err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceType, err)
	}
	a.server = server
	a.instance = instance
	a.slog.Info("advertising", "instance", instance, "port", port, "module", info.Module)
	return nil
}

// Update replaces the TXT records of the running advertisement. The instance
// name and port stay as registered.
func (a *MDNSAdvertiser) Update(info *ServerInfo) error {
	txt := TXTRecordsToStrings(EncodeTXT(info))
	if err := ValidateTXT(txt); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return ErrNotAdvertising
	}
	a.server.SetText(txt)
	return nil
}

// Stop withdraws the advertisement.
func (a *MDNSAdvertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
		a.slog.Info("advertisement stopped", "instance", a.instance)
	}
}

// interfaces returns the named interface, or nil for all interfaces.
func interfaces(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// BrowseTimeout bounds Find and FindAll when the context has no
	// deadline (0 = BrowseTimeout).
	BrowseTimeout time.Duration

	// Log receives operational messages (nil = slog.Default()).
	Log *slog.Logger
}

// MDNSBrowser finds HWCP servers using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig
	slog   *slog.Logger

	mu      sync.Mutex
	cancels []context.CancelFunc
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = BrowseTimeout
	}
	l := config.Log
	if l == nil {
		l = slog.Default()
	}
	return &MDNSBrowser{config: config, slog: l.With("component", "mdns")}
}

// Browse streams discovered servers until ctx is done or Stop is called.
// Services are aggregated by instance name: addresses seen on several
// interfaces are merged and each instance is emitted once.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan *Service, error) {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancels = append(b.cancels, cancel)
	b.mu.Unlock()

	out := make(chan *Service)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)
		agg := newAggregator()
		gone := (<-chan *zeroconf.ServiceEntry)(removed)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc, err := serviceFromEntry(entry)
				if err != nil {
					b.slog.Debug("ignoring service", "instance", entry.Instance, "error", err)
					continue
				}
				if !agg.add(svc) {
					continue
				}
				select {
				case out <- svc:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-gone:
				if !ok {
					gone = nil
					continue
				}
				agg.remove(entry.Instance, entryAddresses(entry))

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		var opts []zeroconf.ClientOption
		if ifaces := interfaces(b.config.Interface); ifaces != nil {
			opts = append(opts, zeroconf.SelectIfaces(ifaces))
		}
		if err := zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...); err != nil {
			b.slog.Warn("browse failed", "error", err)
			cancel()
		}
	}()

	return out, nil
}

// Find returns the first server whose module matches (any module when
// module is empty).
func (b *MDNSBrowser) Find(ctx context.Context, module string) (*Service, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	services, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	for svc := range services {
		if !svc.Compatible() {
			b.slog.Debug("skipping incompatible server", "instance", svc.InstanceName, "version", svc.Version)
			continue
		}
		if module == "" || svc.Module == module {
			return svc, nil
		}
	}
	if module == "" {
		return nil, ErrNotFound
	}
	return nil, fmt.Errorf("%w: module %q", ErrNotFound, module)
}

// FindAll collects servers until the browse timeout or the context deadline.
func (b *MDNSBrowser) FindAll(ctx context.Context) ([]*Service, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	services, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	var found []*Service
	for svc := range services {
		found = append(found, svc)
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return found, err
	}
	return found, nil
}

func (b *MDNSBrowser) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.config.BrowseTimeout)
}

// Stop ends all running browse operations.
func (b *MDNSBrowser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
}

func serviceFromEntry(entry *zeroconf.ServiceEntry) (*Service, error) {
	return newService(entry.Instance, entry.HostName, entry.Port, entry.Text, entryAddresses(entry))
}

func newService(instance, host string, port int, text, addrs []string) (*Service, error) {
	if port <= 0 || port > 0xFFFF {
		return nil, fmt.Errorf("%w: port %d", ErrInvalidTXTRecord, port)
	}
	svc := &Service{
		InstanceName: instance,
		Host:         host,
		Port:         uint16(port),
		Addresses:    addrs,
	}
	if err := DecodeTXT(StringsToTXTRecords(text), svc); err != nil {
		return nil, err
	}
	return svc, nil
}

func entryAddresses(entry *zeroconf.ServiceEntry) []string {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return addrs
}

// aggregator tracks browse results by instance name. It is used by a single
// goroutine.
type aggregator struct {
	services map[string]*Service
}

func newAggregator() *aggregator {
	return &aggregator{services: make(map[string]*Service)}
}

// add records svc and reports whether it is a new instance. Addresses of a
// known instance are merged into the existing entry.
func (a *aggregator) add(svc *Service) bool {
	existing, found := a.services[svc.InstanceName]
	if found {
		existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
		return false
	}
	a.services[svc.InstanceName] = svc
	return true
}

// remove drops addrs from instance and forgets the instance once no
// address remains, so a later announcement is emitted again.
func (a *aggregator) remove(instance string, addrs []string) {
	existing, found := a.services[instance]
	if !found {
		return
	}
	existing.Addresses = removeAddresses(existing.Addresses, addrs)
	if len(existing.Addresses) == 0 {
		delete(a.services, instance)
	}
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, add []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range add {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

func removeAddresses(addresses, drop []string) []string {
	toRemove := make(map[string]bool, len(drop))
	for _, addr := range drop {
		toRemove[addr] = true
	}
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}

var _ Advertiser = (*MDNSAdvertiser)(nil)
