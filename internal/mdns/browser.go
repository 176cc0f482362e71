// Package mdns implements multicast service discovery for the resolution
// phase. A browse cycle first asks the DNS-SD meta-query which service types
// the LAN advertises, unions those with a baseline list, then resolves the
// types in bounded groups until the window closes.
package mdns

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"netscout/internal/errors"
	"netscout/internal/logging"
	"netscout/internal/scan"
)

// baselineServices are always browsed, whether or not the meta-query reports
// them. The list covers the device classes a home network typically carries.
var baselineServices = []string{
	"_workstation._tcp",
	"_http._tcp",
	"_ipp._tcp",
	"_printer._tcp",
	"_airplay._tcp",
	"_raop._tcp",
	"_googlecast._tcp",
	"_hap._tcp",
	"_smb._tcp",
	"_device-info._tcp",
	"_spotify-connect._tcp",
}

const (
	metaService  = "_services._dns-sd._udp"
	browseDomain = "local."

	metaWindow = 2 * time.Second
	// browseGroupSize bounds how many types resolve at once. Concurrent
	// browses share one multicast socket, so smaller groups lose fewer
	// responses.
	browseGroupSize = 8
	// defaultGroupWindow applies when the caller's context carries no
	// deadline.
	defaultGroupWindow = 3 * time.Second
)

// Browser implements scan.Browser on top of zeroconf.
type Browser struct {
	log *zap.SugaredLogger
}

var _ scan.Browser = (*Browser)(nil)

// NewBrowser builds a Browser.
func NewBrowser() *Browser {
	return &Browser{log: logging.Component("mdns")}
}

// Browse implements scan.Browser. It runs until ctx expires, emitting one
// record per (address, service type) pair. A LAN that answers nothing is
// success.
func (b *Browser) Browse(ctx context.Context, emit func(scan.ServiceRecord)) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return errors.Wrap(errors.CodeToolUnavailable, "multicast resolver unavailable", err)
	}

	types := b.serviceTypes(ctx, resolver)
	b.log.Infow("browsing service types", "types", len(types))

	var seenMu sync.Mutex
	seen := make(map[string]struct{})
	deliver := func(entry *zeroconf.ServiceEntry) {
		record, ok := toRecord(entry)
		if !ok {
			return
		}
		key := record.Address + " " + record.Service
		seenMu.Lock()
		if _, dup := seen[key]; dup {
			seenMu.Unlock()
			return
		}
		seen[key] = struct{}{}
		seenMu.Unlock()
		emit(record)
	}

	var firstErr error
	groups := groupTypes(types, browseGroupSize)
	for i, group := range groups {
		if ctx.Err() != nil {
			break
		}
		window := remainingShare(ctx, len(groups)-i)
		if window <= 0 {
			break
		}
		if err := b.browseGroup(ctx, resolver, group, window, deliver); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// serviceTypes runs the DNS-SD meta-query and unions whatever the LAN
// advertises with the baseline list. Baseline order stays first so the
// common types land in the earliest groups.
func (b *Browser) serviceTypes(ctx context.Context, resolver *zeroconf.Resolver) []string {
	types := append([]string(nil), baselineServices...)
	seen := make(map[string]struct{}, len(types))
	for _, service := range types {
		seen[service] = struct{}{}
	}

	metaCtx, cancel := context.WithTimeout(ctx, metaWindow)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entries {
			name := typeName(entry.Instance)
			if name == "" {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			types = append(types, name)
		}
	}()

	// The library closes entries once the context ends, error or not, so
	// the collector above always terminates.
	if err := resolver.Browse(metaCtx, metaService, browseDomain, entries); err != nil {
		b.log.Debugw("service type enumeration failed", "error", err)
		cancel()
	}
	<-done

	return types
}

// browseGroup resolves one batch of service types for at most window.
func (b *Browser) browseGroup(ctx context.Context, resolver *zeroconf.Resolver, group []string, window time.Duration, deliver func(*zeroconf.ServiceEntry)) error {
	groupCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	var wg sync.WaitGroup
	var errMu sync.Mutex
	var firstErr error

	for _, service := range group {
		entries := make(chan *zeroconf.ServiceEntry, 16)
		wg.Add(1)
		go func(entries <-chan *zeroconf.ServiceEntry) {
			defer wg.Done()
			for entry := range entries {
				deliver(entry)
			}
		}(entries)

		if err := resolver.Browse(groupCtx, service, browseDomain, entries); err != nil {
			b.log.Warnw("service browse failed", "service", service, "error", err)
			errMu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			errMu.Unlock()
		}
	}

	wg.Wait()
	return firstErr
}

// remainingShare splits what is left of the browse window evenly across the
// groups not yet run.
func remainingShare(ctx context.Context, groupsLeft int) time.Duration {
	if groupsLeft < 1 {
		groupsLeft = 1
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return defaultGroupWindow
	}
	left := time.Until(deadline)
	if left <= 0 {
		return 0
	}
	return left / time.Duration(groupsLeft)
}

// groupTypes batches the type list; each batch browses concurrently within
// its share of the window.
func groupTypes(types []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var groups [][]string
	for start := 0; start < len(types); start += size {
		end := start + size
		if end > len(types) {
			end = len(types)
		}
		groups = append(groups, types[start:end])
	}
	return groups
}

// typeName normalises a meta-query answer ("_http._tcp.local.") to a
// browsable service type ("_http._tcp"). Anything that does not look like a
// type is discarded.
func typeName(instance string) string {
	name := strings.TrimSuffix(strings.TrimSpace(instance), ".")
	name = strings.TrimSuffix(name, ".local")
	if !strings.HasPrefix(name, "_") {
		return ""
	}
	return name
}

// toRecord flattens a zeroconf entry. IPv4 wins; entries without one are
// dropped because the registry tracks IPv4 hosts.
func toRecord(entry *zeroconf.ServiceEntry) (scan.ServiceRecord, bool) {
	if entry == nil || len(entry.AddrIPv4) == 0 {
		return scan.ServiceRecord{}, false
	}

	record := scan.ServiceRecord{
		Address: entry.AddrIPv4[0].String(),
		Service: strings.TrimSuffix(entry.Service, "."),
		Port:    entry.Port,
		Text:    parseTXT(entry.Text),
	}
	record.Hostname = strings.TrimSuffix(entry.HostName, ".")
	if record.Hostname == "" {
		record.Hostname = instanceName(entry.Instance)
	}
	return record, true
}

// instanceName extracts the friendly name devices embed in their instance,
// dropping the "@ host" suffix some of them append.
func instanceName(instance string) string {
	if idx := strings.Index(instance, "@"); idx != -1 {
		instance = instance[:idx]
	}
	return strings.TrimSpace(instance)
}

// parseTXT decodes key=value attributes; bare keys map to "".
func parseTXT(txt []string) map[string]string {
	if len(txt) == 0 {
		return nil
	}
	text := make(map[string]string, len(txt))
	for _, raw := range txt {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		key, value, _ := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		text[key] = strings.TrimSpace(value)
	}
	if len(text) == 0 {
		return nil
	}
	return text
}
