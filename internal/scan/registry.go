package scan

import (
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"netscout/internal/errors"
	"netscout/internal/logging"
)

// Registry is the shared store of host records. All mutation goes through
// Merge, which applies the per-field policies atomically: ports accumulate
// and never shrink, scalar fields are only overwritten by non-empty values,
// and service metadata merges key-wise with the newer value winning per key.
// Vendor and icon key are re-derived on every merge so they never go stale.
type Registry struct {
	resolver   *VendorResolver
	classifier *IconClassifier
	log        *zap.SugaredLogger

	mu    sync.Mutex
	hosts map[string]*HostRecord
	order []string

	// emitMu serialises update callbacks in merge order without holding mu
	// across the handler.
	emitMu   sync.Mutex
	onUpdate func(HostRecord)
}

// NewRegistry creates an empty registry using the given derivation helpers.
func NewRegistry(resolver *VendorResolver, classifier *IconClassifier) *Registry {
	return &Registry{
		resolver:   resolver,
		classifier: classifier,
		log:        logging.Component("registry"),
		hosts:      make(map[string]*HostRecord),
	}
}

// SetUpdateHandler installs the callback invoked with a full record snapshot
// after every merge that changed the record.
func (r *Registry) SetUpdateHandler(fn func(HostRecord)) {
	r.mu.Lock()
	r.onUpdate = fn
	r.mu.Unlock()
}

// Merge applies a partial update and returns the resulting canonical record.
// A delta with an unparsable address is rejected with a MalformedResult error
// and changes nothing.
func (r *Registry) Merge(delta HostDelta) (HostRecord, error) {
	ip := net.ParseIP(strings.TrimSpace(delta.Address))
	if ip == nil {
		err := errors.Newf(errors.CodeMalformedResult, "invalid address %q", delta.Address)
		r.log.Warnw("dropping malformed delta", "address", delta.Address, "source", delta.Source)
		return HostRecord{}, err
	}
	address := ip.String()

	r.mu.Lock()

	rec, exists := r.hosts[address]
	if !exists {
		rec = &HostRecord{Address: address, FirstSeen: time.Now()}
		r.hosts[address] = rec
		r.order = append(r.order, address)
	}
	changed := !exists

	if mac := normaliseMAC(delta.MAC); mac != "" && mac != rec.MAC {
		rec.MAC = mac
		changed = true
	}
	if hostname := cleanHostname(delta.Hostname); hostname != "" && hostname != rec.Hostname {
		rec.Hostname = hostname
		changed = true
	}
	if guess := strings.TrimSpace(delta.OSGuess); guess != "" && guess != rec.OSGuess {
		rec.OSGuess = guess
		changed = true
	}
	if hint := strings.TrimSpace(delta.VendorHint); hint != "" && hint != rec.vendorHint {
		rec.vendorHint = hint
		changed = true
	}
	if delta.LatencyMs > 0 && delta.LatencyMs != rec.LatencyMs {
		rec.LatencyMs = delta.LatencyMs
		changed = true
	}

	if len(delta.Ports) > 0 {
		set := make(map[int]struct{}, len(rec.Ports)+len(delta.Ports))
		for _, p := range rec.Ports {
			set[p] = struct{}{}
		}
		for _, p := range delta.Ports {
			if p < 1 || p > 65535 {
				continue
			}
			if _, ok := set[p]; !ok {
				set[p] = struct{}{}
				changed = true
			}
		}
		rec.Ports = sortedPorts(set)
	}

	for port, label := range delta.Services {
		if label == "" {
			continue
		}
		if rec.Services == nil {
			rec.Services = make(map[int]string)
		}
		if rec.Services[port] != label {
			rec.Services[port] = label
			changed = true
		}
	}

	for service, attrs := range delta.Metadata {
		if service == "" || len(attrs) == 0 {
			continue
		}
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]map[string]string)
		}
		existing := rec.Metadata[service]
		if existing == nil {
			existing = make(map[string]string, len(attrs))
			rec.Metadata[service] = existing
		}
		for key, value := range attrs {
			if value == "" {
				continue
			}
			if existing[key] != value {
				existing[key] = value
				changed = true
			}
		}
	}

	if delta.Source != "" && !containsString(rec.Sources, delta.Source) {
		rec.Sources = append(rec.Sources, delta.Source)
		changed = true
	}

	// Derived fields are recomputed on every merge so they stay consistent
	// with whatever combination of fields is now present.
	vendor, pinnedModel := r.resolver.Resolve(rec.MAC, rec.vendorHint)
	if vendor != "" && vendor != rec.Vendor {
		rec.Vendor = vendor
		changed = true
	}
	modelInput := delta.Model
	if strings.TrimSpace(modelInput) == "" {
		modelInput = rec.Model
	}
	if model := cleanModel(rec.Vendor, modelInput); model != "" && model != rec.Model {
		rec.Model = model
		changed = true
	}
	if pinnedModel != "" && pinnedModel != rec.Model {
		rec.Model = pinnedModel
		changed = true
	}
	if icon := r.classifier.Classify(rec.Vendor, rec.Model, rec.Hostname, rec.Metadata, rec.Ports); icon != rec.IconKey {
		rec.IconKey = icon
		changed = true
	}

	if changed {
		rec.LastUpdated = time.Now()
	}
	snapshot := copyRecord(rec)
	handler := r.onUpdate

	if changed && handler != nil {
		r.emitMu.Lock()
		r.mu.Unlock()
		handler(snapshot)
		r.emitMu.Unlock()
	} else {
		r.mu.Unlock()
	}

	return snapshot, nil
}

// Get returns a copy of the record for an address.
func (r *Registry) Get(address string) (HostRecord, bool) {
	if ip := net.ParseIP(strings.TrimSpace(address)); ip != nil {
		address = ip.String()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.hosts[address]
	if !ok {
		return HostRecord{}, false
	}
	return copyRecord(rec), true
}

// All returns copies of every record in first-seen order.
func (r *Registry) All() []HostRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]HostRecord, 0, len(r.order))
	for _, address := range r.order {
		out = append(out, copyRecord(r.hosts[address]))
	}
	return out
}

// Len returns the number of known hosts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Clear resets the registry for a new session.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.hosts = make(map[string]*HostRecord)
	r.order = nil
	r.mu.Unlock()
}

func copyRecord(rec *HostRecord) HostRecord {
	out := *rec
	if len(rec.Ports) > 0 {
		out.Ports = append([]int(nil), rec.Ports...)
	}
	if len(rec.Sources) > 0 {
		out.Sources = append([]string(nil), rec.Sources...)
	}
	if len(rec.Services) > 0 {
		out.Services = make(map[int]string, len(rec.Services))
		for port, label := range rec.Services {
			out.Services[port] = label
		}
	}
	if len(rec.Metadata) > 0 {
		out.Metadata = make(map[string]map[string]string, len(rec.Metadata))
		for service, attrs := range rec.Metadata {
			inner := make(map[string]string, len(attrs))
			for key, value := range attrs {
				inner[key] = value
			}
			out.Metadata[service] = inner
		}
	}
	return out
}
