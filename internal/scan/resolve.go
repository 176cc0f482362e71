package scan

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// modelHintKeys are the TXT attributes devices use to advertise their model,
// checked in order of reliability.
var modelHintKeys = []string{"model", "md", "am", "ty", "product"}

// resolveWorker drives the multicast service-discovery phase. Resolution has
// no natural end, so the worker bounds itself with the configured window;
// reaching the window is normal completion. Like the sweep worker it emits
// exactly one terminal callback per run.
type resolveWorker struct {
	browser  Browser
	registry *Registry
	window   time.Duration
	log      *zap.SugaredLogger

	onDone func(error)
	once   sync.Once
}

func newResolveWorker(browser Browser, registry *Registry, window time.Duration, log *zap.SugaredLogger, onDone func(error)) *resolveWorker {
	return &resolveWorker{
		browser:  browser,
		registry: registry,
		window:   window,
		log:      log,
		onDone:   onDone,
	}
}

func (w *resolveWorker) run(ctx context.Context) {
	browseCtx, cancel := context.WithTimeout(ctx, w.window)
	defer cancel()

	err := w.browser.Browse(browseCtx, w.handleRecord)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	w.finish(err)
}

func (w *resolveWorker) handleRecord(record ServiceRecord) {
	delta := HostDelta{
		Address:  record.Address,
		Hostname: record.Hostname,
		Source:   "mdns",
	}

	if record.Service != "" && len(record.Text) > 0 {
		delta.Metadata = map[string]map[string]string{record.Service: record.Text}
	}
	delta.Model = mineModelHint(record.Text)
	if hint := record.Text["vn"]; hint != "" {
		delta.VendorHint = hint
	} else if hint := record.Text["usb_MFG"]; hint != "" {
		delta.VendorHint = hint
	}
	if record.Port > 0 {
		delta.Ports = []int{record.Port}
		if label := serviceLabel(record.Service); label != "" {
			delta.Services = map[int]string{record.Port: label}
		}
	}

	if _, err := w.registry.Merge(delta); err != nil {
		w.log.Warnw("service record rejected", "address", record.Address, "service", record.Service, "error", err)
	}
}

func (w *resolveWorker) finish(err error) {
	w.once.Do(func() {
		if err != nil {
			w.log.Warnw("resolution phase ended with error", "error", err)
		}
		w.onDone(err)
	})
}

// mineModelHint extracts a model candidate from TXT attributes. The registry
// cleans the value against the resolved vendor.
func mineModelHint(text map[string]string) string {
	for _, key := range modelHintKeys {
		if value := strings.TrimSpace(text[key]); value != "" {
			if _, junk := junkModels[strings.ToLower(value)]; !junk {
				return value
			}
		}
	}
	return ""
}

// serviceLabel shortens an mDNS service type to a port label:
// "_ipp._tcp" becomes "ipp".
func serviceLabel(service string) string {
	label := strings.TrimPrefix(strings.ToLower(service), "_")
	for _, suffix := range []string{"._tcp", "._udp"} {
		if idx := strings.Index(label, suffix); idx > 0 {
			label = label[:idx]
			break
		}
	}
	return strings.TrimSuffix(label, ".")
}
