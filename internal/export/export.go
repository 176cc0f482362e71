// Package export renders a finished host set as JSON or CSV and derives
// connect hints from open ports.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"netscout/internal/scan"
)

// Document is the JSON export payload.
type Document struct {
	GeneratedAt time.Time         `json:"generated_at"`
	HostCount   int               `json:"host_count"`
	Hosts       []scan.HostRecord `json:"hosts"`
}

// WriteJSON writes the host set to w as an indented JSON document.
func WriteJSON(w io.Writer, hosts []scan.HostRecord) error {
	doc := Document{
		GeneratedAt: time.Now().UTC(),
		HostCount:   len(hosts),
		Hosts:       hosts,
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}

var csvHeader = []string{
	"address", "hostname", "mac", "vendor", "model", "os", "icon",
	"latency_ms", "ports", "services", "sources", "first_seen", "last_updated",
}

// WriteCSV writes the host set to w as CSV, one row per host. List-valued
// fields are joined with semicolons.
func WriteCSV(w io.Writer, hosts []scan.HostRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, rec := range hosts {
		if err := writer.Write(csvRow(rec)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func csvRow(rec scan.HostRecord) []string {
	return []string{
		rec.Address,
		rec.Hostname,
		rec.MAC,
		rec.Vendor,
		rec.Model,
		rec.OSGuess,
		rec.IconKey,
		formatLatency(rec.LatencyMs),
		joinPorts(rec.Ports),
		joinServices(rec.Services),
		strings.Join(rec.Sources, ";"),
		formatTime(rec.FirstSeen),
		formatTime(rec.LastUpdated),
	}
}

func formatLatency(ms float64) string {
	if ms <= 0 {
		return ""
	}
	return strconv.FormatFloat(ms, 'f', 1, 64)
}

func joinPorts(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ";")
}

func joinServices(services map[int]string) string {
	if len(services) == 0 {
		return ""
	}
	ports := make([]int, 0, len(services))
	for p := range services {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		label := services[p]
		if label == "" {
			parts = append(parts, strconv.Itoa(p))
			continue
		}
		parts = append(parts, strconv.Itoa(p)+"="+label)
	}
	return strings.Join(parts, ";")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Hint is one way to reach a host, derived from an open port.
type Hint struct {
	Name string `json:"name"`
	Port int    `json:"port"`
	URL  string `json:"url"`
}

type connectRule struct {
	name string
	port int
	url  func(host string) string
}

var connectRules = []connectRule{
	{"HTTP", 80, func(h string) string { return "http://" + h }},
	{"HTTPS", 443, func(h string) string { return "https://" + h }},
	{"SSH", 22, func(h string) string { return "ssh://" + h }},
	{"SFTP", 22, func(h string) string { return "sftp://" + h }},
	{"SMB Share", 445, func(h string) string { return "smb://" + h }},
	{"SMB Share", 139, func(h string) string { return "smb://" + h }},
	{"CUPS", 631, func(h string) string { return "http://" + h + ":631" }},
	{"VNC", 5900, func(h string) string { return "vnc://" + h }},
	{"RDP", 3389, func(h string) string { return "rdp://" + h }},
	{"Webmin", 10000, func(h string) string { return "https://" + h + ":10000" }},
}

// ConnectHints lists launcher URLs for the services a host exposes, in a
// stable menu order. Ports that resolve to the same URL yield one hint.
func ConnectHints(rec scan.HostRecord) []Hint {
	var hints []Hint
	seen := make(map[string]bool)
	for _, rule := range connectRules {
		if !rec.HasPort(rule.port) {
			continue
		}
		url := rule.url(rec.Address)
		if seen[url] {
			continue
		}
		seen[url] = true
		hints = append(hints, Hint{Name: rule.name, Port: rule.port, URL: url})
	}
	return hints
}
