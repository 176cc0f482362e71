package probe

import (
	"errors"
	"fmt"
	"net"
)

// ExpandTarget validates a sweep target and returns every IPv4 address it
// covers. Accepts a single dotted-quad address or a CIDR range.
func ExpandTarget(target string) ([]string, error) {
	if ip := net.ParseIP(target); ip != nil {
		ipv4 := ip.To4()
		if ipv4 == nil {
			return nil, fmt.Errorf("only IPv4 addresses are supported: %s", target)
		}
		return []string{ipv4.String()}, nil
	}

	ip, ipNet, err := net.ParseCIDR(target)
	if err != nil {
		return nil, fmt.Errorf("invalid target range: %w", err)
	}
	ipv4 := ip.To4()
	if ipv4 == nil {
		return nil, fmt.Errorf("only IPv4 ranges are supported: %s", target)
	}

	var addrs []string
	for current := ipv4.Mask(ipNet.Mask); ipNet.Contains(current); incrementIP(current) {
		copyIP := make(net.IP, len(current))
		copy(copyIP, current)
		addrs = append(addrs, copyIP.String())
	}
	return addrs, nil
}

func incrementIP(ip net.IP) {
	for j := len(ip) - 1; j >= 0; j-- {
		ip[j]++
		if ip[j] != 0 {
			break
		}
	}
}

// splitChunks partitions addrs into at most n contiguous groups of near-equal
// size. Ranges smaller than n collapse into fewer chunks so no chunk is ever
// empty.
func splitChunks(addrs []string, n int) [][]string {
	if len(addrs) == 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	if n > len(addrs) {
		n = len(addrs)
	}

	chunks := make([][]string, 0, n)
	size := len(addrs) / n
	rest := len(addrs) % n
	start := 0
	for i := 0; i < n; i++ {
		end := start + size
		if i < rest {
			end++
		}
		chunks = append(chunks, addrs[start:end])
		start = end
	}
	return chunks
}

// LocalSubnet guesses the /24 this machine lives on, for sweeps started
// without an explicit target.
func LocalSubnet() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", fmt.Errorf("list interface addresses: %w", err)
	}

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		ipv4 := ipNet.IP.To4()
		if ipv4 == nil {
			continue
		}
		masked := ipv4.Mask(net.CIDRMask(24, 32))
		return fmt.Sprintf("%s/24", masked), nil
	}
	return "", errors.New("no usable IPv4 interface found")
}
