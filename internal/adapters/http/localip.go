package http

import (
	"net"

	"github.com/rs/zerolog/log"
)

// Interfaces a LAN address is most likely to live on, tried first.
var interfacePriority = []string{"en0", "en1", "eth0", "eth1"}

// LocalIP picks the first non-loopback IPv4 address, preferring the usual
// primary interfaces. Falls back to localhost when the host has none.
func LocalIP() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("interface enumeration failed")
		return "127.0.0.1"
	}

	byName := make(map[string]net.Interface, len(ifaces))
	for _, iface := range ifaces {
		byName[iface.Name] = iface
	}

	for _, name := range interfacePriority {
		if iface, ok := byName[name]; ok {
			if ip := ipv4Of(iface); ip != "" {
				return ip
			}
		}
	}
	for _, iface := range ifaces {
		if ip := ipv4Of(iface); ip != "" {
			return ip
		}
	}

	log.Warn().Str("module", "adapters.http").Msg("no suitable network interface found, using localhost")
	return "127.0.0.1"
}

func ipv4Of(iface net.Interface) string {
	if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
		return ""
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil && !ip4.IsLoopback() {
			return ip4.String()
		}
	}
	return ""
}
