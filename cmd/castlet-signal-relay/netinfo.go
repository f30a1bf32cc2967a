package main

import (
	"log/slog"
	"net"
	"strconv"
)

// logListenAddresses logs where the relay can be reached. When bound to an
// unspecified address (0.0.0.0 / ::) it enumerates the host's non-loopback
// interface addresses so an operator can hand a reachable URL to clients.
func logListenAddresses(logger *slog.Logger, addr net.Addr) {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok || !tcp.IP.IsUnspecified() {
		logger.Info("listening", "addr", addr.String())
		return
	}

	port := strconv.Itoa(tcp.Port)
	addrs := localAddresses()
	if len(addrs) == 0 {
		logger.Info("listening", "addr", addr.String())
		return
	}

	hosts := make([]string, 0, len(addrs))
	for _, ip := range addrs {
		hosts = append(hosts, net.JoinHostPort(ip.String(), port))
	}
	logger.Info("listening", "addr", addr.String(), "reachable", hosts)
}

func localAddresses() []net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var out []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok || ipNet.IP.IsLoopback() || ipNet.IP.IsLinkLocalUnicast() {
				continue
			}
			if v4 := ipNet.IP.To4(); v4 != nil {
				out = append(out, v4)
			}
		}
	}
	return out
}
