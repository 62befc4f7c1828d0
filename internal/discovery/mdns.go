// Package discovery advertises a running hub on the local network over mDNS
// and lets clients find it.
package discovery

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the mDNS service the hub advertises.
const ServiceType = "_whiteboard._tcp"

// DefaultBrowseTimeout bounds a Browse call when no timeout is given.
const DefaultBrowseTimeout = 3 * time.Second

// Advertiser answers mDNS queries for one hub until Shutdown.
type Advertiser struct {
	server  *mdns.Server
	service *mdns.MDNSService
}

// NewService builds the mDNS record set for a hub listening on port. An empty
// instance uses the host name; nil ips uses the first up, non-loopback IPv4
// address.
func NewService(instance string, port int, ips []net.IP) (*mdns.MDNSService, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("could not get hostname: %w", err)
	}
	if instance == "" {
		instance = host
	}
	if len(ips) == 0 {
		ips = []net.IP{firstIPv4()}
	}

	hostName := strings.TrimSuffix(host, ".") + "."
	service, err := mdns.NewMDNSService(instance, ServiceType, "", hostName, port, ips, []string{"whiteboard"})
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	return service, nil
}

// Advertise starts answering mDNS queries for the hub.
func Advertise(instance string, port int) (*Advertiser, error) {
	service, err := NewService(instance, port, nil)
	if err != nil {
		return nil, err
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	return &Advertiser{server: server, service: service}, nil
}

// Instance returns the advertised instance name.
func (a *Advertiser) Instance() string {
	return a.service.Instance
}

// Shutdown stops answering queries.
func (a *Advertiser) Shutdown() error {
	return a.server.Shutdown()
}

// Browse queries the local network for hubs and returns their host:port
// addresses in the order they answered.
func Browse(timeout time.Duration) ([]string, error) {
	if timeout <= 0 {
		timeout = DefaultBrowseTimeout
	}

	entries := make(chan *mdns.ServiceEntry, 8)
	done := make(chan []string)
	go func() {
		var addrs []string
		seen := make(map[string]bool)
		for e := range entries {
			addr, ok := entryAddr(e)
			if !ok || seen[addr] {
				continue
			}
			seen[addr] = true
			addrs = append(addrs, addr)
		}
		done <- addrs
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true

	err := mdns.Query(params)
	close(entries)
	addrs := <-done
	if err != nil {
		return nil, fmt.Errorf("mDNS query failed: %w", err)
	}
	return addrs, nil
}

func entryAddr(e *mdns.ServiceEntry) (string, bool) {
	if e == nil || e.AddrV4 == nil || e.Port == 0 {
		return "", false
	}
	return net.JoinHostPort(e.AddrV4.String(), fmt.Sprint(e.Port)), true
}

func firstIPv4() net.IP {
	ifaces, _ := net.Interfaces()
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, _ := iface.Addrs()
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return ipnet.IP.To4()
			}
		}
	}
	return net.IPv4(127, 0, 0, 1)
}
