// Package ssdp runs bounded SSDP discovery rounds over every local IPv4
// interface and reports the device description locations that answered.
//
// A round is split in two halves. The Prober opens one UDP socket per
// interface and sends the M-SEARCH requests; the Collector then reads the
// answers until the round deadline passes or every socket failed. Sockets
// belong to exactly one round and are always closed before Collect returns.
package ssdp

import (
	"fmt"
	"net"
	"strings"
	"sync"
)

const (
	MulticastAddr = "239.255.255.250"
	MulticastPort = 1900

	SearchAll        = "ssdp:all"
	SearchRootDevice = "upnp:rootdevice"

	// DefaultMX is both the MX header value and the multicast TTL.
	DefaultMX = 2

	maxDatagram = 1024
)

// Target is the standard SSDP multicast group.
var Target = &net.UDPAddr{IP: net.ParseIP(MulticastAddr).To4(), Port: MulticastPort}

// Entry is one distinct description location seen during a round, tagged
// with the local address of the socket that received it.
type Entry struct {
	Location    string `json:"location"`
	InterfaceIP net.IP `json:"interface_ip"`
}

func (e Entry) String() string {
	return fmt.Sprintf("%s via %s", e.Location, e.InterfaceIP)
}

// Socket is a UDP socket bound to one local IPv4 address.
type Socket struct {
	Conn      net.PacketConn
	IP        net.IP
	Interface string

	closeOnce sync.Once
	closeErr  error
}

func NewSocket(conn net.PacketConn, ip net.IP, iface string) *Socket {
	return &Socket{Conn: conn, IP: ip, Interface: iface}
}

// Close releases the socket; repeated calls return the first result.
func (s *Socket) Close() error {
	if s == nil || s.Conn == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.closeErr = s.Conn.Close()
	})
	return s.closeErr
}

func (s *Socket) String() string {
	if s.Interface == "" {
		return s.IP.String()
	}
	return s.Interface + "/" + s.IP.String()
}

func closeAll(sockets []*Socket) {
	for _, s := range sockets {
		_ = s.Close()
	}
}

// SearchRequest renders an M-SEARCH request for the given search target.
func SearchRequest(st string, mx int) []byte {
	lines := []string{
		"M-SEARCH * HTTP/1.1",
		fmt.Sprintf("HOST: %s:%d", MulticastAddr, MulticastPort),
		`MAN: "ssdp:discover"`,
		fmt.Sprintf("MX: %d", mx),
		"ST: " + st,
		"",
		"",
	}
	return []byte(strings.Join(lines, "\r\n"))
}

// ParseLocation extracts the LOCATION header value from an SSDP response.
// Header names match case-insensitively and the value is the first
// whitespace-delimited token after the colon.
func ParseLocation(payload []byte) (string, bool) {
	for _, line := range strings.Split(string(payload), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "location") {
			continue
		}
		fields := strings.Fields(value)
		if len(fields) == 0 {
			continue
		}
		return fields[0], true
	}
	return "", false
}
