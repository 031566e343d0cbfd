package ssdp

import (
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/ipv4"
)

// Interface is a local IPv4 address usable for a discovery socket.
type Interface struct {
	Name string
	IP   net.IP

	iface *net.Interface
}

var listInterfaces = localIPv4Interfaces

// Interfaces lists the local addresses a discovery round would probe.
func Interfaces() ([]Interface, error) {
	return listInterfaces()
}

type Prober struct {
	Target *net.UDPAddr
	MX     int

	// Listen opens the socket for one interface. Tests swap it for
	// loopback listeners.
	Listen func(ifc Interface, ttl int) (net.PacketConn, error)

	logger *zap.Logger
}

func NewProber(logger *zap.Logger) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{
		Target: Target,
		MX:     DefaultMX,
		Listen: listenMulticast,
		logger: logger,
	}
}

// Begin opens one socket per usable local IPv4 address and sends both
// search requests on each. Interfaces that cannot be bound or cannot send
// are dropped; the returned sockets are owned by the caller.
func (p *Prober) Begin(deadline time.Time) ([]*Socket, error) {
	ifaces, err := listInterfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	mx := p.MX
	if mx <= 0 {
		mx = DefaultMX
	}
	listen := p.Listen
	if listen == nil {
		listen = listenMulticast
	}

	sockets := make([]*Socket, 0, len(ifaces))
	for _, ifc := range ifaces {
		conn, err := listen(ifc, mx)
		if err != nil {
			p.logger.Debug("ssdp_interface_unavailable",
				zap.String("interface", ifc.Name),
				zap.Stringer("ip", ifc.IP),
				zap.Error(err),
			)
			continue
		}
		sockets = append(sockets, NewSocket(conn, ifc.IP, ifc.Name))
	}

	requests := [][]byte{
		SearchRequest(SearchAll, mx),
		SearchRequest(SearchRootDevice, mx),
	}
	open := sockets[:0]
	for _, sock := range sockets {
		if err := p.send(sock, requests, deadline); err != nil {
			p.logger.Debug("ssdp_search_send_failed",
				zap.Stringer("socket", sock),
				zap.Error(err),
			)
			_ = sock.Close()
			continue
		}
		open = append(open, sock)
	}
	return open, nil
}

func (p *Prober) send(sock *Socket, requests [][]byte, deadline time.Time) error {
	target := p.Target
	if target == nil {
		target = Target
	}
	if !deadline.IsZero() {
		if err := sock.Conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	for _, req := range requests {
		if _, err := sock.Conn.WriteTo(req, target); err != nil {
			return err
		}
	}
	return nil
}

func listenMulticast(ifc Interface, ttl int) (net.PacketConn, error) {
	conn, err := net.ListenPacket("udp4", net.JoinHostPort(ifc.IP.String(), "0"))
	if err != nil {
		return nil, err
	}

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastTTL(ttl); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set multicast ttl: %w", err)
	}
	if ifc.iface != nil {
		// Routing picks an egress interface when this fails.
		_ = pc.SetMulticastInterface(ifc.iface)
	}
	return conn, nil
}

func localIPv4Interfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	out := make([]Interface, 0, len(ifaces))
	for i := range ifaces {
		iface := ifaces[i]
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		if iface.Flags&(net.FlagMulticast|net.FlagLoopback) == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			out = append(out, Interface{Name: iface.Name, IP: ip4, iface: &iface})
		}
	}
	return out, nil
}
