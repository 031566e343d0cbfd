package domain

import "net"

// Renderer is a UPnP media renderer resolved from an SSDP location.
type Renderer struct {
	Location     string `json:"location"`
	FriendlyName string `json:"friendly_name"`
	InterfaceIP  net.IP `json:"interface_ip"`
	UDN          string `json:"udn,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	ModelName    string `json:"model_name,omitempty"`

	HasSetAVTransportURI bool `json:"has_set_av_transport_uri"`
}

// CallbackHost is the address the renderer must use to reach this host.
func (r *Renderer) CallbackHost() string {
	if r == nil || r.InterfaceIP == nil {
		return ""
	}
	return r.InterfaceIP.String()
}
