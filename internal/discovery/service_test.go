package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go2tv.app/screencast/internal/ssdp"
)

type fakeDiscoverer struct {
	entries []ssdp.Entry
	err     error
	calls   atomic.Int32
	timeout time.Duration
	mu      sync.Mutex
}

func (f *fakeDiscoverer) Discover(ctx context.Context, timeout time.Duration) ([]ssdp.Entry, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.timeout = timeout
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]ssdp.Entry(nil), f.entries...), nil
}

const rendererSCPD = `<?xml version="1.0"?>
<scpd xmlns="urn:schemas-upnp-org:service-1-0">
  <actionList>
    <action><name>GetTransportInfo</name></action>
    <action><name>SetAVTransportURI</name></action>
    <action><name>Stop</name></action>
  </actionList>
</scpd>`

const volumeSCPD = `<?xml version="1.0"?>
<scpd xmlns="urn:schemas-upnp-org:service-1-0">
  <actionList>
    <action><name>GetVolume</name></action>
    <action><name>SetVolume</name></action>
  </actionList>
</scpd>`

func deviceXML(name, urlBase, services string) string {
	base := ""
	if urlBase != "" {
		base = "<URLBase>" + urlBase + "</URLBase>"
	}
	return fmt.Sprintf(`<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  %s
  <device>
    <deviceType>urn:schemas-upnp-org:device:MediaRenderer:1</deviceType>
    <friendlyName>%s</friendlyName>
    <manufacturer>Acme</manufacturer>
    <modelName>Model 7</modelName>
    <UDN>uuid:%s</UDN>
    %s
  </device>
</root>`, base, name, name, services)
}

func serviceXML(serviceType, scpdURL string) string {
	return fmt.Sprintf(`<serviceList><service>
      <serviceType>%s</serviceType>
      <serviceId>urn:upnp-org:serviceId:x</serviceId>
      <SCPDURL>%s</SCPDURL>
      <controlURL>/control</controlURL>
    </service></serviceList>`, serviceType, scpdURL)
}

// deviceServer serves a description at /desc.xml and SCPDs at the given paths.
func deviceServer(t *testing.T, description string, scpds map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/desc.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(description))
	})
	for path, body := range scpds {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/xml")
			_, _ = w.Write([]byte(body))
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func rendererServer(t *testing.T, name string) *httptest.Server {
	t.Helper()
	return deviceServer(t,
		deviceXML(name, "", serviceXML("urn:schemas-upnp-org:service:AVTransport:1", "/avt.xml")),
		map[string]string{"/avt.xml": rendererSCPD},
	)
}

func speakerServer(t *testing.T, name string) *httptest.Server {
	t.Helper()
	return deviceServer(t,
		deviceXML(name, "", serviceXML("urn:schemas-upnp-org:service:RenderingControl:1", "/rc.xml")),
		map[string]string{"/rc.xml": volumeSCPD},
	)
}

func entryFor(srv *httptest.Server, ip string) ssdp.Entry {
	return ssdp.Entry{Location: srv.URL + "/desc.xml", InterfaceIP: net.ParseIP(ip)}
}

func TestFindByName_PicksRendererWithSetAVTransportURI(t *testing.T) {
	living := rendererServer(t, "LivingRoomTV")
	kitchen := speakerServer(t, "Kitchen")

	disc := &fakeDiscoverer{entries: []ssdp.Entry{
		entryFor(kitchen, "192.168.1.2"),
		entryFor(living, "192.168.1.2"),
	}}
	svc := NewService(disc, time.Second, nil)

	got, err := svc.FindByName(context.Background(), "LivingRoomTV")
	if err != nil {
		t.Fatalf("find by name: %v", err)
	}
	if got == nil {
		t.Fatal("expected LivingRoomTV to be found")
	}
	if got.FriendlyName != "LivingRoomTV" || !got.HasSetAVTransportURI {
		t.Fatalf("unexpected renderer: %+v", got)
	}
	if got.Location != living.URL+"/desc.xml" {
		t.Fatalf("unexpected location %q", got.Location)
	}
	if !got.InterfaceIP.Equal(net.ParseIP("192.168.1.2")) {
		t.Fatalf("expected interface ip from entry, got %v", got.InterfaceIP)
	}
	if got.Manufacturer != "Acme" || got.ModelName != "Model 7" || got.UDN != "uuid:LivingRoomTV" {
		t.Fatalf("unexpected description fields: %+v", got)
	}

	kitchenMatch, err := svc.FindByName(context.Background(), "Kitchen")
	if err != nil {
		t.Fatalf("find kitchen: %v", err)
	}
	if kitchenMatch != nil {
		t.Fatalf("expected Kitchen to be filtered out, got %+v", kitchenMatch)
	}
}

func TestFindByName_AbsentIsNotAnError(t *testing.T) {
	living := rendererServer(t, "LivingRoomTV")
	disc := &fakeDiscoverer{entries: []ssdp.Entry{entryFor(living, "10.0.0.2")}}
	svc := NewService(disc, time.Second, nil)

	got, err := svc.FindByName(context.Background(), "Bedroom")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected no match, got %+v", got)
	}
}

func TestFindByName_FreshRoundPerCall(t *testing.T) {
	living := rendererServer(t, "LivingRoomTV")
	disc := &fakeDiscoverer{entries: []ssdp.Entry{entryFor(living, "10.0.0.2")}}
	svc := NewService(disc, 1500*time.Millisecond, nil)

	for i := 0; i < 3; i++ {
		if _, err := svc.FindByName(context.Background(), "LivingRoomTV"); err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
	}
	if got := disc.calls.Load(); got != 3 {
		t.Fatalf("expected 3 discovery rounds, got %d", got)
	}
	if disc.timeout != 1500*time.Millisecond {
		t.Fatalf("expected configured timeout to be passed through, got %v", disc.timeout)
	}
}

func TestFindByName_ReturnsFirstMatchInDiscoveryOrder(t *testing.T) {
	first := rendererServer(t, "TV")
	second := rendererServer(t, "TV")
	disc := &fakeDiscoverer{entries: []ssdp.Entry{entryFor(first, "10.0.0.2"), entryFor(second, "10.0.0.3")}}
	svc := NewService(disc, time.Second, nil)

	got, err := svc.FindByName(context.Background(), "TV")
	if err != nil {
		t.Fatalf("find by name: %v", err)
	}
	if got == nil || got.Location != first.URL+"/desc.xml" {
		t.Fatalf("expected first discovered match, got %+v", got)
	}
}

func TestFindByName_DiscoveryErrorPropagates(t *testing.T) {
	disc := &fakeDiscoverer{err: errors.New("no interfaces")}
	svc := NewService(disc, time.Second, nil)

	if _, err := svc.FindByName(context.Background(), "TV"); err == nil {
		t.Fatal("expected discovery error")
	}
}

func TestResolveAll_SkipsBrokenDescriptions(t *testing.T) {
	living := rendererServer(t, "LivingRoomTV")
	broken := deviceServer(t, "<root><device>", nil)
	missing := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(missing.Close)

	svc := NewService(&fakeDiscoverer{}, time.Second, nil)
	got := svc.ResolveAll(context.Background(), []ssdp.Entry{
		entryFor(broken, "10.0.0.2"),
		{Location: missing.URL + "/desc.xml", InterfaceIP: net.ParseIP("10.0.0.2")},
		{Location: "http://127.0.0.1:1/unreachable.xml", InterfaceIP: net.ParseIP("10.0.0.2")},
		entryFor(living, "10.0.0.2"),
	})

	if len(got) != 1 || got[0].FriendlyName != "LivingRoomTV" {
		t.Fatalf("expected only LivingRoomTV, got %+v", got)
	}
}

func TestResolveAll_PreservesEntryOrderAndDedupes(t *testing.T) {
	a := rendererServer(t, "A")
	b := rendererServer(t, "B")
	c := rendererServer(t, "C")

	svc := NewService(&fakeDiscoverer{}, time.Second, nil)
	got := svc.ResolveAll(context.Background(), []ssdp.Entry{
		entryFor(c, "10.0.0.2"),
		entryFor(a, "10.0.0.2"),
		entryFor(c, "10.0.0.3"),
		entryFor(b, "10.0.0.2"),
	})

	names := make([]string, 0, len(got))
	for _, r := range got {
		names = append(names, r.FriendlyName)
	}
	if fmt.Sprint(names) != "[C A B]" {
		t.Fatalf("unexpected order %v", names)
	}
	if !got[0].InterfaceIP.Equal(net.ParseIP("10.0.0.2")) {
		t.Fatalf("expected first sighting interface, got %v", got[0].InterfaceIP)
	}
}

func TestResolveAll_ResolvesURLBaseAndEmbeddedDevices(t *testing.T) {
	scpdHost := deviceServer(t, "", map[string]string{"/upnp/avt.xml": rendererSCPD})

	embedded := `<deviceList><device>
      <deviceType>urn:schemas-upnp-org:device:MediaRenderer:1</deviceType>
      <friendlyName>inner</friendlyName>
      ` + serviceXML("urn:schemas-upnp-org:service:AVTransport:1", "upnp/avt.xml") + `
    </device></deviceList>`
	desc := deviceXML("Receiver", scpdHost.URL+"/", serviceXML("urn:schemas-upnp-org:service:ConnectionManager:1", "")+embedded)
	root := deviceServer(t, desc, nil)

	svc := NewService(&fakeDiscoverer{}, time.Second, nil)
	got := svc.ResolveAll(context.Background(), []ssdp.Entry{entryFor(root, "10.0.0.2")})

	if len(got) != 1 {
		t.Fatalf("expected embedded AVTransport to qualify the device, got %+v", got)
	}
	if got[0].FriendlyName != "Receiver" {
		t.Fatalf("expected root friendly name, got %q", got[0].FriendlyName)
	}
}

func TestListRenderers_SortsByName(t *testing.T) {
	z := rendererServer(t, "zeta")
	a := rendererServer(t, "Alpha")
	disc := &fakeDiscoverer{entries: []ssdp.Entry{entryFor(z, "10.0.0.2"), entryFor(a, "10.0.0.2")}}
	svc := NewService(disc, time.Second, nil)

	got, err := svc.ListRenderers(context.Background())
	if err != nil {
		t.Fatalf("list renderers: %v", err)
	}
	if len(got) != 2 || got[0].FriendlyName != "Alpha" || got[1].FriendlyName != "zeta" {
		t.Fatalf("unexpected listing %+v", got)
	}
}

func TestResolveReference(t *testing.T) {
	tests := []struct {
		base, ref, want string
	}{
		{"http://10.0.0.5:1900/desc.xml", "/avt.xml", "http://10.0.0.5:1900/avt.xml"},
		{"http://10.0.0.5:1900/dev/desc.xml", "avt.xml", "http://10.0.0.5:1900/dev/avt.xml"},
		{"http://10.0.0.5:1900/", "http://10.0.0.6/x.xml", "http://10.0.0.6/x.xml"},
	}
	for _, tc := range tests {
		got, err := resolveReference(tc.base, tc.ref)
		if err != nil {
			t.Fatalf("resolve %q against %q: %v", tc.ref, tc.base, err)
		}
		if got != tc.want {
			t.Fatalf("resolve %q against %q: got %q want %q", tc.ref, tc.base, got, tc.want)
		}
	}
	if _, err := resolveReference("http://x/", "  "); err == nil {
		t.Fatal("expected error for empty reference")
	}
}
