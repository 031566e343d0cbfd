package discovery

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const (
	actionSetAVTransportURI = "SetAVTransportURI"
	avTransportServicePart  = ":service:AVTransport:"

	descriptionTimeout  = 3 * time.Second
	maxDescriptionBytes = 1 << 20
)

type descriptionRoot struct {
	XMLName xml.Name          `xml:"root"`
	URLBase string            `xml:"URLBase"`
	Device  deviceDescription `xml:"device"`
}

type deviceDescription struct {
	DeviceType   string               `xml:"deviceType"`
	FriendlyName string               `xml:"friendlyName"`
	Manufacturer string               `xml:"manufacturer"`
	ModelName    string               `xml:"modelName"`
	UDN          string               `xml:"UDN"`
	Services     []serviceDescription `xml:"serviceList>service"`
	Devices      []deviceDescription  `xml:"deviceList>device"`
}

type serviceDescription struct {
	ServiceType string `xml:"serviceType"`
	ServiceID   string `xml:"serviceId"`
	SCPDURL     string `xml:"SCPDURL"`
	ControlURL  string `xml:"controlURL"`
}

type serviceSCPD struct {
	Actions []struct {
		Name string `xml:"name"`
	} `xml:"actionList>action"`
}

func (s serviceDescription) isAVTransport() bool {
	return strings.Contains(s.ServiceType, avTransportServicePart)
}

// allServices walks the root device and every embedded device.
func (d deviceDescription) allServices() []serviceDescription {
	out := append([]serviceDescription{}, d.Services...)
	for _, child := range d.Devices {
		out = append(out, child.allServices()...)
	}
	return out
}

// leveledLogger adapts zap to retryablehttp's LeveledLogger.
type leveledLogger struct {
	sugar *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

var _ retryablehttp.LeveledLogger = leveledLogger{}

func newHTTPClient(logger *zap.Logger) *http.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 500 * time.Millisecond
	client.HTTPClient.Timeout = descriptionTimeout
	client.Logger = leveledLogger{sugar: logger.Sugar()}
	return client.StandardClient()
}

func fetchXML(ctx context.Context, client *http.Client, target string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", target, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := xml.NewDecoder(io.LimitReader(resp.Body, maxDescriptionBytes)).Decode(into); err != nil {
		return fmt.Errorf("decode %s: %w", target, err)
	}
	return nil
}

// resolveReference resolves a possibly relative description URL.
func resolveReference(base, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty url reference")
	}
	baseURL, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", ref, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// orderedServices puts AVTransport services first so the action lookup
// usually ends after one SCPD fetch.
func orderedServices(root *descriptionRoot) []serviceDescription {
	services := root.Device.allServices()
	sort.SliceStable(services, func(i, j int) bool {
		return services[i].isAVTransport() && !services[j].isAVTransport()
	})
	return services
}
