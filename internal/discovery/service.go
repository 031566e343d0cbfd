package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go2tv.app/screencast/internal/domain"
	"go2tv.app/screencast/internal/ssdp"
)

const defaultFetchConcurrency = 4

type entryDiscoverer interface {
	Discover(ctx context.Context, timeout time.Duration) ([]ssdp.Entry, error)
}

// Service turns SSDP entries into renderers that accept SetAVTransportURI.
type Service struct {
	discoverer entryDiscoverer
	timeout    time.Duration
	client     *http.Client
	logger     *zap.Logger

	fetchConcurrency int
}

func NewService(discoverer entryDiscoverer, timeout time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = ssdp.DefaultTimeout
	}

	return &Service{
		discoverer:       discoverer,
		timeout:          timeout,
		client:           newHTTPClient(logger),
		logger:           logger,
		fetchConcurrency: defaultFetchConcurrency,
	}
}

// ResolveAll fetches the description behind every entry and keeps the
// devices exposing SetAVTransportURI, in entry order. Entries that cannot
// be fetched or parsed are logged and skipped.
func (s *Service) ResolveAll(ctx context.Context, entries []ssdp.Entry) []domain.Renderer {
	unique := make([]ssdp.Entry, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if _, ok := seen[entry.Location]; ok {
			continue
		}
		seen[entry.Location] = struct{}{}
		unique = append(unique, entry)
	}

	resolved := make([]*domain.Renderer, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetchConcurrency)
	for i, entry := range unique {
		g.Go(func() error {
			renderer, err := s.resolve(gctx, entry)
			if err != nil {
				s.logger.Warn("device_description_skipped",
					zap.String("location", entry.Location),
					zap.Error(err),
				)
				return nil
			}
			resolved[i] = renderer
			return nil
		})
	}
	_ = g.Wait()

	renderers := make([]domain.Renderer, 0, len(resolved))
	for _, r := range resolved {
		if r == nil {
			continue
		}
		if !r.HasSetAVTransportURI {
			s.logger.Debug("device_not_a_renderer",
				zap.String("location", r.Location),
				zap.String("friendly_name", r.FriendlyName),
			)
			continue
		}
		renderers = append(renderers, *r)
	}
	return renderers
}

// FindByName runs a fresh discovery round and returns the first renderer
// whose friendly name matches exactly. A nil renderer with a nil error
// means nothing matched.
func (s *Service) FindByName(ctx context.Context, name string) (*domain.Renderer, error) {
	if name == "" {
		return nil, nil
	}

	renderers, err := s.discover(ctx)
	if err != nil {
		return nil, err
	}
	for i := range renderers {
		if renderers[i].FriendlyName == name {
			return &renderers[i], nil
		}
	}

	s.logger.Info("renderer_not_found",
		zap.String("name", name),
		zap.Int("renderers", len(renderers)),
	)
	return nil, nil
}

// ListRenderers runs a fresh discovery round and returns the renderers
// sorted by friendly name.
func (s *Service) ListRenderers(ctx context.Context) ([]domain.Renderer, error) {
	renderers, err := s.discover(ctx)
	if err != nil {
		return nil, err
	}
	sortRenderers(renderers)
	return renderers, nil
}

func (s *Service) discover(ctx context.Context) ([]domain.Renderer, error) {
	if s.discoverer == nil {
		return nil, errors.New("discovery is not configured")
	}

	entries, err := s.discoverer.Discover(ctx, s.timeout)
	if err != nil {
		return nil, fmt.Errorf("discovery round: %w", err)
	}
	return s.ResolveAll(ctx, entries), nil
}

func (s *Service) resolve(ctx context.Context, entry ssdp.Entry) (*domain.Renderer, error) {
	var root descriptionRoot
	if err := fetchXML(ctx, s.client, entry.Location, &root); err != nil {
		return nil, err
	}

	base := entry.Location
	if strings.TrimSpace(root.URLBase) != "" {
		base = root.URLBase
	}

	renderer := &domain.Renderer{
		Location:     entry.Location,
		FriendlyName: strings.TrimSpace(root.Device.FriendlyName),
		InterfaceIP:  entry.InterfaceIP,
		UDN:          strings.TrimSpace(root.Device.UDN),
		Manufacturer: strings.TrimSpace(root.Device.Manufacturer),
		ModelName:    strings.TrimSpace(root.Device.ModelName),
	}
	renderer.HasSetAVTransportURI = s.hasAction(ctx, base, orderedServices(&root), actionSetAVTransportURI)
	return renderer, nil
}

func (s *Service) hasAction(ctx context.Context, base string, services []serviceDescription, action string) bool {
	for _, svc := range services {
		if strings.TrimSpace(svc.SCPDURL) == "" {
			continue
		}
		scpdURL, err := resolveReference(base, svc.SCPDURL)
		if err != nil {
			s.logger.Debug("scpd_url_invalid", zap.String("service", svc.ServiceType), zap.Error(err))
			continue
		}

		var doc serviceSCPD
		if err := fetchXML(ctx, s.client, scpdURL, &doc); err != nil {
			s.logger.Debug("scpd_fetch_failed", zap.String("url", scpdURL), zap.Error(err))
			continue
		}
		for _, a := range doc.Actions {
			if strings.TrimSpace(a.Name) == action {
				return true
			}
		}
	}
	return false
}

func sortRenderers(all []domain.Renderer) {
	sort.SliceStable(all, func(i, j int) bool {
		if strings.ToLower(all[i].FriendlyName) != strings.ToLower(all[j].FriendlyName) {
			return strings.ToLower(all[i].FriendlyName) < strings.ToLower(all[j].FriendlyName)
		}
		return all[i].Location < all[j].Location
	})
}
