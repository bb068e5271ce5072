// Package planner resolves playback requests into concrete stream plans. For
// every request it negotiates a delivery mode against the playback policy,
// walks the configured endpoint and credential candidates until one yields
// usable technical metadata, and emits a fully formed URL the player can hit
// directly. The planner is stateless between requests except for a bounded
// technical-metadata cache and the sticky record of the last endpoint that
// worked.
package planner

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/maypok86/otter/v2"

	"teleloop/work/config"
	"teleloop/work/logger"
	"teleloop/work/metrics"
	"teleloop/work/types"
	"teleloop/work/utils"
)

// MetadataFetcher is the planner's view of the catalog client: a live
// technical-metadata probe against one specific endpoint and credential.
type MetadataFetcher interface {
	FetchTechnicalMetadata(ctx context.Context, endpoint string, token types.Token, itemID string) (types.TechnicalMetadata, error)
	CurrentSession() types.Session
}

// techCacheSize bounds the technical-metadata cache; entries are small and
// re-fetching is cheap, so the cap mostly guards against unbounded item ids.
const techCacheSize = 2048

// Planner negotiates and resolves stream plans.
type Planner struct {
	cfg     *config.Config
	fetcher MetadataFetcher
	tech    *otter.Cache[string, types.TechnicalMetadata]
	sticky  atomic.Pointer[string] // last endpoint that produced a working plan
	prober  *Prober                // optional master-playlist prober, nil disables probing
}

// New builds a planner. The prober may be nil when master-playlist probing is
// disabled in configuration.
func New(cfg *config.Config, fetcher MetadataFetcher, prober *Prober) *Planner {
	tech := otter.Must(&otter.Options[string, types.TechnicalMetadata]{
		MaximumSize:      techCacheSize,
		ExpiryCalculator: otter.ExpiryWriting[string, types.TechnicalMetadata](cfg.SnapshotTTL),
	})
	return &Planner{
		cfg:     cfg,
		fetcher: fetcher,
		tech:    tech,
		prober:  prober,
	}
}

// ResolvePlan produces a stream plan for one item starting at the given
// offset in seconds.
//
// Candidate walking order: the sticky endpoint (when one is recorded) is
// tried before the configured order, and for each endpoint every credential
// is tried server-token first. An unauthorized response moves to the next
// credential on the same endpoint; any other failure abandons the endpoint
// entirely, since a host that cannot serve metadata will not serve media
// either. The first (endpoint, token) pair that yields technical metadata
// wins and is promoted to sticky for subsequent requests.
func (p *Planner) ResolvePlan(ctx context.Context, itemID string, offset float64, opts types.PlanOptions) (types.StreamPlan, error) {
	session := p.fetcher.CurrentSession()
	if len(session.Endpoints) == 0 {
		return types.StreamPlan{}, types.NewError(types.ErrInvalidURL, "no endpoints configured")
	}
	if len(session.Tokens) == 0 {
		return types.StreamPlan{}, types.NewError(types.ErrUnauthorized, "no credentials configured")
	}

	endpoints := p.orderedEndpoints(session.Endpoints)

	var lastErr error
	for _, endpoint := range endpoints {
		for _, token := range session.Tokens {
			tech, err := p.technical(ctx, endpoint, token, itemID)
			if err != nil {
				lastErr = err
				kind := types.KindOf(err)
				logger.Debug("{planner/planner - ResolvePlan} Metadata for %s via %s (%s token) failed: %v", itemID, utils.LogURL(p.cfg.ObfuscateUrls, endpoint), token.Class, err)
				if kind == types.ErrUnauthorized {
					continue // next credential, same endpoint
				}
				break // next endpoint
			}

			plan, err := p.buildPlan(ctx, endpoint, token, itemID, offset, opts, tech, session.DeviceID)
			if err != nil {
				metrics.PlanFailures.WithLabelValues(string(types.KindOf(err))).Inc()
				return types.StreamPlan{}, err
			}

			p.sticky.Store(&endpoint)
			metrics.PlansResolved.WithLabelValues(string(plan.Mode)).Inc()
			logger.Debug("{planner/planner - ResolvePlan} Plan for %s: %s via %s (%s)", itemID, plan.Mode, utils.LogURL(p.cfg.ObfuscateUrls, endpoint), plan.Reason)
			return plan, nil
		}
	}

	metrics.PlanFailures.WithLabelValues(string(types.KindOf(lastErr))).Inc()
	return types.StreamPlan{}, fmt.Errorf("all endpoints exhausted resolving %s: %w", itemID, lastErr)
}

// orderedEndpoints returns the endpoint candidates with the sticky endpoint
// promoted to the front when it is still configured.
func (p *Planner) orderedEndpoints(configured []string) []string {
	preferred := p.sticky.Load()
	if preferred == nil {
		return configured
	}
	ordered := make([]string, 0, len(configured))
	for _, e := range configured {
		if e == *preferred {
			ordered = append([]string{e}, ordered...)
		} else {
			ordered = append(ordered, e)
		}
	}
	return ordered
}

// technical returns item technical metadata, consulting the bounded cache
// first. Only successful fetches are cached; failures always retry.
func (p *Planner) technical(ctx context.Context, endpoint string, token types.Token, itemID string) (types.TechnicalMetadata, error) {
	if tech, ok := p.tech.GetIfPresent(itemID); ok {
		return tech, nil
	}
	tech, err := p.fetcher.FetchTechnicalMetadata(ctx, endpoint, token, itemID)
	if err != nil {
		return types.TechnicalMetadata{}, err
	}
	p.tech.Set(itemID, tech)
	return tech, nil
}

// buildPlan turns a successful negotiation into a concrete plan, probing the
// adaptive master playlist for its indicated bitrate when enabled.
func (p *Planner) buildPlan(ctx context.Context, endpoint string, token types.Token, itemID string, offset float64, opts types.PlanOptions, tech types.TechnicalMetadata, deviceID string) (types.StreamPlan, error) {
	decision := Negotiate(tech, opts, &p.cfg.Playback)

	plan := types.StreamPlan{
		Mode:             decision.Mode,
		StartOffset:      offset,
		Reason:           decision.Reason,
		TokenClass:       token.Class,
		Endpoint:         endpoint,
		Options:          opts,
		DirectPlay:       decision.DirectPlay,
		DirectStream:     decision.DirectStream,
		VideoBitrateKbps: decision.VideoBitrateKbps,
	}

	switch decision.Mode {
	case types.DeliveryDirect:
		u, err := directURL(endpoint, tech.PartPath, token)
		if err != nil {
			return types.StreamPlan{}, err
		}
		plan.URL = u

	case types.DeliveryAdaptive:
		plan.SessionID = sessionID(deviceID, itemID, opts.NewSession)
		u, err := adaptiveURL(endpoint, itemID, token, plan.SessionID, offset, decision)
		if err != nil {
			return types.StreamPlan{}, err
		}
		plan.URL = u

		if p.prober != nil && p.cfg.Playback.ProbeMasterPlaylist {
			if kbps, err := p.prober.IndicatedBitrate(ctx, plan.URL); err != nil {
				logger.Debug("{planner/planner - buildPlan} Master playlist probe for %s failed: %v", itemID, err)
			} else {
				plan.IndicatedKbps = kbps
			}
		}
	}

	return plan, nil
}

// sessionID derives the transcoder session identifier. The id is stable per
// (device, item) so the server reuses an existing session on reconnect; a
// fresh-session request suffixes the current time to force a new one.
func sessionID(deviceID, itemID string, fresh bool) string {
	id := deviceID + "-" + itemID
	if fresh {
		id = fmt.Sprintf("%s-%d", id, time.Now().Unix())
	}
	return id
}
