package planner

import (
	"context"
	"net/http"

	"github.com/grafov/m3u8"

	"teleloop/work/types"
)

// Prober fetches an adaptive session's master playlist to learn the bitrate
// the server actually provisioned, which the recovery controller compares
// against observed throughput. Probe failures are never fatal; the plan just
// ships without an indicated bitrate.
type Prober struct {
	client *http.Client
}

// NewProber wraps an HTTP client for playlist probing. The client's timeout
// policy is the caller's concern.
func NewProber(client *http.Client) *Prober {
	return &Prober{client: client}
}

// IndicatedBitrate fetches the master playlist at url and returns the
// highest variant bandwidth in kbps. A media (non-master) playlist yields
// zero with no error, since single-variant sessions advertise nothing.
func (p *Prober) IndicatedBitrate(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, types.WrapError(types.ErrInvalidURL, err, "bad playlist url")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, types.WrapError(types.ClassifyNetworkError(err), err, "master playlist fetch failed")
	}
	defer resp.Body.Close()
	if kind := types.ClassifyStatus(resp.StatusCode); kind != "" {
		return 0, types.NewError(kind, "master playlist fetch returned %d", resp.StatusCode)
	}

	playlist, listType, err := m3u8.DecodeFrom(resp.Body, true)
	if err != nil {
		return 0, types.WrapError(types.ErrDecode, err, "master playlist did not parse")
	}
	if listType != m3u8.MASTER {
		return 0, nil
	}

	master := playlist.(*m3u8.MasterPlaylist)
	var best uint32
	for _, variant := range master.Variants {
		if variant != nil && variant.Bandwidth > best {
			best = variant.Bandwidth
		}
	}
	return int(best / 1000), nil
}
