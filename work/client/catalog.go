package client

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"teleloop/work/logger"
	"teleloop/work/types"
)

// wireItem is the catalog item shape on the wire. Timestamps arrive as unix
// seconds, air dates as civil dates, durations as milliseconds, all of which
// are normalized into the MediaItem value type here and nowhere else.
type wireItem struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	DurationMs    int64    `json:"durationMs"`
	PartPath      string   `json:"partPath"`
	Kind          string   `json:"kind"`
	Year          int      `json:"year"`
	Genres        []string `json:"genres"`
	AiredAt       string   `json:"airedAt"`
	AddedAt       int64    `json:"addedAt"`
	Rating        float64  `json:"rating"`
	ContentRating string   `json:"contentRating"`
	Network       string   `json:"network"`
	ViewCount     int      `json:"viewCount"`
	Watched       bool     `json:"watched"`
	SeriesTitle   string   `json:"seriesTitle"`
	SeriesID      string   `json:"seriesId"`
	Season        int      `json:"season"`
	Episode       int      `json:"episode"`
	Backgrounds   []string `json:"backgrounds"`
	Posters       []string `json:"posters"`
	Logos         []string `json:"logos"`
}

// wirePage is one page of a catalog listing.
type wirePage struct {
	Items []wireItem `json:"items"`
	Total int        `json:"total"`
}

// toMediaItem normalizes a wire item into the domain value type.
func (w wireItem) toMediaItem() types.MediaItem {
	item := types.MediaItem{
		ID:            w.ID,
		Title:         w.Title,
		Duration:      float64(w.DurationMs) / 1000.0,
		PartPath:      w.PartPath,
		Kind:          types.MediaKind(w.Kind),
		Year:          w.Year,
		Genres:        w.Genres,
		Rating:        w.Rating,
		ContentRating: w.ContentRating,
		Network:       w.Network,
		ViewCount:     w.ViewCount,
		Watched:       w.Watched,
		SeriesTitle:   w.SeriesTitle,
		SeriesID:      w.SeriesID,
		Season:        w.Season,
		Episode:       w.Episode,
		Artwork: types.Artwork{
			Background: w.Backgrounds,
			Poster:     w.Posters,
			Logo:       w.Logos,
		},
	}
	if w.AddedAt > 0 {
		item.AddedAt = time.Unix(w.AddedAt, 0).UTC()
	}
	if w.AiredAt != "" {
		if t, err := time.Parse("2006-01-02", w.AiredAt); err == nil {
			item.AiredAt = t
		}
	}
	return item
}

// minPageSize is the floor the batch-size reduction ladder stops at.
const minPageSize = 25

// fetchPaged drives pagination against a listing path until a short or empty
// page signals the end. Re-fetch is assumed idempotent. A timeout on a page
// halves the page size (down to a floor) and retries the same offset, which
// keeps slow servers serving partial pages instead of failing the whole
// snapshot; any other error surfaces immediately.
func (mc *MediaClient) fetchPaged(ctx context.Context, path string) ([]types.MediaItem, error) {
	pageSize := mc.cfg.Server.PageSize
	offset := 0
	var items []types.MediaItem

	for {
		query := url.Values{}
		query.Set("offset", strconv.Itoa(offset))
		query.Set("limit", strconv.Itoa(pageSize))

		var page wirePage
		if err := mc.getJSONAny(ctx, path, query, &page); err != nil {
			if types.KindOf(err) == types.ErrTimeout && pageSize > minPageSize {
				pageSize /= 2
				if pageSize < minPageSize {
					pageSize = minPageSize
				}
				logger.Warn("{client/catalog - fetchPaged} Page fetch timed out at offset %d, reducing batch size to %d", offset, pageSize)
				continue
			}
			return nil, err
		}

		for _, w := range page.Items {
			items = append(items, w.toMediaItem())
		}
		if len(page.Items) < pageSize {
			return items, nil
		}
		offset += len(page.Items)
	}
}

// FetchItems retrieves the full item listing of one (library, kind) pair,
// driving pagination until exhaustion. For show libraries this returns the
// shows themselves; episodes are fetched per show via FetchEpisodes.
func (mc *MediaClient) FetchItems(ctx context.Context, library types.LibraryRef, kind types.MediaKind) ([]types.MediaItem, error) {
	path := "/library/sections/" + url.PathEscape(library.Key) + "/" + url.PathEscape(string(kind))
	items, err := mc.fetchPaged(ctx, path)
	if err != nil {
		return nil, err
	}
	logger.Debug("{client/catalog - FetchItems} Fetched %d %s items from library %s", len(items), kind, library.Key)
	return items, nil
}

// FetchEpisodes retrieves every episode of one show.
func (mc *MediaClient) FetchEpisodes(ctx context.Context, library types.LibraryRef, seriesID string) ([]types.MediaItem, error) {
	path := "/library/sections/" + url.PathEscape(library.Key) + "/shows/" + url.PathEscape(seriesID) + "/episodes"
	return mc.fetchPaged(ctx, path)
}

// wireTechnical is the technical metadata shape on the wire.
type wireTechnical struct {
	VideoCodec  string   `json:"videoCodec"`
	AudioCodecs []string `json:"audioCodecs"`
	Container   string   `json:"container"`
	PartPath    string   `json:"partPath"`
	BitrateKbps int      `json:"bitrateKbps"`
	DurationMs  int64    `json:"durationMs"`
}

// FetchTechnicalMetadata fetches the live stream-technical view of one item
// from a specific endpoint with a specific token. The plan resolver owns the
// endpoint/token rotation for this call, so unlike catalog fetches no
// internal failover happens here.
func (mc *MediaClient) FetchTechnicalMetadata(ctx context.Context, endpoint string, token types.Token, itemID string) (types.TechnicalMetadata, error) {
	var w wireTechnical
	path := "/library/metadata/" + url.PathEscape(itemID) + "/technical"
	if err := mc.getJSON(ctx, endpoint, token, path, nil, &w); err != nil {
		return types.TechnicalMetadata{}, err
	}
	if w.PartPath == "" {
		return types.TechnicalMetadata{}, types.NewError(types.ErrMissingPart, "item %s has no playable part", itemID)
	}
	return types.TechnicalMetadata{
		VideoCodec:  w.VideoCodec,
		AudioCodecs: w.AudioCodecs,
		Container:   w.Container,
		PartPath:    w.PartPath,
		BitrateKbps: w.BitrateKbps,
		Duration:    float64(w.DurationMs) / 1000.0,
	}, nil
}
