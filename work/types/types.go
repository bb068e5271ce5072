package types

import (
	"time"
)

// MediaKind identifies the catalog category an item or library belongs to.
// The kind drives which fetch endpoint is used, how items are projected into
// channel entries, and whether two-phase parent/child filtering applies
// (show libraries expand into episodes, movie libraries do not).
type MediaKind string

// Supported catalog kinds. Show libraries are hierarchical: the show is the
// parent, episodes are the children that actually get scheduled.
const (
	KindMovie   MediaKind = "movie"   // Standalone feature content, directly schedulable
	KindShow    MediaKind = "show"    // Series container, never scheduled itself
	KindEpisode MediaKind = "episode" // Individual episode, the schedulable child of a show
)

// LibraryRef identifies a single media library on the remote server. The Key
// is the server-side section identifier used in fetch paths; Type tells the
// orchestrator whether hierarchical expansion is needed.
type LibraryRef struct {
	Key  string    `json:"key"`  // Server section identifier used in catalog fetch paths
	Type MediaKind `json:"type"` // Content kind hosted by this library
	Name string    `json:"name"` // Human-readable library title for display and logs
}

// Artwork holds per-slot candidate image paths ordered by preference. Each
// slot has an independent fallback chain: the first non-empty entry wins.
type Artwork struct {
	Background []string `json:"background,omitempty"` // Full-bleed backdrop candidates, best first
	Poster     []string `json:"poster,omitempty"`     // Poster/cover candidates, best first
	Logo       []string `json:"logo,omitempty"`       // Clear-logo candidates, best first
}

// first returns the first non-empty path in a candidate chain.
func first(chain []string) string {
	for _, p := range chain {
		if p != "" {
			return p
		}
	}
	return ""
}

// BestBackground returns the preferred background path, or "" when the chain
// is empty or holds only blanks.
func (a Artwork) BestBackground() string { return first(a.Background) }

// BestPoster returns the preferred poster path, or "" when none is usable.
func (a Artwork) BestPoster() string { return first(a.Poster) }

// BestLogo returns the preferred logo path, or "" when none is usable.
func (a Artwork) BestLogo() string { return first(a.Logo) }

// MediaItem is a single schedulable unit of content: one movie or one
// episode. Items are immutable value types once projected out of the
// orchestrator; duration is in seconds and must be positive for the item to
// be schedulable at all.
type MediaItem struct {
	ID            string    `json:"id"`                      // Stable catalog identifier (server rating key)
	Title         string    `json:"title"`                   // Display title
	Duration      float64   `json:"duration"`                // Runtime in seconds; items with <= 0 are dropped at projection
	PartPath      string    `json:"partPath,omitempty"`      // Raw media part path used for passthrough delivery
	Kind          MediaKind `json:"kind"`                    // movie or episode
	Year          int       `json:"year,omitempty"`          // Release year, 0 when unknown
	Genres        []string  `json:"genres,omitempty"`        // Genre tags as reported by the server
	AiredAt       time.Time `json:"airedAt,omitempty"`       // Original air date, zero when unknown
	AddedAt       time.Time `json:"addedAt,omitempty"`       // When the item entered the library, zero when unknown
	Rating        float64   `json:"rating,omitempty"`        // Critic/user rating on a 0-10 scale, 0 when unrated
	ContentRating string    `json:"contentRating,omitempty"` // Parental rating label (TV-14, PG-13, ...)
	Network       string    `json:"network,omitempty"`       // Originating network/studio
	ViewCount     int       `json:"viewCount,omitempty"`     // Completed play count
	Watched       bool      `json:"watched,omitempty"`       // True once the item has been fully viewed
	SeriesTitle   string    `json:"seriesTitle,omitempty"`   // Parent show title, empty for movies
	SeriesID      string    `json:"seriesId,omitempty"`      // Parent show identifier, empty for movies
	Season        int       `json:"season,omitempty"`        // Season number, 0 for movies
	Episode       int       `json:"episode,omitempty"`       // Episode number within the season, 0 for movies
	Artwork       Artwork   `json:"artwork,omitempty"`       // Preference-ordered artwork chains
}

// ChannelOptions carries per-channel behavior flags that affect how the item
// sequence is assembled, not how the schedule math runs.
type ChannelOptions struct {
	Shuffle bool `json:"shuffle"` // Deterministically shuffle item order at build time, seeded by channel id
}

// Channel is a named, looping virtual broadcast: an ordered playlist plus a
// fixed anchor instant from which elapsed loop time is measured. Channels are
// value types; nothing about playback position is stored on them, it is
// always derived mathematically from (anchor, now).
type Channel struct {
	ID              string         `json:"id"`                   // Immutable channel identity
	Name            string         `json:"name"`                 // Display name
	LibraryKey      string         `json:"libraryKey"`           // Primary originating library
	LibraryType     MediaKind      `json:"libraryType"`          // Content kind of the primary library
	CreatedAt       time.Time      `json:"createdAt"`            // When the channel was built
	Anchor          time.Time      `json:"scheduleAnchor"`       // Reference instant the loop is considered to have started
	Items           []MediaItem    `json:"items"`                // Ordered playlist; order defines the loop
	SourceLibraries []string       `json:"sourceLibraries"`      // All library keys that contributed items
	Options         ChannelOptions `json:"options"`              // Per-channel behavior flags
	Provenance      string         `json:"provenance,omitempty"` // Free-form note on how the channel was built (filter summary)
}

// TotalDuration returns the loop length in seconds: the sum of all
// non-negative item durations. A channel with zero total duration has no
// defined "now playing" state.
func (c *Channel) TotalDuration() float64 {
	var total float64
	for i := range c.Items {
		if d := c.Items[i].Duration; d > 0 {
			total += d
		}
	}
	return total
}

// TokenClass distinguishes the two credential classes the resolver rotates
// through: the server-scoped token is always preferred, the account token is
// the fallback when the server rejects it.
type TokenClass string

const (
	TokenServer  TokenClass = "server"  // Token issued for this specific server
	TokenAccount TokenClass = "account" // Account-wide token, tried after the server token
)

// Token pairs a credential value with its class so plan diagnostics can
// report which class ultimately worked without logging the value itself.
type Token struct {
	Class TokenClass // Credential class, used for rotation order and diagnostics
	Value string     // Opaque token value attached to outbound requests
}

// Session supplies the ordered endpoint and token candidates the resolver
// and catalog client work through. The first entries are preferred; failover
// walks the remaining ones in order.
type Session struct {
	Endpoints []string // Base URLs, primary first then fallbacks
	Tokens    []Token  // Credentials, server token first then account token
	DeviceID  string   // Stable client device identifier used in transcode session ids
}

// TechnicalMetadata is the live stream-technical view of one item, fetched at
// plan time rather than cached with the catalog snapshot, since the server
// may re-analyze media between plays.
type TechnicalMetadata struct {
	VideoCodec  string   // Primary video stream codec (h264, hevc, vp9, ...)
	AudioCodecs []string // Codec of every audio track in stream order
	Container   string   // Container format (mkv, mp4, avi, ...)
	PartPath    string   // Server path of the playable media part
	BitrateKbps int      // Overall stream bitrate in kbps as reported by the server
	Duration    float64  // Runtime in seconds per the server's technical analysis
}

// DeliveryMode is the closed set of ways a plan can deliver media.
type DeliveryMode string

const (
	DeliveryDirect   DeliveryMode = "direct"   // Byte-for-byte passthrough of the original part
	DeliveryAdaptive DeliveryMode = "adaptive" // Server-side HLS session, remuxed or transcoded
)

// PlanOptions is the caller's playback intent handed to the resolver. The
// zero value requests the default negotiation: passthrough when eligible,
// otherwise an adaptive session at the configured bitrate cap.
type PlanOptions struct {
	MaxBitrateKbps int  `json:"maxBitrateKbps,omitempty"` // Requested bitrate ceiling; 0 means the configured default
	ForceTranscode bool `json:"forceTranscode,omitempty"` // Skip passthrough and stream copy, always re-encode
	ForceRemux     bool `json:"forceRemux,omitempty"`     // Request stream copy inside an adaptive session when the container allows
	NewSession     bool `json:"newSession,omitempty"`     // Suffix the session id with a timestamp to force a fresh transcoder
}

// StreamPlan is the resolved, concrete instruction for playing one item:
// where to fetch it, in which delivery mode, from which offset, and what was
// negotiated to get there. Reason is a short human-readable diagnostic, never
// parsed by code.
type StreamPlan struct {
	Mode             DeliveryMode `json:"mode"`                       // Delivery mode the negotiation settled on
	URL              string       `json:"url"`                        // Fully resolved playback URL
	StartOffset      float64      `json:"startOffset"`                // Seconds into the item playback should begin
	Reason           string       `json:"reason"`                     // Human-readable account of the negotiation outcome
	TokenClass       TokenClass   `json:"tokenClass"`                 // Credential class that produced the working plan
	Endpoint         string       `json:"endpoint"`                   // Base endpoint the plan was resolved against
	Options          PlanOptions  `json:"options"`                    // The request options that produced this plan
	SessionID        string       `json:"sessionId"`                  // Transcoder session identifier (adaptive mode only)
	DirectPlay       bool         `json:"directPlay"`                 // True when the original bytes are served unmodified
	DirectStream     bool         `json:"directStream"`               // True when codecs are copied but the container is rebuilt
	VideoBitrateKbps int          `json:"videoBitrateKbps,omitempty"` // Negotiated video bitrate cap; 0 when nothing is re-encoded
	IndicatedKbps    int          `json:"indicatedKbps,omitempty"`    // Bitrate the server advertised for the session, when probed
}

// AdaptiveState is the mutable per-playback-attempt state the recovery
// controller walks down its ladder. It is created fresh when an item starts,
// reset when a replacement plan takes over, and discarded when the attempt
// ends.
type AdaptiveState struct {
	CapKbps            int       // Current requested bitrate ceiling
	Downshifts         int       // Recoveries performed for this attempt
	ForcedTranscode    bool      // True once the ladder escalated past stream copy
	LowThroughputSince time.Time // Start of the current sustained-shortfall window, zero when healthy
	LastRecovery       time.Time // Most recent recovery, used for cooldown enforcement
	StartedAt          time.Time // When this playback attempt began, used for the late-stall cutoff
}

// TelemetryKind classifies playback telemetry events fed to the recovery
// controller.
type TelemetryKind string

const (
	TelemetryStall      TelemetryKind = "stall"      // Explicit stall notification from the playback surface
	TelemetryThroughput TelemetryKind = "throughput" // Periodic observed-vs-indicated bitrate sample
	TelemetryProgress   TelemetryKind = "progress"   // Healthy position report; clears shortfall windows
)

// TelemetryEvent is one observation from the playback surface about an
// active attempt. Position is the absolute position reported by the delivery
// protocol, not an offset relative to the plan's start.
type TelemetryEvent struct {
	Kind          TelemetryKind `json:"kind"`                    // Event classification
	ItemID        string        `json:"itemId"`                  // Item the attempt is playing
	SessionID     string        `json:"sessionId,omitempty"`     // Adaptive session the sample belongs to, when known
	At            time.Time     `json:"at"`                      // When the observation was made
	Position      float64       `json:"position"`                // Absolute playback position in seconds
	ObservedKbps  int           `json:"observedKbps,omitempty"`  // Measured delivery throughput
	IndicatedKbps int           `json:"indicatedKbps,omitempty"` // Bitrate the active session advertises
}
