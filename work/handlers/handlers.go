// Package handlers implements the HTTP surface of the channel engine: the
// lineup and schedule queries, channel build and delete, stream plan
// resolution, and playback telemetry intake. Every handler is a closure over
// the engine, matching how routes are wired in main.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/grafana/regexp"

	"teleloop/work/catalog"
	"teleloop/work/engine"
	"teleloop/work/logger"
	"teleloop/work/schedule"
	"teleloop/work/types"
)

// idPattern bounds the identifiers accepted in paths: channel ids are UUIDs
// and item ids are server rating keys, both safely within this alphabet.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// errorBody is the uniform JSON error envelope.
type errorBody struct {
	Error string          `json:"error"`
	Kind  types.ErrorKind `json:"kind,omitempty"`
}

// writeJSON marshals v with a status code; marshal failures are logged and
// surface as a bare 500 since the body is already impossible to produce.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("{handlers/handlers - writeJSON} Failed to encode response: %v", err)
	}
}

// writeError maps a domain error onto an HTTP status and the error envelope.
func writeError(w http.ResponseWriter, err error) {
	kind := types.KindOf(err)
	status := http.StatusBadGateway
	switch kind {
	case types.ErrUnauthorized:
		status = http.StatusUnauthorized
	case types.ErrMissingPart:
		status = http.StatusNotFound
	case types.ErrTimeout:
		status = http.StatusGatewayTimeout
	case types.ErrInvalidURL, types.ErrRecoveryExhausted:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: kind})
}

// pathID extracts and validates a path identifier, writing the 400 itself
// when the value is unacceptable.
func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := mux.Vars(r)[name]
	if !idPattern.MatchString(id) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid " + name})
		return "", false
	}
	return id, true
}

// atInstant resolves the optional ?at query parameter, defaulting to now.
func atInstant(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("at")
	if raw == "" {
		return time.Now(), nil
	}
	return time.Parse(time.RFC3339, raw)
}

// channelSummary is the lineup view of one channel: everything a guide needs
// without shipping the full playlist.
type channelSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	LibraryKey  string    `json:"libraryKey"`
	ItemCount   int       `json:"itemCount"`
	LoopSeconds float64   `json:"loopSeconds"`
	CreatedAt   time.Time `json:"createdAt"`
	Provenance  string    `json:"provenance,omitempty"`
	Poster      string    `json:"poster,omitempty"` // first item's preferred poster, the channel's guide tile
	Logo        string    `json:"logo,omitempty"`
}

// HandleLineup returns every channel as a summary, sorted by name.
func HandleLineup(e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lineup := e.Lineup()
		out := make([]channelSummary, 0, len(lineup))
		for _, ch := range lineup {
			summary := channelSummary{
				ID:          ch.ID,
				Name:        ch.Name,
				LibraryKey:  ch.LibraryKey,
				ItemCount:   len(ch.Items),
				LoopSeconds: ch.TotalDuration(),
				CreatedAt:   ch.CreatedAt,
				Provenance:  ch.Provenance,
			}
			if len(ch.Items) > 0 {
				summary.Poster = ch.Items[0].Artwork.BestPoster()
				summary.Logo = ch.Items[0].Artwork.BestLogo()
			}
			out = append(out, summary)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// nowResponse is the derived schedule position of one channel.
type nowResponse struct {
	ChannelID  string          `json:"channelId"`
	At         time.Time       `json:"at"`
	Index      int             `json:"index"`
	Item       types.MediaItem `json:"item"`
	Offset     float64         `json:"offset"`
	NextUp     types.MediaItem `json:"nextUp"`
	Background string          `json:"background,omitempty"` // active item's preferred backdrop
}

func positionResponse(id string, at time.Time, pos schedule.Position) nowResponse {
	return nowResponse{
		ChannelID:  id,
		At:         at,
		Index:      pos.Index,
		Item:       pos.Item,
		Offset:     pos.Offset,
		NextUp:     pos.NextUp,
		Background: pos.Item.Artwork.BestBackground(),
	}
}

// HandleNow reports what a channel is playing at now or at the optional
// ?at instant.
func HandleNow(e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		at, err := atInstant(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid at instant: " + err.Error()})
			return
		}

		if _, found := e.Channel(id); !found {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown channel"})
			return
		}
		pos, ok := e.NowPlaying(id, at)
		if !ok {
			writeJSON(w, http.StatusConflict, errorBody{Error: "channel has no playable schedule"})
			return
		}
		writeJSON(w, http.StatusOK, positionResponse(id, at, pos))
	}
}

// HandleNext reports the item that follows the active one. The payload is
// the same shape as /now so guide clients reuse one decoder.
func HandleNext(e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		at, err := atInstant(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid at instant: " + err.Error()})
			return
		}

		pos, ok := e.NowPlaying(id, at)
		if !ok {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown channel or empty schedule"})
			return
		}
		writeJSON(w, http.StatusOK, struct {
			ChannelID string          `json:"channelId"`
			NextUp    types.MediaItem `json:"nextUp"`
		}{ChannelID: id, NextUp: pos.NextUp})
	}
}

// HandleBuildChannel builds a channel from a JSON build request.
func HandleBuildChannel(e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req catalog.ChannelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid channel request: " + err.Error()})
			return
		}

		ch, err := e.BuildChannel(r.Context(), req)
		if err != nil {
			var domainErr *types.Error
			if errors.As(err, &domainErr) && domainErr.Kind == types.ErrBadResponse {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
				return
			}
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, ch)
	}
}

// HandleDeleteChannel removes a channel from the lineup.
func HandleDeleteChannel(e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		existed, err := e.DeleteChannel(id)
		if err != nil {
			writeError(w, err)
			return
		}
		if !existed {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown channel"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// planOptions reads the plan shaping query parameters shared by the two plan
// endpoints.
func planOptions(r *http.Request) (types.PlanOptions, float64, error) {
	q := r.URL.Query()
	var opts types.PlanOptions
	var offset float64

	if raw := q.Get("offset"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return opts, 0, errors.New("invalid offset")
		}
		offset = v
	}
	if raw := q.Get("maxBitrate"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return opts, 0, errors.New("invalid maxBitrate")
		}
		opts.MaxBitrateKbps = v
	}
	opts.ForceTranscode = q.Get("transcode") == "1"
	opts.ForceRemux = q.Get("remux") == "1"
	opts.NewSession = q.Get("fresh") == "1"
	return opts, offset, nil
}

// HandlePlanItem resolves a stream plan for one item at an explicit offset.
func HandlePlanItem(e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, ok := pathID(w, r, "item")
		if !ok {
			return
		}
		opts, offset, err := planOptions(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}

		plan, err := e.PlanForItem(r.Context(), itemID, offset, opts)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, plan)
	}
}

// HandlePlanChannel resolves a stream plan for whatever a channel is playing
// right now: the active item at its derived offset.
func HandlePlanChannel(e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		opts, _, err := planOptions(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}

		plan, pos, err := e.PlanForChannel(r.Context(), id, time.Now(), opts)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Plan     types.StreamPlan `json:"plan"`
			Position nowResponse      `json:"position"`
		}{Plan: plan, Position: positionResponse(id, time.Now(), pos)})
	}
}

// telemetryResponse reports what the recovery controller decided about one
// event: nothing, a replacement plan, or an exhausted attempt.
type telemetryResponse struct {
	Replanned bool              `json:"replanned"`
	Plan      *types.StreamPlan `json:"plan,omitempty"`
}

// HandleTelemetry feeds one playback telemetry event into the recovery
// controller and returns the replacement plan when recovery fired.
func HandleTelemetry(e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev types.TelemetryEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid telemetry event: " + err.Error()})
			return
		}
		if ev.ItemID == "" || !idPattern.MatchString(ev.ItemID) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid itemId"})
			return
		}

		plan, replanned, err := e.Telemetry(r.Context(), ev)
		if err != nil {
			writeError(w, err)
			return
		}
		resp := telemetryResponse{Replanned: replanned}
		if replanned {
			resp.Plan = &plan
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
