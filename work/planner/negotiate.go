package planner

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"teleloop/work/config"
	"teleloop/work/types"
)

// Decision is the outcome of plan negotiation before any URL is built: the
// delivery mode plus the flags and cap that shape the adaptive session.
type Decision struct {
	Mode             types.DeliveryMode
	DirectPlay       bool   // original bytes, no session at all
	DirectStream     bool   // codecs copied into a rebuilt container
	VideoBitrateKbps int    // requested cap when re-encoding, 0 otherwise
	VideoCodec       string // codec requested from the transcoder, empty unless re-encoding
	AudioCodec       string // audio codec requested from the transcoder, empty unless re-encoding
	Reason           string // human-readable negotiation account
}

// Negotiate applies the playback policy to one item's technical metadata.
//
// The ladder is strict: full passthrough when container, video codec, audio
// codecs, and bitrate all clear the policy; otherwise an adaptive session
// that copies the streams when only the container is the problem; otherwise
// a full transcode capped at the requested or configured ceiling. Forced
// options short-circuit the ladder from the top.
func Negotiate(tech types.TechnicalMetadata, opts types.PlanOptions, policy *config.PlaybackConfig) Decision {
	cap := opts.MaxBitrateKbps
	if cap <= 0 {
		cap = policy.MaxBitrateKbps
	}

	if opts.ForceTranscode {
		return transcodeDecision(cap, policy, "transcode forced by request")
	}

	videoOK := codecAllowed(tech.VideoCodec, policy.VideoCodecs)
	audioOK := anyAudioAllowed(tech.AudioCodecs, policy.AudioCodecs)
	containerOK := !strings.EqualFold(tech.Container, policy.DisallowedContainer)
	bitrateOK := tech.BitrateKbps <= cap

	if opts.ForceRemux {
		if videoOK && bitrateOK {
			return Decision{
				Mode:         types.DeliveryAdaptive,
				DirectStream: true,
				Reason:       "stream copy forced by request",
			}
		}
		return transcodeDecision(cap, policy, fmt.Sprintf("remux requested but %s video is not copyable, transcoding", tech.VideoCodec))
	}

	if videoOK && audioOK && containerOK && bitrateOK {
		return Decision{
			Mode:       types.DeliveryDirect,
			DirectPlay: true,
			Reason:     fmt.Sprintf("%s/%s in %s fits the policy, serving original", tech.VideoCodec, strings.Join(tech.AudioCodecs, ","), tech.Container),
		}
	}

	// Only the container is objectionable: copy the streams into a fresh
	// container instead of burning CPU on a re-encode.
	if videoOK && audioOK && bitrateOK {
		return Decision{
			Mode:         types.DeliveryAdaptive,
			DirectStream: true,
			Reason:       fmt.Sprintf("container %s not allowed, copying streams", tech.Container),
		}
	}

	reason := fmt.Sprintf("video %s", tech.VideoCodec)
	switch {
	case videoOK && !bitrateOK:
		reason = fmt.Sprintf("bitrate %d over cap %d", tech.BitrateKbps, cap)
	case videoOK && !audioOK:
		reason = fmt.Sprintf("no playable audio track in [%s]", strings.Join(tech.AudioCodecs, ","))
	}
	return transcodeDecision(cap, policy, reason+", transcoding")
}

// transcodeDecision builds the full re-encode outcome: capped bitrate plus the
// policy's target codecs, which the adaptive session request must name.
func transcodeDecision(cap int, policy *config.PlaybackConfig, reason string) Decision {
	return Decision{
		Mode:             types.DeliveryAdaptive,
		VideoBitrateKbps: cap,
		VideoCodec:       policy.TargetVideoCodec,
		AudioCodec:       policy.TargetAudioCodec,
		Reason:           reason,
	}
}

// codecAllowed reports whether a codec appears in the allow list.
func codecAllowed(codec string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(codec, a) {
			return true
		}
	}
	return false
}

// anyAudioAllowed reports whether at least one audio track is playable. An
// item with no audio tracks at all is treated as playable rather than forced
// through a pointless transcode.
func anyAudioAllowed(codecs, allowed []string) bool {
	if len(codecs) == 0 {
		return true
	}
	for _, c := range codecs {
		if codecAllowed(c, allowed) {
			return true
		}
	}
	return false
}

// directURL builds the passthrough URL: the raw media part served straight
// off the endpoint with the credential as a query parameter.
func directURL(endpoint, partPath string, token types.Token) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", types.WrapError(types.ErrInvalidURL, err, "bad endpoint %s", endpoint)
	}
	u = u.JoinPath(partPath)
	q := u.Query()
	q.Set("token", token.Value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// adaptiveURL builds the HLS session URL carrying the negotiated session
// parameters. Offset is in seconds; the server owns segmenting from there.
func adaptiveURL(endpoint, itemID string, token types.Token, sessionID string, offset float64, decision Decision) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", types.WrapError(types.ErrInvalidURL, err, "bad endpoint %s", endpoint)
	}
	u = u.JoinPath("stream", "adaptive", itemID, "index.m3u8")

	q := u.Query()
	q.Set("session", sessionID)
	q.Set("offset", strconv.FormatFloat(offset, 'f', -1, 64))
	q.Set("token", token.Value)
	if decision.DirectStream {
		q.Set("copy", "1")
	} else {
		if decision.VideoBitrateKbps > 0 {
			q.Set("maxVideoBitrate", strconv.Itoa(decision.VideoBitrateKbps))
		}
		if decision.VideoCodec != "" {
			q.Set("videoCodec", decision.VideoCodec)
		}
		if decision.AudioCodec != "" {
			q.Set("audioCodec", decision.AudioCodec)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
