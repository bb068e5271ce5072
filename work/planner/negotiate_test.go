package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teleloop/work/config"
	"teleloop/work/types"
)

func testPolicy() *config.PlaybackConfig {
	return &config.PlaybackConfig{
		VideoCodecs:         []string{"h264", "hevc", "mpeg4"},
		AudioCodecs:         []string{"aac", "ac3", "eac3", "mp3"},
		DisallowedContainer: "avi",
		MaxBitrateKbps:      20000,
		MinBitrateKbps:      1000,
		TargetVideoCodec:    "h264",
		TargetAudioCodec:    "aac",
	}
}

func compatibleTech() types.TechnicalMetadata {
	return types.TechnicalMetadata{
		VideoCodec:  "h264",
		AudioCodecs: []string{"aac"},
		Container:   "mkv",
		PartPath:    "/library/parts/1/file.mkv",
		BitrateKbps: 8000,
	}
}

func TestNegotiate_Passthrough(t *testing.T) {
	d := Negotiate(compatibleTech(), types.PlanOptions{}, testPolicy())
	assert.Equal(t, types.DeliveryDirect, d.Mode)
	assert.True(t, d.DirectPlay)
	assert.False(t, d.DirectStream)
	assert.Zero(t, d.VideoBitrateKbps)
}

func TestNegotiate_IncompatibleVideoAlwaysAdaptive(t *testing.T) {
	tech := compatibleTech()
	tech.VideoCodec = "vp9"

	// No combination of options yields passthrough for an unlisted codec.
	for _, opts := range []types.PlanOptions{
		{},
		{ForceRemux: true},
		{MaxBitrateKbps: 50000},
	} {
		d := Negotiate(tech, opts, testPolicy())
		assert.Equal(t, types.DeliveryAdaptive, d.Mode)
		assert.False(t, d.DirectPlay)
		assert.False(t, d.DirectStream)
		assert.Equal(t, 20000, d.VideoBitrateKbps)
	}
}

func TestNegotiate_DisallowedContainerStreamCopies(t *testing.T) {
	tech := compatibleTech()
	tech.Container = "avi"

	d := Negotiate(tech, types.PlanOptions{}, testPolicy())
	assert.Equal(t, types.DeliveryAdaptive, d.Mode)
	assert.True(t, d.DirectStream, "good codecs in a bad container copy streams instead of re-encoding")
	assert.Zero(t, d.VideoBitrateKbps)
}

func TestNegotiate_BitrateOverCapTranscodes(t *testing.T) {
	tech := compatibleTech()
	tech.BitrateKbps = 25000

	d := Negotiate(tech, types.PlanOptions{}, testPolicy())
	assert.Equal(t, types.DeliveryAdaptive, d.Mode)
	assert.Equal(t, 20000, d.VideoBitrateKbps)

	// A requested cap below the stream bitrate has the same effect.
	d = Negotiate(compatibleTech(), types.PlanOptions{MaxBitrateKbps: 4000}, testPolicy())
	assert.Equal(t, types.DeliveryAdaptive, d.Mode)
	assert.Equal(t, 4000, d.VideoBitrateKbps)
}

func TestNegotiate_UnplayableAudioTranscodes(t *testing.T) {
	tech := compatibleTech()
	tech.AudioCodecs = []string{"dts", "truehd"}

	d := Negotiate(tech, types.PlanOptions{}, testPolicy())
	assert.Equal(t, types.DeliveryAdaptive, d.Mode)
	assert.False(t, d.DirectStream)
}

func TestNegotiate_NoAudioTracksStillDirect(t *testing.T) {
	tech := compatibleTech()
	tech.AudioCodecs = nil

	d := Negotiate(tech, types.PlanOptions{}, testPolicy())
	assert.Equal(t, types.DeliveryDirect, d.Mode)
}

func TestNegotiate_ForceTranscode(t *testing.T) {
	d := Negotiate(compatibleTech(), types.PlanOptions{ForceTranscode: true, MaxBitrateKbps: 3000}, testPolicy())
	assert.Equal(t, types.DeliveryAdaptive, d.Mode)
	assert.False(t, d.DirectPlay)
	assert.False(t, d.DirectStream)
	assert.Equal(t, 3000, d.VideoBitrateKbps)
	assert.Equal(t, "h264", d.VideoCodec)
	assert.Equal(t, "aac", d.AudioCodec)
}

func TestNegotiate_TranscodeCarriesTargetCodecs(t *testing.T) {
	// Every branch that re-encodes must name the policy's target codecs; the
	// copy branches must not.
	transcoding := []types.TechnicalMetadata{
		func() types.TechnicalMetadata { t := compatibleTech(); t.VideoCodec = "vp9"; return t }(),
		func() types.TechnicalMetadata { t := compatibleTech(); t.BitrateKbps = 25000; return t }(),
		func() types.TechnicalMetadata { t := compatibleTech(); t.AudioCodecs = []string{"dts"}; return t }(),
	}
	for _, tech := range transcoding {
		d := Negotiate(tech, types.PlanOptions{}, testPolicy())
		assert.Equal(t, "h264", d.VideoCodec)
		assert.Equal(t, "aac", d.AudioCodec)
	}

	d := Negotiate(compatibleTech(), types.PlanOptions{}, testPolicy())
	assert.Empty(t, d.VideoCodec, "passthrough requests no codec")

	d = Negotiate(compatibleTech(), types.PlanOptions{ForceRemux: true}, testPolicy())
	assert.Empty(t, d.VideoCodec, "stream copy requests no codec")
	assert.Empty(t, d.AudioCodec)
}

func TestNegotiate_ForceRemux(t *testing.T) {
	d := Negotiate(compatibleTech(), types.PlanOptions{ForceRemux: true}, testPolicy())
	assert.Equal(t, types.DeliveryAdaptive, d.Mode)
	assert.True(t, d.DirectStream)
	assert.Zero(t, d.VideoBitrateKbps)
}

func TestDirectURL(t *testing.T) {
	u, err := directURL("https://media.example.com:32400", "/library/parts/1/file.mkv", types.Token{Class: types.TokenServer, Value: "tok123"})
	require.NoError(t, err)
	assert.Equal(t, "https://media.example.com:32400/library/parts/1/file.mkv?token=tok123", u)
}

func TestAdaptiveURL(t *testing.T) {
	u, err := adaptiveURL("https://media.example.com:32400", "m42", types.Token{Value: "tok123"}, "dev-m42", 90.5, Decision{VideoBitrateKbps: 4000, VideoCodec: "h264", AudioCodec: "aac"})
	require.NoError(t, err)
	assert.Contains(t, u, "/stream/adaptive/m42/index.m3u8?")
	assert.Contains(t, u, "session=dev-m42")
	assert.Contains(t, u, "offset=90.5")
	assert.Contains(t, u, "maxVideoBitrate=4000")
	assert.Contains(t, u, "videoCodec=h264")
	assert.Contains(t, u, "audioCodec=aac")
	assert.Contains(t, u, "token=tok123")
	assert.NotContains(t, u, "copy=")

	u, err = adaptiveURL("https://media.example.com:32400", "m42", types.Token{Value: "tok123"}, "dev-m42", 0, Decision{DirectStream: true})
	require.NoError(t, err)
	assert.Contains(t, u, "copy=1")
	assert.NotContains(t, u, "maxVideoBitrate")
	assert.NotContains(t, u, "videoCodec")
}
