package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"teleloop/work/utils"
)

// Config holds all application configuration values for the virtual channel
// engine. It covers the HTTP surface, catalog snapshot behavior, the remote
// media server connection, stream plan negotiation, and the adaptive
// recovery policy.
type Config struct {
	BaseURL         string         `json:"baseURL"`         // Base URL this service is reachable at (used in generated links)
	ListenPort      int            `json:"listenPort"`      // TCP port the HTTP server binds
	DataDir         string         `json:"dataDir"`         // Directory for the channel database and persisted snapshots
	SnapshotTTL     time.Duration  `json:"snapshotTTL"`     // Age after which a snapshot is served stale and refreshed in the background
	SnapshotWait    time.Duration  `json:"snapshotWait"`    // Maximum time a caller polls for a fetch another caller has in flight
	WorkerThreads   int            `json:"workerThreads"`   // Goroutine pool size for background refresh work
	Debug           bool           `json:"debug"`           // Enable debug logging
	ObfuscateUrls   bool           `json:"obfuscateUrls"`   // Obfuscate URLs and tokens in logs
	DefaultSortKey  string         `json:"defaultSortKey"`  // Sort key applied when a channel build names none
	DefaultSortDesc bool           `json:"defaultSortDesc"` // Sort direction applied when a channel build names none
	Server          ServerConfig   `json:"server"`          // Remote media server connection settings
	Playback        PlaybackConfig `json:"playback"`        // Plan negotiation settings
	Recovery        RecoveryConfig `json:"recovery"`        // Adaptive recovery ladder policy
}

// ServerConfig describes how to reach the remote media server: the ordered
// endpoint candidates, the two credential classes, and request shaping.
type ServerConfig struct {
	Endpoints         []string      `json:"endpoints"`         // Base URLs, primary first then fallbacks
	ServerToken       string        `json:"serverToken"`       // Server-scoped credential, always tried first
	AccountToken      string        `json:"accountToken"`      // Account-wide credential, tried when the server token is rejected
	DeviceID          string        `json:"deviceId"`          // Stable client identity used in transcode session ids
	UserAgent         string        `json:"userAgent"`         // HTTP User-Agent for all outbound requests
	RequestTimeout    time.Duration `json:"requestTimeout"`    // Per-request deadline for catalog and metadata fetches
	RequestsPerSecond int           `json:"requestsPerSecond"` // Outbound rate limit per endpoint
	PageSize          int           `json:"pageSize"`          // Catalog fetch page size
}

// PlaybackConfig holds the codec compatibility lists and bitrate defaults the
// stream plan resolver negotiates with.
type PlaybackConfig struct {
	VideoCodecs         []string `json:"videoCodecs"`         // Video codecs eligible for passthrough
	AudioCodecs         []string `json:"audioCodecs"`         // Audio codecs eligible for passthrough (any one track suffices)
	DisallowedContainer string   `json:"disallowedContainer"` // Container never served as passthrough regardless of codecs
	MaxBitrateKbps      int      `json:"maxBitrateKbps"`      // Default requested bitrate ceiling for adaptive sessions
	MinBitrateKbps      int      `json:"minBitrateKbps"`      // Ladder floor; recovery below this is exhausted
	TargetVideoCodec    string   `json:"targetVideoCodec"`    // Codec requested when transcoding
	TargetAudioCodec    string   `json:"targetAudioCodec"`    // Audio codec requested when transcoding
	ProbeMasterPlaylist bool     `json:"probeMasterPlaylist"` // Fetch the adaptive master playlist to learn the provisioned bitrate
}

// RecoveryConfig is the adaptive recovery ladder policy. Every number here is
// tuned policy, not physics: the values ship with the defaults the original
// tuning settled on and are deliberately configurable.
type RecoveryConfig struct {
	Cooldown             time.Duration `json:"cooldown"`             // Minimum gap between recoveries
	ThroughputWindow     time.Duration `json:"throughputWindow"`     // How long a shortfall must persist before triggering
	ThroughputRatio      float64       `json:"throughputRatio"`      // Observed/indicated bitrate ratio below which a sample is a shortfall
	LateStallCutoff      time.Duration `json:"lateStallCutoff"`      // Stalls after this much playback are ignored
	FirstReduction       float64       `json:"firstReduction"`       // Cap reduction fraction for the first downshift
	LaterReduction       float64       `json:"laterReduction"`       // Cap reduction fraction for subsequent downshifts
	MaxDownshifts        int           `json:"maxDownshifts"`        // Downshifts before escalating to forced transcode
	ForcedTranscodeKbps  int           `json:"forcedTranscodeKbps"`  // Starting cap when escalating a stream copy to full transcode
}

// ConfigFile mirrors Config for JSON marshaling, with durations held as
// strings (e.g. "1h", "30s") and parsed on load.
type ConfigFile struct {
	BaseURL         string             `json:"baseURL"`
	ListenPort      int                `json:"listenPort"`
	DataDir         string             `json:"dataDir"`
	SnapshotTTL     string             `json:"snapshotTTL"`
	SnapshotWait    string             `json:"snapshotWait"`
	WorkerThreads   int                `json:"workerThreads"`
	Debug           bool               `json:"debug"`
	ObfuscateUrls   bool               `json:"obfuscateUrls"`
	DefaultSortKey  string             `json:"defaultSortKey"`
	DefaultSortDesc bool               `json:"defaultSortDesc"`
	Server          ServerConfigFile   `json:"server"`
	Playback        PlaybackConfig     `json:"playback"`
	Recovery        RecoveryConfigFile `json:"recovery"`
}

// ServerConfigFile is the JSON form of ServerConfig.
type ServerConfigFile struct {
	Endpoints         []string `json:"endpoints"`
	ServerToken       string   `json:"serverToken"`
	AccountToken      string   `json:"accountToken"`
	DeviceID          string   `json:"deviceId"`
	UserAgent         string   `json:"userAgent"`
	RequestTimeout    string   `json:"requestTimeout"`
	RequestsPerSecond int      `json:"requestsPerSecond"`
	PageSize          int      `json:"pageSize"`
}

// RecoveryConfigFile is the JSON form of RecoveryConfig.
type RecoveryConfigFile struct {
	Cooldown            string  `json:"cooldown"`
	ThroughputWindow    string  `json:"throughputWindow"`
	ThroughputRatio     float64 `json:"throughputRatio"`
	LateStallCutoff     string  `json:"lateStallCutoff"`
	FirstReduction      float64 `json:"firstReduction"`
	LaterReduction      float64 `json:"laterReduction"`
	MaxDownshifts       int     `json:"maxDownshifts"`
	ForcedTranscodeKbps int     `json:"forcedTranscodeKbps"`
}

var (
	configCache *Config      // Cached configuration instance (singleton)
	configMutex sync.RWMutex // Mutex for safe concurrent access to configCache
)

// ConfigPath resolves the configuration file location, preferring the
// TELELOOP_CONFIG environment variable over the container default.
func ConfigPath() string {
	if p := os.Getenv("TELELOOP_CONFIG"); p != "" {
		return p
	}
	return "/settings/config.json"
}

// LoadConfig loads the configuration from file or returns the cached
// instance.
//
// Process:
//   - Uses double-checked locking to avoid redundant reloads.
//   - Attempts to load from the resolved config path.
//   - Falls back to default config if file is missing or invalid.
//   - Runs validation to ensure safe defaults.
func LoadConfig() *Config {
	configMutex.RLock()
	if configCache != nil {
		defer configMutex.RUnlock()
		return configCache
	}
	configMutex.RUnlock()

	configMutex.Lock()
	defer configMutex.Unlock()

	// Double-check under write lock
	if configCache != nil {
		return configCache
	}

	path := ConfigPath()
	config, err := loadFromFile(path)
	if err != nil {
		log.Printf("Failed to load config from %s: %v", path, err)
		log.Printf("Falling back to default configuration...")
		config = getDefaultConfig()
	}

	validateAndSetDefaults(config)
	configCache = config

	if config.Debug {
		log.Printf("Configuration loaded:")
		log.Printf("  Endpoints: %d configured", len(config.Server.Endpoints))
		for i, ep := range config.Server.Endpoints {
			log.Printf("    Endpoint %d: %s", i+1, utils.LogURL(config.ObfuscateUrls, ep))
		}
		log.Printf("  Snapshot TTL: %s", config.SnapshotTTL)
		log.Printf("  Worker Threads: %d", config.WorkerThreads)
		log.Printf("  Debug: %v", config.Debug)
		log.Printf("  Obfuscate URLs: %v", config.ObfuscateUrls)
	}

	return config
}

// loadFromFile reads and parses the configuration from a JSON file.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return convertFromFile(&configFile)
}

// convertFromFile converts a ConfigFile to Config, parsing duration strings
// into time.Duration values.
func convertFromFile(cf *ConfigFile) (*Config, error) {
	config := &Config{
		BaseURL:         cf.BaseURL,
		ListenPort:      cf.ListenPort,
		DataDir:         cf.DataDir,
		WorkerThreads:   cf.WorkerThreads,
		Debug:           cf.Debug,
		ObfuscateUrls:   cf.ObfuscateUrls,
		DefaultSortKey:  cf.DefaultSortKey,
		DefaultSortDesc: cf.DefaultSortDesc,
		Playback:        cf.Playback,
		Server: ServerConfig{
			Endpoints:         cf.Server.Endpoints,
			ServerToken:       cf.Server.ServerToken,
			AccountToken:      cf.Server.AccountToken,
			DeviceID:          cf.Server.DeviceID,
			UserAgent:         cf.Server.UserAgent,
			RequestsPerSecond: cf.Server.RequestsPerSecond,
			PageSize:          cf.Server.PageSize,
		},
		Recovery: RecoveryConfig{
			ThroughputRatio:     cf.Recovery.ThroughputRatio,
			FirstReduction:      cf.Recovery.FirstReduction,
			LaterReduction:      cf.Recovery.LaterReduction,
			MaxDownshifts:       cf.Recovery.MaxDownshifts,
			ForcedTranscodeKbps: cf.Recovery.ForcedTranscodeKbps,
		},
	}

	// Parse duration fields
	var err error
	if config.SnapshotTTL, err = parseDuration(cf.SnapshotTTL); err != nil {
		return nil, fmt.Errorf("invalid snapshotTTL: %w", err)
	}
	if config.SnapshotWait, err = parseDuration(cf.SnapshotWait); err != nil {
		return nil, fmt.Errorf("invalid snapshotWait: %w", err)
	}
	if config.Server.RequestTimeout, err = parseDuration(cf.Server.RequestTimeout); err != nil {
		return nil, fmt.Errorf("invalid server.requestTimeout: %w", err)
	}
	if config.Recovery.Cooldown, err = parseDuration(cf.Recovery.Cooldown); err != nil {
		return nil, fmt.Errorf("invalid recovery.cooldown: %w", err)
	}
	if config.Recovery.ThroughputWindow, err = parseDuration(cf.Recovery.ThroughputWindow); err != nil {
		return nil, fmt.Errorf("invalid recovery.throughputWindow: %w", err)
	}
	if config.Recovery.LateStallCutoff, err = parseDuration(cf.Recovery.LateStallCutoff); err != nil {
		return nil, fmt.Errorf("invalid recovery.lateStallCutoff: %w", err)
	}

	return config, nil
}

// parseDuration parses a duration string, treating the empty string as zero
// so omitted fields fall through to defaulting rather than erroring.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// getDefaultConfig returns a baseline configuration with sensible defaults
// when no file is present.
func getDefaultConfig() *Config {
	return &Config{
		BaseURL:        "http://localhost:8080",
		ListenPort:     8080,
		DataDir:        "/data",
		SnapshotTTL:    time.Hour,
		SnapshotWait:   30 * time.Second,
		WorkerThreads:  8,
		Debug:          false,
		ObfuscateUrls:  false,
		DefaultSortKey: "title",
	}
}

// validateAndSetDefaults ensures all config values are valid, filling in
// defaults for missing/invalid ones. The recovery numbers default to the
// empirically tuned policy: 40% first reduction, 30% after, 5s cooldown and
// shortfall window, 45s late-stall cutoff, escalation after 2 downshifts.
func validateAndSetDefaults(config *Config) {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080"
	}
	if config.ListenPort <= 0 {
		config.ListenPort = 8080
	}
	if config.DataDir == "" {
		config.DataDir = "/data"
	}
	if config.SnapshotTTL <= 0 {
		config.SnapshotTTL = time.Hour
	}
	if config.SnapshotWait <= 0 {
		config.SnapshotWait = 30 * time.Second
	}
	if config.WorkerThreads <= 0 {
		config.WorkerThreads = 8
	}
	if config.DefaultSortKey == "" {
		config.DefaultSortKey = "title"
	}

	if config.Server.UserAgent == "" {
		config.Server.UserAgent = "teleloop/1.0"
	}
	if config.Server.RequestTimeout <= 0 {
		config.Server.RequestTimeout = 30 * time.Second
	}
	if config.Server.RequestsPerSecond <= 0 {
		config.Server.RequestsPerSecond = 5
	}
	if config.Server.PageSize <= 0 {
		config.Server.PageSize = 200
	}
	if config.Server.DeviceID == "" {
		config.Server.DeviceID = "teleloop-device"
	}

	if len(config.Playback.VideoCodecs) == 0 {
		config.Playback.VideoCodecs = []string{"h264", "hevc", "mpeg4"}
	}
	if len(config.Playback.AudioCodecs) == 0 {
		config.Playback.AudioCodecs = []string{"aac", "ac3", "eac3", "mp3"}
	}
	if config.Playback.DisallowedContainer == "" {
		config.Playback.DisallowedContainer = "avi"
	}
	if config.Playback.MaxBitrateKbps <= 0 {
		config.Playback.MaxBitrateKbps = 20000
	}
	if config.Playback.MinBitrateKbps <= 0 {
		config.Playback.MinBitrateKbps = 1000
	}
	if config.Playback.TargetVideoCodec == "" {
		config.Playback.TargetVideoCodec = "h264"
	}
	if config.Playback.TargetAudioCodec == "" {
		config.Playback.TargetAudioCodec = "aac"
	}

	if config.Recovery.Cooldown <= 0 {
		config.Recovery.Cooldown = 5 * time.Second
	}
	if config.Recovery.ThroughputWindow <= 0 {
		config.Recovery.ThroughputWindow = 5 * time.Second
	}
	if config.Recovery.ThroughputRatio <= 0 || config.Recovery.ThroughputRatio >= 1 {
		config.Recovery.ThroughputRatio = 0.6
	}
	if config.Recovery.LateStallCutoff <= 0 {
		config.Recovery.LateStallCutoff = 45 * time.Second
	}
	if config.Recovery.FirstReduction <= 0 || config.Recovery.FirstReduction >= 1 {
		config.Recovery.FirstReduction = 0.4
	}
	if config.Recovery.LaterReduction <= 0 || config.Recovery.LaterReduction >= 1 {
		config.Recovery.LaterReduction = 0.3
	}
	if config.Recovery.MaxDownshifts <= 0 {
		config.Recovery.MaxDownshifts = 2
	}
	if config.Recovery.ForcedTranscodeKbps <= 0 {
		config.Recovery.ForcedTranscodeKbps = 4000
	}
}

// Tokens returns the ordered credential candidates for the session: the
// server token first, then the account token. Empty credentials are skipped.
func (sc *ServerConfig) Tokens() []TokenPair {
	tokens := make([]TokenPair, 0, 2)
	if sc.ServerToken != "" {
		tokens = append(tokens, TokenPair{Class: "server", Value: sc.ServerToken})
	}
	if sc.AccountToken != "" {
		tokens = append(tokens, TokenPair{Class: "account", Value: sc.AccountToken})
	}
	return tokens
}

// TokenPair pairs a credential with its class for ordered rotation.
type TokenPair struct {
	Class string
	Value string
}

// CreateExampleConfig creates an example config file on disk.
func CreateExampleConfig(path string) error {
	example := ConfigFile{
		BaseURL:        "http://localhost:8080",
		ListenPort:     8080,
		DataDir:        "/data",
		SnapshotTTL:    "1h",
		SnapshotWait:   "30s",
		WorkerThreads:  8,
		Debug:          false,
		ObfuscateUrls:  true,
		DefaultSortKey: "title",
		Server: ServerConfigFile{
			Endpoints:         []string{"https://media.example.com:32400", "http://192.168.1.10:32400"},
			ServerToken:       "",
			AccountToken:      "",
			DeviceID:          "living-room-tv",
			UserAgent:         "teleloop/1.0",
			RequestTimeout:    "30s",
			RequestsPerSecond: 5,
			PageSize:          200,
		},
		Playback: PlaybackConfig{
			VideoCodecs:         []string{"h264", "hevc", "mpeg4"},
			AudioCodecs:         []string{"aac", "ac3", "eac3", "mp3"},
			DisallowedContainer: "avi",
			MaxBitrateKbps:      20000,
			MinBitrateKbps:      1000,
			TargetVideoCodec:    "h264",
			TargetAudioCodec:    "aac",
			ProbeMasterPlaylist: true,
		},
		Recovery: RecoveryConfigFile{
			Cooldown:            "5s",
			ThroughputWindow:    "5s",
			ThroughputRatio:     0.6,
			LateStallCutoff:     "45s",
			FirstReduction:      0.4,
			LaterReduction:      0.3,
			MaxDownshifts:       2,
			ForcedTranscodeKbps: 4000,
		},
	}

	data, err := json.MarshalIndent(example, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ClearConfigCache resets the configCache to nil.
// Forces a reload on the next LoadConfig() call.
func ClearConfigCache() {
	configMutex.Lock()
	defer configMutex.Unlock()
	configCache = nil
}
