package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server    ServerSettings    `json:"server"`
	Sources   []SourceConfig    `json:"sources"`
	Streaming StreamingSettings `json:"streaming"`
	Prefetch  PrefetchSettings  `json:"prefetch"`
	Proxy     ProxySettings     `json:"proxy"`
	Captions  CaptionSettings   `json:"captions"`
	Database  DatabaseSettings  `json:"database"`
	Log       LogConfig         `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// SourceConfig describes one upstream source provider.
type SourceConfig struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"` // "jsonapi"
	URL     string            `json:"url"`
	APIKey  string            `json:"apiKey,omitempty"`
	Enabled bool              `json:"enabled"`
	Config  map[string]string `json:"config,omitempty"`
}

// StreamingSettings controls the resolution cascade.
type StreamingSettings struct {
	AttemptTimeoutSec int      `json:"attemptTimeoutSec"` // per source/embed attempt
	SourceWindow      int      `json:"sourceWindow"`      // concurrent sources
	EmbedWindow       int      `json:"embedWindow"`       // concurrent embeds per source
	DefaultOrder      []string `json:"defaultOrder"`
	AnimeOrder        []string `json:"animeOrder,omitempty"`
}

// PrefetchSettings controls the segment warming loop.
type PrefetchSettings struct {
	IntervalSec       int `json:"intervalSec"`
	MaxSegments       int `json:"maxSegments"`
	TargetDurationSec int `json:"targetDurationSec"`
	SeenLimit         int `json:"seenLimit"`
	Concurrency       int `json:"concurrency"`
}

// ProxySettings configures the header-embedding stream proxy.
type ProxySettings struct {
	// PublicBase is the externally reachable base URL of this server,
	// e.g. "http://192.168.1.10:7900". Empty disables proxy rewriting.
	PublicBase string `json:"publicBase"`
}

type CaptionSettings struct {
	CacheDir string `json:"cacheDir"`
}

type DatabaseSettings struct {
	Path string `json:"path"`
}

// LogConfig represents file logging configuration.
type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns the configuration written on first start.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{Host: "0.0.0.0", Port: 7900},
		Sources: []SourceConfig{
			{ID: "vidora", Type: "jsonapi", URL: "https://vidora.example/api/v1", Enabled: true},
			{ID: "embedrise", Type: "jsonapi", URL: "https://embedrise.example/api/v1", Enabled: true},
			{ID: "kaze", Type: "jsonapi", URL: "https://kaze.example/api/v1", Enabled: true},
		},
		Streaming: StreamingSettings{
			AttemptTimeoutSec: 10,
			SourceWindow:      3,
			EmbedWindow:       3,
			DefaultOrder:      []string{"vidora", "embedrise", "kaze"},
			AnimeOrder:        []string{"kaze", "vidora", "embedrise"},
		},
		Prefetch: PrefetchSettings{
			IntervalSec:       15,
			MaxSegments:       40,
			TargetDurationSec: 180,
			SeenLimit:         600,
			Concurrency:       4,
		},
		Captions: CaptionSettings{CacheDir: "cache/captions"},
		Database: DatabaseSettings{Path: "cache/affinity.db"},
		Log: LogConfig{
			File:       "cache/logs/backend.log",
			Level:      "info",
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// Manager loads and persists settings at a fixed path.
type Manager struct {
	path string
}

// NewManager returns a manager bound to the given settings path.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Path returns the settings file location.
func (m *Manager) Path() string { return m.path }

// EnsureDir creates the directory holding the settings file.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads settings.json from disk or creates defaults if missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	data, err := os.ReadFile(m.path)
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}

	// Backfill defaults for settings introduced after the config was written.
	if s.Server.Port == 0 {
		s.Server.Port = 7900
	}
	if strings.TrimSpace(s.Server.Host) == "" {
		s.Server.Host = "0.0.0.0"
	}
	if s.Streaming.AttemptTimeoutSec == 0 {
		s.Streaming.AttemptTimeoutSec = 10
	}
	if s.Streaming.SourceWindow == 0 {
		s.Streaming.SourceWindow = 3
	}
	if s.Streaming.EmbedWindow == 0 {
		s.Streaming.EmbedWindow = 3
	}
	if len(s.Streaming.DefaultOrder) == 0 {
		for _, src := range s.Sources {
			if src.Enabled {
				s.Streaming.DefaultOrder = append(s.Streaming.DefaultOrder, src.ID)
			}
		}
	}
	if s.Prefetch.IntervalSec == 0 {
		s.Prefetch.IntervalSec = 15
	}
	if s.Prefetch.MaxSegments == 0 {
		s.Prefetch.MaxSegments = 40
	}
	if s.Prefetch.TargetDurationSec == 0 {
		s.Prefetch.TargetDurationSec = 180
	}
	if s.Prefetch.SeenLimit == 0 {
		s.Prefetch.SeenLimit = 600
	}
	if s.Prefetch.Concurrency == 0 {
		s.Prefetch.Concurrency = 4
	}
	if strings.TrimSpace(s.Captions.CacheDir) == "" {
		s.Captions.CacheDir = "cache/captions"
	}
	if strings.TrimSpace(s.Database.Path) == "" {
		s.Database.Path = "cache/affinity.db"
	}
	if strings.TrimSpace(s.Log.File) == "" {
		s.Log.File = "cache/logs/backend.log"
	}
	if s.Log.MaxSize == 0 {
		s.Log.MaxSize = 50
	}
	if s.Log.MaxBackups == 0 {
		s.Log.MaxBackups = 3
	}
	if s.Log.MaxAge == 0 {
		s.Log.MaxAge = 7
	}

	return s, nil
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}
