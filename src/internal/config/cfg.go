// Package config loads and validates mpdgo's JSON configuration file,
// adapted from the teacher's own config.Cfg/Load/Validate idiom
// (gitlab.com/mipimipi/muserv/src/internal/config/cfg.go) but reshaped
// around the playback-core settings spec.md §6 names instead of muserv's
// UPnP/hierarchy configuration.
package config

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"gitlab.com/go-utilities/file"
)

// ValueKey is the type of context keys mpdgo stores configuration under.
type ValueKey string

// KeyCfg is the context key for the loaded configuration.
const KeyCfg ValueKey = "cfg"

// KeyVersion is the context key for the running version string.
const KeyVersion ValueKey = "version"

const defaultCfgFilepath = "/etc/mpdgo/mpdgo.json"

// Network holds the client-session listener addresses (spec.md §4.4).
type Network struct {
	BindAddress string `json:"bind_address"`
	Port        int    `json:"port"`
	SocketPath  string `json:"socket_path"`
}

// Symlinks holds the walker's symlink-following policy (spec.md §4.1).
type Symlinks struct {
	FollowInside  bool `json:"follow_inside"`
	FollowOutside bool `json:"follow_outside"`
}

// Player holds the playback-core tunables of spec.md §4.3.
type Player struct {
	AudioBufferSizeKB  int     `json:"audio_buffer_size_kb"`
	BufferedBeforePlay float64 `json:"buffered_before_play_pct"`
	CrossFadeSeconds   float64 `json:"crossfade_seconds"`
	ReplayGainMode     string  `json:"replaygain_mode"` // off|track|album
	ReplayGainPreampDB float64 `json:"replaygain_preamp_db"`
}

// Cfg is mpdgo's top-level configuration (spec.md §6 "Filesystem layout").
type Cfg struct {
	MusicDirectory    string   `json:"music_directory"`
	PlaylistDirectory string   `json:"playlist_directory"`
	DBFile            string   `json:"db_file"`
	StateFile         string   `json:"state_file"`
	PIDFile           string   `json:"pid_file"`
	LogFile           string   `json:"log_file"`
	LogLevel          string   `json:"log_level"`
	MaxPlaylistLength int      `json:"max_playlist_length"`
	AutoUpdate        bool     `json:"auto_update"`
	AutoUpdateEvery   duration `json:"auto_update_interval"`
	Symlinks          Symlinks `json:"symlinks"`
	Network           Network  `json:"network"`
	Player            Player   `json:"player"`
}

// duration unmarshals a JSON string like "5m" into a time.Duration, the
// way the teacher's UpdateInterval is declared (there it is a bare
// integer-seconds time.Duration; mpdgo accepts the more common string
// form since its interval is user-facing in the config file).
type duration time.Duration

func (d *duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if err2 := json.Unmarshal(b, &n); err2 != nil {
			return err
		}
		*d = duration(time.Duration(n) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", s)
	}
	*d = duration(parsed)
	return nil
}

// Duration returns the parsed auto-update interval.
func (c Cfg) Duration() time.Duration { return time.Duration(c.AutoUpdateEvery) }

// Load reads and parses the configuration file at path. An empty path
// uses the default location.
func Load(path string) (cfg Cfg, err error) {
	if path == "" {
		path = defaultCfgFilepath
	}
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return Cfg{}, errors.Wrapf(err, "config file '%s' couldn't be read", path)
	}
	if err = json.Unmarshal(raw, &cfg); err != nil {
		return Cfg{}, errors.Wrapf(err, "config file '%s' couldn't be parsed", path)
	}
	return cfg.withDefaults(), nil
}

// withDefaults fills in the tunables spec.md describes as having sane
// defaults (e.g. the 2048-ish chunk-ring size) when the config file leaves
// them at their zero value. The client idle timeout is not configurable; it
// is the server package's idleClientTimeout.
func (c Cfg) withDefaults() Cfg {
	if c.MaxPlaylistLength == 0 {
		c.MaxPlaylistLength = 16384
	}
	if c.AutoUpdateEvery == 0 {
		c.AutoUpdateEvery = duration(30 * time.Minute)
	}
	if c.Player.AudioBufferSizeKB == 0 {
		c.Player.AudioBufferSizeKB = 8192 // yields a ~2048-chunk ring at ChunkSize=4096
	}
	if c.Player.BufferedBeforePlay == 0 {
		c.Player.BufferedBeforePlay = 0.25
	}
	if c.Network.Port == 0 {
		c.Network.Port = 6600
	}
	if c.ReplayGainModeOrDefault() == "" {
		c.Player.ReplayGainMode = "off"
	}
	return c
}

// ReplayGainModeOrDefault returns the configured replay-gain mode string,
// defaulting to "" (caller normalizes via withDefaults/player wiring).
func (c Cfg) ReplayGainModeOrDefault() string { return c.Player.ReplayGainMode }

// PipeCapacity returns the music pipe's chunk-ring capacity implied by the
// configured audio-buffer size (spec.md §3 "derived from an audio-buffer-
// size setting divided by chunk size").
func (c Cfg) PipeCapacity(chunkSize int) int {
	bytes := c.Player.AudioBufferSizeKB * 1024
	if chunkSize <= 0 {
		return 2048
	}
	n := bytes / chunkSize
	if n < 2 {
		n = 2
	}
	return n
}

// Validate checks the configuration for completeness and consistency
// (mirroring the teacher's Cfg.Validate shape).
func (c Cfg) Validate() (err error) {
	if err = validateDir(c.MusicDirectory, "music_directory"); err != nil {
		return
	}
	if err = validateDir(c.PlaylistDirectory, "playlist_directory"); err != nil {
		return
	}
	if c.DBFile == "" {
		return fmt.Errorf("no db_file maintained")
	}
	if c.StateFile == "" {
		return fmt.Errorf("no state_file maintained")
	}
	if c.MaxPlaylistLength <= 0 {
		return fmt.Errorf("max_playlist_length must be > 0")
	}
	switch c.Player.ReplayGainMode {
	case "", "off", "track", "album":
	default:
		return fmt.Errorf("unknown replaygain_mode '%s'", c.Player.ReplayGainMode)
	}
	return nil
}

func validateDir(dir, name string) error {
	if dir == "" {
		return fmt.Errorf("no %s maintained", name)
	}
	exists, err := file.Exists(dir)
	if err != nil {
		return errors.Wrapf(err, "cannot check if %s '%s' exists", name, dir)
	}
	if !exists {
		return fmt.Errorf("%s '%s' doesn't exist", name, dir)
	}
	return nil
}

// Test reads the configuration file at path and checks it for
// completeness and consistency, printing a confirmation on success
// (backs the `mpdgo test` CLI subcommand).
func Test(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return errors.Wrap(err, "the mpdgo configuration file couldn't be read")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	fmt.Println("Congrats: the mpdgo configuration is complete and consistent :)")
	return nil
}
