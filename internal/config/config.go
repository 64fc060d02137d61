// Package config holds the pktlink runtime configuration and its file
// loaders (TOML or YAML).
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/1ureka/pktlink/internal/link"
	"github.com/1ureka/pktlink/internal/protocol"
	"github.com/1ureka/pktlink/internal/transport"
)

var ErrInvalid = errors.New("config: invalid")

// Role is the side of the link the process plays.
type Role string

const (
	RoleServer Role = "server"
	RoleClient Role = "client"
)

// Mode selects what the server does with received packets.
type Mode string

const (
	ModeEcho      Mode = "echo"      // send each packet back to its sender
	ModeBroadcast Mode = "broadcast" // send each packet to every other connection
	ModeLog       Mode = "log"       // only print
)

// WebRTC holds the settings used when Transport is "webrtc".
type WebRTC struct {
	ICEServers      []string
	IncludeLoopback bool
}

// Config is the resolved configuration: defaults, then file, then flags.
type Config struct {
	Role      Role
	Transport string
	Address   string
	WSPath    string

	Framing           string
	ReceiveBufferSize int
	MaxFrameSize      uint32
	SendQueueSize     int
	FlushTimeout      time.Duration
	DialTimeout       time.Duration
	ZeroByteSentinel  bool

	Mode          Mode
	MetricsAddr   string
	StatsInterval time.Duration
	Debug         bool

	WebRTC WebRTC
}

func Default() Config {
	return Config{
		Role:             RoleServer,
		Transport:        transport.NetworkTCP,
		Address:          "127.0.0.1:9000",
		WSPath:           transport.DefaultWebSocketPath,
		Framing:          protocol.FramingRead,
		MaxFrameSize:     protocol.DefaultMaxFrameSize,
		SendQueueSize:    link.DefaultSendQueueSize,
		FlushTimeout:     link.DefaultFlushTimeout,
		DialTimeout:      transport.DefaultDialTimeout,
		ZeroByteSentinel: true,
		Mode:             ModeEcho,
	}
}

// fileConfig is the on-disk shape. Pointer fields distinguish "absent" from
// the zero value so only keys present in the file override defaults.
type fileConfig struct {
	Role              *string     `toml:"role" yaml:"role"`
	Transport         *string     `toml:"transport" yaml:"transport"`
	Address           *string     `toml:"address" yaml:"address"`
	WSPath            *string     `toml:"ws_path" yaml:"ws_path"`
	Framing           *string     `toml:"framing" yaml:"framing"`
	ReceiveBufferSize *int        `toml:"receive_buffer_size" yaml:"receive_buffer_size"`
	MaxFrameSize      *uint32     `toml:"max_frame_size" yaml:"max_frame_size"`
	SendQueueSize     *int        `toml:"send_queue_size" yaml:"send_queue_size"`
	FlushTimeout      *string     `toml:"flush_timeout" yaml:"flush_timeout"`
	DialTimeout       *string     `toml:"dial_timeout" yaml:"dial_timeout"`
	ZeroByteSentinel  *bool       `toml:"zero_byte_sentinel" yaml:"zero_byte_sentinel"`
	Mode              *string     `toml:"mode" yaml:"mode"`
	MetricsAddr       *string     `toml:"metrics_addr" yaml:"metrics_addr"`
	StatsInterval     *string     `toml:"stats_interval" yaml:"stats_interval"`
	Debug             *bool       `toml:"debug" yaml:"debug"`
	WebRTC            *fileWebRTC `toml:"webrtc" yaml:"webrtc"`
}

type fileWebRTC struct {
	ICEServers      []string `toml:"ice_servers" yaml:"ice_servers"`
	IncludeLoopback *bool    `toml:"include_loopback" yaml:"include_loopback"`
}

// Load reads path over Default. The format follows the extension: .yaml and
// .yml are YAML, anything else is TOML. Unknown keys are rejected.
func Load(path string) (Config, error) {
	var raw fileConfig

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
	default:
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("load config %s: %w: unknown key %q", path, ErrInvalid, undecoded[0].String())
		}
	}

	cfg := Default()
	if err := raw.apply(&cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func (raw fileConfig) apply(cfg *Config) error {
	if raw.Role != nil {
		cfg.Role = Role(strings.TrimSpace(*raw.Role))
	}
	if raw.Transport != nil {
		cfg.Transport = strings.TrimSpace(*raw.Transport)
	}
	if raw.Address != nil {
		cfg.Address = strings.TrimSpace(*raw.Address)
	}
	if raw.WSPath != nil {
		cfg.WSPath = strings.TrimSpace(*raw.WSPath)
	}
	if raw.Framing != nil {
		cfg.Framing = strings.TrimSpace(*raw.Framing)
	}
	if raw.ReceiveBufferSize != nil {
		cfg.ReceiveBufferSize = *raw.ReceiveBufferSize
	}
	if raw.MaxFrameSize != nil {
		cfg.MaxFrameSize = *raw.MaxFrameSize
	}
	if raw.SendQueueSize != nil {
		cfg.SendQueueSize = *raw.SendQueueSize
	}
	if raw.ZeroByteSentinel != nil {
		cfg.ZeroByteSentinel = *raw.ZeroByteSentinel
	}
	if raw.Mode != nil {
		cfg.Mode = Mode(strings.TrimSpace(*raw.Mode))
	}
	if raw.MetricsAddr != nil {
		cfg.MetricsAddr = strings.TrimSpace(*raw.MetricsAddr)
	}
	if raw.Debug != nil {
		cfg.Debug = *raw.Debug
	}

	durations := []struct {
		key string
		src *string
		dst *time.Duration
	}{
		{"flush_timeout", raw.FlushTimeout, &cfg.FlushTimeout},
		{"dial_timeout", raw.DialTimeout, &cfg.DialTimeout},
		{"stats_interval", raw.StatsInterval, &cfg.StatsInterval},
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(*d.src))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, d.key, err)
		}
		*d.dst = v
	}

	if raw.WebRTC != nil {
		if raw.WebRTC.ICEServers != nil {
			cfg.WebRTC.ICEServers = raw.WebRTC.ICEServers
		}
		if raw.WebRTC.IncludeLoopback != nil {
			cfg.WebRTC.IncludeLoopback = *raw.WebRTC.IncludeLoopback
		}
	}
	return nil
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	switch c.Role {
	case RoleServer, RoleClient:
	default:
		return fmt.Errorf("%w: role %q (expected server or client)", ErrInvalid, c.Role)
	}
	switch c.Transport {
	case transport.NetworkTCP, transport.NetworkWebSocket, transport.NetworkWebRTC:
	default:
		return fmt.Errorf("%w: transport %q (expected tcp, ws or webrtc)", ErrInvalid, c.Transport)
	}
	if c.Address == "" {
		return fmt.Errorf("%w: address is required", ErrInvalid)
	}
	if _, err := protocol.ParseFraming(c.Framing, c.MaxFrameSize); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.ReceiveBufferSize < 0 {
		return fmt.Errorf("%w: receive_buffer_size must not be negative", ErrInvalid)
	}
	if c.SendQueueSize < 0 {
		return fmt.Errorf("%w: send_queue_size must not be negative", ErrInvalid)
	}
	if c.FlushTimeout < 0 || c.DialTimeout < 0 || c.StatsInterval < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalid)
	}
	if c.Role == RoleServer {
		switch c.Mode {
		case ModeEcho, ModeBroadcast, ModeLog:
		default:
			return fmt.Errorf("%w: mode %q (expected echo, broadcast or log)", ErrInvalid, c.Mode)
		}
	}
	return nil
}

// LinkOptions maps the packet-level settings onto link.Options.
func (c Config) LinkOptions() (link.Options, error) {
	framer, err := protocol.ParseFraming(c.Framing, c.MaxFrameSize)
	if err != nil {
		return link.Options{}, err
	}
	return link.Options{
		Framer:                  framer,
		SendQueueSize:           c.SendQueueSize,
		FlushTimeout:            c.FlushTimeout,
		DisableZeroByteSentinel: !c.ZeroByteSentinel,
	}, nil
}

// TransportOptions maps the transport settings onto transport.Options.
func (c Config) TransportOptions() transport.Options {
	return transport.Options{
		ReceiveBufferSize: c.ReceiveBufferSize,
		DialTimeout:       c.DialTimeout,
		WebSocketPath:     c.WSPath,
		ICEServers:        c.WebRTC.ICEServers,
		IncludeLoopback:   c.WebRTC.IncludeLoopback,
	}
}

// Network builds the configured transport.
func (c Config) Network() (transport.Network, error) {
	return transport.New(c.Transport, c.TransportOptions())
}
