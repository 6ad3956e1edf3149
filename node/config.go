package node

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/naoina/toml"
)

// Config is the node's operator-facing configuration, loaded from a
// TOML file and overridable flag by flag from cmd/cnd.
type Config struct {
	// DataDir holds cnd.sqlite and the seed backup; the optional log
	// file goes wherever Log.File points.
	DataDir string `toml:"data_dir"`

	Log      LogConfig      `toml:"log"`
	HTTP     HTTPConfig     `toml:"http"`
	P2P      P2PConfig      `toml:"p2p"`
	Bitcoin  BitcoinConfig  `toml:"bitcoin"`
	Ethereum EthereumConfig `toml:"ethereum"`
}

type LogConfig struct {
	// Level is one of trace, debug, info, warn, error. It is the one
	// setting the config watcher re-applies live, without a restart.
	Level string `toml:"level"`

	// File enables an additional rotating file sink next to stderr;
	// empty means stderr only.
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

type HTTPConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

type P2PConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

type BitcoinConfig struct {
	Network     string `toml:"network"`
	NodeURL     string `toml:"node_url"`
	RPCUser     string `toml:"rpc_user"`
	RPCPassword string `toml:"rpc_password"`
}

type EthereumConfig struct {
	ChainID uint32 `toml:"chain_id"`
	NodeURL string `toml:"node_url"`
}

// DefaultConfig returns the configuration a node runs with when no
// config file is present: regtest/dev chain endpoints, localhost
// listeners, info-level logging.
func DefaultConfig() Config {
	return Config{
		DataDir: defaultDataDir(),
		Log:     LogConfig{Level: "info", MaxSizeMB: 100, MaxBackups: 3},
		HTTP:    HTTPConfig{ListenAddr: "127.0.0.1:8000"},
		P2P:     P2PConfig{ListenAddr: "127.0.0.1:9939"},
		Bitcoin: BitcoinConfig{Network: "regtest"},
		Ethereum: EthereumConfig{
			ChainID: 1337,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cnd"
	}
	return filepath.Join(home, ".cnd")
}

// LoadConfig reads path on top of the defaults; settings the file does
// not mention keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("node: reading config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("node: parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// EnsureDataDir creates the data directory if needed and returns its
// absolute path.
func (c Config) EnsureDataDir() (string, error) {
	dir, err := filepath.Abs(c.DataDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("node: creating data dir %s: %w", dir, err)
	}
	return dir, nil
}

// WatchConfig re-loads path every time it changes on disk and hands
// the result to apply. Only settings that are safe to change live
// should be acted on by apply; today that is the log level. The
// watcher runs until the returned stop function is called.
func WatchConfig(path string, apply func(Config)) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("node: config watcher: %w", err)
	}
	// Watch the directory, not the file: editors that write-and-rename
	// replace the inode, which silently detaches a file-level watch.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("node: watching %s: %w", path, err)
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if cfg, err := LoadConfig(path); err == nil {
					apply(cfg)
				}
			case <-watcher.Errors:
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
