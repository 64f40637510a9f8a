package core

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// DefaultPort is used when the config file does not specify one.
const DefaultPort = 36571

// Config is the persisted, user-editable configuration. The UI and its
// settings dialog are out of scope (§1); this struct is the boundary
// external collaborators read and write.
type Config struct {
	Port            int    `toml:"Port"`
	DownloadDir     string `toml:"DownloadDir"`
	FirewallChecked bool   `toml:"FirewallChecked"`
}

// ConfigDir returns "<user config dir>/dragit".
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "dragit"), nil
}

// ConfigPath returns "<user config dir>/dragit/config.toml", the fixed
// location named in §6.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// LoadConfig reads the TOML configuration file. A missing or unreadable
// file returns ExitErrorConfigAccess and an unparsable one
// ExitErrorConfigParse; in both cases the core refuses to start (§7).
// Fields the file leaves unset (or an empty file) take the defaults of
// §6: DefaultPort and the user's Downloads folder (else home directory).
func LoadConfig(path string) (cfg Config, status int, err error) {
	cfg = Config{Port: DefaultPort}
	if dir, derr := defaultDownloadDir(); derr == nil {
		cfg.DownloadDir = dir
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, ExitErrorConfigAccess, err
	}

	if len(data) == 0 {
		return cfg, ExitSuccess, nil
	}

	if err = toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, ExitErrorConfigParse, err
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	return cfg, ExitSuccess, nil
}

// SaveConfig persists the configuration, creating the parent directory if
// necessary.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

// defaultDownloadDir resolves the user's Downloads folder, falling back to
// the home directory per §6.
func defaultDownloadDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	downloads := filepath.Join(home, "Downloads")
	if info, err := os.Stat(downloads); err == nil && info.IsDir() {
		return downloads, nil
	}

	return home, nil
}
