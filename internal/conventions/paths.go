package conventions

import "path/filepath"

const (
	// DefaultDataDir is the default wdeploy data directory name (relative to home).
	DefaultDataDir = ".wdeploy"
	// DBFile is the run history database filename.
	DBFile = "wdeploy.db"

	// DefaultListenAddr is the default address of the HTTP API.
	DefaultListenAddr = ":8080"
	// DefaultAPITimeout is the default per request timeout of the dashboard API, as a flag value.
	DefaultAPITimeout = "30s"
)

// DBPath returns the run history database path for a home directory.
func DBPath(homeDir string) string {
	return filepath.Join(homeDir, DefaultDataDir, DBFile)
}
