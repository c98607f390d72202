package conf

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/tphakala/rtbridge/internal/errors"
)

// GetDefaultConfigPaths returns the directories searched for config.yaml, in order.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	paths := []string{"."}
	switch runtime.GOOS {
	case "windows":
		paths = append(paths, filepath.Join(homeDir, "AppData", "Roaming", "rtbridge"))
	default:
		paths = append(paths, filepath.Join(homeDir, ".config", "rtbridge"), "/etc/rtbridge")
	}
	return paths, nil
}
