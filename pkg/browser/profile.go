package browser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
)

// seedProfile creates a fresh, isolated temporary profile directory for a
// launched browser and seeds it with the user's Chrome preferences file when
// one exists. The copy lets the new instance inherit saved site settings
// without mutating or locking the user's real profile. A missing or
// uncopyable source file is not an error; the browser just starts bare.
//
// The caller owns the returned directory and must remove it when the
// acquisition finishes.
func seedProfile(srcPreferences string) (string, error) {
	dir, err := os.MkdirTemp("", "erpkey-profile-")
	if err != nil {
		return "", fmt.Errorf("failed to create temp profile directory: %w", err)
	}

	if srcPreferences == "" {
		return dir, nil
	}
	if _, err := os.Stat(srcPreferences); err != nil {
		return dir, nil
	}

	dst := filepath.Join(dir, "Default", "Preferences")
	if err := copyFile(srcPreferences, dst); err != nil {
		// Seeding is best effort; a bare profile still works, the user
		// just logs in without saved preferences.
		return dir, nil
	}
	return dir, nil
}

// chromePreferencesPath returns the user's default Chrome preferences file
// for this platform, or an empty string when the location is unknown.
func chromePreferencesPath() string {
	switch runtime.GOOS {
	case "linux":
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		return filepath.Join(home, ".config", "google-chrome", "Default", "Preferences")
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		return filepath.Join(home, "Library", "Application Support", "Google", "Chrome", "Default", "Preferences")
	case "windows":
		local := os.Getenv("LOCALAPPDATA")
		if local == "" {
			return ""
		}
		return filepath.Join(local, "Google", "Chrome", "User Data", "Default", "Preferences")
	default:
		return ""
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
