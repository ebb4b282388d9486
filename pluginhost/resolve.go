package pluginhost

import (
	"os"
	"path/filepath"
)

// ResolveArtifactPath implements spec §4.6's resolution order: explicit CLI
// argument; else the attachment path provided by the settings service;
// else a default installed-plugin file name. If the resulting path does not
// exist, the installation's lib/bin directories are searched by base name;
// if still missing, the resolution fails.
func ResolveArtifactPath(cliArg, attachmentPath, defaultName, installPrefix string) (string, error) {
	candidate := cliArg
	if candidate == "" {
		candidate = attachmentPath
	}
	if candidate == "" {
		candidate = defaultName
	}
	if fileExists(candidate) {
		return candidate, nil
	}

	base := filepath.Base(candidate)
	for _, dir := range []string{filepath.Join(installPrefix, "lib"), filepath.Join(installPrefix, "bin")} {
		p := filepath.Join(dir, base)
		if fileExists(p) {
			return p, nil
		}
	}
	return "", &PluginError{Op: "resolve artifact", Path: candidate, Err: os.ErrNotExist}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
