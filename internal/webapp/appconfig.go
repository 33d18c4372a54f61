package webapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ConfigFileName is the web application's configuration document,
// expected directly under the restored tree.
const ConfigFileName = "appConfig.json"

const (
	sourceDataDir = "source_data"
	targetDataDir = "target_data"

	apiServerKey  = "apiServer"
	sourcePathKey = "sourcePhiloDBPath"
	targetPathKey = "targetPhiloDBPath"
)

var ErrConfigUpdate = errors.New("failed to update web application configuration")

// PatchConfig rewrites appConfig.json in place so the restored app
// points at the live API endpoint and at the restored PhiloLogic data
// directories. Fields it does not know about pass through unchanged.
func PatchConfig(webAppPath, apiServer string) error {
	configPath := filepath.Join(webAppPath, ConfigFileName)

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigUpdate, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConfigUpdate, configPath, err)
	}

	doc[apiServerKey] = apiServer

	if path, ok := dataDirPath(webAppPath, sourceDataDir); ok {
		doc[sourcePathKey] = path
	}
	if path, ok := dataDirPath(webAppPath, targetDataDir); ok {
		doc[targetPathKey] = path
	} else if _, present := doc[targetPathKey]; present {
		// No target data restored; clear the stale path rather than
		// leaving it dangling.
		doc[targetPathKey] = ""
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigUpdate, err)
	}
	if err := os.WriteFile(configPath, append(out, '\n'), 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigUpdate, err)
	}
	return nil
}

// dataDirPath reports the absolute path of a data subdirectory under
// the restored tree, when it exists.
func dataDirPath(webAppPath, name string) (string, bool) {
	dir := filepath.Join(webAppPath, name)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", false
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	return abs, true
}
