package engine

import (
	"fmt"
	"os"
)

// StartupChecks performs all the checks to make sure everything works
func (serverHandler *ServerHandler) StartupChecks() error {
	serverConfig := serverHandler.ServerConfig
	directories := []struct {
		name string
		path string
	}{
		{"uploads", serverConfig.UploadPath},
		{"temporary pages", serverConfig.TempPDFPath},
		{"high resolution", serverConfig.HighResPath},
		{"thumbnails", serverConfig.ThumbnailPath},
	}
	for _, dir := range directories {
		if err := directoryChecks(dir.name, dir.path); err != nil {
			return err
		}
	}
	if err := serverConfig.Validate(); err != nil {
		Logger.Error("Invalid configuration", "error", err)
		return err
	}
	Logger.Info("Startup checks passed", "rasterizer", serverConfig.Rasterizer)
	return nil
}

// directoryChecks ensures a working directory exists, creating it when missing
func directoryChecks(name, path string) error {
	if path == "" {
		Logger.Warn("Directory not configured", "directory", name)
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			Logger.Info("Creating directory", "directory", name, "path", path)
			if err := os.MkdirAll(path, 0755); err != nil {
				Logger.Error("Failed to create directory", "directory", name, "path", path, "error", err)
				return err
			}
			return nil
		}
		Logger.Error("Error checking directory", "directory", name, "path", path, "error", err)
		return err
	}

	if !info.IsDir() {
		Logger.Error("Path exists but is not a directory", "directory", name, "path", path)
		return fmt.Errorf("%s path is not a directory: %s", name, path)
	}

	Logger.Debug("Directory exists", "directory", name, "path", path)
	return nil
}
