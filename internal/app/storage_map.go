package app

import (
	"fmt"
	"strings"
	"time"

	"vknotify/internal/config"
	"vknotify/internal/storage"
)

// defaultHistoryFile is used when the file driver has no path.
const defaultHistoryFile = "~/.vk_notify_runs.jsonl"

func mapStorageConfig(rt config.Runtime) (storage.Config, bool, error) {
	driver := strings.TrimSpace(rt.StorageDriver)
	if driver == "" || strings.EqualFold(driver, "none") {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(rt.StoragePath)

	dl := strings.ToLower(driver)
	switch dl {
	case "file":
		if path == "" {
			path = config.ExpandHome(defaultHistoryFile)
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage_path is required when storage_driver=sqlite")
		}
		return storage.Config{Driver: dl, Path: path, BusyTimeout: time.Second}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage_driver: %s", driver)
	}
}
