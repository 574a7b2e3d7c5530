package api

import (
	"net/http"
	"os"
	"strings"
	"time"
)

type HealthOptions struct {
	Version       string
	Environment   string
	StartedAt     time.Time
	StorageDriver string
	StoragePath   string
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Environment   string `json:"environment,omitempty"`
	UptimeSec     int64  `json:"uptime_sec"`
	StorageDriver string `json:"storage_driver"`
	DBSizeBytes   int64  `json:"db_size_bytes,omitempty"`
}

func HealthHandler(options HealthOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}

		dbSizeBytes := int64(0)
		if strings.EqualFold(options.StorageDriver, "sqlite") && options.StoragePath != "" {
			if info, err := os.Stat(options.StoragePath); err == nil {
				dbSizeBytes = info.Size()
			}
		}

		writeJSON(w, http.StatusOK, healthResponse{
			Status:        "ok",
			Version:       options.Version,
			Environment:   options.Environment,
			UptimeSec:     int64(time.Since(options.StartedAt).Seconds()),
			StorageDriver: options.StorageDriver,
			DBSizeBytes:   dbSizeBytes,
		})
	})
}
