// Package config provides environment helpers for go-traffic commands.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variables recognized by the traffic commands.
const (
	EnvPageURL    = "TRAFFIC_PAGE_URL"
	EnvModelPath  = "TRAFFIC_MODEL_PATH"
	EnvListenAddr = "TRAFFIC_LISTEN_ADDR"
	EnvLogLevel   = "TRAFFIC_LOG_LEVEL"
	EnvStreamURL  = "TRAFFIC_STREAM_URL" // Skips token resolution when set

	// Detection and lane tuning
	EnvConfidence    = "TRAFFIC_CONF"
	EnvIoU           = "TRAFFIC_IOU"
	EnvExclusionLine = "TRAFFIC_EXCLUSION_LINE"
	EnvXDivider      = "TRAFFIC_X_DIVIDER"
	EnvYDivider      = "TRAFFIC_Y_DIVIDER"

	// Session timing, as Go durations ("15s")
	EnvTokenTimeout   = "TRAFFIC_TOKEN_TIMEOUT"
	EnvRetryInterval  = "TRAFFIC_RETRY_INTERVAL"
	EnvReconnectDelay = "TRAFFIC_RECONNECT_DELAY"

	// Dataset capture
	EnvCaptureBatch    = "TRAFFIC_CAPTURE_BATCH"
	EnvCaptureTotal    = "TRAFFIC_CAPTURE_TOTAL"
	EnvCaptureInterval = "TRAFFIC_CAPTURE_INTERVAL"
)

// String returns the value of key, or def when unset or empty.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns key parsed as an int, or def when unset.
func Int(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// Float returns key parsed as a float64, or def when unset.
func Float(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

// Duration returns key parsed with time.ParseDuration, or def when unset.
func Duration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
