package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	x, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] valor inválido em %s=%q, usando default %d", key, v, def)
		return def
	}
	return x
}

func getenvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	x, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] valor inválido em %s=%q, usando default %g", key, v, def)
		return def
	}
	return x
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] valor inválido em %s=%q, usando default %t", key, v, def)
		return def
	}
	return b
}

func envDurationSeconds(key string, def time.Duration) time.Duration {
	return envDuration(key, def, time.Second)
}

func envDurationMinutes(key string, def time.Duration) time.Duration {
	return envDuration(key, def, time.Minute)
}

func envDurationMillis(key string, def time.Duration) time.Duration {
	return envDuration(key, def, time.Millisecond)
}

func envDuration(key string, def, unit time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		log.Printf("[config] valor inválido em %s=%q, usando default %s", key, v, def)
		return def
	}
	return time.Duration(n) * unit
}

func parseCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
