package domain

import "time"

type SiteConfig struct {
	Subdomain       string            `json:"subdomain"`
	CustomDomains   []string          `json:"customDomains"`
	Maintenance     bool              `json:"maintenance"`
	HealthCheckPath string            `json:"healthCheckPath"`
	ProxyTarget     string            `json:"proxyTarget,omitempty"`
	Env             map[string]string `json:"env,omitempty"`
	Created         time.Time         `json:"created"`
	Updated         time.Time         `json:"updated"`
}

type Health string

const (
	HealthUnknown     Health = "unknown"
	HealthActive      Health = "active"
	HealthWarning     Health = "warning"
	HealthError       Health = "error"
	HealthMaintenance Health = "maintenance"
)

type StatusEntry struct {
	Status  Health    `json:"status"`
	Checked time.Time `json:"checked"`
	Code    int       `json:"code,omitempty"`
	Latency int64     `json:"latencyMs,omitempty"`
	Error   string    `json:"error,omitempty"`
}

type ServiceStatus struct {
	Site        string        `json:"site"`
	Status      Health        `json:"status"`
	LastChecked time.Time     `json:"lastChecked"`
	History     []StatusEntry `json:"history"`
}
