// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

package transport

import (
	"strings"
	"time"

	vestig "github.com/vestig-io/vestig-go"
	"github.com/vestig-io/vestig-go/internal/hostinfo"
)

// Datadog transport defaults.
const (
	DefaultDatadogSite          = "datadoghq.com"
	DefaultDatadogBatchSize     = 50
	DefaultDatadogFlushInterval = 3 * time.Second
)

// datadogSites maps a Datadog site to its log intake URL.
var datadogSites = map[string]string{
	"datadoghq.com":     "https://http-intake.logs.datadoghq.com/api/v2/logs",
	"datadoghq.eu":      "https://http-intake.logs.datadoghq.eu/api/v2/logs",
	"us3.datadoghq.com": "https://http-intake.logs.us3.datadoghq.com/api/v2/logs",
	"us5.datadoghq.com": "https://http-intake.logs.us5.datadoghq.com/api/v2/logs",
	"ap1.datadoghq.com": "https://http-intake.logs.ap1.datadoghq.com/api/v2/logs",
	"ddog-gov.com":      "https://http-intake.logs.ddog-gov.com/api/v2/logs",
}

// DatadogConfig configures a Datadog log-intake transport.
type DatadogConfig struct {
	Config
	BatchConfig

	// APIKey authenticates against the intake. Required.
	APIKey string

	// Site selects the intake region. Default "datadoghq.com".
	Site string

	// Service is the service name attached to each entry.
	Service string

	// Hostname overrides the probed host name.
	Hostname string

	// Tags are additional "key:value" tags on every entry.
	Tags []string

	// Timeout bounds each delivery attempt. Default 30s.
	Timeout time.Duration
}

// datadogEntry is the intake wire format for one record.
type datadogEntry struct {
	DDSource   string         `json:"ddsource"`
	DDTags     string         `json:"ddtags"`
	Hostname   string         `json:"hostname"`
	Message    string         `json:"message"`
	Service    string         `json:"service"`
	Status     string         `json:"status"`
	Timestamp  int64          `json:"timestamp"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Error      any            `json:"error,omitempty"`
}

// NewDatadog builds a Datadog transport: an HTTP transport with the intake
// URL, auth header and entry transform fixed.
func NewDatadog(cfg DatadogConfig) *HTTP {
	if cfg.Name == "" {
		cfg.Name = "datadog"
	}
	site := cfg.Site
	if site == "" {
		site = DefaultDatadogSite
	}
	url, ok := datadogSites[site]
	if !ok {
		url = datadogSites[DefaultDatadogSite]
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultDatadogBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultDatadogFlushInterval
	}
	hostname := cfg.Hostname
	if hostname == "" {
		hostname = hostinfo.Get().Hostname
	}
	return NewHTTP(HTTPConfig{
		Config:      cfg.Config,
		BatchConfig: cfg.BatchConfig,
		URL:         url,
		Headers:     map[string]string{"DD-API-KEY": cfg.APIKey},
		Timeout:     cfg.Timeout,
		Transform: func(records []*vestig.Record) any {
			entries := make([]datadogEntry, len(records))
			for i, r := range records {
				entries[i] = datadogEntry{
					DDSource:   hostinfo.RuntimeTag,
					DDTags:     datadogTags(r, cfg.Tags),
					Hostname:   hostname,
					Message:    r.Message,
					Service:    cfg.Service,
					Status:     datadogStatus(r.Level),
					Timestamp:  r.Time.UnixMilli(),
					Attributes: r.Metadata,
				}
				if r.Err != nil {
					entries[i].Error = r.Err
				}
			}
			return entries
		},
	})
}

// datadogStatus remaps levels to the intake's status values; trace folds
// into debug and warn widens to "warning".
func datadogStatus(level vestig.Level) string {
	switch level {
	case vestig.LevelTrace, vestig.LevelDebug:
		return "debug"
	case vestig.LevelWarn:
		return "warning"
	case vestig.LevelError:
		return "error"
	default:
		return "info"
	}
}

func datadogTags(r *vestig.Record, extra []string) string {
	tags := []string{"runtime:" + hostinfo.RuntimeTag}
	if r.Namespace != "" {
		tags = append(tags, "namespace:"+r.Namespace)
	}
	if id, ok := r.Context[vestig.FieldTraceID].(string); ok && id != "" {
		tags = append(tags, "trace_id:"+id)
	}
	if id, ok := r.Context[vestig.FieldSpanID].(string); ok && id != "" {
		tags = append(tags, "span_id:"+id)
	}
	tags = append(tags, extra...)
	return strings.Join(tags, ",")
}
