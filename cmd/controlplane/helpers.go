package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/R3E-Network/service_layer/domain/alerting"
)

// severityFromString maps a CLI argument onto the closed severity
// enumeration, defaulting to info for anything unrecognized rather than
// rejecting the command outright.
func severityFromString(raw string) alerting.Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(alerting.SeverityWarning):
		return alerting.SeverityWarning
	case string(alerting.SeverityCritical):
		return alerting.SeverityCritical
	case string(alerting.SeverityEmergency):
		return alerting.SeverityEmergency
	default:
		return alerting.SeverityInfo
	}
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
