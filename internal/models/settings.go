package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Default auto-response values used when an organization leaves a field unset
const (
	DefaultTone     = "professional"
	DefaultLanguage = "auto"
)

// AutoResponseSettings is the typed, fully-populated auto-response policy of an organization
type AutoResponseSettings struct {
	Enabled                bool   `json:"enabled"`
	Tone                   string `json:"tone"`
	Language               string `json:"language"`
	ResponseGuidelines     string `json:"responseGuidelines"`
	ComplianceRequirements string `json:"complianceRequirements"`
}

// DefaultAutoResponseSettings returns the settings applied to organizations without overrides
func DefaultAutoResponseSettings() AutoResponseSettings {
	return AutoResponseSettings{
		Enabled:  true,
		Tone:     DefaultTone,
		Language: DefaultLanguage,
	}
}

// autoResponseOverrides mirrors the stored JSON; nil means "not set"
type autoResponseOverrides struct {
	Enabled                *bool   `json:"enabled"`
	Tone                   *string `json:"tone"`
	Language               *string `json:"language"`
	ResponseGuidelines     *string `json:"responseGuidelines"`
	ComplianceRequirements *string `json:"complianceRequirements"`
}

// OrganizationSettings is the settings JSONB document of an organization
type OrganizationSettings struct {
	AutoResponse *autoResponseOverrides `json:"autoResponse,omitempty"`
}

// Value implements driver.Valuer
func (s OrganizationSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner
func (s *OrganizationSettings) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// ParseOrganizationSettings decodes a raw settings document
func ParseOrganizationSettings(raw []byte) (*OrganizationSettings, error) {
	settings := &OrganizationSettings{}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return settings, nil
	}
	if err := json.Unmarshal(raw, settings); err != nil {
		return nil, fmt.Errorf("failed to parse organization settings: %w", err)
	}
	return settings, nil
}

// AutoResponseSettings merges stored overrides onto the defaults field by field.
// Blank strings count as unset.
func (s *OrganizationSettings) AutoResponseSettings() AutoResponseSettings {
	merged := DefaultAutoResponseSettings()
	if s == nil || s.AutoResponse == nil {
		return merged
	}

	o := s.AutoResponse
	if o.Enabled != nil {
		merged.Enabled = *o.Enabled
	}
	if v := trimmed(o.Tone); v != "" {
		merged.Tone = v
	}
	if v := trimmed(o.Language); v != "" {
		merged.Language = v
	}
	if v := trimmed(o.ResponseGuidelines); v != "" {
		merged.ResponseGuidelines = v
	}
	if v := trimmed(o.ComplianceRequirements); v != "" {
		merged.ComplianceRequirements = v
	}
	return merged
}

func trimmed(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
