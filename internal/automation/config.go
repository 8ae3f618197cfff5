package automation

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"whatsapp-crm/internal/apperr"
	"whatsapp-crm/internal/hours"
	"whatsapp-crm/pkg/models"
)

// Log entry types written to the workspace log
const (
	LogAutoReply        = "AUTO_REPLY"
	LogFollowUpReminder = "FOLLOW_UP_REMINDER"
)

// Validation holds blocking errors and informational warnings for an
// automation config.
type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validate checks cfg against the workspace's template ids.
func Validate(cfg models.AutomationConfig, templateIDs map[string]bool) Validation {
	v := Validation{Errors: []string{}, Warnings: []string{}}

	if !hours.ValidTimezone(cfg.Timezone) {
		v.Errors = append(v.Errors, "Timezone is invalid. Use a valid IANA timezone (example: Asia/Kolkata).")
	}
	if !hours.ValidClock(cfg.BusinessHoursStart) {
		v.Errors = append(v.Errors, "Business start time must be in HH:MM format.")
	}
	if !hours.ValidClock(cfg.BusinessHoursEnd) {
		v.Errors = append(v.Errors, "Business end time must be in HH:MM format.")
	}
	if cfg.BusinessHoursStart == cfg.BusinessHoursEnd {
		v.Errors = append(v.Errors, "Business start and end time cannot be the same.")
	}
	if cfg.AutoReplyOnFirstInquiry && !templateIDs[cfg.FirstInquiryTemplateID] {
		v.Errors = append(v.Errors, "Auto-reply on first inquiry is enabled, but the template is missing.")
	}
	if cfg.BusinessHoursReplyEnabled && !templateIDs[cfg.AfterHoursTemplateID] {
		v.Errors = append(v.Errors, "After-hours auto-reply is enabled, but the template is missing.")
	}
	if cfg.FollowUpReminderEnabled && !templateIDs[cfg.FollowUpReminderTemplateID] {
		v.Errors = append(v.Errors, "Follow-up reminders are enabled, but the template is missing.")
	}

	switch EnabledFeatures(cfg) {
	case 0:
		v.Warnings = append(v.Warnings, "All automation toggles are OFF. The system will run fully manual.")
	case 3:
		v.Warnings = append(v.Warnings, "All automation rules are ON. Keep templates concise to avoid message fatigue.")
	}
	return v
}

// EnabledFeatures counts the switched-on automation rules.
func EnabledFeatures(cfg models.AutomationConfig) int {
	n := 0
	for _, on := range []bool{cfg.AutoReplyOnFirstInquiry, cfg.BusinessHoursReplyEnabled, cfg.FollowUpReminderEnabled} {
		if on {
			n++
		}
	}
	return n
}

// FlexBool decodes JSON booleans as well as the string and number forms
// dashboards tend to send ("true", "0", 1).
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	switch {
	case raw == "null":
		*b = false
	case strings.HasPrefix(raw, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*b = false
			return nil
		}
		parsed, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("automation: %q is not a boolean", s)
		}
		*b = FlexBool(parsed)
	case raw == "true" || raw == "false":
		*b = raw == "true"
	default:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("automation: %s is not a boolean", raw)
		}
		*b = n != 0
	}
	return nil
}

// Patch lists the automation keys a client may change. Absent keys keep
// their current value; unknown keys are ignored.
type Patch struct {
	AutoReplyOnFirstInquiry    *FlexBool `json:"autoReplyOnFirstInquiry"`
	FirstInquiryTemplateID     *string   `json:"firstInquiryTemplateId"`
	BusinessHoursReplyEnabled  *FlexBool `json:"businessHoursReplyEnabled"`
	AfterHoursTemplateID       *string   `json:"afterHoursTemplateId"`
	FollowUpReminderEnabled    *FlexBool `json:"followUpReminderEnabled"`
	FollowUpReminderTemplateID *string   `json:"followUpReminderTemplateId"`
	Timezone                   *string   `json:"timezone"`
	BusinessHoursStart         *string   `json:"businessHoursStart"`
	BusinessHoursEnd           *string   `json:"businessHoursEnd"`
}

// Merge applies p onto current, trimming every string value.
func Merge(current models.AutomationConfig, p Patch) models.AutomationConfig {
	next := current
	setBool := func(dst *bool, v *FlexBool) {
		if v != nil {
			*dst = bool(*v)
		}
	}
	setString := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
		*dst = strings.TrimSpace(*dst)
	}

	setBool(&next.AutoReplyOnFirstInquiry, p.AutoReplyOnFirstInquiry)
	setBool(&next.BusinessHoursReplyEnabled, p.BusinessHoursReplyEnabled)
	setBool(&next.FollowUpReminderEnabled, p.FollowUpReminderEnabled)
	setString(&next.FirstInquiryTemplateID, p.FirstInquiryTemplateID)
	setString(&next.AfterHoursTemplateID, p.AfterHoursTemplateID)
	setString(&next.FollowUpReminderTemplateID, p.FollowUpReminderTemplateID)
	setString(&next.Timezone, p.Timezone)
	setString(&next.BusinessHoursStart, p.BusinessHoursStart)
	setString(&next.BusinessHoursEnd, p.BusinessHoursEnd)
	return next
}

// UpdateResult is the stored config after a successful update
type UpdateResult struct {
	Config   models.AutomationConfig `json:"config"`
	Warnings []string                `json:"warnings"`
}

// Update merges p into the workspace config. When the merged config has any
// error nothing changes and the first error is returned with every error as
// details.
func Update(ws *models.Workspace, p Patch) (*UpdateResult, error) {
	merged := Merge(ws.Automation, p)
	v := Validate(merged, ws.TemplateIDs())
	if len(v.Errors) > 0 {
		return nil, apperr.Validation(v.Errors[0], v.Errors...)
	}
	ws.Automation = merged
	return &UpdateResult{Config: merged, Warnings: v.Warnings}, nil
}
