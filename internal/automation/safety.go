package automation

import (
	"time"

	"whatsapp-crm/pkg/models"
)

// Safety summarizes how risky the current automation setup is
type Safety struct {
	Warnings        []string `json:"warnings"`
	Errors          []string `json:"errors"`
	EnabledFeatures int      `json:"enabledFeatures"`
	FollowUpsDueNow int      `json:"followUpsDueNow"`
}

func SafetySnapshot(ws *models.Workspace, now time.Time) Safety {
	v := Validate(ws.Automation, ws.TemplateIDs())
	due := 0
	for _, c := range ws.Conversations {
		if c.State == models.StateFollowUp && c.FollowUpAt != nil && !c.FollowUpAt.After(now) {
			due++
		}
	}
	return Safety{
		Warnings:        v.Warnings,
		Errors:          v.Errors,
		EnabledFeatures: EnabledFeatures(ws.Automation),
		FollowUpsDueNow: due,
	}
}
