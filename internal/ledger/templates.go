package ledger

import (
	"fmt"
	"strings"
	"time"

	"whatsapp-crm/internal/apperr"
	"whatsapp-crm/internal/ids"
	"whatsapp-crm/pkg/models"
)

const DefaultTemplateCategory = "CUSTOM"

// TemplatePatch carries the template fields to overwrite; nil fields are kept.
type TemplatePatch struct {
	Name     *string `json:"name"`
	Body     *string `json:"body"`
	Category *string `json:"category"`
}

func CreateTemplate(ws *models.Workspace, name, body, category string, now time.Time) (*models.Template, error) {
	name = strings.TrimSpace(name)
	body = strings.TrimSpace(body)
	if name == "" || body == "" {
		return nil, apperr.Validation("name and body are required")
	}
	if category = strings.TrimSpace(category); category == "" {
		category = DefaultTemplateCategory
	}

	template := &models.Template{
		ID:        ids.New("tpl"),
		Name:      name,
		Body:      body,
		Category:  category,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ws.Templates = append(ws.Templates, template)
	return template, nil
}

func UpdateTemplate(ws *models.Workspace, id string, patch TemplatePatch, now time.Time) (*models.Template, error) {
	template := ws.FindTemplate(id)
	if template == nil {
		return nil, fmt.Errorf("template %s: %w", id, apperr.ErrNotFound)
	}
	if patch.Name != nil {
		template.Name = *patch.Name
	}
	if patch.Body != nil {
		template.Body = *patch.Body
	}
	if patch.Category != nil {
		template.Category = *patch.Category
	}
	template.UpdatedAt = now
	return template, nil
}
