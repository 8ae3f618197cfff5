package crm

import (
	"context"
	"strings"

	"whatsapp-crm/internal/apperr"
	"whatsapp-crm/internal/automation"
	"whatsapp-crm/internal/ledger"
	"whatsapp-crm/pkg/models"
)

func (s *Service) Templates(ctx context.Context, userID string) ([]*models.Template, error) {
	var result []*models.Template
	err := s.store.View(ctx, userID, func(ws *models.Workspace) error {
		result = ws.Templates
		return nil
	})
	return result, err
}

func (s *Service) CreateTemplate(ctx context.Context, userID, name, body, category string) (*models.Template, error) {
	var tpl *models.Template
	err := s.store.Update(ctx, userID, func(ws *models.Workspace) error {
		var err error
		tpl, err = ledger.CreateTemplate(ws, name, body, category, s.engine.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(userID, EventTemplatesUpdated, tpl)
	return tpl, nil
}

func (s *Service) UpdateTemplate(ctx context.Context, userID, templateID string, patch ledger.TemplatePatch) (*models.Template, error) {
	var tpl *models.Template
	err := s.store.Update(ctx, userID, func(ws *models.Workspace) error {
		var err error
		tpl, err = ledger.UpdateTemplate(ws, templateID, patch, s.engine.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(userID, EventTemplatesUpdated, tpl)
	return tpl, nil
}

func (s *Service) Automation(ctx context.Context, userID string) (models.AutomationConfig, error) {
	var cfg models.AutomationConfig
	err := s.store.View(ctx, userID, func(ws *models.Workspace) error {
		cfg = ws.Automation
		return nil
	})
	return cfg, err
}

func (s *Service) AutomationSafety(ctx context.Context, userID string) (automation.Safety, error) {
	var result automation.Safety
	err := s.store.View(ctx, userID, func(ws *models.Workspace) error {
		result = automation.SafetySnapshot(ws, s.engine.Now())
		return nil
	})
	return result, err
}

// UpdateAutomation applies patch when the merged config is valid; otherwise
// the stored config is left as it was.
func (s *Service) UpdateAutomation(ctx context.Context, userID string, patch automation.Patch) (*automation.UpdateResult, error) {
	var result *automation.UpdateResult
	err := s.store.Update(ctx, userID, func(ws *models.Workspace) error {
		var err error
		result, err = automation.Update(ws, patch)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(userID, EventAutomationUpdated, result.Config)
	return result, nil
}

// WhatsAppSettings is the workspace's WhatsApp config as shown to the dashboard.
// The access token never leaves the server.
type WhatsAppSettings struct {
	BusinessPhone     string `json:"businessPhone"`
	PhoneNumberID     string `json:"phoneNumberId"`
	VerifyToken       string `json:"verifyToken"`
	AccessTokenMasked string `json:"accessTokenMasked"`
	HasAccessToken    bool   `json:"hasAccessToken"`
}

// WhatsAppPatch carries the WhatsApp config fields to overwrite. An empty
// string clears a field; nil keeps it.
type WhatsAppPatch struct {
	BusinessPhone *string `json:"businessPhone"`
	PhoneNumberID *string `json:"phoneNumberId"`
	AccessToken   *string `json:"accessToken"`
	VerifyToken   *string `json:"verifyToken"`
}

func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}

func settingsOf(cfg models.WhatsAppConfig) WhatsAppSettings {
	return WhatsAppSettings{
		BusinessPhone:     cfg.BusinessPhone,
		PhoneNumberID:     cfg.PhoneNumberID,
		VerifyToken:       cfg.VerifyToken,
		AccessTokenMasked: maskToken(cfg.AccessToken),
		HasAccessToken:    cfg.AccessToken != "",
	}
}

func (s *Service) WhatsAppSettings(ctx context.Context, userID string) (WhatsAppSettings, error) {
	var result WhatsAppSettings
	err := s.store.View(ctx, userID, func(ws *models.Workspace) error {
		result = settingsOf(ws.WhatsAppConfig)
		return nil
	})
	return result, err
}

// WhatsAppConfig returns the raw config, access token included, for server-side use.
func (s *Service) WhatsAppConfig(ctx context.Context, userID string) (models.WhatsAppConfig, error) {
	var cfg models.WhatsAppConfig
	err := s.store.View(ctx, userID, func(ws *models.Workspace) error {
		cfg = ws.WhatsAppConfig
		return nil
	})
	return cfg, err
}

// UpdateWhatsAppConfig stores new credentials. A phone number id or verify
// token already bound to another workspace is rejected, since inbound
// webhooks are routed by them.
func (s *Service) UpdateWhatsAppConfig(ctx context.Context, userID string, patch WhatsAppPatch) (WhatsAppSettings, error) {
	var result WhatsAppSettings
	err := s.store.Update(ctx, userID, func(ws *models.Workspace) error {
		next := ws.WhatsAppConfig
		set := func(dst *string, v *string) {
			if v != nil {
				*dst = strings.TrimSpace(*v)
			}
		}
		set(&next.BusinessPhone, patch.BusinessPhone)
		set(&next.PhoneNumberID, patch.PhoneNumberID)
		set(&next.AccessToken, patch.AccessToken)
		set(&next.VerifyToken, patch.VerifyToken)

		if owner, err := s.store.FindByPhoneNumberID(ctx, next.PhoneNumberID); err != nil {
			return err
		} else if owner != "" && owner != userID {
			return apperr.Conflict("This phone number id is already connected to another account.")
		}
		if owner, err := s.store.FindByVerifyToken(ctx, next.VerifyToken); err != nil {
			return err
		} else if owner != "" && owner != userID {
			return apperr.Conflict("This verify token is already used by another account.")
		}

		ws.WhatsAppConfig = next
		result = settingsOf(next)
		return nil
	})
	if err != nil {
		return WhatsAppSettings{}, err
	}
	s.publish(userID, EventWhatsAppUpdated, result)
	return result, nil
}
