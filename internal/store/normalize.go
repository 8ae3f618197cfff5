package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"whatsapp-crm/pkg/models"
)

var (
	arrayKeys  = []string{"conversations", "messages", "templates", "logs"}
	objectKeys = []string{"automation", "whatsappConfig"}

	// timestamp fields per array element; nullable ones become null when
	// unreadable, the rest are dropped and decode as the zero time
	nullableTimeKeys = []string{"followUpAt", "followUpReminderSentAt"}
	requiredTimeKeys = []string{"createdAt", "updatedAt", "lastMessageAt"}
)

// Normalize decodes a stored workspace document, repairing missing or
// mistyped top-level fields from seed. Inside automation and whatsappConfig
// only absent keys are filled. It reports whether anything was repaired.
func Normalize(raw []byte, seed *models.Workspace) (*models.Workspace, bool, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil || doc == nil {
		return seed, true, nil
	}

	seedRaw, err := json.Marshal(seed)
	if err != nil {
		return nil, false, fmt.Errorf("store: encode seed: %w", err)
	}
	var seedDoc map[string]json.RawMessage
	if err := json.Unmarshal(seedRaw, &seedDoc); err != nil {
		return nil, false, fmt.Errorf("store: decode seed: %w", err)
	}

	changed := false
	for _, key := range arrayKeys {
		if !startsWith(doc[key], '[') {
			doc[key] = seedDoc[key]
			changed = true
		}
	}

	for _, key := range arrayKeys {
		fixed, repaired, err := repairTimestamps(doc[key])
		if err != nil {
			return nil, false, err
		}
		if repaired {
			doc[key] = fixed
			changed = true
		}
	}

	for _, key := range objectKeys {
		var obj map[string]json.RawMessage
		if !startsWith(doc[key], '{') || json.Unmarshal(doc[key], &obj) != nil {
			doc[key] = seedDoc[key]
			changed = true
			continue
		}

		var seedObj map[string]json.RawMessage
		if err := json.Unmarshal(seedDoc[key], &seedObj); err != nil {
			return nil, false, fmt.Errorf("store: decode seed %s: %w", key, err)
		}
		filled := false
		for k, v := range seedObj {
			if _, ok := obj[k]; !ok {
				obj[k] = v
				filled = true
			}
		}
		if filled {
			if doc[key], err = json.Marshal(obj); err != nil {
				return nil, false, fmt.Errorf("store: encode %s: %w", key, err)
			}
			changed = true
		}
	}

	repaired, err := json.Marshal(doc)
	if err != nil {
		return nil, false, fmt.Errorf("store: encode workspace: %w", err)
	}
	var ws models.Workspace
	if err := json.Unmarshal(repaired, &ws); err != nil {
		return nil, false, fmt.Errorf("store: decode workspace: %w", err)
	}
	if dropNil(&ws) {
		changed = true
	}
	return &ws, changed, nil
}

// repairTimestamps rewrites the time fields of every element in a document
// array to RFC 3339. Older documents stored the dashboard's raw input, so
// "" and zoneless values such as "2024-05-01T10:00" occur.
func repairTimestamps(raw json.RawMessage) (json.RawMessage, bool, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return raw, false, nil
	}
	changed := false
	for i, item := range items {
		var obj map[string]json.RawMessage
		if !startsWith(item, '{') || json.Unmarshal(item, &obj) != nil {
			continue
		}
		touched := false
		for _, key := range nullableTimeKeys {
			if v, ok := obj[key]; ok {
				if fixed, ok := canonicalTime(v); !ok {
					obj[key] = json.RawMessage("null")
					touched = true
				} else if !bytes.Equal(fixed, v) {
					obj[key] = fixed
					touched = true
				}
			}
		}
		for _, key := range requiredTimeKeys {
			if v, ok := obj[key]; ok {
				if fixed, ok := canonicalTime(v); !ok {
					delete(obj, key)
					touched = true
				} else if !bytes.Equal(fixed, v) {
					obj[key] = fixed
					touched = true
				}
			}
		}
		if notes, ok := obj["notes"]; ok && startsWith(notes, '[') {
			fixed, repaired, err := repairTimestamps(notes)
			if err != nil {
				return nil, false, err
			}
			if repaired {
				obj["notes"] = fixed
				touched = true
			}
		}
		if !touched {
			continue
		}
		encoded, err := json.Marshal(obj)
		if err != nil {
			return nil, false, fmt.Errorf("store: encode repaired element: %w", err)
		}
		items[i] = encoded
		changed = true
	}
	if !changed {
		return raw, false, nil
	}
	out, err := json.Marshal(items)
	if err != nil {
		return nil, false, fmt.Errorf("store: encode repaired array: %w", err)
	}
	return out, true, nil
}

// canonicalTime returns v unchanged when it is null or already RFC 3339,
// the re-encoded value when it is another readable ISO form, and false
// when it cannot be read as a time at all.
func canonicalTime(v json.RawMessage) (json.RawMessage, bool) {
	if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return v, true
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil, false
	}
	if _, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return v, true
	}
	parsed, ok := models.ParseTimestamp(s)
	if !ok {
		return nil, false
	}
	out, err := json.Marshal(parsed)
	if err != nil {
		return nil, false
	}
	return out, true
}

func startsWith(raw json.RawMessage, b byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == b
}

// dropNil removes null array entries left behind by hand-edited documents.
func dropNil(ws *models.Workspace) bool {
	before := len(ws.Conversations) + len(ws.Messages) + len(ws.Templates) + len(ws.Logs)
	ws.Conversations = compact(ws.Conversations)
	ws.Messages = compact(ws.Messages)
	ws.Templates = compact(ws.Templates)
	ws.Logs = compact(ws.Logs)
	for _, c := range ws.Conversations {
		if c.Notes == nil {
			c.Notes = []models.Note{}
		}
	}
	return before != len(ws.Conversations)+len(ws.Messages)+len(ws.Templates)+len(ws.Logs)
}

func compact[T any](items []*T) []*T {
	out := items[:0]
	for _, item := range items {
		if item != nil {
			out = append(out, item)
		}
	}
	return out
}
