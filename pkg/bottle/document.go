package bottle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tinyland-inc/driftbottle/pkg/logger"
)

// DefaultFileName matches the data file name used by earlier deployments so
// existing data directories keep working.
const DefaultFileName = "astrbot_plugin_message_bottle.json"

// Document is the whole persisted state.
type Document struct {
	Active      []Bottle            `json:"active"`
	UserList    map[string][]Bottle `json:"user_list"`
	NextLocalID int                 `json:"next_local_id"`
}

func emptyDocument() Document {
	return Document{
		Active:      []Bottle{},
		UserList:    map[string][]Bottle{},
		NextLocalID: 1,
	}
}

// ensureFile creates the parent directory and an empty document if the file
// does not exist yet.
func ensureFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	data, err := encodeDocument(emptyDocument())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// decodeDocument parses a data file and repairs missing or mistyped keys.
// Lists are decoded entry by entry so one bad bottle only costs that bottle.
// repaired reports whether anything had to be defaulted or dropped.
func decodeDocument(data []byte) (doc Document, repaired bool, err error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return emptyDocument(), true, fmt.Errorf("parsing bottle document: %w", err)
	}

	doc = emptyDocument()

	if v, ok := raw["active"]; ok {
		active, fixed := decodeBottles("active", v)
		if active != nil {
			doc.Active = active
		}
		repaired = repaired || fixed
	} else {
		repaired = true
	}

	if v, ok := raw["user_list"]; ok {
		var users map[string]json.RawMessage
		if err := json.Unmarshal(v, &users); err == nil && users != nil {
			for user, list := range users {
				picked, fixed := decodeBottles("user_list."+user, list)
				repaired = repaired || fixed
				if picked == nil {
					continue
				}
				doc.UserList[user] = picked
			}
		} else {
			repaired = true
		}
	} else {
		repaired = true
	}

	if v, ok := raw["next_local_id"]; ok {
		var n int
		if err := json.Unmarshal(v, &n); err == nil && n >= 1 {
			doc.NextLocalID = n
		} else {
			repaired = true
		}
	} else {
		repaired = true
	}

	return doc, repaired, nil
}

// decodeBottles decodes a JSON list of bottles. A value that is not a list
// yields nil; entries that do not decode are logged and skipped.
func decodeBottles(key string, v json.RawMessage) ([]Bottle, bool) {
	var entries []json.RawMessage
	if err := json.Unmarshal(v, &entries); err != nil || entries == nil {
		logger.WarnCF("store", "Replacing malformed bottle list", map[string]any{"key": key})
		return nil, true
	}

	out := make([]Bottle, 0, len(entries))
	repaired := false
	for i, e := range entries {
		var b Bottle
		if err := json.Unmarshal(e, &b); err != nil {
			logger.WarnCF("store", "Dropping malformed bottle", map[string]any{
				"key":   key,
				"index": i,
				"error": err.Error(),
			})
			repaired = true
			continue
		}
		out = append(out, b)
	}
	return out, repaired
}

// backupFile keeps a copy of the data file as it was before a repair.
func backupFile(path string, data []byte) error {
	return os.WriteFile(path+".bak", data, 0o644)
}

func encodeDocument(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeDocument replaces the file contents via a temp file and rename.
func writeDocument(path string, doc Document) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return fmt.Errorf("encoding bottle document: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing bottle document: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing bottle document: %w", err)
	}
	return nil
}
