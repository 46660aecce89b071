package plist

import (
	"encoding/json"
	"fmt"
	"strings"

	pkgcore "github.com/freebsd/pkg-sub001"
)

// rawKeywordDef mirrors the "<keyword_dir>/<name>.ucl" schema of §4.8.
// UCL is JSON-superset bareword syntax; like manifest/ucl.go and
// repo/meta.go, this core treats it as plain JSON on read (no pure-Go UCL
// parser exists anywhere in the pack's dependency graph — see DESIGN.md).
type rawKeywordDef struct {
	Actions    []string          `json:"actions"`
	Attributes map[string]string `json:"attributes"`
	Scripts    map[string]string `json:"scripts"`
	LuaScripts map[string][]string `json:"lua_scripts"`
	Messages   []struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"messages"`
	Prepackaging        string `json:"prepackaging"`
	Arguments           bool   `json:"arguments"`
	PreformatArguments bool   `json:"preformat_arguments"`
}

// schemaErrors collects the validation failures ParseKeywordDef checks
// before accepting a definition, standing in for the "embedded JSON
// schema" §4.8 describes: actions must be present and non-empty (a
// keyword with no expansion steps is always a mistake), and any "owner"/
// "group"/"mode" attribute key must be one of the three the installer
// understands.
func schemaErrors(raw *rawKeywordDef) []string {
	var errs []string
	if len(raw.Actions) == 0 {
		errs = append(errs, "actions: must be non-empty")
	}
	for k := range raw.Attributes {
		switch k {
		case "owner", "group", "mode":
		default:
			errs = append(errs, fmt.Sprintf("attributes: unknown key %q", k))
		}
	}
	return errs
}

// ParseKeywordDef parses and schema-validates one "<name>.ucl" keyword
// definition document (§4.8).
func ParseKeywordDef(data []byte) (*KeywordDef, error) {
	var raw rawKeywordDef
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("plist: parsing keyword definition: %w", err)
	}
	if errs := schemaErrors(&raw); len(errs) > 0 {
		return nil, fmt.Errorf("plist: keyword definition failed schema validation: %s", strings.Join(errs, "; "))
	}
	def := &KeywordDef{
		Actions:             raw.Actions,
		Scripts:             raw.Scripts,
		LuaScripts:          raw.LuaScripts,
		Prepackaging:        raw.Prepackaging,
		Arguments:           raw.Arguments,
		PreformatArguments: raw.PreformatArguments,
	}
	def.Attributes.Owner = raw.Attributes["owner"]
	def.Attributes.Group = raw.Attributes["group"]
	if m, ok := raw.Attributes["mode"]; ok {
		var mode uint32
		if _, err := fmt.Sscanf(m, "%o", &mode); err == nil {
			def.Attributes.Mode = mode
		}
	}
	for _, m := range raw.Messages {
		def.Messages = append(def.Messages, pkgcore.Message{
			Text: m.Message,
			Type: messageTypeFromString(m.Type),
		})
	}
	return def, nil
}

// messageTypeFromString maps a message's "type" field to pkgcore's
// MessageType enum, defaulting to MessageAlways for an empty or unknown
// string (§4.3's message type enum).
func messageTypeFromString(s string) pkgcore.MessageType {
	switch s {
	case "install":
		return pkgcore.MessageInstall
	case "remove":
		return pkgcore.MessageRemove
	case "upgrade":
		return pkgcore.MessageUpgrade
	default:
		return pkgcore.MessageAlways
	}
}
