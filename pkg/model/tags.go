package model

import (
	"strconv"
	"strings"
)

// parsedTag is the result of parsing one field's `pocodynamo:"..."` tag.
type parsedTag struct {
	attrName       string
	indexRoles     map[string]indexRole // index name -> role
	skip           bool
	isHash         bool
	isRange        bool
	isSet          bool
	isVersion      bool
	isCreatedAt    bool
	isUpdatedAt    bool
	isEncrypted    bool
	namingOverride string
}

type indexRole struct {
	kind     IndexKind
	name     string
	isHash   bool
	isRange  bool
	sparse   bool
	projType string
	project  []string
}

// parseTag parses the raw struct tag value (already extracted via
// field.Tag.Get("pocodynamo")).
func parseTag(raw string) (parsedTag, error) {
	tag := parsedTag{indexRoles: map[string]indexRole{}}
	if raw == "" {
		return tag, nil
	}
	if raw == "-" {
		tag.skip = true
		return tag, nil
	}

	for _, part := range splitClauses(raw) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if err := applyClause(&tag, part); err != nil {
			return tag, err
		}
	}
	return tag, nil
}

func applyClause(tag *parsedTag, clause string) error {
	key, value, hasValue := strings.Cut(clause, ":")
	key = strings.TrimSpace(key)

	switch {
	case !hasValue:
		return applySimpleClause(tag, key)
	case key == "attr":
		tag.attrName = strings.TrimSpace(value)
	case key == "index":
		return applyIndexClause(tag, value, GlobalIndex)
	case key == "lsi":
		return applyIndexClause(tag, value, LocalIndex)
	case key == "naming":
		tag.namingOverride = strings.TrimSpace(value)
	default:
		// Unrecognized key:value clause — ignore, forward-compatible.
	}
	return nil
}

func applySimpleClause(tag *parsedTag, word string) error {
	switch word {
	case "hash", "pk":
		tag.isHash = true
	case "range", "sk":
		tag.isRange = true
	case "set":
		tag.isSet = true
	case "version":
		tag.isVersion = true
	case "created_at":
		tag.isCreatedAt = true
	case "updated_at":
		tag.isUpdatedAt = true
	case "encrypted":
		tag.isEncrypted = true
	}
	return nil
}

// applyIndexClause handles "index:Name[,pk|sk][,sparse][,project:a|b]" and
// "lsi:Name[,sk][,sparse]".
func applyIndexClause(tag *parsedTag, value string, kind IndexKind) error {
	segments := strings.Split(value, ",")
	name := strings.TrimSpace(segments[0])
	role := indexRole{kind: kind, name: name}

	// Default role: LSI clauses default to range (the table shares its hash);
	// GSI clauses with no modifier default to hash.
	if kind == LocalIndex {
		role.isRange = true
	} else {
		role.isHash = true
	}

	explicit := false
	for _, seg := range segments[1:] {
		seg = strings.TrimSpace(seg)
		switch {
		case seg == "pk":
			role.isHash, role.isRange, explicit = true, false, true
		case seg == "sk":
			role.isHash, role.isRange, explicit = false, true, true
		case seg == "sparse":
			role.sparse = true
		case strings.HasPrefix(seg, "project:"):
			role.projType = "INCLUDE"
			role.project = strings.Split(strings.TrimPrefix(seg, "project:"), "|")
		case seg == "":
		default:
			// Unknown modifier — ignore.
		}
	}
	_ = explicit

	tag.indexRoles[name] = role
	return nil
}

// splitClauses splits a struct tag's comma-separated clauses while keeping
// "index:Name,pk,sparse" and "lsi:Name,sk" together as single clauses, since
// their own commas aren't clause separators.
func splitClauses(tag string) []string {
	tokens := strings.Split(tag, ",")
	var out []string
	var current strings.Builder
	inIndexClause := false

	flush := func() {
		if current.Len() > 0 {
			out = append(out, current.String())
			current.Reset()
		}
		inIndexClause = false
	}

	for _, raw := range tokens {
		part := strings.TrimSpace(raw)
		if part == "" {
			continue
		}
		if inIndexClause && isIndexModifier(part) {
			current.WriteString(",")
			current.WriteString(part)
			continue
		}
		flush()
		if strings.HasPrefix(part, "index:") || strings.HasPrefix(part, "lsi:") {
			inIndexClause = true
		}
		current.WriteString(part)
	}
	flush()
	return out
}

func isIndexModifier(token string) bool {
	switch token {
	case "pk", "sk", "sparse":
		return true
	}
	return strings.HasPrefix(token, "project:")
}

// resolvesToInt reports whether s parses as a plain base-10 integer
// (negative values included).
func resolvesToInt(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}
