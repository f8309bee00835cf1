package rcp

import "strings"

const (
	rosterOpen  = "<lclist>"
	rosterClose = "</lclist>"
	entryOpen   = "<lc "
)

// definitionAttrs mark a roster entry as a locomotive definition.
var definitionAttrs = []string{"image", "roadname", "desc", "dectype", "owner", "color", "number"}

// statusAttrs mark a roster entry as a live status update. Status fragments
// interleave with definitions in the same stream and must not create false
// roster entries.
var statusAttrs = []string{"V", "dir", "server", "placing", "runtime", "throttleid"}

// LocoEntry is one locomotive identity extracted from a roster record.
type LocoEntry struct {
	// ID is the unique, non-empty identifier used in outgoing commands.
	ID string
	// Name is the synthesized display name, e.g. "BR01 (Express)".
	Name string
}

// RosterResult is the outcome of one extraction pass over an accumulated
// buffer.
type RosterResult struct {
	// Locos holds the distinct locomotive definitions found, in document
	// order, deduplicated by ID.
	Locos []LocoEntry
	// Complete reports whether a full roster record was present in the
	// buffer. When false the caller should wait for more data.
	Complete bool
	// Scanned counts the entry tags examined within the record.
	Scanned int
	// Skipped counts entries discarded as status updates or for lacking a
	// usable identifier.
	Skipped int
}

// ExtractRoster scans buffer for a complete roster record and extracts the
// locomotive definitions it contains.
//
// The function is pure with respect to any roster store; callers decide
// whether to commit the result. Malformed entries are skipped individually,
// never failing the whole record. A close sentinel without an open sentinel
// returns ErrRosterTruncated: the record is unrecoverable for this pass and
// the receive buffer should be reset externally.
func ExtractRoster(buffer string) (*RosterResult, error) {
	openIdx := strings.Index(buffer, rosterOpen)
	closeIdx := strings.Index(buffer, rosterClose)

	if closeIdx >= 0 && (openIdx < 0 || closeIdx < openIdx) {
		return nil, ErrRosterTruncated
	}
	if openIdx < 0 || closeIdx < 0 {
		return &RosterResult{}, nil
	}

	section := buffer[openIdx : closeIdx+len(rosterClose)]
	result := &RosterResult{Complete: true}
	seen := make(map[string]struct{})

	pos := 0
	for {
		lcPos := strings.Index(section[pos:], entryOpen)
		if lcPos < 0 {
			break
		}
		lcPos += pos

		// entry extent: up to the self-closing terminator or the next entry tag
		entryEnd := strings.Index(section[lcPos:], "/>")
		nextLc := strings.Index(section[lcPos+len(entryOpen):], entryOpen)
		if nextLc >= 0 {
			nextLc += lcPos + len(entryOpen)
		}

		var entry string
		switch {
		case entryEnd >= 0 && (nextLc < 0 || lcPos+entryEnd < nextLc):
			entry = section[lcPos : lcPos+entryEnd+2]
		case nextLc >= 0:
			entry = section[lcPos:nextLc]
		default:
			entry = section[lcPos:]
		}

		result.Scanned++

		loco, ok := extractEntry(entry)
		if !ok {
			result.Skipped++
		} else if _, dup := seen[loco.ID]; dup {
			result.Skipped++
		} else {
			seen[loco.ID] = struct{}{}
			result.Locos = append(result.Locos, loco)
		}

		if nextLc < 0 {
			break
		}
		pos = nextLc
	}

	return result, nil
}

// extractEntry classifies a single <lc> entry and extracts its identity.
// Entries that look purely like status updates are rejected, as are entries
// without a usable identifier.
func extractEntry(entry string) (LocoEntry, bool) {
	hasDefinition := false
	for _, name := range definitionAttrs {
		if hasAttr(entry, name) {
			hasDefinition = true
			break
		}
	}

	hasStatus := false
	for _, name := range statusAttrs {
		if hasAttr(entry, name) {
			hasStatus = true
			break
		}
	}

	if hasStatus && !hasDefinition {
		return LocoEntry{}, false
	}

	id := strings.TrimSpace(attrValue(entry, "id"))
	if id == "" || id == "model" {
		// fallback secondary identifier
		id = strings.TrimSpace(attrValue(entry, "shortid"))
	}
	if id == "" {
		return LocoEntry{}, false
	}

	name := id
	if roadname := strings.TrimSpace(attrValue(entry, "roadname")); roadname != "" {
		name = id + " (" + roadname + ")"
	} else if number := strings.TrimSpace(attrValue(entry, "number")); number != "" {
		name = id + " #" + number
	}

	return LocoEntry{ID: id, Name: name}, true
}

// hasAttr reports whether the entry carries the named attribute. The leading
// space keeps attribute names from matching inside other names or values.
func hasAttr(entry, name string) bool {
	return strings.Contains(entry, " "+name+`="`)
}

// attrValue extracts the value of the named attribute, or "" if the attribute
// is absent or its quoting is malformed.
func attrValue(entry, name string) string {
	pattern := " " + name + `="`
	start := strings.Index(entry, pattern)
	if start < 0 {
		return ""
	}

	valueStart := start + len(pattern)
	valueEnd := strings.IndexByte(entry[valueStart:], '"')
	if valueEnd < 0 {
		return ""
	}

	return entry[valueStart : valueStart+valueEnd]
}
