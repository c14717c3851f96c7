package mapping

import "strings"

// parsedTag is the decoded form of an `orm:"..."` struct tag: a
// comma-separated list of bare flags and key=value pairs. This is the
// record-type annotation surface from spec §6 (Column/PrimaryKey/
// AutoGenerated/NotNull/Unique/Secret/Hashed/IgnoreCase/ForeignKey/
// JoinFilter/DefaultValue/ApplicationEncrypt/PublicKey/PublicKeyRef),
// expressed as Go struct tags rather than class attributes.
type parsedTag struct {
	column       string
	dataType     string
	flags        map[string]bool
	foreignKey   string // "table.column"
	joinFilter   string // "column:value"
	defaultValue string
	hasDefault   bool
	publicKeyRef string
	skip         bool
}

func parseTag(raw string) parsedTag {
	pt := parsedTag{flags: make(map[string]bool)}
	if raw == "" {
		return pt
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if part == "-" {
			pt.skip = true
			continue
		}
		if eq := strings.IndexByte(part, '='); eq >= 0 {
			key, val := part[:eq], part[eq+1:]
			switch key {
			case "column":
				pt.column = val
			case "type":
				pt.dataType = val
			case "fk":
				pt.foreignKey = val
			case "joinfilter":
				pt.joinFilter = val
			case "default":
				pt.defaultValue = val
				pt.hasDefault = true
			case "pubkeyref":
				pt.publicKeyRef = val
			default:
				pt.flags[key] = true
			}
			continue
		}
		pt.flags[part] = true
	}
	return pt
}

func (pt parsedTag) has(flag string) bool { return pt.flags[flag] }

func splitForeignKey(fk string) (table, column string, ok bool) {
	idx := strings.IndexByte(fk, '.')
	if idx < 0 {
		return "", "", false
	}
	return fk[:idx], fk[idx+1:], true
}

func splitJoinFilter(jf string) (column string, value string, ok bool) {
	idx := strings.IndexByte(jf, ':')
	if idx < 0 {
		return "", "", false
	}
	return jf[:idx], jf[idx+1:], true
}
