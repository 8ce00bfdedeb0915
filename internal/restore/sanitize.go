package restore

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// DanglingPolicy decides what happens to a row whose reference points at a
// parent identity the backup does not contain.
type DanglingPolicy string

const (
	// DanglingKeep sends the row as is and lets the store's constraints decide.
	DanglingKeep DanglingPolicy = "keep"
	// DanglingReject drops the row before insert.
	DanglingReject DanglingPolicy = "reject"
	// DanglingNullify clears the offending column and sends the row.
	DanglingNullify DanglingPolicy = "nullify"
)

// ParseDanglingPolicy converts a config value into a DanglingPolicy.
func ParseDanglingPolicy(s string) (DanglingPolicy, error) {
	switch p := DanglingPolicy(s); p {
	case DanglingKeep, DanglingReject, DanglingNullify:
		return p, nil
	case "":
		return DanglingKeep, nil
	default:
		return "", fmt.Errorf("unknown dangling reference policy %q (want keep, reject or nullify)", s)
	}
}

// Sanitizer prepares backup rows for insertion.
//
// Identity handling follows the table's IDPolicy. References are only checked
// against parents with the Preserve policy that are part of the same plan:
// those are the only parents whose identities are known before insertion.
// References to regenerated parents, or to parents not being restored, are
// always left to the store.
type Sanitizer struct {
	catalog *Catalog
	policy  DanglingPolicy
	known   map[TableName]map[string]struct{}
}

// NewSanitizer builds a sanitizer for one run.
func NewSanitizer(catalog *Catalog, doc *BackupDocument, plan []TableName, policy DanglingPolicy) *Sanitizer {
	s := &Sanitizer{
		catalog: catalog,
		policy:  policy,
		known:   make(map[TableName]map[string]struct{}),
	}
	if policy == DanglingKeep || policy == "" {
		return s
	}

	for _, name := range plan {
		def, ok := catalog.Get(name)
		if !ok || def.IDPolicy != Preserve {
			continue
		}
		ids := make(map[string]struct{}, len(doc.Data[name]))
		for _, rec := range doc.Data[name] {
			if v, ok := rec[def.Identity()]; ok && v != nil {
				ids[identityKey(v)] = struct{}{}
			}
		}
		s.known[name] = ids
	}
	return s
}

// Sanitize returns copies of records ready to send for def, and the number
// of rows dropped by the dangling reference policy. Input records are never
// modified.
func (s *Sanitizer) Sanitize(def TableDefinition, records []Record) ([]Record, int) {
	out := make([]Record, 0, len(records))
	rejected := 0

	for _, rec := range records {
		clean := make(Record, len(rec))
		for k, v := range rec {
			clean[k] = v
		}

		if def.IDPolicy == Regenerate {
			delete(clean, def.Identity())
		}

		if !s.checkReferences(def, clean) {
			rejected++
			continue
		}
		out = append(out, clean)
	}

	return out, rejected
}

// checkReferences applies the dangling policy to rec in place.
// Returns false if the row must be dropped.
func (s *Sanitizer) checkReferences(def TableDefinition, rec Record) bool {
	if len(s.known) == 0 {
		return true
	}

	for _, ref := range def.References {
		ids, tracked := s.known[ref.Table]
		if !tracked {
			continue
		}
		v, ok := rec[ref.Column]
		if !ok || v == nil {
			continue
		}
		if _, found := ids[identityKey(v)]; found {
			continue
		}

		switch s.policy {
		case DanglingReject:
			return false
		case DanglingNullify:
			rec[ref.Column] = nil
		}
	}
	return true
}

// identityKey normalizes an identity value so that "7", 7, 7.0 and a decoded
// json.Number "7.0" compare equal.
func identityKey(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		if f, err := x.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprint(x)
	}
}
