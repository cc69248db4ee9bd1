package rules

import (
	"fmt"
	"strings"

	"hush/pkg/cel"
)

type fieldKind int

const (
	kindString fieldKind = iota
	kindNumber
	kindBool
	kindDynamic
)

func (k fieldKind) String() string {
	switch k {
	case kindString:
		return "string"
	case kindNumber:
		return "number"
	case kindBool:
		return "bool"
	default:
		return "dynamic"
	}
}

const metadataPrefix = cel.VarMetadata + "."

// fields lists what a condition may reference. Values are read from the
// same activation the CEL predicates use.
var fields = map[string]fieldKind{
	cel.VarEventType:            kindString,
	cel.VarPriority:             kindString,
	cel.VarChannel:              kindString,
	cel.VarSource:               kindString,
	cel.VarUserID:               kindString,
	cel.VarMessage:              kindString,
	cel.VarDuplicate:            kindString,
	cel.VarChannelCount1h:       kindNumber,
	cel.VarRecentCount1h:        kindNumber,
	cel.VarRecentCountWindow:    kindNumber,
	cel.VarMinutesSinceLastSent: kindNumber,
	cel.VarSimilarity:           kindNumber,
	cel.VarDoNotDisturb:         kindBool,
	cel.VarOptedOut:             kindBool,
	cel.VarInCooldown:           kindBool,
}

func lookupField(name string) (fieldKind, error) {
	if strings.HasPrefix(name, metadataPrefix) {
		if len(name) == len(metadataPrefix) {
			return 0, fmt.Errorf("metadata field needs a key")
		}
		return kindDynamic, nil
	}
	kind, ok := fields[name]
	if !ok {
		return 0, fmt.Errorf("unknown field %q", name)
	}
	return kind, nil
}

// resolve returns the value of field in vars. Missing metadata keys report
// ok=false.
func resolve(vars map[string]interface{}, field string) (interface{}, bool) {
	if key, found := strings.CutPrefix(field, metadataPrefix); found {
		metadata, _ := vars[cel.VarMetadata].(map[string]interface{})
		v, ok := metadata[key]
		return v, ok
	}
	v, ok := vars[field]
	return v, ok
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func equalValues(a, b interface{}) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

func checkValueKind(kind fieldKind, v interface{}) error {
	switch kind {
	case kindString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string value, got %T", v)
		}
	case kindNumber:
		if _, ok := toFloat(v); !ok {
			return fmt.Errorf("expected numeric value, got %T", v)
		}
	case kindBool:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected bool value, got %T", v)
		}
	case kindDynamic:
		if _, ok := toFloat(v); ok {
			return nil
		}
		switch v.(type) {
		case string, bool:
			return nil
		}
		return fmt.Errorf("unsupported value type %T", v)
	}
	return nil
}
