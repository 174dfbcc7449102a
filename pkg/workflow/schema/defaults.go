package schema

// BuildDefaultValue materializes a minimal instance of s. Objects only get
// required properties and properties that declare an explicit default, so
// optional enum fields are never filled with a value the enum rejects.
func BuildDefaultValue(s, root *Schema) (any, error) {
	if root == nil {
		root = s
	}
	return buildDefault(s, root, nil, nil)
}

func buildDefault(s, root *Schema, expanding []*Schema, chain []string) (any, error) {
	if s == nil {
		return nil, nil
	}
	if s.Default != nil {
		return s.Default, nil
	}
	r, err := resolve(s, root, nil, nil)
	if err != nil {
		return nil, err
	}
	rs := r.Schema
	if rs.Default != nil {
		return rs.Default, nil
	}

	switch NormalizeType(rs) {
	case "string":
		return "", nil
	case "number", "integer":
		return 0, nil
	case "boolean":
		return false, nil
	case "array":
		return []any{}, nil
	case "null":
		return nil, nil
	case "object", "":
		if rs.Properties == nil {
			if NormalizeType(rs) == "object" {
				return map[string]any{}, nil
			}
			return nil, nil
		}
	default:
		return nil, nil
	}

	// A required property whose type contains itself has no finite instance.
	label := r.ref
	if label == "" {
		label = "#"
	}
	chain = append(chain, label)
	if contains(expanding, r.origin) {
		if r.Nullable {
			return nil, nil
		}
		return nil, &CyclicReferenceError{Chain: append([]string(nil), chain...)}
	}
	expanding = append(expanding, r.origin)

	out := make(map[string]any)
	for _, name := range rs.Properties.Keys() {
		prop, _ := rs.Properties.Get(name)
		if !rs.IsRequired(name) && !hasDefault(prop, root) {
			continue
		}
		v, err := buildDefault(prop, root, expanding, chain)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

func hasDefault(s, root *Schema) bool {
	if s == nil {
		return false
	}
	if s.Default != nil {
		return true
	}
	r, err := Resolve(s, root)
	return err == nil && r != nil && r.Default != nil
}
