package scim

import "strings"

// ApplyPatch applies ops, in order, to resource and returns a new
// resource (the input is never mutated) plus the set of top-level
// fields that were touched, keyed by field name with their post-update
// value.
//
// Path resolution is tried in the order spec'd for this bridge:
//  1. no path — value must be an object, merged at the top level
//  2. a simple name — set/delete the top-level key
//  3. a multi-valued expression attr[filter] or attr[filter].subAttr
//  4. a two-level dotted path parent.child
//  5. anything else — treated as a single key
//
// Design note: when case 3's filter matches no element, a replace/add
// synthesizes a new element from the filter predicate itself
// (`{name: value}`) and appends it. This mirrors observed IdP traffic
// rather than the RFC; it is preserved deliberately, not a bug.
func ApplyPatch(resource map[string]any, ops []PatchOperation) (map[string]any, map[string]any) {
	out := cloneResource(resource)
	changed := map[string]any{}

	for _, op := range ops {
		applyOne(out, op, changed)
	}

	return out, changed
}

func applyOne(resource map[string]any, op PatchOperation, changed map[string]any) {
	verb := strings.ToLower(op.Op)
	path := strings.TrimSpace(op.Path)

	switch {
	case path == "":
		applyNoPath(resource, verb, op.Value, changed)
	case !strings.ContainsAny(path, ".["):
		applySimpleName(resource, verb, path, op.Value, changed)
	case isMultiValuedPath(path):
		applyMultiValued(resource, verb, path, op.Value, changed)
	case isDottedPath(path):
		applyDottedPath(resource, verb, path, op.Value, changed)
	default:
		applySimpleName(resource, verb, path, op.Value, changed)
	}
}

// Case 1: no path. value must be an object; each key/value pair is
// written at the top level. add and replace behave identically here;
// remove with no path is a no-op.
func applyNoPath(resource map[string]any, verb string, value any, changed map[string]any) {
	if verb == "remove" {
		return
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return
	}
	for k, v := range obj {
		resource[k] = v
		changed[k] = resource[k]
	}
}

// Case 2: simple top-level key.
func applySimpleName(resource map[string]any, verb, key string, value any, changed map[string]any) {
	if verb == "remove" {
		delete(resource, key)
		changed[key] = nil
		return
	}
	resource[key] = value
	changed[key] = resource[key]
}

func isMultiValuedPath(path string) bool {
	open := strings.IndexByte(path, '[')
	return open > 0 && strings.ContainsRune(path, ']')
}

// Case 3: attr[name eq "value"] or attr[name eq "value"].subAttr.
func applyMultiValued(resource map[string]any, verb, path string, value any, changed map[string]any) {
	attr, predName, predValue, subAttr, ok := parseMultiValuedPath(path)
	if !ok {
		return
	}

	list, _ := resource[attr].([]any)

	if verb == "remove" {
		kept := list[:0]
		for _, el := range list {
			if !predMatches(el, predName, predValue) {
				kept = append(kept, el)
			}
		}
		resource[attr] = kept
		changed[attr] = resource[attr]
		return
	}

	idx := -1
	for i, el := range list {
		if predMatches(el, predName, predValue) {
			idx = i
			break
		}
	}

	if idx >= 0 {
		el, _ := list[idx].(map[string]any)
		if el == nil {
			el = map[string]any{}
		}
		if subAttr != "" {
			el[subAttr] = value
		} else if obj, ok := value.(map[string]any); ok {
			for k, v := range obj {
				el[k] = v
			}
		}
		list[idx] = el
		resource[attr] = list
		changed[attr] = resource[attr]
		return
	}

	// No match: synthesize a new element from the filter predicate.
	el := map[string]any{predName: predValue}
	if subAttr != "" {
		el[subAttr] = value
	} else if obj, ok := value.(map[string]any); ok {
		for k, v := range obj {
			el[k] = v
		}
	}
	resource[attr] = append(list, el)
	changed[attr] = resource[attr]
}

// parseMultiValuedPath splits `attr[name eq "value"]` or
// `attr[name eq "value"].subAttr` into its parts. The inner predicate
// is a single `name eq "value"` or `name eq value` comparison, with
// unquoted true/false recognized as booleans.
func parseMultiValuedPath(path string) (attr, predName string, predValue any, subAttr string, ok bool) {
	open := strings.IndexByte(path, '[')
	close := strings.IndexByte(path, ']')
	if open <= 0 || close <= open {
		return "", "", nil, "", false
	}
	attr = path[:open]
	inner := strings.TrimSpace(path[open+1 : close])
	rest := path[close+1:]
	rest = strings.TrimPrefix(rest, ".")
	subAttr = rest

	fields := strings.Fields(inner)
	if len(fields) < 3 || strings.ToLower(fields[1]) != "eq" {
		return "", "", nil, "", false
	}
	predName = fields[0]
	rawValue := strings.Join(fields[2:], " ")

	switch {
	case strings.HasPrefix(rawValue, `"`) && strings.HasSuffix(rawValue, `"`) && len(rawValue) >= 2:
		predValue = rawValue[1 : len(rawValue)-1]
	case strings.EqualFold(rawValue, "true"):
		predValue = true
	case strings.EqualFold(rawValue, "false"):
		predValue = false
	default:
		predValue = rawValue
	}

	return attr, predName, predValue, subAttr, true
}

func predMatches(el any, name string, value any) bool {
	obj, ok := el.(map[string]any)
	if !ok {
		return false
	}
	return obj[name] == value
}

func isDottedPath(path string) bool {
	if strings.ContainsRune(path, '[') {
		return false
	}
	parts := strings.Split(path, ".")
	return len(parts) == 2 && parts[0] != "" && parts[1] != ""
}

// Case 4: parent.child. Upsert parent to an object if missing, then
// set or delete child.
func applyDottedPath(resource map[string]any, verb, path string, value any, changed map[string]any) {
	parts := strings.SplitN(path, ".", 2)
	parent, child := parts[0], parts[1]

	obj, _ := resource[parent].(map[string]any)
	if obj == nil {
		obj = map[string]any{}
	}

	if verb == "remove" {
		delete(obj, child)
	} else {
		obj[child] = value
	}

	resource[parent] = obj
	changed[parent] = resource[parent]
}

func cloneResource(resource map[string]any) map[string]any {
	out := make(map[string]any, len(resource))
	for k, v := range resource {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}
