package schema

import (
	"fmt"
	"time"
)

// ValidateDocument checks a document against a node tree. It enforces the
// structural contract only: required fields present, field values matching
// their declared kinds, no undeclared fields. It is what the migration
// simulator uses to vet seed data before any real insert happens; the full
// runtime validation layer lives with the database driver.
func ValidateDocument(root *Node, doc map[string]interface{}) error {
	return validateValue(nil, root, doc)
}

func validateValue(path Path, n *Node, value interface{}) error {
	if n == nil {
		return nil
	}

	switch n.Kind {
	case KindOptional:
		if value == nil {
			return nil
		}
		return validateValue(path, n.Elem, value)

	case KindObject:
		doc, ok := value.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%s: expected document, got %T", pathLabel(path), value)
		}
		for _, f := range n.Fields {
			fieldPath := append(append(Path{}, path...), f.Name)
			v, present := doc[f.Name]
			if !present {
				if f.Node.Kind == KindOptional {
					continue
				}
				return fmt.Errorf("%s: required field missing", fieldPath)
			}
			if err := validateValue(fieldPath, f.Node, v); err != nil {
				return err
			}
		}
		for name := range doc {
			if name == "_id" {
				continue
			}
			if _, ok := n.FieldNode(name); !ok {
				fieldPath := append(append(Path{}, path...), name)
				return fmt.Errorf("%s: field not declared in schema", fieldPath)
			}
		}
		return nil

	case KindArray:
		items, ok := value.([]interface{})
		if !ok {
			return fmt.Errorf("%s: expected array, got %T", pathLabel(path), value)
		}
		for _, item := range items {
			if err := validateValue(path, n.Elem, item); err != nil {
				return err
			}
		}
		return nil

	case KindUnion:
		for _, variant := range n.Variants {
			if validateValue(path, variant, value) == nil {
				return nil
			}
		}
		return fmt.Errorf("%s: value matches no union variant", pathLabel(path))

	case KindLeaf:
		return validateLeaf(path, n.Leaf, value)
	}

	return nil
}

func validateLeaf(path Path, t LeafType, value interface{}) error {
	ok := true
	switch t {
	case LeafAny:
	case LeafString:
		_, ok = value.(string)
	case LeafBool:
		_, ok = value.(bool)
	case LeafInt:
		switch value.(type) {
		case int, int32, int64:
		default:
			ok = false
		}
	case LeafDouble:
		switch value.(type) {
		case float32, float64, int, int32, int64:
		default:
			ok = false
		}
	case LeafTime:
		_, ok = value.(time.Time)
	case LeafObjectID:
		switch v := value.(type) {
		case string:
		case []byte:
			ok = len(v) == 12
		default:
			// driver-native object-id types stringify via Hex
			_, ok = value.(interface{ Hex() string })
		}
	}
	if !ok {
		return fmt.Errorf("%s: expected %s, got %T", pathLabel(path), t, value)
	}
	return nil
}

func pathLabel(path Path) string {
	if len(path) == 0 {
		return "(root)"
	}
	return path.String()
}
