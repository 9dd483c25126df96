package mongo

import (
	"sort"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/docshift/docshift"
	"github.com/docshift/docshift/schema"
)

var _ docshift.ValidatorCompiler = (*Compiler)(nil)

// Compiler translates declared schemas into $jsonSchema validator
// documents enforced by the server on every write.
type Compiler struct{}

// NewCompiler constructs a validator compiler.
func NewCompiler() *Compiler {
	return &Compiler{}
}

// CompileCollection compiles the validator for a plain collection.
func (c *Compiler) CompileCollection(root *schema.Node) (interface{}, error) {
	body, err := compileNode(root)
	if err != nil {
		return nil, err
	}
	return bson.M{"$jsonSchema": body}, nil
}

// CompileShared compiles the validator for a shared collection: every
// document must match one of the declared types, discriminated by the
// type field.
func (c *Compiler) CompileShared(types map[string]*schema.Node, typeField string) (interface{}, error) {
	tags := make([]string, 0, len(types))
	for tag := range types {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	anyOf := make([]bson.M, 0, len(tags))
	for _, tag := range tags {
		body, err := compileNode(types[tag])
		if err != nil {
			return nil, errors.Wrapf(err, "compiling type %s", tag)
		}

		props, ok := body["properties"].(bson.M)
		if !ok {
			props = bson.M{}
			body["properties"] = props
		}
		props[typeField] = bson.M{"enum": bson.A{tag}}

		required, _ := body["required"].(bson.A)
		body["required"] = append(required, typeField)

		anyOf = append(anyOf, body)
	}

	return bson.M{"$jsonSchema": bson.M{"anyOf": anyOf}}, nil
}

func compileNode(n *schema.Node) (bson.M, error) {
	if n == nil {
		return nil, errors.New("cannot compile nil schema node")
	}

	switch n.Kind {
	case schema.KindObject:
		properties := bson.M{}
		var required bson.A
		for _, f := range n.Fields {
			field := f.Node
			optional := field.Kind == schema.KindOptional
			if optional {
				field = field.Elem
			}

			body, err := compileNode(field)
			if err != nil {
				return nil, errors.Wrapf(err, "compiling field %s", f.Name)
			}
			properties[f.Name] = body
			if !optional {
				required = append(required, f.Name)
			}
		}

		body := bson.M{
			"bsonType":   "object",
			"properties": properties,
		}
		if len(required) > 0 {
			body["required"] = required
		}
		return body, nil

	case schema.KindArray:
		items, err := compileNode(n.Elem)
		if err != nil {
			return nil, err
		}
		return bson.M{"bsonType": "array", "items": items}, nil

	case schema.KindUnion:
		anyOf := make([]bson.M, 0, len(n.Variants))
		for _, variant := range n.Variants {
			body, err := compileNode(variant)
			if err != nil {
				return nil, err
			}
			anyOf = append(anyOf, body)
		}
		return bson.M{"anyOf": anyOf}, nil

	case schema.KindOptional:
		// optionality outside an object field position only relaxes
		// nullability
		body, err := compileNode(n.Elem)
		if err != nil {
			return nil, err
		}
		return body, nil

	case schema.KindLeaf:
		return leafBody(n.Leaf), nil

	default:
		return nil, errors.Errorf("unknown schema node kind %d", n.Kind)
	}
}

func leafBody(t schema.LeafType) bson.M {
	switch t {
	case schema.LeafString:
		return bson.M{"bsonType": "string"}
	case schema.LeafInt:
		return bson.M{"bsonType": bson.A{"int", "long"}}
	case schema.LeafDouble:
		return bson.M{"bsonType": bson.A{"double", "int", "long"}}
	case schema.LeafBool:
		return bson.M{"bsonType": "bool"}
	case schema.LeafTime:
		return bson.M{"bsonType": "date"}
	case schema.LeafObjectID:
		return bson.M{"bsonType": "objectId"}
	default:
		// any: no constraint
		return bson.M{}
	}
}
