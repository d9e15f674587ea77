package codec

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/factdb/internal/edn"
	"github.com/roach88/factdb/internal/ir"
)

// DecodeYAML parses a YAML document. Mapping keys become keywords and plain
// scalars starting with ':' become keywords, matching the json mapping.
// Only a single document is accepted.
func DecodeYAML(text string) (ir.Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, ir.Wrap(ir.CodeParse, err, "decode yaml")
	}
	if doc.Kind == 0 {
		return nil, ir.Errorf(ir.CodeParse, "decode yaml: empty document")
	}
	return fromYAML(&doc)
}

func fromYAML(n *yaml.Node) (ir.Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) != 1 {
			return nil, ir.Errorf(ir.CodeParse, "decode yaml: expected one document")
		}
		return fromYAML(n.Content[0])
	case yaml.AliasNode:
		return fromYAML(n.Alias)
	case yaml.SequenceNode:
		vec := make(ir.Vector, len(n.Content))
		for i, c := range n.Content {
			v, err := fromYAML(c)
			if err != nil {
				return nil, err
			}
			vec[i] = v
		}
		return vec, nil
	case yaml.MappingNode:
		entries := make([]ir.MapEntry, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Kind != yaml.ScalarNode {
				return nil, ir.Errorf(ir.CodeParse, "decode yaml: line %d: mapping keys must be scalars", k.Line)
			}
			v, err := fromYAML(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			key := ir.KW(k.Value)
			if !edn.ValidKeyword(string(key)) {
				return nil, ir.Errorf(ir.CodeParse, "decode yaml: line %d: mapping key %q is not a keyword", k.Line, k.Value)
			}
			entries = append(entries, ir.E(key, v))
		}
		return ir.NewMap(entries...), nil
	case yaml.ScalarNode:
		return yamlScalar(n)
	}
	return nil, ir.Errorf(ir.CodeParse, "decode yaml: line %d: unsupported node", n.Line)
}

func yamlScalar(n *yaml.Node) (ir.Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return ir.Nil{}, nil
	case "!!bool":
		b, err := strconv.ParseBool(strings.ToLower(n.Value))
		if err != nil {
			return nil, ir.Wrap(ir.CodeParse, err, "decode yaml: line %d", n.Line)
		}
		return ir.Bool(b), nil
	case "!!int":
		i, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			return nil, ir.Wrap(ir.CodeParse, err, "decode yaml: line %d", n.Line)
		}
		return ir.Int(i), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, ir.Wrap(ir.CodeParse, err, "decode yaml: line %d", n.Line)
		}
		return ir.Float(f), nil
	}
	if n.Style == 0 && len(n.Value) > 1 && n.Value[0] == ':' && edn.ValidKeyword(n.Value[1:]) {
		return ir.Keyword(n.Value[1:]), nil
	}
	return ir.String(n.Value), nil
}
