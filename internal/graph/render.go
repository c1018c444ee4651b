package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Render produces a readable dump of a compiled plan followed by its reverse
// keys. Args are printed in sorted key order.
func Render(p *Plan) string {
	if p == nil || p.Root == nil {
		return ""
	}
	var b strings.Builder
	renderNode(&b, p.Root, 0)

	b.WriteString("\nreverse keys:\n")
	for _, k := range p.Keys.Keys() {
		path := k.Path
		if path == "" {
			path = "<root>"
		}
		fmt.Fprintf(&b, "  %s at %s: %s\n", k.Type, path, describeFilter(k.Filter))
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func renderNode(b *strings.Builder, n *Node, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	if n.IsRoot {
		fmt.Fprintf(b, "%s (root)", n.Type)
	} else {
		fmt.Fprintf(b, "%s: %s %s", n.Name, n.Type, n.Relation.Kind)
		if n.Relation.ForeignKey != "" {
			fmt.Fprintf(b, "(%s)", n.Relation.ForeignKey)
		}
	}
	if len(n.Args) > 0 {
		keys := make([]string, 0, len(n.Args))
		for k := range n.Args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%v", k, n.Args[k])
		}
		fmt.Fprintf(b, " [%s]", strings.Join(parts, " "))
	}
	b.WriteString("\n")
	for _, c := range n.Children {
		renderNode(b, c, depth+1)
	}
}

func describeFilter(cfg *FilterConfig) string {
	switch {
	case cfg == nil:
		return "_id"
	case cfg.HasArray && cfg.SuperBase != nil:
		return fmt.Sprintf("%s $elemMatch %s._id", cfg.SuperBase.Base, cfg.Base)
	case cfg.HasArray:
		return fmt.Sprintf("%s $elemMatch _id", cfg.Base)
	default:
		return cfg.Base + "._id"
	}
}
