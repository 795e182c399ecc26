package view

import (
	"fmt"
	"path"
	"strings"

	"github.com/ritzau/deps-viz/pkg/model"
)

// EdgeID returns the canonical id of a typed edge between two nodes
func EdgeID(source, target string, t model.EdgeType) string {
	return fmt.Sprintf("%s->%s:%s", source, target, t)
}

// builder accumulates nodes and edges, dropping duplicates while keeping
// first-seen order
type builder struct {
	graph *model.Graph
	nodes map[string]bool
	edges map[string]bool
}

func newBuilder() *builder {
	return &builder{
		graph: model.NewGraph(),
		nodes: make(map[string]bool),
		edges: make(map[string]bool),
	}
}

func (b *builder) addNode(n model.Node) {
	if b.nodes[n.ID] {
		return
	}
	b.nodes[n.ID] = true
	b.graph.Nodes = append(b.graph.Nodes, n)
}

func (b *builder) addEdge(source, target string, t model.EdgeType, usageKind string) {
	if source == "" || target == "" || source == target {
		return
	}
	id := EdgeID(source, target, t)
	if usageKind != "" {
		id += ":" + usageKind
	}
	if b.edges[id] {
		return
	}
	b.edges[id] = true
	b.graph.Edges = append(b.graph.Edges, model.Edge{
		ID:     id,
		Source: source,
		Target: target,
		Data:   model.EdgeData{Type: t, UsageKind: usageKind},
	})
}

// BuildBaseGraph converts the document into typed nodes and edges at the
// requested level. References to unknown ids never become edges.
func BuildBaseGraph(doc *model.Document, opts Options) *model.Graph {
	b := newBuilder()
	if doc == nil {
		return b.graph
	}

	switch opts.Level {
	case LevelPackage:
		b.addPackageLevel(doc)
	case LevelSymbol:
		b.addModuleLevel(doc, true)
	default:
		b.addModuleLevel(doc, false)
	}
	return b.graph
}

func (b *builder) addPackageLevel(doc *model.Document) {
	known := make(map[string]bool, len(doc.Packages))
	moduleOwner := make(map[string]string)
	for _, pkg := range doc.Packages {
		known[pkg.ID] = true
		for _, mod := range pkg.Modules {
			moduleOwner[mod.ID] = pkg.ID
		}
	}

	// 1. Package nodes, counting dependencies that leave the document
	for _, pkg := range doc.Packages {
		external := 0
		externalPkgs := make(map[string]bool)
		for _, dep := range pkg.Dependencies {
			if !known[dep.Target] {
				external++
				externalPkgs[dep.Target] = true
			}
		}
		b.addNode(model.Node{
			ID:   pkg.ID,
			Type: model.NodeTypePackage,
			Data: model.NodeData{
				Label:        labelOr(pkg.Name, pkg.ID),
				Package:      pkg.ID,
				RelativePath: pkg.Path,
				Diagnostics: &model.Diagnostics{
					ExternalDependencyCount:        external,
					ExternalDependencyPackageCount: len(externalPkgs),
				},
			},
		})
	}

	// 2. Manifest dependencies
	for _, pkg := range doc.Packages {
		for _, dep := range pkg.Dependencies {
			if !known[dep.Target] {
				continue
			}
			t, ok := model.ParseEdgeType(string(dep.Type))
			if !ok {
				t = model.EdgeTypeDependency
			}
			b.addEdge(pkg.ID, dep.Target, t, "")
		}
	}

	// 3. Module imports lifted to package level
	for _, pkg := range doc.Packages {
		for _, mod := range pkg.Modules {
			for _, imp := range mod.Imports {
				if imp.External {
					continue
				}
				if owner, ok := moduleOwner[imp.Target]; ok && owner != pkg.ID {
					b.addEdge(pkg.ID, owner, model.EdgeTypeImport, "")
				}
			}
		}
	}
}

func (b *builder) addModuleLevel(doc *model.Document, withSymbols bool) {
	moduleIDs := make(map[string]bool)
	symbolOwner := make(map[string]string) // class/interface ID -> module ID
	for _, pkg := range doc.Packages {
		for _, mod := range pkg.Modules {
			moduleIDs[mod.ID] = true
			for _, c := range mod.Classes {
				symbolOwner[c.ID] = mod.ID
			}
			for _, i := range mod.Interfaces {
				symbolOwner[i.ID] = mod.ID
			}
		}
	}

	// 1. Module nodes, and symbol children when requested
	for _, pkg := range doc.Packages {
		for _, mod := range pkg.Modules {
			b.addNode(moduleNode(pkg, mod))
			if !withSymbols {
				continue
			}
			for _, c := range mod.Classes {
				b.addNode(model.Node{
					ID:         c.ID,
					Type:       model.NodeTypeClass,
					ParentNode: mod.ID,
					Data:       model.NodeData{Label: labelOr(c.Name, c.ID), Package: pkg.ID},
				})
			}
			for _, i := range mod.Interfaces {
				b.addNode(model.Node{
					ID:         i.ID,
					Type:       model.NodeTypeInterface,
					ParentNode: mod.ID,
					Data:       model.NodeData{Label: labelOr(i.Name, i.ID), Package: pkg.ID},
				})
			}
		}
	}

	// endpoint maps a symbol to itself at symbol level and to its module otherwise
	endpoint := func(symbolID string) string {
		owner, ok := symbolOwner[symbolID]
		if !ok {
			return ""
		}
		if withSymbols {
			return symbolID
		}
		return owner
	}

	// 2. Module relationships
	for _, pkg := range doc.Packages {
		for _, mod := range pkg.Modules {
			for _, imp := range mod.Imports {
				if !imp.External && moduleIDs[imp.Target] {
					b.addEdge(mod.ID, imp.Target, model.EdgeTypeImport, "")
				}
			}
			for _, exp := range mod.Exports {
				if moduleIDs[exp.Target] {
					b.addEdge(mod.ID, exp.Target, model.EdgeTypeExport, "")
				}
			}
		}
	}

	// 3. Type hierarchy and symbol usage
	for _, pkg := range doc.Packages {
		for _, mod := range pkg.Modules {
			for _, c := range mod.Classes {
				for _, parent := range c.Extends {
					b.addEdge(endpoint(c.ID), endpoint(parent), model.EdgeTypeInheritance, "")
				}
				for _, iface := range c.Implements {
					b.addEdge(endpoint(c.ID), endpoint(iface), model.EdgeTypeImplements, "")
				}
			}
			for _, i := range mod.Interfaces {
				for _, parent := range i.Extends {
					b.addEdge(endpoint(i.ID), endpoint(parent), model.EdgeTypeExtends, "")
				}
			}
			if !withSymbols {
				continue
			}
			for _, ref := range mod.SymbolReferences {
				b.addEdge(endpoint(ref.Source), endpoint(ref.Target), model.EdgeTypeUses, ref.Kind)
			}
		}
	}
}

func moduleNode(pkg model.Package, mod model.Module) model.Node {
	external := 0
	externalPkgs := make(map[string]bool)
	for _, imp := range mod.Imports {
		if !imp.External {
			continue
		}
		external++
		if imp.Package != "" {
			externalPkgs[imp.Package] = true
		}
	}

	label := mod.Name
	if label == "" {
		label = path.Base(mod.RelativePath)
	}

	return model.Node{
		ID:   mod.ID,
		Type: model.NodeTypeModule,
		Data: model.NodeData{
			Label:        labelOr(label, mod.ID),
			Package:      pkg.ID,
			RelativePath: mod.RelativePath,
			Diagnostics: &model.Diagnostics{
				IsTestFile:                     IsTestFile(mod.RelativePath),
				ExternalDependencyCount:        external,
				ExternalDependencyPackageCount: len(externalPkgs),
			},
		},
	}
}

// IsTestFile reports whether a relative path looks like a test or spec file
func IsTestFile(relPath string) bool {
	p := strings.ToLower(relPath)
	base := path.Base(p)
	switch {
	case strings.Contains(base, ".test."), strings.Contains(base, ".spec."):
		return true
	case strings.Contains(base, "_test."):
		return true
	case strings.HasPrefix(p, "test/"), strings.HasPrefix(p, "tests/"):
		return true
	case strings.Contains(p, "/__tests__/"), strings.HasPrefix(p, "__tests__/"):
		return true
	}
	return false
}

func labelOr(label, fallback string) string {
	if label != "" {
		return label
	}
	return fallback
}
