package view

import (
	"path"
	"strings"

	"github.com/ritzau/deps-viz/pkg/model"
)

// FolderGroupID returns the id of the folder group for a directory of a
// package. The package is part of the id, so equal relative paths in
// different packages never share a group.
func FolderGroupID(pkg, dir string) string {
	return "folder:" + pkg + ":" + dir
}

// ClusterByFolder parents every top-level module under a group node for its
// package-relative directory. Group nodes are emitted directly before their
// first child, so the output depends only on the input order. Only unparented
// modules with a package and a path are clustered, which makes clustering
// idempotent.
func ClusterByFolder(g *model.Graph) (*model.Graph, int) {
	out := &model.Graph{
		Nodes: make([]model.Node, 0, len(g.Nodes)),
		Edges: g.Edges,
	}

	existing := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		existing[n.ID] = true
	}

	created := make(map[string]bool)
	for _, n := range g.Nodes {
		if !clusterable(n) {
			out.Nodes = append(out.Nodes, n)
			continue
		}

		dir := folderOf(n.Data.RelativePath)
		id := FolderGroupID(n.Data.Package, dir)
		if !existing[id] && !created[id] {
			created[id] = true
			out.Nodes = append(out.Nodes, folderGroupNode(id, n.Data.Package, dir))
		}
		n.ParentNode = id
		out.Nodes = append(out.Nodes, n)
	}

	return out, len(created)
}

func clusterable(n model.Node) bool {
	return n.Type == model.NodeTypeModule &&
		n.ParentNode == "" &&
		n.Data.Package != "" &&
		n.Data.RelativePath != ""
}

// folderOf returns the slash-separated directory of a relative path, "." for
// files at the package root
func folderOf(relPath string) string {
	return path.Dir(strings.ReplaceAll(relPath, "\\", "/"))
}

func folderGroupNode(id, pkg, dir string) model.Node {
	label := dir
	if dir == "." {
		label = pkg
	}
	return model.Node{
		ID:   id,
		Type: model.NodeTypeGroup,
		Data: model.NodeData{
			Label:        label,
			Package:      pkg,
			RelativePath: dir,
		},
	}
}
