// Package geometry resolves node dimensions and absolute bounding boxes, and
// provides the clipping primitives used by edge virtualization.
package geometry

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/ritzau/deps-viz/pkg/model"
)

// DefaultNodeSize returns the fallback dimensions for a node type when neither an
// explicit style nor a measured size is available.
func DefaultNodeSize(t model.NodeType) model.Size {
	switch t {
	case model.NodeTypeGroup:
		return model.Size{Width: 320, Height: 200}
	case model.NodeTypePackage:
		return model.Size{Width: 280, Height: 120}
	case model.NodeTypeClass, model.NodeTypeInterface:
		return model.Size{Width: 220, Height: 110}
	case model.NodeTypeFunction, model.NodeTypeMethod, model.NodeTypeProperty:
		return model.Size{Width: 180, Height: 40}
	case model.NodeTypeHub:
		return model.Size{Width: 48, Height: 48}
	default:
		return model.Size{Width: 240, Height: 100}
	}
}

// ResolveNodeDimensions returns the node's size, preferring explicit style over the
// measured size over defaults. Both dimensions are clamped to at least 1.
func ResolveNodeDimensions(node *model.Node, defaults model.Size) model.Size {
	width := defaults.Width
	height := defaults.Height

	if node.Measured != nil {
		if finite(node.Measured.Width) && node.Measured.Width > 0 {
			width = node.Measured.Width
		}
		if finite(node.Measured.Height) && node.Measured.Height > 0 {
			height = node.Measured.Height
		}
	}

	if node.Style != nil {
		if w, ok := ParseDimension(node.Style.Width); ok {
			width = w
		}
		if h, ok := ParseDimension(node.Style.Height); ok {
			height = h
		}
	}

	return model.Size{Width: math.Max(1, width), Height: math.Max(1, height)}
}

// ParseDimension accepts raw numbers or "<number><unit>" strings such as "120px".
// Non-finite and unparseable values are rejected.
func ParseDimension(v interface{}) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, ok := parseNumericPrefix(val)
		if !ok {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if !finite(f) {
		return 0, false
	}
	return f, true
}

// parseNumericPrefix parses the longest leading decimal number of s.
func parseNumericPrefix(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	end := 0
	seenDigit := false
	seenDot := false
scan:
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			seenDigit = true
			end = i + 1
		case r == '.' && !seenDot:
			seenDot = true
			end = i + 1
		case (r == '-' || r == '+') && i == 0:
			end = i + 1
		default:
			break scan
		}
	}
	if !seenDigit {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(s[:end], "."), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// BuildAbsoluteNodeBoundsMap converts parent-relative positions into absolute
// bounding boxes. Nodes without a position are left out of the map.
//
// Parent chains are walked with a "currently resolving" set. A node reached again
// while it is still being resolved is skipped, and the node that asked for it falls
// back to its own position, so a cyclic chain still resolves its first-visited node.
func BuildAbsoluteNodeBoundsMap(nodes []model.Node, defaults model.Size) map[string]model.Rect {
	byID := make(map[string]*model.Node, len(nodes))
	for i := range nodes {
		byID[nodes[i].ID] = &nodes[i]
	}

	bounds := make(map[string]model.Rect, len(nodes))
	resolving := make(map[string]bool)

	var resolve func(id string) (model.Rect, bool)
	resolve = func(id string) (model.Rect, bool) {
		if r, ok := bounds[id]; ok {
			return r, true
		}
		if resolving[id] {
			return model.Rect{}, false
		}
		node := byID[id]
		if node == nil || node.Position == nil {
			return model.Rect{}, false
		}

		resolving[id] = true
		defer delete(resolving, id)

		x, y := node.Position.X, node.Position.Y
		if node.ParentNode != "" && node.ParentNode != id {
			if parent, ok := resolve(node.ParentNode); ok {
				x += parent.X
				y += parent.Y
			}
		}

		size := ResolveNodeDimensions(node, defaultsFor(node, defaults))
		r := model.Rect{X: x, Y: y, Width: size.Width, Height: size.Height}
		bounds[id] = r
		return r, true
	}

	for i := range nodes {
		resolve(nodes[i].ID)
	}
	return bounds
}

func defaultsFor(node *model.Node, defaults model.Size) model.Size {
	if defaults.Width > 0 && defaults.Height > 0 {
		return defaults
	}
	return DefaultNodeSize(node.Type)
}
