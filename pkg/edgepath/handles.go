// Package edgepath turns endpoint positions into orthogonal edge routes and
// corner-rounded path descriptions.
package edgepath

import (
	"math"
	"strings"

	"github.com/ritzau/deps-viz/pkg/model"
)

// GetHandleSide parses the side out of a conventional handle id. Recognised forms
// are "folder-<side>-in|out[-inner]" and "relational-<in|out>-<side>".
func GetHandleSide(handleID string) (model.HandleSide, bool) {
	parts := strings.Split(handleID, "-")
	if len(parts) < 3 {
		return "", false
	}

	switch parts[0] {
	case "folder":
		if len(parts) > 4 || !isDirection(parts[2]) {
			return "", false
		}
		if len(parts) == 4 && parts[3] != "inner" {
			return "", false
		}
		return model.ParseHandleSide(parts[1])
	case "relational":
		if len(parts) != 3 || !isDirection(parts[1]) {
			return "", false
		}
		return model.ParseHandleSide(parts[2])
	}
	return "", false
}

func isDirection(s string) bool {
	return s == "in" || s == "out"
}

// InferHandleSide picks the side facing from "from" towards "to" along the dominant
// axis. Horizontal wins exact diagonal ties; a zero-length vector yields right.
func InferHandleSide(from, to model.Point) model.HandleSide {
	dx := to.X - from.X
	dy := to.Y - from.Y
	if dx == 0 && dy == 0 {
		return model.SideRight
	}
	if math.Abs(dx) >= math.Abs(dy) {
		if dx >= 0 {
			return model.SideRight
		}
		return model.SideLeft
	}
	if dy > 0 {
		return model.SideBottom
	}
	return model.SideTop
}
