package callgraph

import (
	"strconv"
	"strings"
)

// IncomingMarker prefixes incoming sequence labels.
const IncomingMarker = "↣"

// Label builds the sequence label for the ordinal-th accepted neighbor of a
// node whose own label is parent.
//
// Outgoing labels read like outline numbers ("1", "1.2", "1.2.3"). Incoming
// labels read right to left toward the root ("↣ 1", "2 ↣ 1", "3 ↣ 2 ↣ 1").
func Label(dir Direction, parent string, ordinal int) string {
	ord := strconv.Itoa(ordinal)
	if dir == Incoming {
		switch {
		case parent == "":
			return IncomingMarker + " " + ord
		case strings.HasPrefix(parent, IncomingMarker):
			return ord + " " + parent
		default:
			return ord + " " + IncomingMarker + " " + parent
		}
	}
	if parent == "" {
		return ord
	}
	return parent + "." + ord
}
