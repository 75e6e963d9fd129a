package graph

import "strings"

// Group is the cytoscape element group.
type Group string

const (
	GroupNodes Group = "nodes"
	GroupEdges Group = "edges"
)

// ClassCompound marks file nodes that contain function nodes.
const ClassCompound = "compound"

// Id prefixes.
const (
	nodePrefix = "node:"
	filePrefix = "file:"
	edgePrefix = "edge:"
)

// EmptyEdgeLabel is shown for edges without a sequence label.
const EmptyEdgeLabel = "(n/a)"

// ElementData carries the fields a renderer reads. Function and file nodes
// fill Label, Parent (function nodes only) and the location fields; edges fill
// Source, Target and Label.
type ElementData struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Parent    string `json:"parent,omitempty"`
	Source    string `json:"source,omitempty"`
	Target    string `json:"target,omitempty"`
	URI       string `json:"uri,omitempty"`
	Line      int    `json:"line"`
	Character int    `json:"character"`
	Kind      string `json:"kind,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// Element is one node, file compound node, or edge record.
type Element struct {
	Group   Group       `json:"group"`
	Data    ElementData `json:"data"`
	Classes string      `json:"classes,omitempty"`
}

// ID returns e.Data.ID.
func (e Element) ID() string { return e.Data.ID }

// IsEdge reports whether e is an edge record.
func (e Element) IsEdge() bool { return e.Group == GroupEdges }

// IsFile reports whether e is a file compound node.
func (e Element) IsFile() bool {
	return e.Group == GroupNodes && strings.Contains(" "+e.Classes+" ", " "+ClassCompound+" ")
}

// IsFunction reports whether e is a function (symbol) node.
func (e Element) IsFunction() bool {
	return e.Group == GroupNodes && !e.IsFile()
}

// NodeID returns the element id of the function node with the given key.
func NodeID(key string) string { return nodePrefix + key }

// FileID returns the element id of the compound node for file.
func FileID(file string) string { return filePrefix + file }
