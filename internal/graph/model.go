package graph

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dusk-indust/chartographer/internal/callgraph"
)

// EdgeIdentity selects how edge ids are derived.
type EdgeIdentity string

const (
	// EdgeIdentityPair keys an edge by its ordered endpoint pair. A second
	// traversal reaching the same caller/callee pair adds nothing.
	EdgeIdentityPair EdgeIdentity = "pair"
	// EdgeIdentityLabeled adds the sequence label to the id, so the same
	// pair reached along different paths yields distinct edges.
	EdgeIdentityLabeled EdgeIdentity = "labeled"
)

// StateVersion is written into every State produced by Model.State.
// Version 1 recorded expanded keys without a direction.
const StateVersion = 2

// Options configures a Model.
type Options struct {
	WorkspaceRoot   string
	FileLabelFormat string
	EdgeIdentity    EdgeIdentity
}

// State is the persisted form of a Model.
type State struct {
	Version  int       `json:"version"`
	Elements []Element `json:"elements"`
	// Expanded lists every node expanded while the model was built as
	// "<direction>:<canonical key>".
	Expanded []string `json:"expanded,omitempty"`
}

// Counts summarizes a Model.
type Counts struct {
	Functions int `json:"functions"`
	Files     int `json:"files"`
	Edges     int `json:"edges"`
}

// Model is the deduplicated node/edge set of one visualization session.
// Records are never removed; inserting an existing id is a no-op. Safe for
// concurrent use.
type Model struct {
	opts Options
	root string

	mu       sync.RWMutex
	order    []string
	elems    map[string]Element
	expanded map[callgraph.Direction]map[string]struct{}
}

// NewModel returns an empty model.
func NewModel(opts Options) *Model {
	if opts.EdgeIdentity == "" {
		opts.EdgeIdentity = EdgeIdentityPair
	}
	if opts.FileLabelFormat == "" {
		opts.FileLabelFormat = DefaultFileLabelFormat
	}
	root := ""
	if opts.WorkspaceRoot != "" {
		root = filepath.Clean(callgraph.URIToPath(opts.WorkspaceRoot))
	}
	return &Model{
		opts:     opts,
		root:     root,
		elems:    make(map[string]Element),
		expanded: make(map[callgraph.Direction]map[string]struct{}),
	}
}

// Apply converts edge into element records and inserts them. It returns only
// the records that were not present before, file nodes first, then function
// nodes, then the edge.
func (m *Model) Apply(edge callgraph.CallEdge) []Element {
	caller, callee := edge.Caller(), edge.Callee()
	callerKey, callerFile := m.nodeKey(caller)
	calleeKey, calleeFile := m.nodeKey(callee)

	label := edge.Label
	if label == "" {
		label = EmptyEdgeLabel
	}
	edgeID := edgePrefix + callerKey + ":" + calleeKey
	if m.opts.EdgeIdentity == EdgeIdentityLabeled {
		edgeID += "#" + label
	}

	candidates := []Element{
		m.fileElement(caller, callerFile),
		m.fileElement(callee, calleeFile),
		m.functionElement(caller, callerKey, callerFile),
		m.functionElement(callee, calleeKey, calleeFile),
		{
			Group: GroupEdges,
			Data: ElementData{
				ID:        edgeID,
				Label:     label,
				Source:    NodeID(callerKey),
				Target:    NodeID(calleeKey),
				Direction: string(edge.Direction),
			},
		},
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.markLocked(edge.Direction, edge.From.Key())
	return m.insertLocked(candidates)
}

// Add inserts elements, skipping ids already present, and returns the ones
// that were added.
func (m *Model) Add(elems ...Element) []Element {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(elems)
}

func (m *Model) insertLocked(elems []Element) []Element {
	var added []Element
	for _, e := range elems {
		id := e.ID()
		if id == "" {
			continue
		}
		if _, ok := m.elems[id]; ok {
			continue
		}
		m.elems[id] = e
		m.order = append(m.order, id)
		added = append(added, e)
	}
	return added
}

// Get returns the element with id.
func (m *Model) Get(id string) (Element, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.elems[id]
	return e, ok
}

// Elements returns every element in insertion order.
func (m *Model) Elements() []Element {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Element, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.elems[id])
	}
	return out
}

// Len returns the number of elements.
func (m *Model) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Counts tallies elements by type.
func (m *Model) Counts() Counts {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var c Counts
	for _, e := range m.elems {
		switch {
		case e.IsEdge():
			c.Edges++
		case e.IsFile():
			c.Files++
		default:
			c.Functions++
		}
	}
	return c
}

// MarkExpanded records keys as expanded in dir without adding elements.
// Both marks the keys in each direction.
func (m *Model) MarkExpanded(dir callgraph.Direction, keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		m.markLocked(dir, k)
	}
}

func (m *Model) markLocked(dir callgraph.Direction, key string) {
	dirs := []callgraph.Direction{dir}
	if dir == callgraph.Both {
		dirs = []callgraph.Direction{callgraph.Outgoing, callgraph.Incoming}
	}
	for _, d := range dirs {
		set, ok := m.expanded[d]
		if !ok {
			set = make(map[string]struct{})
			m.expanded[d] = set
		}
		set[key] = struct{}{}
	}
}

// SeenKeys returns the canonical keys of every node expanded in dir, sorted.
// Traversals in dir seed their ledger with it so they never re-emit known
// edges.
func (m *Model) SeenKeys(dir callgraph.Direction) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.expanded[dir])
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *Model) expandedEntriesLocked() []string {
	var out []string
	for dir, set := range m.expanded {
		for k := range set {
			out = append(out, string(dir)+":"+k)
		}
	}
	sort.Strings(out)
	return out
}

// parseExpanded splits a State.Expanded entry. Entries without a known
// direction prefix (version 1) apply to both directions.
func parseExpanded(entry string) (callgraph.Direction, string) {
	if d, key, ok := strings.Cut(entry, ":"); ok {
		switch dir := callgraph.Direction(d); dir {
		case callgraph.Outgoing, callgraph.Incoming:
			return dir, key
		}
	}
	return callgraph.Both, entry
}

// State snapshots the model for persistence.
func (m *Model) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	elems := make([]Element, 0, len(m.order))
	for _, id := range m.order {
		elems = append(elems, m.elems[id])
	}
	return State{
		Version:  StateVersion,
		Elements: elems,
		Expanded: m.expandedEntriesLocked(),
	}
}

// Restore inserts the elements of st and its expanded keys. States written
// without Expanded treat every function node as expanded in both
// directions. It returns the elements that were added.
func (m *Model) Restore(st State) []Element {
	m.mu.Lock()
	defer m.mu.Unlock()
	added := m.insertLocked(st.Elements)
	if len(st.Expanded) == 0 {
		for _, e := range st.Elements {
			if e.IsFunction() && e.Data.URI != "" {
				m.markLocked(callgraph.Both, callgraph.Key(e.Data.URI, e.Data.Label, callgraph.Position{
					Line:      e.Data.Line,
					Character: e.Data.Character,
				}))
			}
		}
		return added
	}
	for _, entry := range st.Expanded {
		m.markLocked(parseExpanded(entry))
	}
	return added
}

// Locate returns the source location of a function node.
func (m *Model) Locate(id string) (Location, error) {
	e, ok := m.Get(id)
	if !ok {
		return Location{}, fmt.Errorf("locate %s: %w", id, ErrElementNotFound)
	}
	if e.IsEdge() {
		return Location{}, fmt.Errorf("locate %s: not a node", id)
	}
	return Location{
		URI:      e.Data.URI,
		Position: callgraph.Position{Line: e.Data.Line, Character: e.Data.Character},
	}, nil
}

// Location is a point in a source file.
type Location struct {
	URI      string             `json:"uri"`
	Position callgraph.Position `json:"position"`
}

// DisplayPath returns the path used for ids and file labels: relative to the
// workspace root when the file is inside it, otherwise the full path.
func (m *Model) DisplayPath(uri string) string {
	p := callgraph.URIToPath(uri)
	if m.root != "" {
		if rel, err := filepath.Rel(m.root, p); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(p)
}

func (m *Model) nodeKey(s callgraph.SymbolNode) (key, file string) {
	file = m.DisplayPath(s.URI)
	return callgraph.Key(file, s.Name, s.Range.Start), file
}

func (m *Model) fileElement(s callgraph.SymbolNode, file string) Element {
	return Element{
		Group: GroupNodes,
		Data: ElementData{
			ID:    FileID(file),
			Label: FormatFileLabel(m.opts.FileLabelFormat, file),
			URI:   s.URI,
		},
		Classes: ClassCompound,
	}
}

func (m *Model) functionElement(s callgraph.SymbolNode, key, file string) Element {
	return Element{
		Group: GroupNodes,
		Data: ElementData{
			ID:        NodeID(key),
			Label:     s.Name,
			Parent:    FileID(file),
			URI:       s.URI,
			Line:      s.Range.Start.Line,
			Character: s.Range.Start.Character,
			Kind:      s.Kind.String(),
		},
	}
}
