package importer

import (
	"dicom-import-api/models"
)

// NodeKind is the level of a node in the series tree.
type NodeKind string

const (
	NodePatient NodeKind = "patient"
	NodeStudy   NodeKind = "study"
	NodeSerie   NodeKind = "serie"
)

// Node is an entry of the series tree. Parent is -1 for patients.
type Node struct {
	Index    int      `json:"index"`
	Kind     NodeKind `json:"kind"`
	UID      string   `json:"uid"`
	Label    string   `json:"label"`
	Parent   int      `json:"parent"`
	Children []int    `json:"children"`
	Opened   bool     `json:"opened"`
}

// Tree is the patient/study/series hierarchy stored as an arena of nodes.
//
// At most one path from a patient down is open at a time: opening a node closes every other
// branch, closing a node closes its descendants.
type Tree struct {
	nodes []Node
	roots []int
	path  []int
}

// NewTree indexes the hierarchy of list.
func NewTree(list *models.PatientList) *Tree {
	t := &Tree{}
	if list == nil {
		return t
	}
	for _, p := range list.Patients {
		pi := t.add(NodePatient, models.ObjectID(p), p.PatientName, -1)
		t.roots = append(t.roots, pi)
		for _, st := range p.Studies {
			si := t.add(NodeStudy, models.ObjectID(st), st.StudyDescription, pi)
			for _, se := range st.Series {
				t.add(NodeSerie, models.ObjectID(se), se.SeriesDescription, si)
			}
		}
	}
	return t
}

func (t *Tree) add(kind NodeKind, uid, label string, parent int) int {
	i := len(t.nodes)
	t.nodes = append(t.nodes, Node{Index: i, Kind: kind, UID: uid, Label: label, Parent: parent})
	if parent >= 0 {
		t.nodes[parent].Children = append(t.nodes[parent].Children, i)
	}
	return i
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Roots returns the patient nodes.
func (t *Tree) Roots() []int {
	return append([]int(nil), t.roots...)
}

// Node returns the node at index i.
func (t *Tree) Node(i int) (Node, error) {
	if i < 0 || i >= len(t.nodes) {
		return Node{}, ErrNodeNotFound
	}
	n := t.nodes[i]
	n.Children = append([]int(nil), n.Children...)
	n.Opened = t.isOpen(i)
	return n, nil
}

// Nodes returns a copy of every node with its open state.
func (t *Tree) Nodes() []Node {
	nodes := make([]Node, len(t.nodes))
	for i := range t.nodes {
		nodes[i], _ = t.Node(i)
	}
	return nodes
}

// OpenPath returns the open nodes from the patient down.
func (t *Tree) OpenPath() []int {
	return append([]int(nil), t.path...)
}

// Open opens node i with all its ancestors and closes every other branch.
func (t *Tree) Open(i int) error {
	if i < 0 || i >= len(t.nodes) {
		return ErrNodeNotFound
	}
	var path []int
	for n := i; n >= 0; n = t.nodes[n].Parent {
		path = append(path, n)
	}
	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}
	t.path = path
	return nil
}

// Close closes node i and its descendants.
func (t *Tree) Close(i int) error {
	if i < 0 || i >= len(t.nodes) {
		return ErrNodeNotFound
	}
	for depth, n := range t.path {
		if n == i {
			t.path = t.path[:depth]
			break
		}
	}
	return nil
}

// Toggle closes node i if it is open and opens it otherwise. It returns the new state.
func (t *Tree) Toggle(i int) (bool, error) {
	if i < 0 || i >= len(t.nodes) {
		return false, ErrNodeNotFound
	}
	if t.isOpen(i) {
		return false, t.Close(i)
	}
	return true, t.Open(i)
}

func (t *Tree) isOpen(i int) bool {
	for _, n := range t.path {
		if n == i {
			return true
		}
	}
	return false
}
