package domain

import (
	"encoding/json"
	"strings"
)

const (
	ModalityPage  = "page"
	ModalityVideo = "video"
	ModalityAudio = "audio"
)

// NodeLocation is a discriminated union over the sub-region a node covers:
// a page set for paged documents, a [Start, End] second range for av media.
type NodeLocation struct {
	Modality string  `json:"modality"`
	Pages    []int   `json:"pages,omitempty"`
	Start    float64 `json:"start,omitempty"`
	End      float64 `json:"end,omitempty"`
}

// ContainsPage reports whether the location covers the given 1-based page.
func (l NodeLocation) ContainsPage(page int) bool {
	if l.Modality != ModalityPage {
		return false
	}
	for _, p := range l.Pages {
		if p == page {
			return true
		}
	}
	return false
}

// ContainsTime reports whether seconds falls inside [Start, End].
func (l NodeLocation) ContainsTime(seconds float64) bool {
	if l.Modality != ModalityVideo && l.Modality != ModalityAudio {
		return false
	}
	return seconds >= l.Start && seconds <= l.End
}

// Node is one entry of a document's node map. Produced once at ingestion
// time; immutable afterwards.
type Node struct {
	ID       string       `json:"id"`
	Label    string       `json:"label,omitempty"`
	Title    string       `json:"title,omitempty"`
	Summary  string       `json:"summary,omitempty"`
	Location NodeLocation `json:"location"`
}

// DisplayName prefers the title, then the label, then the raw ID.
func (n Node) DisplayName() string {
	if strings.TrimSpace(n.Title) != "" {
		return n.Title
	}
	if strings.TrimSpace(n.Label) != "" {
		return n.Label
	}
	return n.ID
}

// NodeMap is the ordered node set ingestion builds for one document.
type NodeMap struct {
	Nodes []Node `json:"nodes"`
}

// Encode marshals the map for storage on the document row.
func (m *NodeMap) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// FindByID returns the node with the given ID, or nil.
func (m *NodeMap) FindByID(id string) *Node {
	for i := range m.Nodes {
		if m.Nodes[i].ID == id {
			return &m.Nodes[i]
		}
	}
	return nil
}
