package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestNodeLocationContains(t *testing.T) {
	paged := NodeLocation{Modality: ModalityPage, Pages: []int{3, 4}}
	if !paged.ContainsPage(3) || !paged.ContainsPage(4) {
		t.Fatalf("paged location should contain its pages")
	}
	if paged.ContainsPage(5) {
		t.Fatalf("paged location should not contain page 5")
	}
	if paged.ContainsTime(10) {
		t.Fatalf("paged location has no time extent")
	}

	timed := NodeLocation{Modality: ModalityVideo, Start: 60, End: 120}
	if !timed.ContainsTime(60) || !timed.ContainsTime(120) || !timed.ContainsTime(90) {
		t.Fatalf("time location should contain its closed interval")
	}
	if timed.ContainsTime(121) {
		t.Fatalf("time location should not contain 121")
	}
	if timed.ContainsPage(1) {
		t.Fatalf("time location has no pages")
	}
}

func TestDocumentNodeMapRoundTrip(t *testing.T) {
	m := &NodeMap{Nodes: []Node{
		{ID: "1", Title: "Intro", Location: NodeLocation{Modality: ModalityPage, Pages: []int{1}}},
	}}
	raw, err := m.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	doc := &Document{ID: uuid.New(), Type: DocumentTypePDF, NodeMap: raw}
	if !doc.HasNodeMap() {
		t.Fatalf("document should report a map")
	}
	decoded, err := doc.DecodeNodeMap()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.FindByID("1") == nil {
		t.Fatalf("decoded map missing node 1")
	}
	if decoded.FindByID("2") != nil {
		t.Fatalf("decoded map invented node 2")
	}
}

func TestDocumentWithoutMap(t *testing.T) {
	doc := &Document{ID: uuid.New(), Type: DocumentTypePDF}
	if doc.HasNodeMap() {
		t.Fatalf("empty column should not report a map")
	}
	m, err := doc.DecodeNodeMap()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m != nil {
		t.Fatalf("expected nil map, got %+v", m)
	}

	doc.NodeMap = []byte("null")
	if doc.HasNodeMap() {
		t.Fatalf("json null should not report a map")
	}
}

func TestDocumentModality(t *testing.T) {
	cases := []struct {
		docType string
		want    string
	}{
		{docType: DocumentTypePDF, want: "document"},
		{docType: DocumentTypeImage, want: "image"},
		{docType: DocumentTypeVideo, want: "video"},
		{docType: DocumentTypeAudio, want: "audio"},
	}
	for _, tc := range cases {
		d := &Document{Type: tc.docType}
		if got := d.Modality(); got != tc.want {
			t.Fatalf("Modality(%q)=%q, want %q", tc.docType, got, tc.want)
		}
	}
}

func TestNodeDisplayName(t *testing.T) {
	if got := (Node{ID: "n1", Title: "Intro", Label: "L"}).DisplayName(); got != "Intro" {
		t.Fatalf("title should win, got %q", got)
	}
	if got := (Node{ID: "n1", Label: "L"}).DisplayName(); got != "L" {
		t.Fatalf("label should win over id, got %q", got)
	}
	if got := (Node{ID: "n1"}).DisplayName(); got != "n1" {
		t.Fatalf("id is the last resort, got %q", got)
	}
}
