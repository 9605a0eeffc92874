package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/abdushakurob/getstuddy-backend/internal/data/repos"
	"github.com/abdushakurob/getstuddy-backend/internal/domain"
	"github.com/abdushakurob/getstuddy-backend/internal/pkg/logger"
)

const (
	searchTopK           = 5
	searchScoreThreshold = 0.3

	exactQueryBonus = 0.6
	titleWeight     = 0.4
	labelWeight     = 0.3
	summaryWeight   = 0.2
)

// SearchContext is the study context a search runs against. Non-empty
// fields are concatenated into one query string.
type SearchContext struct {
	Milestone    string
	CurrentTopic string
	UserQuery    string
	Keywords     []string
}

// RetrievalService ranks citation nodes against a study context and formats
// the winners for prompt injection.
type RetrievalService interface {
	Search(ctx context.Context, documentIDs []uuid.UUID, sc SearchContext) ([]domain.RankedNode, error)
	// RetrieveNodesByIDs skips scoring: the caller already knows which
	// nodes it wants. Matches come back with relevance 1.0.
	RetrieveNodesByIDs(ctx context.Context, nodeIDs []string, documentIDs []uuid.UUID) ([]domain.RankedNode, error)
	FormatForPrompt(nodes []domain.RankedNode) string
}

type retrievalService struct {
	db           *gorm.DB
	log          *logger.Logger
	documentRepo repos.DocumentRepo
}

func NewRetrievalService(db *gorm.DB, baseLog *logger.Logger, documentRepo repos.DocumentRepo) RetrievalService {
	return &retrievalService{
		db:           db,
		log:          baseLog.With("service", "RetrievalService"),
		documentRepo: documentRepo,
	}
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "were": {},
	"with": {}, "from": {}, "that": {}, "this": {}, "what": {}, "when": {},
	"where": {}, "which": {}, "how": {}, "why": {}, "who": {}, "can": {},
	"could": {}, "should": {}, "would": {}, "will": {}, "you": {}, "your": {},
	"about": {}, "into": {}, "over": {}, "under": {}, "does": {}, "did": {},
	"have": {}, "has": {}, "had": {}, "not": {}, "but": {}, "all": {},
}

// buildQuery concatenates the non-empty context fields, lowercased.
func buildQuery(sc SearchContext) string {
	parts := make([]string, 0, 3+len(sc.Keywords))
	for _, p := range []string{sc.Milestone, sc.CurrentTopic, sc.UserQuery} {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	for _, kw := range sc.Keywords {
		if s := strings.TrimSpace(kw); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// tokenizeQuery splits the query into scoring keywords, dropping short
// tokens and stop words.
func tokenizeQuery(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?()[]{}\"'")
		if len(f) <= 2 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// scoreNode runs the weighted linear combination: a fixed bonus for a full
// query hit in the combined text, plus per-keyword hits in title, label and
// summary, normalized by keyword count. Clamped to [0, 1].
func scoreNode(n domain.Node, query string, keywords []string) float64 {
	title := strings.ToLower(n.Title)
	label := strings.ToLower(n.Label)
	summary := strings.ToLower(n.Summary)

	var score float64
	if query != "" && strings.Contains(title+" "+label+" "+summary, query) {
		score += exactQueryBonus
	}
	if len(keywords) > 0 {
		per := 1.0 / float64(len(keywords))
		for _, kw := range keywords {
			if strings.Contains(title, kw) {
				score += titleWeight * per
			}
			if strings.Contains(label, kw) {
				score += labelWeight * per
			}
			if strings.Contains(summary, kw) {
				score += summaryWeight * per
			}
		}
	}
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

func (rt *retrievalService) Search(ctx context.Context, documentIDs []uuid.UUID, sc SearchContext) ([]domain.RankedNode, error) {
	query := buildQuery(sc)
	if query == "" {
		return nil, nil
	}
	keywords := tokenizeQuery(query)

	candidates, err := rt.candidatePool(ctx, documentIDs)
	if err != nil {
		return nil, err
	}

	ranked := make([]domain.RankedNode, 0, len(candidates))
	for _, c := range candidates {
		c.Score = scoreNode(c.Node, query, keywords)
		if c.Score >= searchScoreThreshold {
			ranked = append(ranked, c)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > searchTopK {
		ranked = ranked[:searchTopK]
	}

	rt.log.Debug("search ranked nodes", "query", query, "candidates", len(candidates), "returned", len(ranked))
	return ranked, nil
}

func (rt *retrievalService) RetrieveNodesByIDs(ctx context.Context, nodeIDs []string, documentIDs []uuid.UUID) ([]domain.RankedNode, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}
	wanted := make(map[string]struct{}, len(nodeIDs))
	for _, id := range nodeIDs {
		wanted[id] = struct{}{}
	}

	candidates, err := rt.candidatePool(ctx, documentIDs)
	if err != nil {
		return nil, err
	}

	var out []domain.RankedNode
	for _, c := range candidates {
		if _, ok := wanted[c.Node.ID]; ok {
			c.Score = 1.0
			out = append(out, c)
		}
	}
	return out, nil
}

// candidatePool flattens every node of every ready, mapped document into
// one request-scoped slice tagged with its source document.
func (rt *retrievalService) candidatePool(ctx context.Context, documentIDs []uuid.UUID) ([]domain.RankedNode, error) {
	docs, err := rt.documentRepo.GetReadyByIDs(ctx, nil, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("search: load documents: %w", err)
	}

	var pool []domain.RankedNode
	for _, doc := range docs {
		nodeMap, err := doc.DecodeNodeMap()
		if err != nil {
			rt.log.Warn("skipping document with corrupt node map", "document_id", doc.ID, "error", err)
			continue
		}
		if nodeMap == nil {
			continue
		}
		for _, n := range nodeMap.Nodes {
			pool = append(pool, domain.RankedNode{
				Node:         n,
				DocumentID:   doc.ID,
				DocumentName: doc.Name,
				DocumentType: doc.Type,
			})
		}
	}
	return pool, nil
}

// FormatForPrompt renders ranked nodes as a compact numbered block for
// downstream prompt injection. Pure projection, no side effects.
func (rt *retrievalService) FormatForPrompt(nodes []domain.RankedNode) string {
	var b strings.Builder
	for i, rn := range nodes {
		loc := formatLocation(rn.Node.Location)
		fmt.Fprintf(&b, "%d. %s", i+1, rn.DocumentName)
		if loc != "" {
			fmt.Fprintf(&b, " (%s)", loc)
		}
		fmt.Fprintf(&b, " — %s", rn.Node.DisplayName())
		if s := strings.TrimSpace(rn.Node.Summary); s != "" {
			fmt.Fprintf(&b, ": %s", s)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatLocation(loc domain.NodeLocation) string {
	switch loc.Modality {
	case domain.ModalityVideo, domain.ModalityAudio:
		return FormatTimestamp(loc.Start)
	case domain.ModalityPage:
		if len(loc.Pages) == 1 {
			return fmt.Sprintf("page %d", loc.Pages[0])
		}
		if len(loc.Pages) > 1 {
			return fmt.Sprintf("pages %d–%d", loc.Pages[0], loc.Pages[len(loc.Pages)-1])
		}
	}
	return ""
}

// FormatTimestamp renders seconds as H:MM:SS, or MM:SS under an hour.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
