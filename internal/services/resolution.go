package services

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/abdushakurob/getstuddy-backend/internal/data/repos"
	"github.com/abdushakurob/getstuddy-backend/internal/domain"
	"github.com/abdushakurob/getstuddy-backend/internal/ingestion"
	pkgerrors "github.com/abdushakurob/getstuddy-backend/internal/pkg/errors"
	"github.com/abdushakurob/getstuddy-backend/internal/pkg/logger"
	"github.com/abdushakurob/getstuddy-backend/internal/platform/gcp"
)

// MatchTier records which identification tier produced the node a
// resolution landed on, so callers and tests can observe fallbacks.
type MatchTier string

const (
	TierCache    MatchTier = "cache"
	TierRefold   MatchTier = "refold"
	TierExact    MatchTier = "exact"
	TierFuzzy    MatchTier = "fuzzy"
	TierFallback MatchTier = "fallback"
)

// ResolveOptions tune one resolution request.
type ResolveOptions struct {
	// Virtual overrides the mode default (virtual for av media, physical
	// otherwise).
	Virtual *bool
	// ActiveParentID is the node the conversation is currently anchored
	// to. Requests for it or its dotted children short-circuit to a refold
	// pointer instead of deriving a near-duplicate artifact.
	ActiveParentID string
}

// ResolveResult is a servable artifact plus how it was found.
type ResolveResult struct {
	URL      string
	NodeID   string
	Match    MatchTier
	Virtual  bool
	MimeType string
	CacheHit bool
}

// ResolutionConfig carries the injected working directory so temp-file
// placement is never ambient process state.
type ResolutionConfig struct {
	WorkDir string
}

// ResolutionService turns a (document, reference) pair into a servable URL,
// from cache when possible, by driving ingestion + derivation + upload when
// not.
type ResolutionService interface {
	Resolve(ctx context.Context, documentID uuid.UUID, referenceID string, opts ResolveOptions) (*ResolveResult, error)
}

type resolutionService struct {
	db           *gorm.DB
	log          *logger.Logger
	documentRepo repos.DocumentRepo
	cache        ArtifactCache
	ingestor     ingestion.Ingestor
	bucket       gcp.BucketService
	downloader   Downloader
	cfg          ResolutionConfig

	flight singleflight.Group
}

func NewResolutionService(
	db *gorm.DB,
	baseLog *logger.Logger,
	documentRepo repos.DocumentRepo,
	cache ArtifactCache,
	ingestor ingestion.Ingestor,
	bucket gcp.BucketService,
	downloader Downloader,
	cfg ResolutionConfig,
) ResolutionService {
	serviceLog := baseLog.With("service", "ResolutionService")
	if strings.TrimSpace(cfg.WorkDir) == "" {
		cfg.WorkDir = filepath.Join(os.TempDir(), "getstuddy-resolve")
	}
	return &resolutionService{
		db:           db,
		log:          serviceLog,
		documentRepo: documentRepo,
		cache:        cache,
		ingestor:     ingestor,
		bucket:       bucket,
		downloader:   downloader,
		cfg:          cfg,
	}
}

// Callers format references every which way; page annotations like
// "[PDF Page 4] intro" must not fork the cache key space.
var bracketPrefixRe = regexp.MustCompile(`^(\s*\[[^\]]*\]\s*)+`)

// NormalizeReferenceID strips bracketed prefixes and surrounding space so
// cache keys are canonical regardless of caller formatting.
func NormalizeReferenceID(referenceID string) string {
	return strings.TrimSpace(bracketPrefixRe.ReplaceAllString(referenceID, ""))
}

// isRefoldTarget reports whether id is parent itself or a dotted child of
// it. The "." separator check keeps "20" from counting as a child of "2".
func isRefoldTarget(id, parent string) bool {
	if parent == "" {
		return false
	}
	return id == parent || strings.HasPrefix(id, parent+".")
}

func (rs *resolutionService) Resolve(ctx context.Context, documentID uuid.UUID, referenceID string, opts ResolveOptions) (*ResolveResult, error) {
	normalized := NormalizeReferenceID(referenceID)
	if normalized == "" {
		return nil, fmt.Errorf("resolve: %w: empty reference id", pkgerrors.ErrInvalidArgument)
	}
	log := rs.log.With("document_id", documentID, "reference_id", normalized)

	// When the conversation already renders the parent node, its children
	// reuse that context instead of deriving near-duplicates. Checked
	// before everything else so a refold never touches the cache or the
	// derivation pipeline.
	if isRefoldTarget(normalized, opts.ActiveParentID) {
		log.Debug("refold short-circuit", "active_parent_id", opts.ActiveParentID)
		return &ResolveResult{
			URL:     "virtual:refold://" + opts.ActiveParentID,
			NodeID:  opts.ActiveParentID,
			Match:   TierRefold,
			Virtual: true,
		}, nil
	}

	if hit, err := rs.cache.Get(ctx, nil, documentID, normalized); err != nil {
		return nil, fmt.Errorf("resolve: cache lookup: %w", err)
	} else if hit != nil {
		log.Debug("cache hit", "url", hit.URL)
		return resultFromArtifact(hit, TierCache, true), nil
	}

	doc, err := rs.documentRepo.GetByID(ctx, nil, documentID)
	if err != nil {
		return nil, fmt.Errorf("resolve: load document %s: %w", documentID, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("resolve: document %s: %w", documentID, pkgerrors.ErrNotFound)
	}

	call := &resolveCall{}
	defer call.cleanup()

	nodeMap, err := rs.ensureNodeMap(ctx, doc, call)
	if err != nil {
		return nil, err
	}
	if len(nodeMap.Nodes) == 0 {
		return nil, pkgerrors.Staged(pkgerrors.StageIngest,
			fmt.Errorf("document %s: node map is empty: %w", doc.ID, pkgerrors.ErrAutoIngestFailed))
	}

	node, tier := identifyNode(nodeMap, normalized)
	if tier != TierExact {
		log.Debug("node identified via fallback tier", "tier", tier, "node_id", node.ID)
		// A fuzzy or total-fallback match may land on a node that is
		// already cached under its canonical ID.
		if hit, err := rs.cache.Get(ctx, nil, documentID, node.ID); err != nil {
			return nil, fmt.Errorf("resolve: cache lookup: %w", err)
		} else if hit != nil {
			return resultFromArtifact(hit, tier, true), nil
		}
	}

	virtual := doc.IsTimeBased()
	if opts.Virtual != nil {
		virtual = *opts.Virtual
	}

	key := fmt.Sprintf("%s|%s|%t", doc.ID, node.ID, virtual)
	v, err, _ := rs.flight.Do(key, func() (interface{}, error) {
		return rs.derive(ctx, doc, node, virtual, call)
	})
	if err != nil {
		return nil, err
	}
	artifact := v.(*domain.CitationArtifact)

	log.Info("resolved citation", "node_id", node.ID, "tier", tier, "virtual", artifact.IsVirtual)
	return resultFromArtifact(artifact, tier, false), nil
}

// resolveCall tracks per-request temp state: the memoized source download
// and the cleanups owed on exit, success or not.
type resolveCall struct {
	sourcePath string
	cleanups   []func()
}

func (c *resolveCall) onExit(fn func()) { c.cleanups = append(c.cleanups, fn) }

func (c *resolveCall) cleanup() {
	for i := len(c.cleanups) - 1; i >= 0; i-- {
		c.cleanups[i]()
	}
}

func (rs *resolutionService) ensureSource(ctx context.Context, doc *domain.Document, call *resolveCall) (string, error) {
	if call.sourcePath != "" {
		return call.sourcePath, nil
	}
	path, cleanup, err := rs.downloader.Fetch(ctx, doc.FileURL, rs.cfg.WorkDir)
	if err != nil {
		return "", pkgerrors.Staged(pkgerrors.StageDownload, err)
	}
	call.sourcePath = path
	call.onExit(cleanup)
	return path, nil
}

// ensureNodeMap loads the document's cached map, auto-healing by ingesting
// the source when the map is absent. Ingestion failure is the one
// unrecoverable condition here.
func (rs *resolutionService) ensureNodeMap(ctx context.Context, doc *domain.Document, call *resolveCall) (*domain.NodeMap, error) {
	nodeMap, err := doc.DecodeNodeMap()
	if err != nil {
		rs.log.Warn("cached node map is corrupt, re-ingesting", "document_id", doc.ID, "error", err)
	}
	if nodeMap != nil {
		return nodeMap, nil
	}
	return rs.reingest(ctx, doc, call)
}

func (rs *resolutionService) reingest(ctx context.Context, doc *domain.Document, call *resolveCall) (*domain.NodeMap, error) {
	src, err := rs.ensureSource(ctx, doc, call)
	if err != nil {
		return nil, err
	}

	if err := rs.ingestor.Ingest(ctx, src, doc.Modality(), ingestion.IngestOptions{DocumentID: doc.ID}); err != nil {
		return nil, pkgerrors.Staged(pkgerrors.StageIngest,
			fmt.Errorf("%w: %v", pkgerrors.ErrAutoIngestFailed, err))
	}
	nodeMap, err := rs.ingestor.GetMap(ctx, doc.ID)
	if err != nil {
		return nil, pkgerrors.Staged(pkgerrors.StageIngest,
			fmt.Errorf("%w: get map: %v", pkgerrors.ErrAutoIngestFailed, err))
	}

	raw, err := nodeMap.Encode()
	if err != nil {
		return nil, pkgerrors.Staged(pkgerrors.StageIngest,
			fmt.Errorf("%w: encode map: %v", pkgerrors.ErrAutoIngestFailed, err))
	}
	// Persisting the healed map is an optimization for future calls; this
	// resolution already holds the map in hand.
	if err := rs.documentRepo.UpdateNodeMap(ctx, nil, doc.ID, raw); err != nil {
		rs.log.Warn("failed to persist healed node map", "document_id", doc.ID, "error", err)
	} else {
		doc.NodeMap = raw
	}
	return nodeMap, nil
}

// identifyNode finds the node a reference points at: exact ID match, then
// case-insensitive substring match against labels and titles (upstream
// agents paraphrase), then the map's first node. Returning something
// navigable beats blocking the conversation.
func identifyNode(m *domain.NodeMap, normalizedID string) (*domain.Node, MatchTier) {
	if node := m.FindByID(normalizedID); node != nil {
		return node, TierExact
	}

	q := strings.ToLower(normalizedID)
	for i := range m.Nodes {
		n := &m.Nodes[i]
		if strings.Contains(strings.ToLower(n.Label), q) || strings.Contains(strings.ToLower(n.Title), q) {
			return n, TierFuzzy
		}
	}

	return &m.Nodes[0], TierFallback
}

func (rs *resolutionService) derive(ctx context.Context, doc *domain.Document, node *domain.Node, virtual bool, call *resolveCall) (*domain.CitationArtifact, error) {
	if virtual {
		return rs.deriveVirtual(ctx, doc, node, call)
	}
	return rs.derivePhysical(ctx, doc, node, call)
}

func (rs *resolutionService) deriveVirtual(ctx context.Context, doc *domain.Document, node *domain.Node, call *resolveCall) (*domain.CitationArtifact, error) {
	ev, err := rs.resolveEvidence(ctx, doc, node, ingestion.ResolveOptions{Virtual: true}, call)
	if err != nil {
		return nil, err
	}

	artifact := &domain.CitationArtifact{
		ID:         uuid.New(),
		DocumentID: doc.ID,
		NodeID:     node.ID,
		URL:        "virtual:" + ev.Address,
		MimeType:   doc.MimeType,
		IsVirtual:  true,
		Metadata: domain.ArtifactMetadata{
			Location:  ev.Location,
			SourceURL: doc.FileURL,
			Address:   ev.Address,
		}.Encode(),
	}
	return rs.cache.Put(ctx, nil, artifact)
}

func (rs *resolutionService) derivePhysical(ctx context.Context, doc *domain.Document, node *domain.Node, call *resolveCall) (*domain.CitationArtifact, error) {
	src, err := rs.ensureSource(ctx, doc, call)
	if err != nil {
		return nil, err
	}

	ev, err := rs.resolveEvidence(ctx, doc, node, ingestion.ResolveOptions{Virtual: false, SourcePath: src}, call)
	if err != nil {
		return nil, err
	}
	if ev.OutputPath == "" {
		return nil, pkgerrors.Staged(pkgerrors.StageDerive,
			fmt.Errorf("ingestor returned no output file for %s/%s", doc.ID, node.ID))
	}
	if ev.OutputPath != src {
		out := ev.OutputPath
		call.onExit(func() { _ = os.Remove(out) })
	}

	info, err := os.Stat(ev.OutputPath)
	if err != nil {
		return nil, pkgerrors.Staged(pkgerrors.StageDerive, fmt.Errorf("stat derived artifact: %w", err))
	}
	if info.Size() == 0 {
		return nil, pkgerrors.Staged(pkgerrors.StageDerive,
			fmt.Errorf("%w: %s/%s", pkgerrors.ErrZeroByteArtifact, doc.ID, node.ID))
	}

	mimeType := mime.TypeByExtension(filepath.Ext(ev.OutputPath))
	if mimeType == "" {
		mimeType = doc.MimeType
	}

	f, err := os.Open(ev.OutputPath)
	if err != nil {
		return nil, pkgerrors.Staged(pkgerrors.StageUpload, fmt.Errorf("open derived artifact: %w", err))
	}
	defer f.Close()

	key := fmt.Sprintf("citations/%s/%s%s", doc.ID, node.ID, filepath.Ext(ev.OutputPath))
	url, err := rs.bucket.Upload(ctx, key, f, mimeType)
	if err != nil {
		return nil, pkgerrors.Staged(pkgerrors.StageUpload, err)
	}

	artifact := &domain.CitationArtifact{
		ID:         uuid.New(),
		DocumentID: doc.ID,
		NodeID:     node.ID,
		URL:        url,
		MimeType:   mimeType,
		IsVirtual:  false,
		Metadata: domain.ArtifactMetadata{
			Location:  ev.Location,
			SourceURL: doc.FileURL,
			Address:   ev.Address,
		}.Encode(),
	}
	return rs.cache.Put(ctx, nil, artifact)
}

// resolveEvidence calls the ingestion backend, re-ingesting once when the
// backend has no state for this document (fresh process, map cached in db).
func (rs *resolutionService) resolveEvidence(ctx context.Context, doc *domain.Document, node *domain.Node, opts ingestion.ResolveOptions, call *resolveCall) (*ingestion.Evidence, error) {
	ev, err := rs.ingestor.Resolve(ctx, doc.ID, node.ID, opts)
	if err == nil {
		return ev, nil
	}
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		return nil, pkgerrors.Staged(pkgerrors.StageDerive, err)
	}

	if _, rErr := rs.reingest(ctx, doc, call); rErr != nil {
		return nil, rErr
	}
	if opts.SourcePath == "" && !opts.Virtual {
		opts.SourcePath = call.sourcePath
	}
	ev, err = rs.ingestor.Resolve(ctx, doc.ID, node.ID, opts)
	if err != nil {
		return nil, pkgerrors.Staged(pkgerrors.StageDerive, err)
	}
	return ev, nil
}

func resultFromArtifact(artifact *domain.CitationArtifact, tier MatchTier, cacheHit bool) *ResolveResult {
	return &ResolveResult{
		URL:      artifact.URL,
		NodeID:   artifact.NodeID,
		Match:    tier,
		Virtual:  artifact.IsVirtual,
		MimeType: artifact.MimeType,
		CacheHit: cacheHit,
	}
}
