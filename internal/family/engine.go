// Package family implements iterative patent family expansion: scored
// breadth-first growth around seed patents with admission control, without
// ever materializing the full citation graph.
package family

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mcdaddytn/patentgraph/internal/metrics"
	"github.com/mcdaddytn/patentgraph/internal/models"
)

// Graph resolves one-hop citation neighbors, normally via CachedGraph.
type Graph interface {
	Neighbors(ctx context.Context, patentID string) (*models.Citations, error)
}

// Resolver fetches bibliographic patent records for CPC-overlap scoring.
// An unresolvable patent returns (nil, nil).
type Resolver interface {
	Resolve(ctx context.Context, patentID string) (*models.PatentRecord, error)
}

// Config assembles an Engine's collaborators.
type Config struct {
	Graph    Graph
	Resolver Resolver
	Logger   *slog.Logger
	Metrics  *metrics.Collector
}

// Engine drives exploration traversal, scoring, and reclassification. It is
// stateless between calls; all exploration state lives on the aggregate.
type Engine struct {
	graph    Graph
	resolver Resolver
	logger   *slog.Logger
	metrics  *metrics.Collector
}

// NewEngine creates an expansion engine.
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		graph:    cfg.Graph,
		resolver: cfg.Resolver,
		logger:   logger,
		metrics:  cfg.Metrics,
	}
}

// Default admission thresholds applied when the caller does not supply any.
const (
	DefaultMembershipThreshold = 0.7
	DefaultExpansionThreshold  = 0.4
)

// Options tune a new exploration. Nil fields take defaults.
type Options struct {
	Weights             *models.Weights
	MembershipThreshold *float64
	ExpansionThreshold  *float64
	PortfolioBoost      float64
	PortfolioIDs        []string
}

// NewExploration creates an exploration from seed patents. Seeds are assumed
// true members: status member, score 1.0, generation 0.
func (e *Engine) NewExploration(name string, seedIDs []string, opts *Options) (*models.Exploration, error) {
	if len(seedIDs) == 0 {
		return nil, models.Validationf("exploration requires at least one seed patent")
	}
	if opts == nil {
		opts = &Options{}
	}

	weights := models.DefaultWeights()
	if opts.Weights != nil {
		weights = *opts.Weights
	}
	membership := DefaultMembershipThreshold
	if opts.MembershipThreshold != nil {
		membership = *opts.MembershipThreshold
	}
	expansion := DefaultExpansionThreshold
	if opts.ExpansionThreshold != nil {
		expansion = *opts.ExpansionThreshold
	}
	if err := checkThresholds(membership, expansion); err != nil {
		return nil, err
	}

	now := time.Now()
	exp := &models.Exploration{
		ID:                  uuid.New().String()[:8],
		Name:                name,
		SeedIDs:             append([]string(nil), seedIDs...),
		Weights:             weights,
		MembershipThreshold: membership,
		ExpansionThreshold:  expansion,
		PortfolioBoost:      opts.PortfolioBoost,
		PortfolioIDs:        append([]string(nil), opts.PortfolioIDs...),
		Patents:             make(map[string]*models.ExplorationPatent, len(seedIDs)),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	for _, id := range seedIDs {
		exp.Patents[id] = &models.ExplorationPatent{
			PatentID: id,
			Status:   models.StatusMember,
			Score:    1.0,
			Role:     models.RoleSeed,
			Seed:     true,
		}
	}
	return exp, nil
}

// ExpandParams override exploration parameters for one expansion or rescore
// call. Nil fields keep the exploration's stored values.
type ExpandParams struct {
	Direction           models.Direction
	Weights             *models.Weights
	MembershipThreshold *float64
	ExpansionThreshold  *float64
	PortfolioBoost      *float64
	// MaxCandidates caps newly admitted candidates per call. Overflow is
	// ranked by score and the lowest-scoring excess dropped outright, not
	// deferred. Zero means unlimited.
	MaxCandidates int
}

// ExpandGeneration performs one generation of scored breadth-first growth:
// fetch the citation neighbors of every traversal-eligible patent, admit the
// newly seen ones as candidates, score and reclassify every non-member row.
// A lookup failure skips the single patent and is reported in the summary.
func (e *Engine) ExpandGeneration(ctx context.Context, exp *models.Exploration, params ExpandParams) (*models.GenerationSummary, error) {
	if err := applyParams(exp, params); err != nil {
		return nil, err
	}
	direction := params.Direction
	if direction == "" {
		direction = models.DirectionBoth
	}

	run := e.newRun(exp)
	gen := exp.Generation + 1

	discovered := make(map[string]models.DiscoveryRole)
	for _, id := range run.frontier() {
		citations, err := e.graph.Neighbors(ctx, id)
		if err != nil {
			e.logger.Warn("citation lookup failed, skipping patent",
				"exploration", exp.ID, "patent_id", id, "error", err)
			run.skip(id)
			continue
		}
		if direction != models.DirectionBackward {
			for _, fwd := range citations.ForwardIDs {
				markDiscovered(exp, discovered, fwd, models.RoleDescendant)
			}
		}
		if direction != models.DirectionForward {
			for _, bwd := range citations.BackwardIDs {
				markDiscovered(exp, discovered, bwd, models.RoleAncestor)
			}
		}
	}

	if err := run.admitAndReclassify(ctx, discovered, gen, params.MaxCandidates); err != nil {
		return nil, err
	}

	exp.Generation = gen
	exp.UpdatedAt = time.Now()
	run.summary.Generation = gen
	return &run.summary, nil
}

// ExpandSiblings traverses upward to each member's parents and admits the
// parents' other children. Admission control works exactly as in
// ExpandGeneration.
func (e *Engine) ExpandSiblings(ctx context.Context, exp *models.Exploration, params ExpandParams) (*models.GenerationSummary, error) {
	if err := applyParams(exp, params); err != nil {
		return nil, err
	}
	direction := params.Direction
	if direction == "" {
		direction = models.DirectionBackward
	}

	run := e.newRun(exp)
	gen := exp.Generation + 1

	members := exp.ByStatus(models.StatusMember)
	sort.Strings(members)
	memberSet := make(map[string]struct{}, len(members))
	for _, id := range members {
		memberSet[id] = struct{}{}
	}

	parents := make(map[string]struct{})
	for _, id := range members {
		citations, err := e.graph.Neighbors(ctx, id)
		if err != nil {
			e.logger.Warn("parent lookup failed, skipping patent",
				"exploration", exp.ID, "patent_id", id, "error", err)
			run.skip(id)
			continue
		}
		for _, p := range citations.InDirection(direction) {
			parents[p] = struct{}{}
		}
	}

	// Siblings sit on the opposite edge of the parent.
	childDirection := models.DirectionForward
	if direction == models.DirectionForward {
		childDirection = models.DirectionBackward
	}

	discovered := make(map[string]models.DiscoveryRole)
	for parent := range parents {
		citations, err := e.graph.Neighbors(ctx, parent)
		if err != nil {
			e.logger.Warn("sibling lookup failed, skipping parent",
				"exploration", exp.ID, "patent_id", parent, "error", err)
			run.skip(parent)
			continue
		}
		for _, child := range citations.InDirection(childDirection) {
			if _, isMember := memberSet[child]; isMember {
				continue
			}
			markDiscovered(exp, discovered, child, models.RoleSibling)
		}
	}

	if err := run.admitAndReclassify(ctx, discovered, gen, params.MaxCandidates); err != nil {
		return nil, err
	}

	exp.Generation = gen
	exp.UpdatedAt = time.Now()
	run.summary.Generation = gen
	return &run.summary, nil
}

// Rescore re-applies the scoring formula and threshold reclassification to
// every discovered patent using the exploration's current parameters, with no
// new traversal. Seeds stay pinned as members at score 1.0. Manual overrides
// are cleared: an explicit rescore supersedes them.
func (e *Engine) Rescore(ctx context.Context, exp *models.Exploration, params ExpandParams) (*models.GenerationSummary, error) {
	if err := applyParams(exp, params); err != nil {
		return nil, err
	}

	run := e.newRun(exp)
	for _, id := range sortedIDs(exp.Patents) {
		p := exp.Patents[id]
		if p.Seed {
			p.Status = models.StatusMember
			p.Score = 1.0
			p.Overridden = false
			continue
		}
		score, err := run.score(ctx, id, p.Generation)
		if err != nil {
			e.logger.Warn("rescore lookup failed, keeping previous score",
				"exploration", exp.ID, "patent_id", id, "error", err)
			run.skip(id)
			continue
		}
		p.Score = score
		p.Overridden = false
		run.reclassify(p)
	}

	exp.UpdatedAt = time.Now()
	run.summary.Generation = exp.Generation
	return &run.summary, nil
}

// StatusUpdate is one manual classification override.
type StatusUpdate struct {
	PatentID string              `json:"patent_id"`
	Status   models.PatentStatus `json:"status"`
}

// UpdateStatuses applies manual overrides, bypassing scoring. The whole batch
// is validated before any row is touched.
func (e *Engine) UpdateStatuses(exp *models.Exploration, updates []StatusUpdate) error {
	for _, u := range updates {
		if !models.ValidPatentStatus(u.Status) {
			return models.Validationf("invalid status %q for patent %s", u.Status, u.PatentID)
		}
		if _, ok := exp.Patents[u.PatentID]; !ok {
			return models.Validationf("patent %s not part of exploration %s", u.PatentID, exp.ID)
		}
	}
	for _, u := range updates {
		p := exp.Patents[u.PatentID]
		p.Status = u.Status
		p.Overridden = true
	}
	exp.UpdatedAt = time.Now()
	return nil
}

func checkThresholds(membership, expansion float64) error {
	if membership < expansion {
		return models.Validationf("membership threshold %.2f below expansion threshold %.2f", membership, expansion)
	}
	return nil
}

func applyParams(exp *models.Exploration, params ExpandParams) error {
	membership := exp.MembershipThreshold
	expansion := exp.ExpansionThreshold
	if params.MembershipThreshold != nil {
		membership = *params.MembershipThreshold
	}
	if params.ExpansionThreshold != nil {
		expansion = *params.ExpansionThreshold
	}
	if err := checkThresholds(membership, expansion); err != nil {
		return err
	}
	exp.MembershipThreshold = membership
	exp.ExpansionThreshold = expansion
	if params.Weights != nil {
		exp.Weights = *params.Weights
	}
	if params.PortfolioBoost != nil {
		exp.PortfolioBoost = *params.PortfolioBoost
	}
	return nil
}

func markDiscovered(exp *models.Exploration, discovered map[string]models.DiscoveryRole, id string, role models.DiscoveryRole) {
	if _, known := exp.Patents[id]; known {
		return
	}
	if _, seen := discovered[id]; seen {
		return
	}
	discovered[id] = role
}

// run carries the per-call scratch state of one expansion or rescore.
type run struct {
	engine  *Engine
	exp     *models.Exploration
	weights NormalizedWeights
	records map[string]*models.PatentRecord
	misses  map[string]error
	seedCPC map[string]struct{}
	summary models.GenerationSummary
}

func (e *Engine) newRun(exp *models.Exploration) *run {
	return &run{
		engine:  e,
		exp:     exp,
		weights: Normalize(exp.Weights),
		records: make(map[string]*models.PatentRecord),
		misses:  make(map[string]error),
	}
}

// frontier returns the traversal-eligible patents: members plus candidates at
// or above the expansion threshold, in deterministic order.
func (r *run) frontier() []string {
	var ids []string
	for id, p := range r.exp.Patents {
		switch p.Status {
		case models.StatusMember:
			ids = append(ids, id)
		case models.StatusCandidate:
			if p.Score >= r.exp.ExpansionThreshold {
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

func (r *run) skip(id string) {
	r.summary.Skipped++
	r.summary.SkippedIDs = append(r.summary.SkippedIDs, id)
}

// admitAndReclassify scores the newly discovered patents, applies the
// per-call admission cap, then re-scores pre-existing candidates against the
// current parameters. Members and excluded rows are left alone; automatic
// expansion only moves patents forward.
func (r *run) admitAndReclassify(ctx context.Context, discovered map[string]models.DiscoveryRole, gen, maxCandidates int) error {
	type scored struct {
		id    string
		role  models.DiscoveryRole
		score float64
	}

	var admitted []scored
	for _, id := range sortedRoleIDs(discovered) {
		score, err := r.score(ctx, id, gen)
		if err != nil {
			r.engine.logger.Warn("record lookup failed, patent stays unseen",
				"exploration", r.exp.ID, "patent_id", id, "error", err)
			r.skip(id)
			continue
		}
		admitted = append(admitted, scored{id: id, role: discovered[id], score: score})
	}

	if maxCandidates > 0 && len(admitted) > maxCandidates {
		sort.SliceStable(admitted, func(i, j int) bool {
			return admitted[i].score > admitted[j].score
		})
		r.summary.DroppedOverflow = len(admitted) - maxCandidates
		admitted = admitted[:maxCandidates]
	}

	for _, s := range admitted {
		p := &models.ExplorationPatent{
			PatentID:   s.id,
			Score:      s.score,
			Generation: gen,
			Role:       s.role,
		}
		r.reclassify(p)
		r.exp.Patents[s.id] = p
		r.summary.Discovered++
	}

	// New citation paths and parameter changes can move pre-existing
	// candidates across the thresholds.
	for _, id := range sortedIDs(r.exp.Patents) {
		p := r.exp.Patents[id]
		if p.Status != models.StatusCandidate || p.Overridden || p.Generation == gen {
			continue
		}
		score, err := r.score(ctx, id, p.Generation)
		if err != nil {
			r.skip(id)
			continue
		}
		p.Score = score
		r.reclassify(p)
	}
	return nil
}

// reclassify sets the row's status from its score and counts the outcome.
func (r *run) reclassify(p *models.ExplorationPatent) {
	status := Classify(p.Score, r.exp.MembershipThreshold, r.exp.ExpansionThreshold)
	switch status {
	case models.StatusMember:
		if p.Status != models.StatusMember {
			r.summary.Promoted++
		}
	case models.StatusCandidate:
		r.summary.Candidates++
	case models.StatusExcluded:
		if p.Status != models.StatusExcluded {
			r.summary.Excluded++
		}
	}
	p.Status = status
}

// score computes the composite admission score for one patent.
func (r *run) score(ctx context.Context, id string, generation int) (float64, error) {
	record, err := r.resolve(ctx, id)
	if err != nil {
		return 0, err
	}
	var codes []string
	if record != nil {
		codes = record.CPCCodes
	}
	boost := 0.0
	if r.exp.PortfolioBoost > 0 && r.exp.InPortfolio(id) {
		boost = r.exp.PortfolioBoost
	}
	return CompositeScore(
		r.weights,
		CitationProximity(generation),
		CPCOverlap(codes, r.seedCodes(ctx)),
		boost,
	), nil
}

// resolve memoizes record lookups for the duration of one call. Unresolvable
// patents cache as nil and contribute zero CPC overlap.
func (r *run) resolve(ctx context.Context, id string) (*models.PatentRecord, error) {
	if err, failed := r.misses[id]; failed {
		return nil, err
	}
	if record, ok := r.records[id]; ok {
		return record, nil
	}

	var start time.Time
	if r.engine.metrics != nil {
		start = time.Now()
	}
	record, err := r.engine.resolver.Resolve(ctx, id)
	if r.engine.metrics != nil {
		r.engine.metrics.Record(metrics.OpPatentResolve, time.Since(start))
	}
	if err != nil {
		lookupErr := &models.LookupError{PatentID: id, Err: err}
		r.misses[id] = lookupErr
		return nil, lookupErr
	}
	r.records[id] = record
	return record, nil
}

// seedCodes builds the union of the seed patents' CPC codes once per call.
// A seed that cannot be resolved simply contributes no codes.
func (r *run) seedCodes(ctx context.Context) map[string]struct{} {
	if r.seedCPC != nil {
		return r.seedCPC
	}
	codes := make(map[string]struct{})
	for _, id := range r.exp.SeedIDs {
		record, err := r.resolve(ctx, id)
		if err != nil {
			r.engine.logger.Warn("seed record unresolved",
				"exploration", r.exp.ID, "patent_id", id, "error", err)
			continue
		}
		if record == nil {
			continue
		}
		for _, c := range record.CPCCodes {
			codes[c] = struct{}{}
		}
	}
	r.seedCPC = codes
	return codes
}

func sortedIDs(m map[string]*models.ExplorationPatent) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedRoleIDs(m map[string]models.DiscoveryRole) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
