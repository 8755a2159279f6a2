// Package resolve merges normalized records into canonical entities.
//
// A run groups incoming records into blocks: records and stored entities
// that share a blocking key or a source ID land in the same block, so every
// stored entity is touched by at most one block per run. Within a block,
// records are matched pairwise and clustered with a disjoint set; each
// cluster becomes one entity whose fields are resolved by source authority.
// Blocks commit atomically and independently, which makes runs safe to
// parallelize and to repeat.
package resolve

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/agentstation/utc"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentstation/ecomap/pkg/entity"
	"github.com/agentstation/ecomap/pkg/errors"
	"github.com/agentstation/ecomap/pkg/logging"
	"github.com/agentstation/ecomap/pkg/metrics"
	"github.com/agentstation/ecomap/pkg/store"
)

// Namespace seeds the deterministic IDs of newly created entities.
var Namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/agentstation/ecomap/entity"))

var tracer = otel.Tracer("github.com/agentstation/ecomap/pkg/resolve")

// EntityID returns the ID a new entity founded by sourceID receives.
func EntityID(sourceID string) string {
	return uuid.NewSHA1(Namespace, []byte(sourceID)).String()
}

// Resolver merges record batches into the store.
type Resolver struct {
	store  store.Store
	opts   *options
	merger *merger
}

// New creates a Resolver over s.
func New(s store.Store, opts ...Option) (*Resolver, error) {
	if s == nil {
		return nil, &errors.ValidationError{Field: "store", Message: "cannot be nil"}
	}
	o, err := defaultOptions().apply(opts...)
	if err != nil {
		return nil, err
	}
	return &Resolver{
		store: s,
		opts:  o,
		merger: &merger{
			authorities: o.authorities,
			tolerance:   o.tolerance,
			tracker:     o.tracker,
		},
	}, nil
}

// Result summarizes a resolution run.
type Result struct {
	Created   []string
	Updated   []string
	Unchanged []string
	Absorbed  []string
	// Skipped lists source IDs of low-confidence records owned by archived entities.
	Skipped []string
	// Failed maps the entity (or, for new clusters, source) IDs of blocks that
	// could not be committed to the error.
	Failed    map[string]error
	Conflicts []*errors.ResolutionConflict
	Blocks    int

	mu sync.Mutex
}

func newResult() *Result {
	return &Result{Failed: make(map[string]error)}
}

func (r *Result) add(o *outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Created = append(r.Created, o.created...)
	r.Updated = append(r.Updated, o.updated...)
	r.Unchanged = append(r.Unchanged, o.unchanged...)
	r.Absorbed = append(r.Absorbed, o.absorbed...)
	r.Skipped = append(r.Skipped, o.skipped...)
	r.Conflicts = append(r.Conflicts, o.conflicts...)
}

func (r *Result) fail(ids []string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.Failed[id] = err
	}
}

func (r *Result) sort() {
	for _, ids := range [][]string{r.Created, r.Updated, r.Unchanged, r.Absorbed, r.Skipped} {
		slices.Sort(ids)
	}
	sort.SliceStable(r.Conflicts, func(i, j int) bool {
		return r.Conflicts[i].EntityID < r.Conflicts[j].EntityID
	})
}

// Changed reports whether the run wrote anything.
func (r *Result) Changed() bool {
	return len(r.Created)+len(r.Updated)+len(r.Absorbed) > 0
}

// outcome is the result of one committed block.
type outcome struct {
	created, updated, unchanged, absorbed, skipped []string
	conflicts                                      []*errors.ResolutionConflict
}

// block is a set of batch records that may touch the same stored entities.
type block struct {
	key     string
	records []entity.NormalizedRecord
}

// Resolve merges records into the store. Per-block failures are reported in
// the result; only store unavailability or cancellation returns an error.
func (r *Resolver) Resolve(ctx context.Context, records []entity.NormalizedRecord) (*Result, error) {
	ctx = logging.WithOperation(ctx, "resolve")
	ctx, span := tracer.Start(ctx, "resolve.Resolve")
	defer span.End()

	log := logging.Ctx(ctx)
	start := time.Now()
	result := newResult()

	recs := latestBySource(records)
	blocks, skipped, err := r.partition(ctx, recs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	result.Skipped = append(result.Skipped, skipped...)
	result.Blocks = len(blocks)
	span.SetAttributes(attribute.Int("records", len(recs)), attribute.Int("blocks", len(blocks)))

	p := pool.New().
		WithMaxGoroutines(r.opts.concurrency).
		WithContext(ctx).
		WithCancelOnError()
	for _, b := range blocks {
		p.Go(func(ctx context.Context) error {
			if ctx.Err() != nil {
				return nil
			}
			return r.runBlock(ctx, b, result)
		})
	}
	err = p.Wait()
	result.sort()
	r.observe(result)

	log.Info().
		Int("records", len(recs)).
		Int("blocks", len(blocks)).
		Int("created", len(result.Created)).
		Int("updated", len(result.Updated)).
		Int("unchanged", len(result.Unchanged)).
		Int("absorbed", len(result.Absorbed)).
		Int("skipped", len(result.Skipped)).
		Int("failed", len(result.Failed)).
		Int("conflicts", len(result.Conflicts)).
		Dur("duration", time.Since(start)).
		Msg("Resolution complete")

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, errors.Join(errors.ErrCanceled, ctxErr)
	}
	return result, nil
}

// runBlock resolves one block, retrying the whole read-merge-write on
// version conflicts. Only store unavailability is returned.
func (r *Resolver) runBlock(ctx context.Context, b block, result *Result) error {
	ctx = logging.WithBlock(ctx, b.key)
	ctx, span := tracer.Start(ctx, "resolve.block", trace.WithAttributes(
		attribute.String("block", b.key),
		attribute.Int("records", len(b.records)),
	))
	defer span.End()

	// A started block runs to completion even if the run is canceled.
	work := context.WithoutCancel(ctx)
	log := logging.Ctx(ctx)

	var lastErr error
	for attempt := 1; attempt <= r.opts.maxAttempts; attempt++ {
		o, ids, err := r.resolveBlock(work, b.records)
		if err == nil {
			result.add(o)
			for _, c := range o.conflicts {
				log.Warn().
					Str("entity_id", c.EntityID).
					Str("field", c.Field).
					Strs("candidates", c.Candidates).
					Str("chosen", c.Chosen).
					Msg(c.Reason)
			}
			return nil
		}
		if !errors.IsWriteConflict(err) {
			if errors.IsStoreUnavailable(err) {
				span.RecordError(err)
				return err
			}
			log.Error().Err(err).Msg("Block failed")
			result.fail(ids, errors.WrapResource("resolve", "block", b.key, err))
			return nil
		}

		lastErr = err
		metrics.WriteRetries.WithLabelValues("resolve").Inc()
		log.Debug().Err(err).Int("attempt", attempt).Msg("Block write conflict, retrying")
		if attempt < r.opts.maxAttempts {
			if err := store.Backoff(work, attempt); err != nil {
				return err
			}
		}
		if attempt == r.opts.maxAttempts {
			var conflict *errors.StoreWriteConflict
			if errors.As(lastErr, &conflict) {
				exhausted := *conflict
				exhausted.Attempts = attempt
				lastErr = &exhausted
			}
			log.Error().Err(lastErr).Msg("Block abandoned after repeated write conflicts")
			result.fail(ids, lastErr)
		}
	}
	return nil
}

// item is one member record in a block, stored or incoming.
type item struct {
	rec   entity.NormalizedRecord
	owner string // stored entity ID, "" for new records
	fresh bool   // added or replaced by this run
}

// resolveBlock performs one read-merge-write of a block. It returns the IDs
// to blame when the block fails.
func (r *Resolver) resolveBlock(ctx context.Context, recs []entity.NormalizedRecord) (*outcome, []string, error) {
	o := &outcome{}
	blame := sourceIDs(recs)

	cands, skipped, err := r.candidates(ctx, recs)
	if err != nil {
		return nil, blame, err
	}
	o.skipped = skipped

	items := make(map[string]*item)
	for _, id := range sortedKeys(cands) {
		members, err := r.store.Members(ctx, id)
		if err != nil {
			return nil, blame, err
		}
		for _, m := range members {
			items[m.SourceID] = &item{rec: m, owner: id}
		}
		blame = append(blame, id)
	}
	for _, rec := range recs {
		if slices.Contains(skipped, rec.SourceID) {
			continue
		}
		if cur, ok := items[rec.SourceID]; ok {
			if rec.Supersedes(&cur.rec) {
				cur.rec, cur.fresh = rec, true
			}
			continue
		}
		items[rec.SourceID] = &item{rec: rec, fresh: true}
	}

	ds, conflicts := r.cluster(items, cands)
	o.conflicts = append(o.conflicts, conflicts...)

	now := r.opts.now().UTC()
	batch := &store.Batch{}
	groups := ds.groups()
	for _, root := range sortedKeys(groups) {
		r.persistCluster(groups[root], items, cands, now, batch, o)
	}

	if err := r.store.Commit(ctx, batch); err != nil {
		return nil, blame, err
	}
	return o, blame, nil
}

// cluster matches items pairwise and unions them. Members of one stored
// entity start out joined. A union that would put two different websites in
// one cluster is refused and reported.
func (r *Resolver) cluster(items map[string]*item, cands map[string]*entity.Entity) (*disjointSet, []*errors.ResolutionConflict) {
	ds := newDisjointSet()
	domains := make(map[string]map[string]struct{})
	for _, id := range sortedKeys(items) {
		ds.add(id)
		domains[id] = make(map[string]struct{})
		if d := Domain(items[id].rec.Website); d != "" {
			domains[id][d] = struct{}{}
		}
	}
	join := func(a, b string) {
		ra, rb := ds.find(a), ds.find(b)
		if ra == rb {
			return
		}
		root := ds.union(a, b)
		other := ra
		if root == ra {
			other = rb
		}
		for d := range domains[other] {
			domains[root][d] = struct{}{}
		}
		delete(domains, other)
	}

	byOwner := make(map[string][]string)
	for id, it := range items {
		if it.owner != "" {
			byOwner[it.owner] = append(byOwner[it.owner], id)
		}
	}
	for _, owner := range sortedKeys(byOwner) {
		ids := byOwner[owner]
		slices.Sort(ids)
		for _, id := range ids[1:] {
			join(ids[0], id)
		}
	}

	byKey := make(map[string][]string)
	for id, it := range items {
		for _, k := range BlockingKeys(&it.rec) {
			byKey[k] = append(byKey[k], id)
		}
	}
	seen := make(map[[2]string]bool)
	var pairs []pair
	for _, ids := range byKey {
		slices.Sort(ids)
		for i := range ids {
			for j := i + 1; j < len(ids); j++ {
				k := [2]string{ids[i], ids[j]}
				if seen[k] {
					continue
				}
				seen[k] = true
				if p, ok := match(&items[ids[i]].rec, &items[ids[j]].rec, r.opts.threshold); ok {
					pairs = append(pairs, p)
				}
			}
		}
	}
	sortPairs(pairs)

	var conflicts []*errors.ResolutionConflict
	for _, p := range pairs {
		ra, rb := ds.find(p.a), ds.find(p.b)
		if ra == rb {
			continue
		}
		if disjoint(domains[ra], domains[rb]) {
			conflicts = append(conflicts, errors.NewResolutionConflict(
				ownerOr(items[p.a]), entity.FieldWebsite, []string{p.a, p.b}, p.a,
				p.kind.String()+" match refused: clusters have different websites"))
			continue
		}
		join(p.a, p.b)
	}
	return ds, conflicts
}

func disjoint(a, b map[string]struct{}) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	for d := range a {
		if _, ok := b[d]; ok {
			return false
		}
	}
	return true
}

func ownerOr(it *item) string {
	if it.owner != "" {
		return it.owner
	}
	return EntityID(it.rec.SourceID)
}

// persistCluster resolves one cluster and adds its writes to batch.
func (r *Resolver) persistCluster(ids []string, items map[string]*item, cands map[string]*entity.Entity, now time.Time, batch *store.Batch, o *outcome) {
	members := make([]entity.NormalizedRecord, 0, len(ids))
	fresh := false
	owners := make(map[string]*entity.Entity)
	for _, id := range ids {
		it := items[id]
		rec := it.rec
		if it.fresh {
			rec.MergedAt = now
		}
		members = append(members, rec)
		fresh = fresh || it.fresh
		if it.owner != "" {
			owners[it.owner] = cands[it.owner]
		}
	}
	sortMembers(members)

	if len(owners) == 0 {
		minSource := slices.Min(ids)
		e := &entity.Entity{
			ID:        EntityID(minSource),
			Status:    entity.StatusActive,
			CreatedAt: utc.New(now),
			UpdatedAt: utc.New(now),
		}
		merged, conflicts := r.merger.merge(e.ID, members)
		merged.apply(e)
		o.conflicts = append(o.conflicts, conflicts...)
		batch.Put(e)
		batch.SetMembers(e.ID, members)
		o.created = append(o.created, e.ID)
		return
	}

	survivor := survivorOf(owners)
	merged, conflicts := r.merger.merge(survivor.ID, members)
	o.conflicts = append(o.conflicts, conflicts...)

	if !fresh && len(owners) == 1 && identityOf(survivor).sameAs(merged) {
		o.unchanged = append(o.unchanged, survivor.ID)
		return
	}

	next := survivor.Clone()
	merged.apply(next)
	next.UpdatedAt = utc.New(now)
	batch.Put(next)
	batch.SetMembers(next.ID, members)
	o.updated = append(o.updated, next.ID)

	for _, id := range sortedKeys(owners) {
		if id == survivor.ID {
			continue
		}
		absorbed := owners[id].Clone()
		absorbed.MergedInto = survivor.ID
		absorbed.Status = entity.StatusArchived
		absorbed.ArchivedAt = entity.Ptr(utc.New(now))
		absorbed.BlockingKeys = nil
		absorbed.UpdatedAt = utc.New(now)
		batch.Put(absorbed)
		batch.SetMembers(absorbed.ID, nil)
		o.absorbed = append(o.absorbed, absorbed.ID)
		o.conflicts = append(o.conflicts, errors.NewResolutionConflict(
			survivor.ID, "", sortedKeys(owners), survivor.ID,
			"entities merged, oldest kept"))
	}
}

// survivorOf returns the oldest entity, breaking ties by ID.
func survivorOf(owners map[string]*entity.Entity) *entity.Entity {
	var best *entity.Entity
	for _, id := range sortedKeys(owners) {
		e := owners[id]
		if best == nil || e.CreatedAt.Time.Before(best.CreatedAt.Time) {
			best = e
		}
	}
	return best
}

// Refresh recomputes one entity from its stored members plus extra records,
// which join the entity unconditionally. A request for an absorbed entity is
// redirected to the entity that absorbed it.
func (r *Resolver) Refresh(ctx context.Context, entityID string, extra ...entity.NormalizedRecord) (*entity.Entity, error) {
	ctx = logging.WithEntityID(logging.WithOperation(ctx, "refresh"), entityID)
	ctx, span := tracer.Start(ctx, "resolve.Refresh")
	defer span.End()

	var lastErr error
	for attempt := 1; attempt <= r.opts.maxAttempts; attempt++ {
		e, err := r.follow(ctx, entityID)
		if err != nil {
			return nil, err
		}
		members, err := r.store.Members(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		now := r.opts.now().UTC()
		for _, rec := range extra {
			rec.MergedAt = now
			i := slices.IndexFunc(members, func(m entity.NormalizedRecord) bool { return m.SourceID == rec.SourceID })
			switch {
			case i < 0:
				members = append(members, rec)
			case rec.Supersedes(&members[i]):
				members[i] = rec
			}
		}
		sortMembers(members)

		merged, conflicts := r.merger.merge(e.ID, members)
		for _, c := range conflicts {
			logging.Ctx(ctx).Warn().Str("field", c.Field).Strs("candidates", c.Candidates).Msg(c.Reason)
		}
		next := e.Clone()
		merged.apply(next)
		next.UpdatedAt = utc.New(now)

		batch := &store.Batch{}
		batch.Put(next)
		batch.SetMembers(next.ID, members)
		err = r.store.Commit(ctx, batch)
		if err == nil {
			logging.Ctx(ctx).Info().Int("members", len(members)).Msg("Entity refreshed")
			return next, nil
		}
		if !errors.IsWriteConflict(err) {
			return nil, err
		}
		lastErr = err
		metrics.WriteRetries.WithLabelValues("refresh").Inc()
		if attempt < r.opts.maxAttempts {
			if err := store.Backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}
	var conflict *errors.StoreWriteConflict
	if errors.As(lastErr, &conflict) {
		exhausted := *conflict
		exhausted.Attempts = r.opts.maxAttempts
		return nil, &exhausted
	}
	return nil, lastErr
}

// follow resolves MergedInto chains to the live entity.
func (r *Resolver) follow(ctx context.Context, id string) (*entity.Entity, error) {
	for hops := 0; hops < 16; hops++ {
		e, err := r.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !e.Absorbed() {
			return e, nil
		}
		id = e.MergedInto
	}
	return nil, errors.NewValidationError("merged_into", id, "merge chain too long")
}

func (r *Resolver) observe(result *Result) {
	metrics.EntitiesResolved.WithLabelValues("created").Add(float64(len(result.Created)))
	metrics.EntitiesResolved.WithLabelValues("updated").Add(float64(len(result.Updated)))
	metrics.EntitiesResolved.WithLabelValues("unchanged").Add(float64(len(result.Unchanged)))
	metrics.EntitiesResolved.WithLabelValues("absorbed").Add(float64(len(result.Absorbed)))
	metrics.EntitiesResolved.WithLabelValues("skipped").Add(float64(len(result.Skipped)))
	metrics.EntitiesResolved.WithLabelValues("failed").Add(float64(len(result.Failed)))
	metrics.ResolutionConflicts.Add(float64(len(result.Conflicts)))
}

// latestBySource keeps the newest fetch of every source.
func latestBySource(records []entity.NormalizedRecord) []entity.NormalizedRecord {
	idx := make(map[string]int, len(records))
	var out []entity.NormalizedRecord
	for _, rec := range records {
		if i, ok := idx[rec.SourceID]; ok {
			if rec.Supersedes(&out[i]) {
				out[i] = rec
			}
			continue
		}
		idx[rec.SourceID] = len(out)
		out = append(out, rec)
	}
	return out
}

func sourceIDs(recs []entity.NormalizedRecord) []string {
	ids := make([]string, len(recs))
	for i := range recs {
		ids[i] = recs[i].SourceID
	}
	return ids
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
