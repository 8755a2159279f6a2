package resolve

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/agentstation/ecomap/pkg/entity"
)

// candidates loads the stored entities recs may merge with. Absorbed entities
// never qualify. Archived entities qualify only through a record of at least
// the reactivation confidence; other records owned by such an entity are
// returned as skipped instead of spawning a duplicate.
func (r *Resolver) candidates(ctx context.Context, recs []entity.NormalizedRecord) (map[string]*entity.Entity, []string, error) {
	keySet := make(map[string]struct{})
	keysOf := make(map[string][]string, len(recs))
	for i := range recs {
		keys := BlockingKeys(&recs[i])
		keysOf[recs[i].SourceID] = keys
		for _, k := range keys {
			keySet[k] = struct{}{}
		}
	}

	found := make(map[string]*entity.Entity)
	if err := r.lookup(ctx, sourceIDs(recs), r.store.FindBySource, found); err != nil {
		return nil, nil, err
	}
	if err := r.lookup(ctx, sortedKeys(keySet), r.store.FindByBlockingKey, found); err != nil {
		return nil, nil, err
	}

	cands := make(map[string]*entity.Entity)
	var skipped []string
	for _, id := range sortedKeys(found) {
		e := found[id]
		if e.Absorbed() {
			continue
		}
		if e.Status != entity.StatusArchived {
			cands[id] = e
			continue
		}
		eligible := slices.ContainsFunc(recs, func(rec entity.NormalizedRecord) bool {
			return rec.Confidence >= r.opts.reactivation && linked(e, rec.SourceID, keysOf[rec.SourceID])
		})
		if eligible {
			cands[id] = e
			continue
		}
		for _, rec := range recs {
			if e.HasSource(rec.SourceID) {
				skipped = append(skipped, rec.SourceID)
			}
		}
	}
	slices.Sort(skipped)
	return cands, slices.Compact(skipped), nil
}

// linked reports whether a record with the given source and keys touches e.
func linked(e *entity.Entity, sourceID string, keys []string) bool {
	if e.HasSource(sourceID) {
		return true
	}
	return slices.ContainsFunc(keys, e.HasBlockingKey)
}

type finder func(ctx context.Context, ids ...string) ([]*entity.Entity, error)

// lookup runs find over ids in bounded chunks and collects the results by ID.
func (r *Resolver) lookup(ctx context.Context, ids []string, find finder, into map[string]*entity.Entity) error {
	for start := 0; start < len(ids); start += r.opts.blockingBatch {
		end := min(start+r.opts.blockingBatch, len(ids))
		found, err := find(ctx, ids[start:end]...)
		if err != nil {
			return err
		}
		for _, e := range found {
			into[e.ID] = e
		}
	}
	return nil
}

// partition splits records into blocks: connected components of records and
// candidate entities linked by a shared blocking key or source. Blocks are
// returned in key order.
func (r *Resolver) partition(ctx context.Context, recs []entity.NormalizedRecord) ([]block, []string, error) {
	cands, skipped, err := r.candidates(ctx, recs)
	if err != nil {
		return nil, nil, err
	}

	const recNode, entNode = "r:", "e:"
	ds := newDisjointSet()
	bySource := make(map[string]entity.NormalizedRecord, len(recs))
	byKey := make(map[string]string)
	keysOf := make(map[string][]string, len(recs))
	for _, rec := range recs {
		if slices.Contains(skipped, rec.SourceID) {
			continue
		}
		node := recNode + rec.SourceID
		ds.add(node)
		bySource[rec.SourceID] = rec
		keysOf[rec.SourceID] = BlockingKeys(&rec)
		for _, k := range keysOf[rec.SourceID] {
			if first, ok := byKey[k]; ok {
				ds.union(first, node)
				continue
			}
			byKey[k] = node
		}
	}
	for id, e := range cands {
		node := entNode + id
		for _, k := range e.BlockingKeys {
			if rn, ok := byKey[k]; ok {
				ds.union(node, rn)
			}
		}
		for _, src := range e.ContributingSources {
			if _, ok := bySource[src]; ok {
				ds.union(node, recNode+src)
			}
		}
	}

	var blocks []block
	for _, nodes := range ds.groups() {
		var b block
		for _, n := range nodes {
			src, ok := strings.CutPrefix(n, recNode)
			if !ok {
				continue
			}
			b.records = append(b.records, bySource[src])
			for _, k := range keysOf[src] {
				if b.key == "" || k < b.key {
					b.key = k
				}
			}
		}
		if len(b.records) == 0 {
			continue
		}
		sort.Slice(b.records, func(i, j int) bool { return b.records[i].SourceID < b.records[j].SourceID })
		if b.key == "" {
			b.key = "source:" + b.records[0].SourceID
		}
		blocks = append(blocks, b)
	}
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].key != blocks[j].key {
			return blocks[i].key < blocks[j].key
		}
		return blocks[i].records[0].SourceID < blocks[j].records[0].SourceID
	})
	return blocks, skipped, nil
}
