// Copyright 2025 MRCIS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package resolver turns pending textual references into concrete graph
// edges. It runs periodically on the writer instance, processing bounded
// batches with candidate filtering, receiver disambiguation and stable
// tie-breaks.
package resolver

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/mrcis/mrcis/pkg/model"
	"github.com/mrcis/mrcis/pkg/pipeline"
	"github.com/mrcis/mrcis/pkg/state"
)

// Defaults for batch size and terminal attempts.
const (
	DefaultBatchSize   = 100
	DefaultMaxAttempts = 3
)

// suffixCandidateLimit bounds the fallback suffix lookup.
const suffixCandidateLimit = 10

// Resolver resolves pending references in periodic passes.
type Resolver struct {
	store       *state.Store
	stats       *pipeline.StatsUpdater
	logger      *slog.Logger
	batchSize   int
	maxAttempts int

	// IsWriter reports whether this instance holds the writer lock.
	IsWriter func() bool
}

// New creates a resolver.
func New(store *state.Store, stats *pipeline.StatsUpdater, maxAttempts int, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Resolver{
		store:       store,
		stats:       stats,
		logger:      logger,
		batchSize:   DefaultBatchSize,
		maxAttempts: maxAttempts,
		IsWriter:    func() bool { return true },
	}
}

// Run executes a pass every interval until ctx is cancelled.
func (r *Resolver) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.IsWriter != nil && !r.IsWriter() {
				continue
			}
			resolved, unresolved, err := r.ResolvePass(ctx)
			if err != nil {
				r.logger.Warn("resolver.pass_failed", "err", err)
				continue
			}
			if resolved > 0 || unresolved > 0 {
				r.logger.Info("resolver.pass.done", "resolved", resolved, "unresolved", unresolved)
			}
		}
	}
}

// ResolvePass processes one bounded batch of pending references. Errors on
// individual references are logged and do not abort the pass.
func (r *Resolver) ResolvePass(ctx context.Context) (resolved, unresolved int, err error) {
	refs, err := r.store.GetPendingReferences(ctx, r.batchSize)
	if err != nil {
		return 0, 0, err
	}

	touched := make(map[string]bool)
	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		winner, refErr := r.resolveOne(ctx, ref)
		if refErr != nil {
			r.logger.Warn("resolver.reference_failed", "ref", ref.ID, "target", ref.TargetQualifiedName, "err", refErr)
			continue
		}
		if winner == nil {
			if markErr := r.store.MarkReferenceUnresolved(ctx, ref.ID, r.maxAttempts); markErr != nil {
				r.logger.Warn("resolver.mark_unresolved_failed", "ref", ref.ID, "err", markErr)
				continue
			}
			unresolved++
			recordUnresolvedAttempt()
			continue
		}
		if resErr := r.store.ResolveReference(ctx, ref.ID, winner.ID); resErr != nil {
			r.logger.Warn("resolver.resolve_failed", "ref", ref.ID, "err", resErr)
			continue
		}
		resolved++
		recordResolved(ref.SourceRepositoryID != winner.RepositoryID)
		touched[ref.SourceRepositoryID] = true
		if winner.RepositoryID != ref.SourceRepositoryID {
			touched[winner.RepositoryID] = true
		}
	}

	// Relation counts may have grown; refresh the touched repositories.
	for repoID := range touched {
		if statErr := r.stats.AfterResolution(ctx, repoID); statErr != nil {
			r.logger.Warn("resolver.stats_refresh_failed", "repo", repoID, "err", statErr)
		}
	}
	return resolved, unresolved, nil
}

// resolveOne finds the unique candidate for a reference, or nil when no
// candidate survives.
func (r *Resolver) resolveOne(ctx context.Context, ref *model.PendingReference) (*model.CodeEntity, error) {
	candidates, err := r.store.GetEntitiesByQualifiedName(ctx, ref.TargetQualifiedName)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		candidates, err = r.store.GetEntitiesBySuffix(ctx, targetLastSegment(ref.TargetQualifiedName), suffixCandidateLimit)
		if err != nil {
			return nil, err
		}
	}

	candidates = filterByRelation(candidates, ref.RelationType)
	if len(candidates) == 0 {
		return nil, nil
	}

	if ref.ReceiverExpr != "" && len(candidates) > 1 {
		candidates = preferReceiverMatches(candidates, ref.ReceiverExpr)
	}

	sortCandidates(candidates, ref.SourceRepositoryID)
	return candidates[0], nil
}

// filterByRelation applies the per-relation kind semantics: hard filters for
// inheritance edges, soft preferences for calls and instantiations.
func filterByRelation(candidates []*model.CodeEntity, rt model.RelationType) []*model.CodeEntity {
	switch rt {
	case model.RelationExtends, model.RelationImplements:
		return keepKinds(candidates, model.KindClass, model.KindInterface)
	case model.RelationCalls:
		if preferred := keepKinds(candidates, model.KindFunction, model.KindMethod); len(preferred) > 0 {
			return preferred
		}
		return candidates
	case model.RelationInstantiates:
		if preferred := keepKinds(candidates, model.KindClass); len(preferred) > 0 {
			return preferred
		}
		return candidates
	default:
		return candidates
	}
}

func keepKinds(candidates []*model.CodeEntity, kinds ...model.EntityKind) []*model.CodeEntity {
	var out []*model.CodeEntity
	for _, c := range candidates {
		for _, k := range kinds {
			if c.Kind == k {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// preferReceiverMatches keeps candidates whose parent class or qualified
// name prefix matches the receiver tail, when any do.
func preferReceiverMatches(candidates []*model.CodeEntity, receiver string) []*model.CodeEntity {
	tail := targetLastSegment(receiver)
	var preferred []*model.CodeEntity
	for _, c := range candidates {
		if c.Detail.Method != nil && c.Detail.Method.ParentClass == tail {
			preferred = append(preferred, c)
			continue
		}
		if strings.Contains(c.QualifiedName, "."+tail+".") || strings.HasPrefix(c.QualifiedName, tail+".") {
			preferred = append(preferred, c)
		}
	}
	if len(preferred) > 0 {
		return preferred
	}
	return candidates
}

// sortCandidates orders by same-repository first, then shortest qualified
// name, then lowest id for stability.
func sortCandidates(candidates []*model.CodeEntity, sourceRepoID string) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		aSame := a.RepositoryID == sourceRepoID
		bSame := b.RepositoryID == sourceRepoID
		if aSame != bSame {
			return aSame
		}
		if len(a.QualifiedName) != len(b.QualifiedName) {
			return len(a.QualifiedName) < len(b.QualifiedName)
		}
		return a.ID < b.ID
	})
}

// targetLastSegment returns the final segment of a dotted, coloned or
// double-colon qualified name.
func targetLastSegment(name string) string {
	for _, sep := range []string{"::", ".", ":"} {
		if i := strings.LastIndex(name, sep); i >= 0 {
			return name[i+len(sep):]
		}
	}
	return name
}
