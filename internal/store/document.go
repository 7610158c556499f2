package store

import (
	"sort"
	"time"

	"github.com/plandeck/plandeck/internal/model"
)

// pair is one (id, value) entry of a serialized map field. Plan documents
// store their map-typed fields as ordered pair lists so that two saves of
// the same state produce byte-identical documents.
type pair[V any] struct {
	ID    string `json:"id"`
	Value V      `json:"value"`
}

// mapToPairs flattens a map into pairs ordered by id.
func mapToPairs[V any](m map[string]V) []pair[V] {
	if len(m) == 0 {
		return nil
	}
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]pair[V], 0, len(m))
	for _, id := range ids {
		out = append(out, pair[V]{ID: id, Value: m[id]})
	}
	return out
}

// pairsToMap rebuilds a map from its serialized pair list.
func pairsToMap[V any](pairs []pair[V]) map[string]V {
	if len(pairs) == 0 {
		return map[string]V{}
	}
	out := make(map[string]V, len(pairs))
	for _, p := range pairs {
		out[p.ID] = p.Value
	}
	return out
}

// planDocument is the on-disk form of a plan instance. It mirrors
// model.PlanInstance with every map field flattened into ordered pairs.
type planDocument struct {
	ID     string         `json:"id"`
	Spec   model.PlanSpec `json:"spec"`
	Format int            `json:"format"`

	Nodes              []pair[*model.Node]               `json:"nodes"`
	ProducerIDToNodeID []pair[string]                    `json:"producer_id_to_node_id"`
	NodeStates         []pair[*model.NodeExecutionState] `json:"node_states"`

	Groups        []pair[*model.GroupInstance]       `json:"groups,omitempty"`
	GroupStates   []pair[*model.GroupExecutionState] `json:"group_states,omitempty"`
	GroupPathToID []pair[string]                     `json:"group_path_to_id,omitempty"`

	Roots  []string `json:"roots"`
	Leaves []string `json:"leaves"`

	RepoPath     string `json:"repo_path"`
	WorktreeRoot string `json:"worktree_root"`

	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	StateVersion int64              `json:"state_version"`
	IsPaused     bool               `json:"is_paused,omitempty"`
	WorkSummary  *model.WorkSummary `json:"work_summary,omitempty"`
}

// documentFormat is bumped when the on-disk layout changes shape.
const documentFormat = 1

// toDocument flattens a plan instance for storage.
func toDocument(plan *model.PlanInstance) *planDocument {
	return &planDocument{
		ID:                 plan.ID,
		Spec:               plan.Spec,
		Format:             documentFormat,
		Nodes:              mapToPairs(plan.Nodes),
		ProducerIDToNodeID: mapToPairs(plan.ProducerIDToNodeID),
		NodeStates:         mapToPairs(plan.NodeStates),
		Groups:             mapToPairs(plan.Groups),
		GroupStates:        mapToPairs(plan.GroupStates),
		GroupPathToID:      mapToPairs(plan.GroupPathToID),
		Roots:              plan.Roots,
		Leaves:             plan.Leaves,
		RepoPath:           plan.RepoPath,
		WorktreeRoot:       plan.WorktreeRoot,
		CreatedAt:          plan.CreatedAt,
		StartedAt:          plan.StartedAt,
		EndedAt:            plan.EndedAt,
		StateVersion:       plan.StateVersion,
		IsPaused:           plan.IsPaused,
		WorkSummary:        plan.WorkSummary,
	}
}

// fromDocument rebuilds a plan instance from its stored form.
func fromDocument(doc *planDocument) *model.PlanInstance {
	return &model.PlanInstance{
		ID:                 doc.ID,
		Spec:               doc.Spec,
		Nodes:              pairsToMap(doc.Nodes),
		ProducerIDToNodeID: pairsToMap(doc.ProducerIDToNodeID),
		NodeStates:         pairsToMap(doc.NodeStates),
		Groups:             pairsToMap(doc.Groups),
		GroupStates:        pairsToMap(doc.GroupStates),
		GroupPathToID:      pairsToMap(doc.GroupPathToID),
		Roots:              doc.Roots,
		Leaves:             doc.Leaves,
		RepoPath:           doc.RepoPath,
		WorktreeRoot:       doc.WorktreeRoot,
		CreatedAt:          doc.CreatedAt,
		StartedAt:          doc.StartedAt,
		EndedAt:            doc.EndedAt,
		StateVersion:       doc.StateVersion,
		IsPaused:           doc.IsPaused,
		WorkSummary:        doc.WorkSummary,
	}
}

// IndexEntry is one row of the plan index, enough to list plans without
// parsing every plan document.
type IndexEntry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// planIndex is the on-disk index document.
type planIndex struct {
	Format int          `json:"format"`
	Plans  []IndexEntry `json:"plans"`
}

// sortEntries orders index entries newest first, id as tiebreaker.
func sortEntries(entries []IndexEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID < entries[j].ID
	})
}
