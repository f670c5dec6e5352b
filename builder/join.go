package builder

import (
	"fmt"
	"slices"
	"sort"

	"github.com/huandu/go-sqlbuilder"
	"github.com/xcono/relquery/schema"
	"github.com/zeromicro/go-zero/core/logx"
)

// JoinType represents the type of JOIN operation
type JoinType string

const (
	JoinTypeInner JoinType = "INNER"
	JoinTypeLeft  JoinType = "LEFT"
	JoinTypeRight JoinType = "RIGHT"
	JoinTypeFull  JoinType = "FULL"
)

// Next returns the connector that follows jt in the toggle cycle.
func (jt JoinType) Next() JoinType {
	switch jt {
	case JoinTypeInner:
		return JoinTypeLeft
	case JoinTypeLeft:
		return JoinTypeRight
	case JoinTypeRight:
		return JoinTypeFull
	default:
		return JoinTypeInner
	}
}

// ToSQLJoinOption converts JoinType to sqlbuilder.JoinOption
func (jt JoinType) ToSQLJoinOption() sqlbuilder.JoinOption {
	switch jt {
	case JoinTypeInner:
		return sqlbuilder.InnerJoin
	case JoinTypeLeft:
		return sqlbuilder.LeftJoin
	case JoinTypeRight:
		return sqlbuilder.RightJoin
	case JoinTypeFull:
		return sqlbuilder.FullJoin
	default:
		return sqlbuilder.LeftJoin // Default to left join
	}
}

// ApplyKind selects one of the record mutation flags of a join.
type ApplyKind string

const (
	ApplyCreate ApplyKind = "create"
	ApplyUpdate ApplyKind = "update"
	ApplyDelete ApplyKind = "delete"
)

// Join is one relation reachable from the source relation (index 0).
// Joins are kept as a flat list; IndexFrom points to the parent join.
type Join struct {
	Index       int      `json:"index"`
	IndexFrom   int      `json:"indexFrom"`
	RelationID  string   `json:"relationId"`
	AttributeID *string  `json:"attributeId"`
	Connector   JoinType `json:"connector"`
	ApplyCreate bool     `json:"applyCreate"`
	ApplyUpdate bool     `json:"applyUpdate"`
	ApplyDelete bool     `json:"applyDelete"`
}

// JoinNode is the nested view of a join and the joins reached from it.
type JoinNode struct {
	Join     Join        `json:"join"`
	Children []*JoinNode `json:"children,omitempty"`
}

// JoinTarget returns the relation reached from fromRelationID through a
// relationship attribute. An attribute declared on another relation is
// followed outside-in to that relation, otherwise it is followed to its
// partner relation.
func JoinTarget(a schema.Attribute, fromRelationID string) (relationID string, outsideIn bool, ok bool) {
	if !schema.IsRelationship(a.Content) || a.RelationshipID == nil {
		return "", false, false
	}
	if a.RelationID != fromRelationID {
		return a.RelationID, true, true
	}
	return *a.RelationshipID, false, true
}

// AddJoin joins the relation reached from join fromIndex via the
// relationship attribute. The new join gets an index greater than every
// existing one. It returns false, leaving the query unchanged, if the join
// or the attribute does not exist.
func (q Query) AddJoin(catalog schema.Catalog, fromIndex int, attributeID string, connector JoinType) (Query, Join, bool) {
	from, ok := q.Join(fromIndex)
	if !ok {
		logx.Debugf("add join: no join with index %d", fromIndex)
		return q, Join{}, false
	}

	attribute, ok := catalog.Attribute(attributeID)
	if !ok {
		logx.Debugf("add join: unknown attribute %s", attributeID)
		return q, Join{}, false
	}

	target, _, ok := JoinTarget(attribute, from.RelationID)
	if !ok {
		logx.Debugf("add join: attribute %s is not a relationship", attributeID)
		return q, Join{}, false
	}

	next := 0
	for _, j := range q.Joins {
		next = max(next, j.Index+1)
	}

	id := attributeID
	join := Join{
		Index:       next,
		IndexFrom:   fromIndex,
		RelationID:  target,
		AttributeID: &id,
		Connector:   connector,
	}

	out := q.Clone()
	out.Joins = append(out.Joins, join)
	return out, join, true
}

// RemoveJoin removes a join, the joins reached from it, and every filter,
// order and lookup scoped to a removed index. Removing the source join
// resets the whole query. It returns the removed indexes, the requested
// index first, so dependent state can be cleaned up.
func (q Query) RemoveJoin(index int) (Query, []int) {
	if _, ok := q.Join(index); !ok {
		return q, nil
	}

	if index == 0 {
		removed := make([]int, 0, len(q.Joins))
		for _, j := range q.Joins {
			removed = append(removed, j.Index)
		}
		sort.Ints(removed)
		return Query{FixedLimit: q.FixedLimit}, removed
	}

	removed := []int{index}
	for i := 0; i < len(removed); i++ {
		for _, j := range q.Joins {
			if j.IndexFrom == removed[i] && j.Index != 0 && !slices.Contains(removed, j.Index) {
				removed = append(removed, j.Index)
			}
		}
	}

	out := q.Clone()
	out.Joins = slices.DeleteFunc(out.Joins, func(j Join) bool { return slices.Contains(removed, j.Index) })
	out.Filters = slices.DeleteFunc(out.Filters, func(f Filter) bool { return slices.Contains(removed, f.Index) })
	out.Orders = slices.DeleteFunc(out.Orders, func(o Order) bool { return slices.Contains(removed, o.Index) })
	out.Lookups = slices.DeleteFunc(out.Lookups, func(l Lookup) bool { return slices.Contains(removed, l.Index) })
	for i := range out.Choices {
		out.Choices[i].Filters = slices.DeleteFunc(out.Choices[i].Filters, func(f Filter) bool { return slices.Contains(removed, f.Index) })
	}
	return out, removed
}

// ToggleConnector cycles the join type INNER, LEFT, RIGHT, FULL.
func (q Query) ToggleConnector(index int) Query {
	return q.updateJoin(index, func(j *Join) { j.Connector = j.Connector.Next() })
}

// ToggleApply flips one record mutation flag of a join.
func (q Query) ToggleApply(index int, kind ApplyKind) Query {
	return q.updateJoin(index, func(j *Join) {
		switch kind {
		case ApplyCreate:
			j.ApplyCreate = !j.ApplyCreate
		case ApplyUpdate:
			j.ApplyUpdate = !j.ApplyUpdate
		case ApplyDelete:
			j.ApplyDelete = !j.ApplyDelete
		}
	})
}

func (q Query) updateJoin(index int, fn func(*Join)) Query {
	if _, ok := q.Join(index); !ok {
		return q
	}
	out := q.Clone()
	for i := range out.Joins {
		if out.Joins[i].Index == index {
			fn(&out.Joins[i])
		}
	}
	return out
}

// BuildNestedView groups the flat join list by IndexFrom, starting at the
// source join. It returns nil if there is no source join.
func BuildNestedView(joins []Join) *JoinNode {
	children := make(map[int][]Join)
	var root *JoinNode
	for _, j := range joins {
		if j.Index == 0 {
			root = &JoinNode{Join: j}
			continue
		}
		children[j.IndexFrom] = append(children[j.IndexFrom], j)
	}
	if root == nil {
		return nil
	}

	var build func(n *JoinNode, seen map[int]bool)
	build = func(n *JoinNode, seen map[int]bool) {
		seen[n.Join.Index] = true
		for _, c := range children[n.Join.Index] {
			if seen[c.Index] {
				continue
			}
			child := &JoinNode{Join: c}
			build(child, seen)
			n.Children = append(n.Children, child)
		}
	}
	build(root, map[int]bool{})
	return root
}

// JoinAliasManager manages table aliases for JOIN operations, one alias
// per join index so a relation may be joined more than once.
type JoinAliasManager struct {
	prefix  string
	aliases map[int]string // join index -> alias mapping
}

// NewJoinAliasManager creates a new alias manager. The prefix separates
// alias spaces of nested queries.
func NewJoinAliasManager(prefix string) *JoinAliasManager {
	return &JoinAliasManager{
		prefix:  prefix,
		aliases: make(map[int]string),
	}
}

// GetAlias returns an alias for the given join index, creating one if it doesn't exist
func (jam *JoinAliasManager) GetAlias(index int) string {
	if alias, exists := jam.aliases[index]; exists {
		return alias
	}

	alias := fmt.Sprintf("%s%d", jam.prefix, index)
	jam.aliases[index] = alias
	return alias
}

// GetAliasForIndex returns the alias for a join index, if one was created
func (jam *JoinAliasManager) GetAliasForIndex(index int) (string, bool) {
	alias, exists := jam.aliases[index]
	return alias, exists
}
