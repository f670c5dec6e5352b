package builder

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

// ErrExpression is returned when a script operand cannot be evaluated.
var ErrExpression = errors.New("expression evaluation failed")

// neutral is the value of references that cannot be resolved yet.
const neutral = ""

type resolver struct {
	ctx  *Context
	now  time.Time
	vars map[string]any
}

func newResolver(ctx *Context) *resolver {
	return &resolver{ctx: ctx, now: ctx.now()}
}

// ResolveFilters resolves every operand of a filter set against the
// context and encapsulates the base filters (index 0) in one pair of
// brackets, so the set can be concatenated with other filter sets without
// an OR escaping. Base filters are returned first, join filters after.
//
// Only script operands fail; other unresolvable references resolve to an
// empty value. The input is not modified.
func ResolveFilters(filters []Filter, ctx *Context) ([]ResolvedFilter, error) {
	if ctx == nil {
		ctx = &Context{}
	}
	return newResolver(ctx).filters(filters, 0)
}

func (r *resolver) filters(filters []Filter, nesting int) ([]ResolvedFilter, error) {
	out := make([]ResolvedFilter, 0, len(filters))

	for i, f := range filters {
		rf := ResolvedFilter{
			Connector: LogAnd,
			Operator:  f.Operator,
			Index:     f.Index,
		}
		if i != 0 && f.Connector == LogOr {
			rf.Connector = LogOr
		}

		var err error
		if rf.Side0, err = r.operand(f.Side0, f.Operator, nesting); err != nil {
			return nil, fmt.Errorf("filter %d side 0: %w", i, err)
		}

		if IsNullOperator(f.Operator) {
			rf.Side1 = ResolvedOperand{Brackets: f.Side1.Brackets}
		} else if rf.Side1, err = r.operand(f.Side1, f.Operator, nesting); err != nil {
			return nil, fmt.Errorf("filter %d side 1: %w", i, err)
		}

		out = append(out, rf)
	}

	return encapsulate(out), nil
}

// encapsulate wraps the base filters in one extra pair of brackets.
func encapsulate(filters []ResolvedFilter) []ResolvedFilter {
	base := make([]ResolvedFilter, 0, len(filters))
	joined := make([]ResolvedFilter, 0)
	for _, f := range filters {
		if f.Index == 0 {
			base = append(base, f)
		} else {
			joined = append(joined, f)
		}
	}

	if len(base) != 0 {
		base[0].Connector = LogAnd
		base[0].Side0.Brackets++
		base[len(base)-1].Side1.Brackets++
	}
	return append(base, joined...)
}

func (r *resolver) operand(o Operand, operator string, nesting int) (ResolvedOperand, error) {
	out := ResolvedOperand{Brackets: o.Brackets}
	if o.FtsDict != "" {
		dict := o.FtsDict
		out.FtsDict = &dict
	}

	ctx := r.ctx

	switch c := o.Content.(type) {
	case Attribute:
		id := c.AttributeID
		out.AttributeID = &id
		out.AttributeIndex = c.Index
		out.AttributeNested = c.Nested
		if c.AttributeIDNm != nil {
			nm := *c.AttributeIDNm
			out.AttributeIDNm = &nm
		}

	case Value:
		out.Value = c.Value

	case Collection:
		out.Value = neutral
		if ctx.Collections == nil {
			logx.Debugf("collection %s: no collection lookup", c.CollectionID)
			break
		}
		v, ok := ctx.Collections.CollectionValue(c.CollectionID, c.ColumnID, IsSetOperator(operator), ctx.indexFilter(c.CollectionID))
		if !ok {
			logx.Debugf("collection %s column %s not found", c.CollectionID, c.ColumnID)
			break
		}
		out.Value = v

	case Field:
		v, ok := ctx.Fields[c.FieldID]
		if !ok {
			logx.Debugf("field %s not found", c.FieldID)
			out.Value = neutral
			break
		}
		switch c.Kind {
		case FieldChanged:
			out.Value = ctx.fieldChanged(c.FieldID)
		case FieldValid:
			out.Value = !ctx.fieldInvalid(c.FieldID)
		default:
			out.Value = v
		}

	case SubQuery:
		id := c.AttributeID
		expr := Expression{AttributeID: &id, Index: c.AttributeIndex, Aggregator: c.Aggregator}
		q, err := r.subRequest(c.Query, []Expression{expr}, nesting+1)
		if err != nil {
			return ResolvedOperand{}, err
		}
		out.Query = q

	case Preset:
		out.Value = neutral
		if ctx.Presets == nil {
			break
		}
		if id, ok := ctx.Presets.PresetRecordID(c.PresetID); ok {
			out.Value = id
		} else {
			logx.Debugf("preset %s not found", c.PresetID)
		}

	case Role:
		out.Value = slices.Contains(ctx.Session.RoleIDs, c.RoleID)

	case Variable:
		out.Value = neutral
		if ctx.Variables == nil {
			break
		}
		if v, ok := ctx.Variables.Variable(c.VariableID); ok {
			out.Value = v
		} else {
			logx.Debugf("variable %s not found", c.VariableID)
		}

	case Script:
		v, err := r.evaluate(c.Text)
		if err != nil {
			return ResolvedOperand{}, err
		}
		out.Value = v

	case Now:
		out.Value = r.nowValue(c)

	case Builtin:
		r.builtin(c, &out)

	case nil:
		// empty operand, nothing to send
	}

	return out, nil
}

func (r *resolver) builtin(b Builtin, out *ResolvedOperand) {
	ctx := r.ctx
	record, hasRecord := ctx.JoinIndexMap[0]

	switch b {
	case LanguageCode:
		out.Value = ctx.Session.LanguageCode
	case Login:
		out.Value = ctx.Session.LoginID
	case RecordMayCreate:
		out.Value = ctx.RecordMayCreate
	case RecordMayUpdate:
		out.Value = ctx.RecordMayUpdate
	case RecordMayDelete:
		out.Value = ctx.RecordMayDelete
	case Record:
		out.Value = neutral
		if hasRecord {
			out.Value = record.RecordID
		}
	case RecordNew:
		out.Value = !hasRecord || record.RecordID == 0
	case FormChanged:
		out.Value = len(ctx.FieldsChanged) != 0
	case True:
		out.Value = true
	case GlobalSearch:
		out.Value = ctx.GlobalSearch
		if ctx.GlobalSearchDict != "" {
			dict := ctx.GlobalSearchDict
			out.FtsDict = &dict
		}
	}
}

// nowValue returns unix seconds: the current date at 00:00 UTC, the
// current datetime, or the seconds since midnight, plus the offset.
func (r *resolver) nowValue(n Now) int64 {
	t := r.now
	switch n.Kind {
	case NowDate:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix() + n.Offset
	case NowTime:
		return int64(t.Hour()*3600+t.Minute()*60+t.Second()) + n.Offset
	default:
		return t.Unix() + n.Offset
	}
}

func (r *resolver) evaluate(text string) (any, error) {
	if r.ctx.Evaluator == nil {
		return nil, fmt.Errorf("%w: no evaluator configured", ErrExpression)
	}
	if r.vars == nil {
		r.vars = r.ctx.scriptVars()
	}
	v, err := r.ctx.Evaluator.Evaluate(text, r.vars)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExpression, err)
	}
	return v, nil
}

// subRequest converts a nested query into a request one level deeper.
func (r *resolver) subRequest(q Query, expressions []Expression, nesting int) (*Request, error) {
	filters, err := r.filters(q.Filters, nesting)
	if err != nil {
		return nil, err
	}
	return &Request{
		RelationID:  q.RelationID,
		Joins:       RequestJoins(q.Joins),
		Expressions: expressions,
		Filters:     filters,
		Orders:      append([]Order{}, q.Orders...),
		Limit:       q.FixedLimit,
	}, nil
}
