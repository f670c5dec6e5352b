package builder

// Operand tags as written by the builder.
const (
	ContentAttribute       = "attribute"
	ContentValue           = "value"
	ContentCollection      = "collection"
	ContentField           = "field"
	ContentFieldChanged    = "fieldChanged"
	ContentFieldValid      = "fieldValid"
	ContentSubQuery        = "subQuery"
	ContentPreset          = "preset"
	ContentRole            = "role"
	ContentVariable        = "variable"
	ContentLanguageCode    = "languageCode"
	ContentLogin           = "login"
	ContentRecordMayCreate = "recordMayCreate"
	ContentRecordMayUpdate = "recordMayUpdate"
	ContentRecordMayDelete = "recordMayDelete"
	ContentRecord          = "record"
	ContentRecordNew       = "recordNew"
	ContentFormChanged     = "formChanged"
	ContentJavascript      = "javascript"
	ContentNowDate         = "nowDate"
	ContentNowDatetime     = "nowDatetime"
	ContentNowTime         = "nowTime"
	ContentTrue            = "true"
	ContentGlobalSearch    = "globalSearch"
)

// Operand is one side of a filter row. Brackets counts the literal
// parentheses opened (side0) or closed (side1) at this side.
type Operand struct {
	Brackets int
	FtsDict  string
	Content  Content
}

// Content is the value source of an operand. It is implemented by the
// operand types of this package only.
type Content interface {
	Tag() string
	content()
}

type (
	// Attribute references a column of a join. Nested is the query level
	// the join belongs to, 0 for the outermost query, so sub-query filters
	// can reference outer columns.
	Attribute struct {
		AttributeID   string
		Index         int
		Nested        int
		AttributeIDNm *string
	}

	// Value is a literal.
	Value struct {
		Value any
	}

	// Collection reads a column from a client side collection.
	Collection struct {
		CollectionID string
		ColumnID     string
	}

	// Field reads live form state for a field.
	Field struct {
		FieldID string
		Kind    FieldKind
	}

	// SubQuery is a nested query returning one aggregated attribute.
	SubQuery struct {
		Query          Query
		Aggregator     *string
		AttributeID    string
		AttributeIndex int
	}

	// Preset resolves to the record id of a preset.
	Preset struct {
		PresetID string
	}

	// Role resolves to whether the login has the role.
	Role struct {
		RoleID string
	}

	// Variable reads from the variable store.
	Variable struct {
		VariableID string
	}

	// Script is expression text evaluated by the context evaluator.
	Script struct {
		Text string
	}

	// Now is the current date, datetime or time in unix seconds plus Offset.
	Now struct {
		Kind   NowKind
		Offset int64
	}

	// Builtin covers the operands that carry no payload.
	Builtin string
)

// FieldKind selects what is read from a form field.
type FieldKind string

const (
	FieldValue   FieldKind = ContentField
	FieldChanged FieldKind = ContentFieldChanged
	FieldValid   FieldKind = ContentFieldValid
)

// NowKind selects the granularity of a Now operand.
type NowKind string

const (
	NowDate     NowKind = ContentNowDate
	NowDatetime NowKind = ContentNowDatetime
	NowTime     NowKind = ContentNowTime
)

const (
	LanguageCode    Builtin = ContentLanguageCode
	Login           Builtin = ContentLogin
	RecordMayCreate Builtin = ContentRecordMayCreate
	RecordMayUpdate Builtin = ContentRecordMayUpdate
	RecordMayDelete Builtin = ContentRecordMayDelete
	Record          Builtin = ContentRecord
	RecordNew       Builtin = ContentRecordNew
	FormChanged     Builtin = ContentFormChanged
	True            Builtin = ContentTrue
	GlobalSearch    Builtin = ContentGlobalSearch
)

var builtins = []Builtin{
	LanguageCode, Login, RecordMayCreate, RecordMayUpdate, RecordMayDelete,
	Record, RecordNew, FormChanged, True, GlobalSearch,
}

func (Attribute) Tag() string  { return ContentAttribute }
func (Value) Tag() string      { return ContentValue }
func (Collection) Tag() string { return ContentCollection }
func (SubQuery) Tag() string   { return ContentSubQuery }
func (Preset) Tag() string     { return ContentPreset }
func (Role) Tag() string       { return ContentRole }
func (Variable) Tag() string   { return ContentVariable }
func (Script) Tag() string     { return ContentJavascript }
func (b Builtin) Tag() string  { return string(b) }

func (f Field) Tag() string {
	if f.Kind == "" {
		return ContentField
	}
	return string(f.Kind)
}

func (n Now) Tag() string {
	if n.Kind == "" {
		return ContentNowDatetime
	}
	return string(n.Kind)
}

func (Attribute) content()  {}
func (Value) content()      {}
func (Collection) content() {}
func (Field) content()      {}
func (SubQuery) content()   {}
func (Preset) content()     {}
func (Role) content()       {}
func (Variable) content()   {}
func (Script) content()     {}
func (Now) content()        {}
func (Builtin) content()    {}

// AttributeOperand is a shortcut for an attribute reference operand.
func AttributeOperand(attributeID string, index int) Operand {
	return Operand{Content: Attribute{AttributeID: attributeID, Index: index}}
}

// ValueOperand is a shortcut for a literal operand.
func ValueOperand(v any) Operand {
	return Operand{Content: Value{Value: v}}
}
