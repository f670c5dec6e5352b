package builder_test

import (
	"github.com/xcono/relquery/schema"
)

const (
	relPerson     = "10000000-0000-0000-0000-000000000001"
	relDepartment = "10000000-0000-0000-0000-000000000002"
	relTask       = "10000000-0000-0000-0000-000000000003"

	attrPersonID     = "20000000-0000-0000-0000-000000000001"
	attrPersonName   = "20000000-0000-0000-0000-000000000002"
	attrPersonAge    = "20000000-0000-0000-0000-000000000003"
	attrPersonSecret = "20000000-0000-0000-0000-000000000004"
	attrPersonDept   = "20000000-0000-0000-0000-000000000005"

	attrDeptID   = "20000000-0000-0000-0000-000000000011"
	attrDeptName = "20000000-0000-0000-0000-000000000012"

	attrTaskID     = "20000000-0000-0000-0000-000000000021"
	attrTaskTitle  = "20000000-0000-0000-0000-000000000022"
	attrTaskPerson = "20000000-0000-0000-0000-000000000023"
	attrTaskHours  = "20000000-0000-0000-0000-000000000024"
)

func ptr[T any](v T) *T { return &v }

// testCatalog models person n:1 department and task n:1 person.
func testCatalog() *schema.MemCatalog {
	return schema.NewCatalog(
		schema.Relation{
			ID:         relPerson,
			Name:       "person",
			PrimaryKey: "id",
			Attributes: []schema.Attribute{
				{ID: attrPersonID, Name: "id", Content: schema.ContentInteger},
				{ID: attrPersonName, Name: "name", Content: schema.ContentText},
				{ID: attrPersonAge, Name: "age", Content: schema.ContentInteger, Nullable: true},
				{ID: attrPersonSecret, Name: "secret", Content: schema.ContentText, Encrypted: true},
				{ID: attrPersonDept, Name: "department_id", Content: schema.ContentRelationshipN1, RelationshipID: ptr(relDepartment)},
			},
			Indexes: []schema.Index{
				{ID: "30000000-0000-0000-0000-000000000001", Name: "person_name_fts", Attributes: []string{attrPersonName}, Method: schema.IndexMethodGIN, Dictionary: schema.DictionarySimple},
			},
		},
		schema.Relation{
			ID:   relDepartment,
			Name: "department",
			Attributes: []schema.Attribute{
				{ID: attrDeptID, Name: "id", Content: schema.ContentInteger},
				{ID: attrDeptName, Name: "name", Content: schema.ContentText},
			},
			Indexes: []schema.Index{
				{ID: "30000000-0000-0000-0000-000000000002", Name: "department_name_fts", Attributes: []string{attrDeptName}, Method: schema.IndexMethodGIN, Dictionary: "english"},
			},
		},
		schema.Relation{
			ID:   relTask,
			Name: "task",
			Attributes: []schema.Attribute{
				{ID: attrTaskID, Name: "id", Content: schema.ContentInteger},
				{ID: attrTaskTitle, Name: "title", Content: schema.ContentText},
				{ID: attrTaskPerson, Name: "person_id", Content: schema.ContentRelationshipN1, RelationshipID: ptr(relPerson)},
				{ID: attrTaskHours, Name: "hours", Content: schema.ContentInteger},
			},
		},
	)
}
