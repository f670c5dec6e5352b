package schema

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Index methods.
const (
	IndexMethodBTree = "BTREE"
	IndexMethodGIN   = "GIN"
)

// DictionarySimple is the full-text dictionary that needs no language selection.
const DictionarySimple = "simple"

type (
	// Catalog is the read-only schema metadata lookup used by the query model.
	Catalog interface {
		Relation(id string) (Relation, bool)
		Attribute(id string) (Attribute, bool)
	}

	// Relation is a table known to the builder.
	Relation struct {
		ID         string      `yaml:"id" json:"id"`
		Name       string      `yaml:"name" json:"name"`
		PrimaryKey string      `yaml:"primaryKey,omitempty" json:"primaryKey,omitempty"`
		Encryption bool        `yaml:"encryption,omitempty" json:"encryption,omitempty"`
		Attributes []Attribute `yaml:"attributes" json:"attributes"`
		Indexes    []Index     `yaml:"indexes,omitempty" json:"indexes,omitempty"`
	}

	// Attribute is a column of a relation. Relationship attributes point
	// to their partner relation through RelationshipID.
	Attribute struct {
		ID             string  `yaml:"id" json:"id"`
		RelationID     string  `yaml:"relationId" json:"relationId"`
		RelationshipID *string `yaml:"relationshipId,omitempty" json:"relationshipId,omitempty"`
		Name           string  `yaml:"name" json:"name"`
		Content        string  `yaml:"content" json:"content"`
		ContentUse     string  `yaml:"contentUse,omitempty" json:"contentUse,omitempty"`
		Nullable       bool    `yaml:"nullable,omitempty" json:"nullable,omitempty"`
		Encrypted      bool    `yaml:"encrypted,omitempty" json:"encrypted,omitempty"`
	}

	// Index is a relation index. GIN indexes are full-text indexes.
	Index struct {
		ID         string   `yaml:"id" json:"id"`
		Name       string   `yaml:"name" json:"name"`
		Attributes []string `yaml:"attributes" json:"attributes"`
		Unique     bool     `yaml:"unique,omitempty" json:"unique,omitempty"`
		Method     string   `yaml:"method,omitempty" json:"method,omitempty"`
		Dictionary string   `yaml:"dictionary,omitempty" json:"dictionary,omitempty"`
	}
)

// PrimaryKeyName returns the primary key column, "id" when not declared.
func (r Relation) PrimaryKeyName() string {
	if r.PrimaryKey == "" {
		return "id"
	}
	return r.PrimaryKey
}

// FullTextIndex returns the GIN index covering the attribute, if any.
func (r Relation) FullTextIndex(attributeID string) (Index, bool) {
	for _, idx := range r.Indexes {
		if idx.Method != IndexMethodGIN {
			continue
		}
		for _, id := range idx.Attributes {
			if id == attributeID {
				return idx, true
			}
		}
	}
	return Index{}, false
}

// MemCatalog is an in-memory Catalog.
type MemCatalog struct {
	relations  map[string]Relation
	attributes map[string]Attribute
}

// NewCatalog creates a catalog from the given relations.
func NewCatalog(relations ...Relation) *MemCatalog {
	c := &MemCatalog{
		relations:  make(map[string]Relation, len(relations)),
		attributes: make(map[string]Attribute),
	}
	for _, r := range relations {
		c.Add(r)
	}
	return c
}

// Add registers or replaces a relation and its attributes.
func (c *MemCatalog) Add(r Relation) {
	if old, ok := c.relations[r.ID]; ok {
		for _, a := range old.Attributes {
			delete(c.attributes, a.ID)
		}
	}
	for i := range r.Attributes {
		if r.Attributes[i].RelationID == "" {
			r.Attributes[i].RelationID = r.ID
		}
		c.attributes[r.Attributes[i].ID] = r.Attributes[i]
	}
	c.relations[r.ID] = r
}

// Relation implements Catalog.
func (c *MemCatalog) Relation(id string) (Relation, bool) {
	r, ok := c.relations[id]
	return r, ok
}

// Attribute implements Catalog.
func (c *MemCatalog) Attribute(id string) (Attribute, bool) {
	a, ok := c.attributes[id]
	return a, ok
}

// Relations returns all relations sorted by name.
func (c *MemCatalog) Relations() []Relation {
	out := make([]Relation, 0, len(c.relations))
	for _, r := range c.relations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RelationByName finds a relation by its table name.
func (c *MemCatalog) RelationByName(name string) (Relation, bool) {
	for _, r := range c.relations {
		if r.Name == name {
			return r, true
		}
	}
	return Relation{}, false
}

// AttributeByName finds an attribute of a relation by its column name.
func (r Relation) AttributeByName(name string) (Attribute, bool) {
	for _, a := range r.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

type catalogFile struct {
	Relations []Relation `yaml:"relations"`
}

// LoadCatalogFile reads a YAML catalog file.
func LoadCatalogFile(path string) (*MemCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog document.
func ParseCatalog(data []byte) (*MemCatalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return NewCatalog(f.Relations...), nil
}

// MarshalCatalog encodes the catalog as a YAML document.
func MarshalCatalog(c *MemCatalog) ([]byte, error) {
	return yaml.Marshal(catalogFile{Relations: c.Relations()})
}
