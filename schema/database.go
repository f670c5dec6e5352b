package schema

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"
)

// idNamespace seeds deterministic relation and attribute ids derived from names.
var idNamespace = uuid.MustParse("6f1c1f0e-4d8b-4f51-9a43-3c2b8f3e0a11")

type (
	// Database introspects relations from a live database.
	Database interface {
		Catalog(tables ...string) (*MemCatalog, error)
	}

	// MySQL introspects a MySQL database through information_schema.
	MySQL struct {
		db *sql.DB
	}
)

// NewMySQL creates a new MySQL database instance
func NewMySQL(db *sql.DB) *MySQL {
	return &MySQL{db: db}
}

// RelationID returns the deterministic id of a table.
func RelationID(dbName, table string) string {
	return uuid.NewSHA1(idNamespace, []byte(dbName+"."+table)).String()
}

// AttributeID returns the deterministic id of a column.
func AttributeID(dbName, table, column string) string {
	return uuid.NewSHA1(idNamespace, []byte(dbName+"."+table+"."+column)).String()
}

// Catalog loads relations:
// - attributes from `information_schema.columns`
// - relationships from `information_schema.key_column_usage`
// - indexes from `information_schema.statistics`
func (d *MySQL) Catalog(tables ...string) (*MemCatalog, error) {
	// Get current database name from the connection
	var dbName string
	err := d.db.QueryRow("SELECT DATABASE()").Scan(&dbName)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve database name: %w", err)
	}

	// If no tables specified, get all tables
	if len(tables) == 0 {
		allTables, err := d.getAllTables(dbName)
		if err != nil {
			return nil, fmt.Errorf("failed to get all tables: %w", err)
		}
		tables = allTables
	}

	catalog := NewCatalog()
	for _, tableName := range tables {
		relation, err := d.getRelation(dbName, tableName)
		if err != nil {
			return nil, fmt.Errorf("failed to get info for table %s: %w", tableName, err)
		}
		catalog.Add(relation)
	}

	logx.Infof("introspected %d relations from %s", len(tables), dbName)
	return catalog, nil
}

// getAllTables retrieves all table names from the database
func (d *MySQL) getAllTables(dbName string) ([]string, error) {
	query := `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME`

	rows, err := d.db.Query(query, dbName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, err
		}
		tables = append(tables, tableName)
	}

	return tables, rows.Err()
}

// getRelation retrieves complete information for a single table
func (d *MySQL) getRelation(dbName, tableName string) (Relation, error) {
	relation := Relation{
		ID:   RelationID(dbName, tableName),
		Name: tableName,
	}

	references, err := d.getReferences(dbName, tableName)
	if err != nil {
		return Relation{}, err
	}

	attributes, primaryKey, err := d.getAttributes(dbName, tableName, references)
	if err != nil {
		return Relation{}, err
	}
	relation.Attributes = attributes
	relation.PrimaryKey = primaryKey

	indexes, err := d.getIndexes(dbName, tableName)
	if err != nil {
		return Relation{}, err
	}
	relation.Indexes = indexes

	return relation, nil
}

// getReferences maps foreign key columns to the table they reference
func (d *MySQL) getReferences(dbName, tableName string) (map[string]string, error) {
	query := `
		SELECT
			COLUMN_NAME,
			REFERENCED_TABLE_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND REFERENCED_TABLE_NAME IS NOT NULL
	`

	rows, err := d.db.Query(query, dbName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	references := make(map[string]string)
	for rows.Next() {
		var column, referenced string
		if err := rows.Scan(&column, &referenced); err != nil {
			return nil, err
		}
		references[column] = referenced
	}

	return references, rows.Err()
}

// getAttributes retrieves column information for a table
func (d *MySQL) getAttributes(dbName, tableName string, references map[string]string) ([]Attribute, string, error) {
	query := `
		SELECT
			COLUMN_NAME,
			DATA_TYPE,
			IS_NULLABLE,
			COLUMN_KEY
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`

	rows, err := d.db.Query(query, dbName, tableName)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var attributes []Attribute
	var primaryKey string
	for rows.Next() {
		var name, dataType, isNullable, key string
		if err := rows.Scan(&name, &dataType, &isNullable, &key); err != nil {
			return nil, "", err
		}

		attribute := Attribute{
			ID:         AttributeID(dbName, tableName, name),
			RelationID: RelationID(dbName, tableName),
			Name:       name,
			Content:    ContentFromSQLType(dataType),
			Nullable:   isNullable == "YES",
		}

		if referenced, ok := references[name]; ok {
			partner := RelationID(dbName, referenced)
			attribute.RelationshipID = &partner
			attribute.Content = ContentRelationshipN1
			if key == "UNI" {
				attribute.Content = ContentRelationship11
			}
		}

		if key == "PRI" && primaryKey == "" {
			primaryKey = name
		}

		attributes = append(attributes, attribute)
	}

	return attributes, primaryKey, rows.Err()
}

// getIndexes retrieves index information for a table
func (d *MySQL) getIndexes(dbName, tableName string) ([]Index, error) {
	query := `
		SELECT
			INDEX_NAME,
			COLUMN_NAME,
			NON_UNIQUE,
			INDEX_TYPE
		FROM INFORMATION_SCHEMA.STATISTICS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY INDEX_NAME, SEQ_IN_INDEX
	`

	rows, err := d.db.Query(query, dbName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []Index
	positions := make(map[string]int)

	for rows.Next() {
		var indexName, columnName, indexType string
		var nonUnique int

		if err := rows.Scan(&indexName, &columnName, &nonUnique, &indexType); err != nil {
			return nil, err
		}

		// Skip PRIMARY key as it's handled in columns
		if indexName == "PRIMARY" {
			continue
		}

		pos, ok := positions[indexName]
		if !ok {
			index := Index{
				ID:     uuid.NewSHA1(idNamespace, []byte(dbName+"."+tableName+"#"+indexName)).String(),
				Name:   indexName,
				Unique: nonUnique == 0,
				Method: IndexMethodBTree,
			}
			// MySQL full-text parsing has no dictionary selection
			if strings.EqualFold(indexType, "FULLTEXT") {
				index.Method = IndexMethodGIN
				index.Dictionary = DictionarySimple
			}
			indexes = append(indexes, index)
			pos = len(indexes) - 1
			positions[indexName] = pos
		}

		indexes[pos].Attributes = append(indexes[pos].Attributes, AttributeID(dbName, tableName, columnName))
	}

	return indexes, rows.Err()
}

// OpenDB opens a database from a "driver://uri" DSN.
func OpenDB(dsn string) (*sql.DB, error) {
	driver, uri, ok := strings.Cut(dsn, "://")
	if !ok {
		return nil, fmt.Errorf("dsn %q must have the form driver://uri", dsn)
	}

	db, err := sql.Open(driver, uri)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// LoadCatalog returns the catalog of a service, from its file or its database.
func LoadCatalog(s Service) (*MemCatalog, error) {
	if s.Catalog != "" {
		return LoadCatalogFile(s.Catalog)
	}
	if s.DSN == "" {
		return nil, fmt.Errorf("service needs a catalog file or a dsn")
	}

	db, err := OpenDB(s.DSN)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return NewMySQL(db).Catalog(s.Tables...)
}
