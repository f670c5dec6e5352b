package schema

import (
	"slices"
	"strings"
)

// Attribute content tags.
const (
	ContentBoolean        = "boolean"
	ContentInteger        = "integer"
	ContentBigint         = "bigint"
	ContentNumeric        = "numeric"
	ContentReal           = "real"
	ContentDouble         = "double precision"
	ContentVarchar        = "varchar"
	ContentText           = "text"
	ContentUUID           = "uuid"
	ContentRegconfig      = "regconfig"
	ContentFiles          = "files"
	ContentRelationship11 = "1:1"
	ContentRelationshipN1 = "n:1"
)

var (
	contentBoolean        = []string{ContentBoolean}
	contentInteger        = []string{ContentInteger, ContentBigint}
	contentDecimal        = []string{ContentNumeric, ContentReal, ContentDouble}
	contentFloat          = []string{ContentReal, ContentDouble}
	contentNumeric        = []string{ContentNumeric}
	contentString         = []string{ContentVarchar, ContentText}
	contentText           = []string{ContentText}
	contentUUID           = []string{ContentUUID}
	contentRegconfig      = []string{ContentRegconfig}
	contentFiles          = []string{ContentFiles}
	contentRelationship   = []string{ContentRelationship11, ContentRelationshipN1}
	contentRelationship11 = []string{ContentRelationship11}
	contentRelationshipN1 = []string{ContentRelationshipN1}
)

func IsBoolean(content string) bool        { return slices.Contains(contentBoolean, content) }
func IsInteger(content string) bool        { return slices.Contains(contentInteger, content) }
func IsDecimal(content string) bool        { return slices.Contains(contentDecimal, content) }
func IsFloat(content string) bool          { return slices.Contains(contentFloat, content) }
func IsNumeric(content string) bool        { return slices.Contains(contentNumeric, content) }
func IsString(content string) bool         { return slices.Contains(contentString, content) }
func IsText(content string) bool           { return slices.Contains(contentText, content) }
func IsUUID(content string) bool           { return slices.Contains(contentUUID, content) }
func IsRegconfig(content string) bool      { return slices.Contains(contentRegconfig, content) }
func IsFiles(content string) bool          { return slices.Contains(contentFiles, content) }
func IsRelationship(content string) bool   { return slices.Contains(contentRelationship, content) }
func IsRelationship11(content string) bool { return slices.Contains(contentRelationship11, content) }
func IsRelationshipN1(content string) bool { return slices.Contains(contentRelationshipN1, content) }

// IsNumber reports integer or decimal content.
func IsNumber(content string) bool {
	return IsInteger(content) || IsDecimal(content)
}

// Content uses refine how text and integer attributes are presented.
const (
	ContentUseDate     = "date"
	ContentUseDatetime = "datetime"
	ContentUseTime     = "time"
	ContentUseRichtext = "richtext"
	ContentUseTextarea = "textarea"
)

// IsDateLike reports attributes that hold unix dates, datetimes or times.
func IsDateLike(a Attribute) bool {
	if !IsInteger(a.Content) {
		return false
	}
	switch a.ContentUse {
	case ContentUseDate, ContentUseDatetime, ContentUseTime:
		return true
	}
	return false
}

// ContentFromSQLType maps a database column type to an attribute content tag.
func ContentFromSQLType(sqlType string) string {
	mappings := map[string][]string{
		ContentInteger: {"int", "integer", "smallint", "mediumint", "tinyint"},
		ContentBigint:  {"bigint"},
		ContentNumeric: {"decimal", "numeric"},
		ContentReal:    {"float", "real"},
		ContentDouble:  {"double", "double precision"},
		ContentVarchar: {"varchar", "char", "enum", "set"},
		ContentText:    {"text", "longtext", "mediumtext", "tinytext", "json"},
		ContentBoolean: {"bool", "boolean", "bit"},
		ContentUUID:    {"uuid"},
	}

	sqlType = strings.ToLower(strings.TrimSpace(sqlType))

	for content, values := range mappings {
		if slices.Contains(values, sqlType) {
			return content
		}
	}

	return ContentText
}
