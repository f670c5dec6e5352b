package schema

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	nullToken = "null"
	dirOrigin = "org"
	dirRel    = "rel"
)

// ErrInvalidIndexAttributeID is returned for keys that do not parse.
var ErrInvalidIndexAttributeID = errors.New("invalid index attribute id")

// IndexAttributeID names one attribute reached via join Index. OutsideIn is
// set when the attribute was reached through a relationship declared on the
// other relation. AttributeIDNm is the n:m partner attribute, if any.
type IndexAttributeID struct {
	Index         *int
	AttributeID   *string
	OutsideIn     bool
	AttributeIDNm *string
}

// String encodes the key as "{index}_{attributeId}_{org|rel}_{attributeIdNm}".
func (k IndexAttributeID) String() string {
	return EncodeIndexAttributeID(k.Index, k.AttributeID, k.OutsideIn, k.AttributeIDNm)
}

// EncodeIndexAttributeID builds the composite key. Nil parts encode as "null".
func EncodeIndexAttributeID(index *int, attributeID *string, outsideIn bool, attributeIDNm *string) string {
	dir := dirOrigin
	if outsideIn {
		dir = dirRel
	}

	idx := nullToken
	if index != nil {
		idx = strconv.Itoa(*index)
	}

	return strings.Join([]string{idx, orNull(attributeID), dir, orNull(attributeIDNm)}, "_")
}

// DecodeIndexAttributeID is the inverse of EncodeIndexAttributeID.
func DecodeIndexAttributeID(key string) (IndexAttributeID, error) {
	parts := strings.Split(key, "_")
	if len(parts) != 4 {
		return IndexAttributeID{}, fmt.Errorf("%w: %q", ErrInvalidIndexAttributeID, key)
	}

	var k IndexAttributeID
	if parts[0] != nullToken {
		i, err := strconv.Atoi(parts[0])
		if err != nil || i < 0 {
			return IndexAttributeID{}, fmt.Errorf("%w: bad index in %q", ErrInvalidIndexAttributeID, key)
		}
		k.Index = &i
	}

	switch parts[2] {
	case dirOrigin:
	case dirRel:
		k.OutsideIn = true
	default:
		return IndexAttributeID{}, fmt.Errorf("%w: bad direction in %q", ErrInvalidIndexAttributeID, key)
	}

	k.AttributeID = fromNull(parts[1])
	k.AttributeIDNm = fromNull(parts[3])
	return k, nil
}

func orNull(s *string) string {
	if s == nil {
		return nullToken
	}
	return *s
}

func fromNull(s string) *string {
	if s == nullToken {
		return nil
	}
	return &s
}
