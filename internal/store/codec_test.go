package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

func TestRegistry_JSONNumber(t *testing.T) {
	doc := map[string]interface{}{
		"small": json.Number("42"),
		"big":   json.Number("9000000000"),
		"frac":  json.Number("1.5"),
		"exp":   json.Number("1e3"),
		"nested": map[string]interface{}{
			"n": json.Number("-7"),
		},
	}

	data, err := bson.MarshalWithRegistry(Registry(), doc)
	require.NoError(t, err)
	raw := bson.Raw(data)

	tests := []struct {
		path []string
		typ  bsontype.Type
	}{
		{[]string{"small"}, bsontype.Int32},
		{[]string{"big"}, bsontype.Int64},
		{[]string{"frac"}, bsontype.Double},
		{[]string{"exp"}, bsontype.Double},
		{[]string{"nested", "n"}, bsontype.Int32},
	}
	for _, tt := range tests {
		v, err := raw.LookupErr(tt.path...)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.typ, v.Type, tt.path)
	}

	assert.Equal(t, int32(42), raw.Lookup("small").Int32())
	assert.Equal(t, int64(9000000000), raw.Lookup("big").Int64())
	assert.Equal(t, 1.5, raw.Lookup("frac").Double())
}

func TestRegistry_InvalidNumber(t *testing.T) {
	_, err := bson.MarshalWithRegistry(Registry(), map[string]interface{}{"x": json.Number("abc")})
	assert.Error(t, err)
}
