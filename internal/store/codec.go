package store

import (
	"encoding/json"
	"math"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
)

var tJSONNumber = reflect.TypeOf(json.Number(""))

// Registry returns the BSON registry used by Connect. Configuration numbers
// arrive as json.Number; integers are written as int32 when they fit, int64
// otherwise, and everything else as a double.
func Registry() *bsoncodec.Registry {
	reg := bson.NewRegistry()
	reg.RegisterTypeEncoder(tJSONNumber, bsoncodec.ValueEncoderFunc(encodeJSONNumber))
	return reg
}

func encodeJSONNumber(_ bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	if !val.IsValid() || val.Type() != tJSONNumber {
		return bsoncodec.ValueEncoderError{Name: "encodeJSONNumber", Types: []reflect.Type{tJSONNumber}, Received: val}
	}

	n := json.Number(val.String())
	if i, err := n.Int64(); err == nil {
		if i >= math.MinInt32 && i <= math.MaxInt32 {
			return vw.WriteInt32(int32(i))
		}
		return vw.WriteInt64(i)
	}
	f, err := n.Float64()
	if err != nil {
		return err
	}
	return vw.WriteDouble(f)
}
