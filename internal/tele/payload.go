package tele

import (
	"encoding/json"
	"fmt"

	structpb "github.com/golang/protobuf/ptypes/struct"
	"github.com/juju/errors"
)

// ListValue converts extracted values into `google.protobuf.ListValue`.
func ListValue(values []interface{}) (*structpb.ListValue, error) {
	list := &structpb.ListValue{Values: make([]*structpb.Value, len(values))}
	for i, v := range values {
		pv, err := toValue(v)
		if err != nil {
			return nil, errors.Annotatef(err, "value[%d]", i)
		}
		list.Values[i] = pv
	}
	return list, nil
}

func toValue(v interface{}) (*structpb.Value, error) {
	switch x := v.(type) {
	case nil:
		return &structpb.Value{Kind: &structpb.Value_NullValue{NullValue: structpb.NullValue_NULL_VALUE}}, nil
	case bool:
		return &structpb.Value{Kind: &structpb.Value_BoolValue{BoolValue: x}}, nil
	case string:
		return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: x}}, nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, errors.NotValidf("number=%s", x)
		}
		return number(f), nil
	case float64:
		return number(x), nil
	case float32:
		return number(float64(x)), nil
	case int:
		return number(float64(x)), nil
	case int32:
		return number(float64(x)), nil
	case int64:
		return number(float64(x)), nil
	case uint32:
		return number(float64(x)), nil
	case uint64:
		return number(float64(x)), nil
	case []interface{}:
		list, err := ListValue(x)
		if err != nil {
			return nil, err
		}
		return &structpb.Value{Kind: &structpb.Value_ListValue{ListValue: list}}, nil
	case map[string]interface{}:
		s := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(x))}
		for k, item := range x {
			pv, err := toValue(item)
			if err != nil {
				return nil, errors.Annotatef(err, "key=%s", k)
			}
			s.Fields[k] = pv
		}
		return &structpb.Value{Kind: &structpb.Value_StructValue{StructValue: s}}, nil
	case fmt.Stringer:
		return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: x.String()}}, nil
	default:
		return nil, errors.NotSupportedf("value type %T", v)
	}
}

func number(f float64) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: f}}
}
