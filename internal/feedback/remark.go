package feedback

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// The model sometimes wraps the actual feedback in a nested object. The
// search below is a heuristic workaround for that inconsistency, not a
// guaranteed-correct parse: first match wins, depth-first, object properties
// visited in document order. Go maps don't preserve key order, so the raw
// JSON is re-parsed into an order-preserving tree first.

// orderedObject is a JSON object with its keys in document order.
type orderedObject struct {
	keys   []string
	values map[string]interface{}
}

// FindObjectWithRemark searches raw JSON for the first object carrying a
// "remark" field. Returns nil when no such object exists or the input is
// not valid JSON.
func FindObjectWithRemark(raw []byte) map[string]interface{} {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	root, err := parseOrdered(dec)
	if err != nil {
		return nil
	}
	found := searchRemark(root)
	if found == nil {
		return nil
	}
	return flatten(found)
}

func searchRemark(v interface{}) *orderedObject {
	switch val := v.(type) {
	case *orderedObject:
		if _, ok := val.values["remark"]; ok {
			return val
		}
		for _, k := range val.keys {
			if found := searchRemark(val.values[k]); found != nil {
				return found
			}
		}
	case []interface{}:
		for _, child := range val {
			if found := searchRemark(child); found != nil {
				return found
			}
		}
	}
	return nil
}

// flatten converts an ordered object tree back into plain maps for decoding.
func flatten(obj *orderedObject) map[string]interface{} {
	out := make(map[string]interface{}, len(obj.keys))
	for _, k := range obj.keys {
		out[k] = flattenValue(obj.values[k])
	}
	return out
}

func flattenValue(v interface{}) interface{} {
	switch val := v.(type) {
	case *orderedObject:
		return flatten(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			out[i] = flattenValue(child)
		}
		return out
	default:
		return v
	}
}

// parseOrdered reads one JSON value from dec, representing objects as
// orderedObject so document order survives.
func parseOrdered(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return parseTokenValue(dec, tok)
}

func parseTokenValue(dec *json.Decoder, tok json.Token) (interface{}, error) {
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := &orderedObject{values: make(map[string]interface{})}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("object key is not a string: %v", keyTok)
			}
			val, err := parseOrdered(dec)
			if err != nil {
				return nil, err
			}
			obj.keys = append(obj.keys, key)
			obj.values[key] = val
		}
		// consume closing '}'
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		var arr []interface{}
		for dec.More() {
			val, err := parseOrdered(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		// consume closing ']'
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %v", delim)
	}
}
