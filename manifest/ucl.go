package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// marshalUCL renders d as a UCL document. UCL (Universal Config Language)
// has no pure-Go implementation reachable from this module's dependency
// graph (see DESIGN.md), so this writer treats UCL the way libucl's own
// "compact" emitter reads back: an object is a sequence of
// `bareword_or_quoted_key = value;` statements, arrays are bracketed lists,
// and nested objects/arrays recurse. Round-tripping is only required
// against Marshal/Unmarshal's own JSON/YAML forms (§8 property 4), so this
// writer never needs to parse UCL back — it only needs to be valid UCL
// syntax for tools downstream of this package.
func marshalUCL(d *Document) ([]byte, error) {
	// Route through encoding/json to get a generic, order-preserving-enough
	// value tree (map key order is not guaranteed by encoding/json, so sort
	// keys explicitly when writing).
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeUCLValue(&buf, v, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeUCLValue(buf *bytes.Buffer, v interface{}, indent int) error {
	switch val := v.(type) {
	case map[string]interface{}:
		return writeUCLObject(buf, val, indent)
	case []interface{}:
		return writeUCLArray(buf, val, indent)
	case string:
		buf.WriteString(strconv.Quote(val))
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case float64:
		if val == float64(int64(val)) {
			buf.WriteString(strconv.FormatInt(int64(val), 10))
		} else {
			buf.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
		}
	case nil:
		buf.WriteString(`""`)
	default:
		return fmt.Errorf("manifest: ucl: unsupported value type %T", v)
	}
	return nil
}

func writeUCLObject(buf *bytes.Buffer, obj map[string]interface{}, indent int) error {
	buf.WriteString("{\n")
	for _, k := range sortedKeys(obj) {
		writeIndent(buf, indent+1)
		writeUCLKey(buf, k)
		buf.WriteString(" = ")
		if err := writeUCLValue(buf, obj[k], indent+1); err != nil {
			return err
		}
		buf.WriteString(";\n")
	}
	writeIndent(buf, indent)
	buf.WriteByte('}')
	return nil
}

func writeUCLArray(buf *bytes.Buffer, arr []interface{}, indent int) error {
	buf.WriteString("[\n")
	for _, item := range arr {
		writeIndent(buf, indent+1)
		if err := writeUCLValue(buf, item, indent+1); err != nil {
			return err
		}
		buf.WriteString(",\n")
	}
	writeIndent(buf, indent)
	buf.WriteByte(']')
	return nil
}

// writeUCLKey emits k as a bareword when it is a plain identifier (libucl's
// own lenient grammar), quoting otherwise.
func writeUCLKey(buf *bytes.Buffer, k string) {
	bareword := len(k) > 0
	for _, r := range k {
		if !(r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			bareword = false
			break
		}
	}
	if bareword {
		buf.WriteString(k)
		return
	}
	buf.WriteString(strconv.Quote(k))
}

func writeIndent(buf *bytes.Buffer, n int) {
	for i := 0; i < n; i++ {
		buf.WriteString("  ")
	}
}
