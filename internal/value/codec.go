package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
)

// FromJSON decodes a JSON document into a Value tree. json.Number is used
// so integers that fit an int64/uint64 are not forced through float64 and
// lose precision, matching the IntS/IntU split of the tagged value model.
// Object keys are set in sorted order; the document's own key order is
// not kept.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return Nil(), fmt.Errorf("value: decode json: %w", err)
	}
	return fromGo(raw)
}

// ToJSON encodes a Value tree back to canonical JSON, preserving map key
// order.
func ToJSON(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v); err != nil {
		return nil, fmt.Errorf("value: encode json: %w", err)
	}
	return buf.Bytes(), nil
}

// FromMsgPack decodes a MsgPack document into a Value tree.
func FromMsgPack(data []byte) (Value, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetMapDecoder(func(d *msgpack.Decoder) (interface{}, error) {
		n, err := d.DecodeMapLen()
		if err != nil {
			return nil, err
		}
		m := NewOrderedMap()
		for i := 0; i < n; i++ {
			k, err := d.DecodeString()
			if err != nil {
				return nil, err
			}
			raw, err := d.DecodeInterface()
			if err != nil {
				return nil, err
			}
			vv, err := fromGo(raw)
			if err != nil {
				return nil, err
			}
			m.Set(k, vv)
		}
		return Value{kind: KindMap, m: m}, nil
	})
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return Nil(), fmt.Errorf("value: decode msgpack: %w", err)
	}
	if v, ok := raw.(Value); ok {
		return v, nil
	}
	return fromGo(raw)
}

// ToMsgPack encodes a Value tree to MsgPack.
func ToMsgPack(v Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := writeMsgPack(enc, v); err != nil {
		return nil, fmt.Errorf("value: encode msgpack: %w", err)
	}
	return buf.Bytes(), nil
}

func fromGo(raw interface{}) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Nil(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return IntS(i), nil
		}
		if u, err := strconv.ParseUint(string(t), 10, 64); err == nil {
			return IntU(u), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Nil(), fmt.Errorf("value: bad number %q: %w", t, err)
		}
		return Float(f), nil
	case int64:
		return IntS(t), nil
	case uint64:
		return IntU(t), nil
	case float64:
		return Float(t), nil
	case string:
		return String(t), nil
	case []byte:
		return Bytes(t), nil
	case []interface{}:
		out := make([]Value, len(t))
		for i, e := range t {
			cv, err := fromGo(e)
			if err != nil {
				return Nil(), err
			}
			out[i] = cv
		}
		return Array(out), nil
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := NewOrderedMap()
		for _, k := range keys {
			cv, err := fromGo(t[k])
			if err != nil {
				return Nil(), err
			}
			m.Set(k, cv)
		}
		return Map(m), nil
	case Value:
		return t, nil
	default:
		return Nil(), fmt.Errorf("value: unsupported decoded type %T", raw)
	}
}

func writeJSON(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case KindNil:
		buf.WriteString("null")
	case KindBool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindIntS:
		fmt.Fprintf(buf, "%d", v.i)
	case KindIntU:
		fmt.Fprintf(buf, "%d", v.u)
	case KindFloat:
		b, err := json.Marshal(v.f)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindString:
		b, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindBytes:
		b, err := json.Marshal(v.by)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindArray:
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		first := true
		err := v.m.Each(func(k string, e Value) error {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			return writeJSON(buf, e)
		})
		if err != nil {
			return err
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("value: unknown kind %v", v.kind)
	}
	return nil
}

func writeMsgPack(enc *msgpack.Encoder, v Value) error {
	switch v.kind {
	case KindNil:
		return enc.EncodeNil()
	case KindBool:
		return enc.EncodeBool(v.b)
	case KindIntS:
		return enc.EncodeInt64(v.i)
	case KindIntU:
		return enc.EncodeUint64(v.u)
	case KindFloat:
		return enc.EncodeFloat64(v.f)
	case KindString:
		return enc.EncodeString(v.s)
	case KindBytes:
		return enc.EncodeBytes(v.by)
	case KindArray:
		if err := enc.EncodeArrayLen(len(v.arr)); err != nil {
			return err
		}
		for _, e := range v.arr {
			if err := writeMsgPack(enc, e); err != nil {
				return err
			}
		}
		return nil
	case KindMap:
		if err := enc.EncodeMapLen(v.m.Len()); err != nil {
			return err
		}
		return v.m.Each(func(k string, e Value) error {
			if err := enc.EncodeString(k); err != nil {
				return err
			}
			return writeMsgPack(enc, e)
		})
	default:
		return fmt.Errorf("value: unknown kind %v", v.kind)
	}
}
