package replicast

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/replicast/replicast/protocol"
)

// Kind enumerates the wire-transmissible value kinds. The set is
// closed: both encode and decode switch over it exhaustively, so an
// unsupported value is a compile-time concern, not a wire fault.
type Kind byte

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindBytes
	KindEnum
	KindRef
	KindList
	KindMap
)

// One TLV record type per kind.
const (
	litNil    = 'N'
	litBool   = 'B'
	litInt    = 'I'
	litUint   = 'U'
	litFloat  = 'F'
	litString = 'S'
	litBytes  = 'D'
	litEnum   = 'E'
	litRef    = 'R'
	litList   = 'L'
	litMap    = 'M'
)

// Value is a tagged union carrying one wire-transmissible value:
// a property value, a method parameter, or a target reference.
// Collections nest recursively; maps keep their pairs in insertion
// order so encoding is deterministic.
type Value struct {
	kind Kind
	num  uint64 // bool, int (zigzagged), uint, float bits, enum ordinal
	str  string // string, enum type name, ref id
	blob []byte
	kids []Value // list elements; map pairs as k0,v0,k1,v1,...
}

func Nil() Value { return Value{kind: KindNil} }

func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

func Int(i int64) Value   { return Value{kind: KindInt, num: protocol.ZigZagInt64(i)} }
func Uint(u uint64) Value { return Value{kind: KindUint, num: u} }
func Float(f float64) Value {
	return Value{kind: KindFloat, num: protocol.UnzipUint64(protocol.ZipFloat64(f))}
}
func String(s string) Value { return Value{kind: KindString, str: s} }
func Bytes(b []byte) Value  { return Value{kind: KindBytes, blob: b} }

// Enum carries both the numeric value and the enum type name, so a
// receiver can still render a readable form for a type it never
// registered.
func Enum(typeName string, ordinal int64) Value {
	return Value{kind: KindEnum, str: typeName, num: protocol.ZigZagInt64(ordinal)}
}

// Ref names another sync target by its stable session-wide id.
func Ref(id string) Value { return Value{kind: KindRef, str: id} }

func List(elems ...Value) Value { return Value{kind: KindList, kids: elems} }

// Map takes alternating key, value, key, value...
func Map(pairs ...Value) Value {
	if len(pairs)%2 != 0 {
		panic("replicast: Map takes key/value pairs")
	}
	return Value{kind: KindMap, kids: pairs}
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNil() bool    { return v.kind == KindNil }
func (v Value) Bool() bool     { return v.num != 0 }
func (v Value) Int() int64     { return protocol.ZagZigUint64(v.num) }
func (v Value) Uint() uint64   { return v.num }
func (v Value) Float() float64 { return protocol.UnzipFloat64(protocol.ZipUint64(v.num)) }
func (v Value) Str() string    { return v.str }
func (v Value) Blob() []byte   { return v.blob }
func (v Value) RefID() string  { return v.str }
func (v Value) EnumType() string { return v.str }
func (v Value) EnumOrdinal() int64 { return protocol.ZagZigUint64(v.num) }
func (v Value) Len() int       { return len(v.kids) }
func (v Value) At(i int) Value { return v.kids[i] }

func (v Value) Equal(other Value) bool {
	if v.kind != other.kind || v.num != other.num || v.str != other.str {
		return false
	}
	if string(v.blob) != string(other.blob) || len(v.kids) != len(other.kids) {
		return false
	}
	for i := range v.kids {
		if !v.kids[i].Equal(other.kids[i]) {
			return false
		}
	}
	return true
}

// AppendValue encodes v as one TLV record, recursing for collections.
func AppendValue(into []byte, v Value) []byte {
	switch v.kind {
	case KindNil:
		return protocol.Append(into, litNil|protocol.CaseBit)
	case KindBool:
		return protocol.Append(into, litBool, protocol.ZipUint64(v.num))
	case KindInt:
		return protocol.Append(into, litInt, protocol.ZipUint64(v.num))
	case KindUint:
		return protocol.Append(into, litUint, protocol.ZipUint64(v.num))
	case KindFloat:
		return protocol.Append(into, litFloat, protocol.ZipUint64(v.num))
	case KindString:
		return protocol.Append(into, litString, []byte(v.str))
	case KindBytes:
		return protocol.Append(into, litBytes, v.blob)
	case KindEnum:
		body := protocol.Record(litString, []byte(v.str))
		body = protocol.Append(body, litInt, protocol.ZipUint64(v.num))
		return protocol.Append(into, litEnum, body)
	case KindRef:
		return protocol.Append(into, litRef, []byte(v.str))
	case KindList, KindMap:
		lit := byte(litList)
		if v.kind == KindMap {
			lit = litMap
		}
		var body []byte
		for _, kid := range v.kids {
			body = AppendValue(body, kid)
		}
		return protocol.Append(into, lit, body)
	default:
		panic(fmt.Sprintf("replicast: unencodable value kind %d", v.kind))
	}
}

// TakeValue decodes the value record at the start of data.
func TakeValue(data []byte) (v Value, rest []byte, err error) {
	lit, body, rest, err := protocol.TakeAnyWary(data)
	if err != nil {
		return Nil(), nil, err
	}
	switch lit {
	case litNil, '0': // tiny empty record normalizes its letter away
		if len(body) != 0 {
			return Nil(), nil, fmt.Errorf("%w: nil with a body", ErrBadValue)
		}
		return Nil(), rest, nil
	case litBool:
		n := protocol.UnzipUint64(body)
		if n > 1 {
			return Nil(), nil, fmt.Errorf("%w: bool %d", ErrBadValue, n)
		}
		return Value{kind: KindBool, num: n}, rest, nil
	case litInt:
		return Value{kind: KindInt, num: protocol.UnzipUint64(body)}, rest, nil
	case litUint:
		return Value{kind: KindUint, num: protocol.UnzipUint64(body)}, rest, nil
	case litFloat:
		return Value{kind: KindFloat, num: protocol.UnzipUint64(body)}, rest, nil
	case litString:
		return Value{kind: KindString, str: string(body)}, rest, nil
	case litBytes:
		return Value{kind: KindBytes, blob: append([]byte(nil), body...)}, rest, nil
	case litEnum:
		name, tail, err := protocol.TakeWary(litString, body)
		if err != nil {
			return Nil(), nil, fmt.Errorf("%w: enum name: %s", ErrBadValue, err)
		}
		ord, _, err := protocol.TakeWary(litInt, tail)
		if err != nil {
			return Nil(), nil, fmt.Errorf("%w: enum ordinal: %s", ErrBadValue, err)
		}
		return Value{kind: KindEnum, str: string(name), num: protocol.UnzipUint64(ord)}, rest, nil
	case litRef:
		return Value{kind: KindRef, str: string(body)}, rest, nil
	case litList, litMap:
		kind := KindList
		if lit == litMap {
			kind = KindMap
		}
		var kids []Value
		for len(body) > 0 {
			var kid Value
			kid, body, err = TakeValue(body)
			if err != nil {
				return Nil(), nil, err
			}
			kids = append(kids, kid)
		}
		if kind == KindMap && len(kids)%2 != 0 {
			return Nil(), nil, fmt.Errorf("%w: map with odd entry count", ErrBadValue)
		}
		return Value{kind: kind, kids: kids}, rest, nil
	default:
		return Nil(), nil, fmt.Errorf("%w: record '%c'", ErrBadValue, lit)
	}
}

// String renders the value deterministically for logs and
// decode-failure diagnostics.
func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.Bool())
	case KindInt:
		return strconv.FormatInt(v.Int(), 10)
	case KindUint:
		return strconv.FormatUint(v.num, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.str)
	case KindBytes:
		return fmt.Sprintf("0x%x", v.blob)
	case KindEnum:
		return fmt.Sprintf("%s(%d)", v.str, v.EnumOrdinal())
	case KindRef:
		return "@" + v.str
	case KindList, KindMap:
		var b strings.Builder
		opener, closer := "[", "]"
		if v.kind == KindMap {
			opener, closer = "{", "}"
		}
		b.WriteString(opener)
		for i := 0; i < len(v.kids); i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(v.kids[i].String())
			if v.kind == KindMap {
				b.WriteString(": ")
				i++
				b.WriteString(v.kids[i].String())
			}
		}
		b.WriteString(closer)
		return b.String()
	default:
		return fmt.Sprintf("?kind%d", v.kind)
	}
}
