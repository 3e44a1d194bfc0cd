package expr

import (
	"bytes"

	"github.com/evalgo/eve-build/expr/exhash"
)

// ListValue is an ordered sequence of values.
type ListValue struct {
	memo
	Items []Value
}

func List(items ...Value) Value {
	return &ListValue{Items: items}
}

func ListFrom(items []Value) Value {
	return &ListValue{Items: items}
}

func (l *ListValue) Kind() Kind         { return KindList }
func (l *ListValue) TypeString() string { return "list" }
func (l *ListValue) Equal(o Value) bool { return equalByHash(l, o) }

func (l *ListValue) IsCacheable() bool {
	return l.getCacheable(func() bool {
		for _, v := range l.Items {
			if !v.IsCacheable() {
				return false
			}
		}
		return true
	})
}

func (l *ListValue) ToHash() exhash.Digest {
	return l.getHash(func() exhash.Digest {
		h := exhash.NewHasher()
		h.Update([]byte{discriminatorListTag})
		for _, v := range l.Items {
			d := v.ToHash()
			h.Update(d[:])
		}
		return h.Finalize()
	})
}
func (l *ListValue) ToIdentifier() string { return l.ToHash().String() }

func (l *ListValue) ToJSON(mode JSONMode) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range l.Items {
		if i > 0 {
			buf.WriteByte(',')
		}
		data, err := v.ToJSON(mode)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (l *ListValue) ToString() string {
	data, _ := l.ToJSON(SerializeAll)
	return string(data)
}

func (l *ListValue) ToAbbrevString(limit int) string { return toAbbrev(l.ToString(), limit) }
