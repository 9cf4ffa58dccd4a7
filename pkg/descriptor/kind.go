package descriptor

import (
	"fmt"
	"strings"
)

// Kind is the closed set of field kinds an adapter can describe.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindText
	KindInteger
	KindNumber
	KindBoolean
	KindDate
	KindDateTime
	KindTime
	KindBinary

	kindCount
)

var kindNames = [kindCount]string{
	KindInvalid:  "invalid",
	KindString:   "string",
	KindText:     "text",
	KindInteger:  "integer",
	KindNumber:   "number",
	KindBoolean:  "boolean",
	KindDate:     "date",
	KindDateTime: "datetime",
	KindTime:     "time",
	KindBinary:   "binary",
}

// Kinds returns every valid kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount-1)
	for k := KindString; k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

func (k Kind) String() string {
	if k >= kindCount {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool { return k > KindInvalid && k < kindCount }

// IsNumeric reports integer and number kinds.
func (k Kind) IsNumeric() bool { return k == KindInteger || k == KindNumber }

// IsTemporal reports date, datetime and time kinds.
func (k Kind) IsTemporal() bool { return k == KindDate || k == KindDateTime || k == KindTime }

// IsTextual reports string and text kinds.
func (k Kind) IsTextual() bool { return k == KindString || k == KindText }

// ParseKind maps a kind name to its Kind. A few common aliases are accepted.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "varchar", "char":
		return KindString, nil
	case "text":
		return KindText, nil
	case "integer", "int", "bigint":
		return KindInteger, nil
	case "number", "float", "decimal", "double":
		return KindNumber, nil
	case "boolean", "bool":
		return KindBoolean, nil
	case "date":
		return KindDate, nil
	case "datetime", "timestamp":
		return KindDateTime, nil
	case "time":
		return KindTime, nil
	case "binary", "blob", "bytes":
		return KindBinary, nil
	}
	return KindInvalid, fmt.Errorf("unknown field kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid field kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}
