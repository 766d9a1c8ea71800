package harness

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseArgs converts command-line style strings to Go values matching the ABI
// inputs. Arrays are written as [a,b,c] and tuples as (a,b); "null" and "zero"
// denote the zero address.
func ParseArgs(inputs abi.Arguments, raw []string) ([]any, error) {
	if len(raw) != len(inputs) {
		return nil, fmt.Errorf("%w: expected %d arguments, got %d", ErrInvalidArguments, len(inputs), len(raw))
	}
	values := make([]any, len(raw))
	for i, in := range inputs {
		v, err := parseValue(in.Type, strings.TrimSpace(raw[i]))
		if err != nil {
			name := in.Name
			if name == "" {
				name = strconv.Itoa(i)
			}
			return nil, fmt.Errorf("%w: argument %s (%s): %v", ErrInvalidArguments, name, in.Type.String(), err)
		}
		values[i] = v
	}
	return values, nil
}

func parseValue(t abi.Type, s string) (any, error) {
	switch t.T {
	case abi.AddressTy:
		switch strings.ToLower(s) {
		case "null", "zero", "0", "0x0":
			return common.Address{}, nil
		}
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid address %q", s)
		}
		return common.HexToAddress(s), nil

	case abi.BoolTy:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("invalid bool %q", s)
		}
		return b, nil

	case abi.StringTy:
		return s, nil

	case abi.BytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("invalid bytes %q: %v", s, err)
		}
		return b, nil

	case abi.FixedBytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("invalid bytes%d %q: %v", t.Size, s, err)
		}
		if len(b) > t.Size {
			return nil, fmt.Errorf("value %q longer than bytes%d", s, t.Size)
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil

	case abi.IntTy, abi.UintTy:
		return parseInteger(t, s)

	case abi.TupleTy:
		items, err := splitGroup(s, '(', ')')
		if err != nil {
			return nil, err
		}
		if len(items) != len(t.TupleElems) {
			return nil, fmt.Errorf("expected %d tuple fields, got %d", len(t.TupleElems), len(items))
		}
		out := reflect.New(t.GetType()).Elem()
		for i, item := range items {
			v, err := parseValue(*t.TupleElems[i], item)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", t.TupleRawNames[i], err)
			}
			out.Field(i).Set(reflect.ValueOf(v))
		}
		return out.Interface(), nil

	case abi.SliceTy, abi.ArrayTy:
		items, err := splitGroup(s, '[', ']')
		if err != nil {
			return nil, err
		}
		if t.T == abi.ArrayTy && len(items) != t.Size {
			return nil, fmt.Errorf("expected %d elements, got %d", t.Size, len(items))
		}
		var out reflect.Value
		if t.T == abi.SliceTy {
			out = reflect.MakeSlice(t.GetType(), len(items), len(items))
		} else {
			out = reflect.New(t.GetType()).Elem()
		}
		for i, item := range items {
			v, err := parseValue(*t.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(reflect.ValueOf(v))
		}
		return out.Interface(), nil
	}
	return nil, fmt.Errorf("unsupported type %s", t.String())
}

func parseInteger(t abi.Type, s string) (any, error) {
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	if t.T == abi.UintTy && n.Sign() < 0 {
		return nil, fmt.Errorf("negative value %s for %s", s, t.String())
	}
	if overflows(n, t) {
		return nil, fmt.Errorf("value %s overflows %s", s, t.String())
	}

	// abi packs 8..64 bit integers from native Go types, wider ones from *big.Int
	goType := t.GetType()
	if goType == reflect.TypeOf(&big.Int{}) {
		return n, nil
	}
	v := reflect.New(goType).Elem()
	if t.T == abi.UintTy {
		v.SetUint(n.Uint64())
	} else {
		v.SetInt(n.Int64())
	}
	return v.Interface(), nil
}

func overflows(n *big.Int, t abi.Type) bool {
	if t.T == abi.UintTy {
		return n.BitLen() > t.Size
	}
	// signed range is [-2^(size-1), 2^(size-1)-1]
	limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
	if n.Sign() < 0 {
		return new(big.Int).Neg(n).Cmp(limit) > 0
	}
	return n.Cmp(limit) >= 0
}

// splitGroup splits "[a,b,[c,d]]" or "(a,(b,c))" into top-level elements
func splitGroup(s string, left, right byte) ([]string, error) {
	if len(s) < 2 || s[0] != left || s[len(s)-1] != right {
		return nil, fmt.Errorf("expected %c...%c, got %q", left, right, s)
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return nil, nil
	}

	var (
		items []string
		depth int
		start int
	)
	for i, c := range inner {
		switch c {
		case '[', '(':
			depth++
		case ']', ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced brackets in %q", s)
			}
		case ',':
			if depth == 0 {
				items = append(items, strings.Trim(strings.TrimSpace(inner[start:i]), `"`))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced brackets in %q", s)
	}
	items = append(items, strings.Trim(strings.TrimSpace(inner[start:]), `"`))
	return items, nil
}

// FormatValue renders a decoded ABI value for display: byte arrays as hex,
// addresses checksummed, lists in brackets.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case common.Address:
		return x.Hex()
	case common.Hash:
		return x.Hex()
	case []byte:
		return hexutil.Encode(x)
	case *big.Int:
		return x.String()
	case string:
		return x
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return hexutil.Encode(b)
		}
		return formatList(rv)
	case reflect.Slice:
		return formatList(rv)
	}
	return fmt.Sprint(v)
}

func formatList(rv reflect.Value) string {
	parts := make([]string, rv.Len())
	for i := range parts {
		parts[i] = FormatValue(rv.Index(i).Interface())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// FormatValues renders a result tuple
func FormatValues(values []any) string {
	if len(values) == 1 {
		return FormatValue(values[0])
	}
	return formatList(reflect.ValueOf(values))
}
