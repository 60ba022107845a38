package schema

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/tidwall/gjson"
)

func has0x(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// ParseUint256 accepts a 0x-prefixed hex or a plain decimal string.
func ParseUint256(s string) (uint256.Int, error) {
	var out uint256.Int
	digits, base := s, 10
	if has0x(s) {
		digits, base = s[2:], 16
	}
	if digits == "" || digits[0] == '+' || digits[0] == '-' {
		return out, errNumber
	}
	b, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return out, errNumber
	}
	if out.SetFromBig(b) {
		return out, errOverflow
	}
	return out, nil
}

// NormalizeHash lower-cases a 32-byte hex id and adds the 0x prefix.
func NormalizeHash(s string) (string, bool) {
	h, err := parseHash(s)
	if err != nil {
		return "", false
	}
	return h.Hex(), true
}

// NormalizeAuctionID renders an auction id in canonical decimal form.
func NormalizeAuctionID(s string) (string, bool) {
	v, err := ParseUint256(s)
	if err != nil {
		return "", false
	}
	return v.Dec(), true
}

func parseHash(s string) (common.Hash, error) {
	if !has0x(s) {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, errHash
	}
	return common.BytesToHash(b), nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, errAddress
	}
	return common.HexToAddress(s), nil
}

func parseData(s string) (hexutil.Bytes, error) {
	if !has0x(s) {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, errHex
	}
	return b, nil
}

// fields wraps a gjson object with typed, validated accessors. The first
// failure sticks and later calls become no-ops.
type fields struct {
	prefix string
	obj    gjson.Result
	err    error
}

func newFields(prefix string, obj gjson.Result) *fields {
	f := &fields{prefix: prefix, obj: obj}
	if !obj.IsObject() {
		f.err = fieldErr(strings.TrimSuffix(prefix, "."), "", errType)
	}
	return f
}

func (f *fields) get(name string, want gjson.Type) (gjson.Result, bool) {
	if f.err != nil {
		return gjson.Result{}, false
	}
	r := f.obj.Get(name)
	if !r.Exists() || r.Type == gjson.Null {
		f.err = fieldErr(f.prefix+name, "", errMissing)
		return r, false
	}
	if r.Type != want {
		f.err = fieldErr(f.prefix+name, r.Raw, errType)
		return r, false
	}
	return r, true
}

func (f *fields) str(name string) string {
	r, ok := f.get(name, gjson.String)
	if !ok {
		return ""
	}
	return r.Str
}

// uint64 reads a JSON number without going through float64.
func (f *fields) uint64(name string) uint64 {
	r, ok := f.get(name, gjson.Number)
	if !ok {
		return 0
	}
	v, err := strconv.ParseUint(r.Raw, 10, 64)
	if err != nil {
		f.err = fieldErr(f.prefix+name, r.Raw, errNumber)
	}
	return v
}

func (f *fields) u256(name string) uint256.Int {
	s := f.str(name)
	if f.err != nil {
		return uint256.Int{}
	}
	v, err := ParseUint256(s)
	if err != nil {
		f.err = fieldErr(f.prefix+name, s, err)
	}
	return v
}

func (f *fields) hash(name string) common.Hash {
	s := f.str(name)
	if f.err != nil {
		return common.Hash{}
	}
	h, err := parseHash(s)
	if err != nil {
		f.err = fieldErr(f.prefix+name, s, err)
	}
	return h
}

func (f *fields) address(name string) common.Address {
	s := f.str(name)
	if f.err != nil {
		return common.Address{}
	}
	a, err := parseAddress(s)
	if err != nil {
		f.err = fieldErr(f.prefix+name, s, err)
	}
	return a
}

func (f *fields) data(name string) hexutil.Bytes {
	s := f.str(name)
	if f.err != nil {
		return nil
	}
	b, err := parseData(s)
	if err != nil {
		f.err = fieldErr(f.prefix+name, s, err)
	}
	return b
}

func (f *fields) array(name string) []gjson.Result {
	r, ok := f.get(name, gjson.JSON)
	if !ok {
		return nil
	}
	if !r.IsArray() {
		f.err = fieldErr(f.prefix+name, "", errType)
		return nil
	}
	return r.Array()
}

func (f *fields) object(name string) gjson.Result {
	r, ok := f.get(name, gjson.JSON)
	if ok && !r.IsObject() {
		f.err = fieldErr(f.prefix+name, "", errType)
	}
	return r
}

func root(raw []byte) (*fields, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fieldErr("payload", "", errJSON)
	}
	f := newFields("", gjson.ParseBytes(raw))
	if f.err != nil {
		return nil, f.err
	}
	return f, nil
}
