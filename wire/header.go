// Package wire implements the RFC-003 peer wire grammar of spec.md
// §4.4: bit-exact header serialization, the SWAP request/response
// bodies, and the decision/decline-reason vocabulary. Cross-node
// compatibility depends on this package being byte-exact, so every
// format here is covered by round-trip tests.
package wire

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Header is a single parsed wire header: `value; k1=v1; k2=v2`.
type Header struct {
	Value  string
	Params map[string]string
}

// NewHeader constructs a Header with the given value and parameters.
func NewHeader(value string, params map[string]string) Header {
	if params == nil {
		params = map[string]string{}
	}
	return Header{Value: value, Params: params}
}

// String renders the header grammar exactly: `value; k1=v1; k2=v2`,
// with parameters in a stable (sorted) order so the same Header always
// serializes identically.
func (h Header) String() string {
	var b strings.Builder
	b.WriteString(h.Value)

	keys := make([]string, 0, len(h.Params))
	for k := range h.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		b.WriteString("; ")
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(h.Params[k])
	}
	return b.String()
}

// ParseHeader parses the `value; k1=v1; k2=v2` grammar.
func ParseHeader(s string) (Header, error) {
	parts := strings.Split(s, ";")
	h := Header{Value: strings.TrimSpace(parts[0]), Params: map[string]string{}}
	if h.Value == "" {
		return Header{}, fmt.Errorf("wire: empty header value in %q", s)
	}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return Header{}, fmt.Errorf("wire: malformed header parameter %q in %q", p, s)
		}
		h.Params[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return h, nil
}

// Param returns a parameter value and whether it was present.
func (h Header) Param(key string) (string, bool) {
	v, ok := h.Params[key]
	return v, ok
}

// ParamUint64 parses a decimal parameter.
func (h Header) ParamUint64(key string) (uint64, error) {
	v, ok := h.Param(key)
	if !ok {
		return 0, fmt.Errorf("wire: missing parameter %q", key)
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("wire: parameter %q is not a valid uint64: %w", key, err)
	}
	return n, nil
}

// ParamUint32 parses a decimal parameter into a uint32.
func (h Header) ParamUint32(key string) (uint32, error) {
	n, err := h.ParamUint64(key)
	if err != nil {
		return 0, err
	}
	if n > 1<<32-1 {
		return 0, fmt.Errorf("wire: parameter %q overflows uint32", key)
	}
	return uint32(n), nil
}
