// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Vestig (https://vestig.io/).
// Copyright 2024 Vestig, Inc.

package propagation

import "strings"

// Limits from the W3C Trace Context recommendation: at most 32 list members,
// each member capped to 256 bytes when composed.
const (
	tracestateMaxMembers    = 32
	tracestateMaxMemberSize = 256
)

type member struct {
	key   string
	value string
}

// Tracestate is an ordered list of key=value members from a tracestate
// header. Member order is significant: updates move the touched key to the
// front, per the recommendation.
type Tracestate struct {
	members []member
}

// ParseTracestate parses a comma-separated tracestate header, preserving
// member order. Malformed members are skipped rather than failing the whole
// header, matching common vendor behavior.
func ParseTracestate(header string) Tracestate {
	var ts Tracestate
	for _, raw := range strings.Split(header, ",") {
		raw = strings.Trim(raw, " \t")
		if raw == "" {
			continue
		}
		k, v, found := strings.Cut(raw, "=")
		if !found || !validTracestateKey(k) || !validTracestateValue(v) {
			continue
		}
		if len(raw) > tracestateMaxMemberSize {
			continue
		}
		if _, exists := ts.get(k); exists {
			continue
		}
		ts.members = append(ts.members, member{key: k, value: v})
		if len(ts.members) == tracestateMaxMembers {
			break
		}
	}
	return ts
}

// Get returns the value stored under key.
func (ts *Tracestate) Get(key string) (string, bool) { return ts.get(key) }

func (ts *Tracestate) get(key string) (string, bool) {
	for _, m := range ts.members {
		if m.key == key {
			return m.value, true
		}
	}
	return "", false
}

// Set inserts or updates key, moving it to the front of the list. When the
// list is full the rightmost member is evicted. Invalid keys or values are
// ignored.
func (ts *Tracestate) Set(key, value string) {
	if !validTracestateKey(key) || !validTracestateValue(value) {
		return
	}
	if len(key)+len(value)+1 > tracestateMaxMemberSize {
		return
	}
	filtered := ts.members[:0:0]
	for _, m := range ts.members {
		if m.key != key {
			filtered = append(filtered, m)
		}
	}
	ts.members = append([]member{{key: key, value: value}}, filtered...)
	if len(ts.members) > tracestateMaxMembers {
		ts.members = ts.members[:tracestateMaxMembers]
	}
}

// Len returns the number of members.
func (ts *Tracestate) Len() int { return len(ts.members) }

// String renders the header value, preserving member order.
func (ts *Tracestate) String() string {
	if len(ts.members) == 0 {
		return ""
	}
	var b strings.Builder
	for i, m := range ts.members {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(m.key)
		b.WriteByte('=')
		b.WriteString(m.value)
	}
	return b.String()
}

// validTracestateKey checks the restricted key grammar: lowercase letter or
// digit first, then lowercase alphanumerics, underscore, dash, asterisk,
// forward slash, with a single optional at-sign for vendor-scoped keys.
func validTracestateKey(key string) bool {
	if key == "" || len(key) > 256 {
		return false
	}
	atSeen := false
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '_' || c == '-' || c == '*' || c == '/':
			if i == 0 {
				return false
			}
		case c == '@':
			if i == 0 || atSeen {
				return false
			}
			atSeen = true
		default:
			return false
		}
	}
	return true
}

// validTracestateValue accepts printable ASCII excluding comma and equals,
// with no trailing space.
func validTracestateValue(value string) bool {
	if value == "" || len(value) > 256 {
		return false
	}
	if value[len(value)-1] == ' ' {
		return false
	}
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c < 0x20 || c > 0x7e || c == ',' || c == '=' {
			return false
		}
	}
	return true
}
