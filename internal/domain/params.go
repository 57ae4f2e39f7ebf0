package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Params is the open key/value document stored on tasks, generations and variants.
// Older rows store it as a JSON-encoded string; both shapes decode to the same map.
type Params map[string]any

func (p *Params) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*p = nil
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*p = nil
			return nil
		}
		b = []byte(s)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("params: %w", err)
	}
	*p = m
	return nil
}

// String returns the value under key when it is a non-empty string.
func (p Params) String(key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return s
}

// FirstString returns the first non-empty string among keys.
func (p Params) FirstString(keys ...string) string {
	for _, k := range keys {
		if s := p.String(k); s != "" {
			return s
		}
	}
	return ""
}

// Int reads an integral value stored as a JSON number or a numeric string.
func (p Params) Int(key string) (int, bool) {
	if p == nil {
		return 0, false
	}
	switch v := p[key].(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// Map returns the nested document under key, or nil.
func (p Params) Map(key string) Params {
	if p == nil {
		return nil
	}
	if m, ok := p[key].(map[string]any); ok {
		return m
	}
	if m, ok := p[key].(Params); ok {
		return m
	}
	return nil
}

// Clone makes a shallow copy that can be extended without touching the original.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Known params keys.
const (
	ParamGenerationID           = "generation_id"
	ParamOrchestratorTaskID     = "orchestrator_task_id"
	ParamOrchestratorTaskIDRef  = "orchestrator_task_id_ref"
	ParamOrchestratorRunID      = "orchestrator_run_id"
	ParamRunID                  = "run_id"
	ParamSegmentIndex           = "segment_index"
	ParamSequenceIndex          = "sequence_index"
	ParamChildGenerationID      = "child_generation_id"
	ParamParentGenerationID     = "parent_generation_id"
	ParamProjectID              = "project_id"
	ParamThumbnailURL           = "thumbnail_url"
	ParamPairShotGenerationID   = "pair_shot_generation_id"
	ParamIndividualSegmentParam = "individual_segment_params"
)

// IDList holds a set of ids. The store has held these columns both as a bare id
// (legacy) and as an array; decoding always yields a list.
type IDList []string

func (l *IDList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*l = nil
			return nil
		}
		// Arrays that went through a text column come back as a quoted JSON array.
		if strings.HasPrefix(s, "[") {
			return l.UnmarshalJSON([]byte(s))
		}
		*l = IDList{s}
		return nil
	case '[':
		var raw []any
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		out := make(IDList, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		*l = out
		return nil
	}
	return fmt.Errorf("id list: unexpected JSON %s", string(b))
}

func (l IDList) Contains(id string) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTime parses the timestamp shapes the store and its exports produce.
// Values without a zone are taken as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
