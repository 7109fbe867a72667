package federation

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/sampledb/sampledb/pkg/cache"
	"github.com/sampledb/sampledb/pkg/schemas"
	"github.com/sampledb/sampledb/pkg/store"
)

// DatetimeLayout is the wire format of timestamps (UTC, microseconds).
const DatetimeLayout = "2006-01-02 15:04:05.000000"

// datetimeParseLayout also accepts timestamps with fewer or no fractional
// digits.
const datetimeParseLayout = "2006-01-02 15:04:05.999999"

// Ref is a reference to a federated entity as it appears on the wire.
type Ref struct {
	FedID         int64
	ComponentUUID string
}

// Header holds the federation identity shared by every parsed entity, and the
// wire payload it was parsed from.
type Header struct {
	FedID         int64
	ComponentUUID string
	Raw           map[string]any
}

// Parser validates wire payloads. Parsing does not touch storage.
type Parser struct {
	now            func() time.Time
	validTimeDelta time.Duration
	languages      mapset.Set[string]
	logger         *slog.Logger
	// schemaResults memoizes ValidateSchema by schema digest; nil disables it.
	schemaResults *cache.LRU[error]
}

func newParser(cfg Config, now func() time.Time, logger *slog.Logger) *Parser {
	langs := mapset.NewSet[string]("en")
	for _, l := range cfg.Languages {
		langs.Add(strings.ToLower(l))
	}
	p := &Parser{now: now, validTimeDelta: cfg.ValidTimeDelta, languages: langs, logger: logger}
	if cfg.SchemaCacheSize > 0 {
		p.schemaResults = cache.New[error](cfg.SchemaCacheSize, cfg.SchemaCacheTTL).WithClock(now)
	}
	return p
}

// validateSchema runs schemas.ValidateSchema, reusing the outcome for a
// schema with identical content.
func (p *Parser) validateSchema(schema map[string]any) error {
	if p.schemaResults == nil {
		return schemas.ValidateSchema(schema)
	}
	// map keys are marshalled in sorted order, so equal schemas share a key
	b, err := json.Marshal(schema)
	if err != nil {
		return schemas.ValidateSchema(schema)
	}
	sum := blake3.Sum256(b)
	return p.schemaResults.GetOrCompute(hex.EncodeToString(sum[:]), func() error {
		return schemas.ValidateSchema(schema)
	})
}

// reader reads typed fields from one wire mapping.
type reader struct {
	p    *Parser
	m    map[string]any
	path string
}

func (p *Parser) read(v any, path string) (*reader, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, invalidf(path, "must be a mapping")
	}
	return &reader{p: p, m: m, path: path}, nil
}

func (r *reader) at(key string) string { return joinPath(r.path, key) }

func (r *reader) present(key string) bool {
	v, ok := r.m[key]
	return ok && v != nil
}

// id reads a required non-negative integer.
func (r *reader) id(key string) (int64, error) {
	v, ok := r.m[key]
	if !ok || v == nil {
		return 0, invalidf(r.at(key), "missing id")
	}
	if _, isBool := v.(bool); isBool {
		return 0, invalidf(r.at(key), "id must be an integer")
	}
	id, ok := schemas.Integer(v)
	if !ok {
		return 0, invalidf(r.at(key), "id must be an integer")
	}
	if id < 0 {
		return 0, invalidf(r.at(key), "id must not be negative")
	}
	return id, nil
}

// componentUUID reads a required, well-formed UUID string.
func (r *reader) componentUUID(key string) (string, error) {
	v, ok := r.m[key]
	if !ok || v == nil {
		return "", invalidf(r.at(key), "missing component uuid")
	}
	s, ok := v.(string)
	if !ok {
		return "", invalidf(r.at(key), "component uuid must be a string")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return "", invalidf(r.at(key), "invalid component uuid %q", s)
	}
	return parsed.String(), nil
}

func (r *reader) header(idKey string) (Header, error) {
	id, err := r.id(idKey)
	if err != nil {
		return Header{}, err
	}
	u, err := r.componentUUID("component_uuid")
	if err != nil {
		return Header{}, err
	}
	return Header{FedID: id, ComponentUUID: u, Raw: r.m}, nil
}

// ref reads an optional reference. An absent or null reference is nil; a
// present one must be complete.
func (r *reader) ref(key, idKey string) (*Ref, error) {
	if !r.present(key) {
		return nil, nil
	}
	return r.p.parseRef(r.m[key], r.at(key), idKey)
}

func (p *Parser) parseRef(v any, path, idKey string) (*Ref, error) {
	sub, err := p.read(v, path)
	if err != nil {
		return nil, err
	}
	id, err := sub.id(idKey)
	if err != nil {
		return nil, err
	}
	u, err := sub.componentUUID("component_uuid")
	if err != nil {
		return nil, err
	}
	return &Ref{FedID: id, ComponentUUID: u}, nil
}

func (r *reader) refList(key, idKey string) ([]Ref, error) {
	list, err := r.list(key)
	if err != nil {
		return nil, err
	}
	refs := make([]Ref, 0, len(list))
	for i, item := range list {
		ref, err := r.p.parseRef(item, joinPath(r.at(key), fmt.Sprint(i)), idKey)
		if err != nil {
			return nil, err
		}
		refs = append(refs, *ref)
	}
	return refs, nil
}

// list reads an optional list; absent or null yields nil.
func (r *reader) list(key string) ([]any, error) {
	if !r.present(key) {
		return nil, nil
	}
	list, ok := r.m[key].([]any)
	if !ok {
		return nil, invalidf(r.at(key), "must be a list")
	}
	return list, nil
}

func (r *reader) optString(key string) (*string, error) {
	if !r.present(key) {
		return nil, nil
	}
	s, ok := r.m[key].(string)
	if !ok {
		return nil, invalidf(r.at(key), "must be a string")
	}
	s = strings.TrimSpace(s)
	return &s, nil
}

func (r *reader) str(key string, nonEmpty bool) (string, error) {
	s, err := r.optString(key)
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", invalidf(r.at(key), "missing string")
	}
	if nonEmpty && *s == "" {
		return "", invalidf(r.at(key), "must not be empty")
	}
	return *s, nil
}

// optBool reads an optional boolean; absent or null is false.
func (r *reader) optBool(key string) (bool, error) {
	if !r.present(key) {
		return false, nil
	}
	b, ok := r.m[key].(bool)
	if !ok {
		return false, invalidf(r.at(key), "must be a boolean")
	}
	return b, nil
}

func (r *reader) optMap(key string) (map[string]any, error) {
	if !r.present(key) {
		return nil, nil
	}
	m, ok := r.m[key].(map[string]any)
	if !ok {
		return nil, invalidf(r.at(key), "must be a mapping")
	}
	return m, nil
}

// datetime parses a wire timestamp and rejects values further in the future
// than the allowed clock skew.
func (r *reader) datetime(key string, required bool) (*time.Time, error) {
	if !r.present(key) {
		if required {
			return nil, invalidf(r.at(key), "missing datetime")
		}
		return nil, nil
	}
	s, ok := r.m[key].(string)
	if !ok {
		return nil, invalidf(r.at(key), "datetime must be a string")
	}
	t, err := time.Parse(datetimeParseLayout, s)
	if err != nil {
		return nil, invalidf(r.at(key), "invalid datetime %q", s)
	}
	if t.After(r.p.now().UTC().Add(r.p.validTimeDelta)) {
		return nil, invalidf(r.at(key), "datetime %q lies in the future", s)
	}
	return &t, nil
}

// langMap reads an optional {language code: text} mapping. Well-formed codes
// of unsupported languages are dropped.
func (r *reader) langMap(key string) (store.JSONStringMap, error) {
	m, err := r.optMap(key)
	if err != nil || m == nil {
		return nil, err
	}
	out := store.JSONStringMap{}
	for code, v := range m {
		s, ok := v.(string)
		if !ok {
			return nil, invalidf(joinPath(r.at(key), code), "translation must be a string")
		}
		keep, err := r.p.language(code, r.at(key))
		if err != nil {
			return nil, err
		}
		if keep {
			out[strings.ToLower(code)] = strings.TrimSpace(s)
		}
	}
	return out, nil
}

// translations reads a list of {language_code, <fields>...} entries. English
// is required.
func (r *reader) translations(key string, required []string, optional []string) (store.Translations, error) {
	list, err := r.list(key)
	if err != nil {
		return nil, err
	}
	out := store.Translations{}
	for i, item := range list {
		path := joinPath(r.at(key), fmt.Sprint(i))
		tr, err := r.p.read(item, path)
		if err != nil {
			return nil, err
		}
		code, err := tr.str("language_code", true)
		if err != nil {
			return nil, err
		}
		keep, err := r.p.language(code, tr.at("language_code"))
		if err != nil {
			return nil, err
		}
		fields := map[string]string{}
		for _, f := range required {
			s, err := tr.str(f, true)
			if err != nil {
				return nil, err
			}
			fields[f] = s
		}
		for _, f := range optional {
			s, err := tr.optString(f)
			if err != nil {
				return nil, err
			}
			if s != nil {
				fields[f] = *s
			}
		}
		if keep {
			code = strings.ToLower(code)
			if _, dup := out[code]; dup {
				return nil, invalidf(tr.at("language_code"), "duplicate translation %q", code)
			}
			out[code] = fields
		}
	}
	if _, ok := out["en"]; !ok {
		return nil, invalidf(r.at(key), "missing english translation")
	}
	return out, nil
}

// language validates a language code and reports whether it is supported.
func (p *Parser) language(code, path string) (bool, error) {
	if !schemas.ValidLanguageCode(code) {
		return false, invalidf(path, "invalid language code %q", code)
	}
	if p.languages.Contains(strings.ToLower(code)) {
		return true, nil
	}
	p.logger.Warn("dropping translation in unsupported language", "path", path, "language", code)
	return false, nil
}

// deepCopy copies decoded JSON values so that rewriting them leaves the
// source untouched.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case store.JSONAny:
		return deepCopy(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	}
	return v
}
