package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const (
	MethodHTML    = "html"
	MethodBrowser = "browser"
	MethodAPI     = "api"
)

// Filter names used by supported_filters, requires_post_filtering and the
// search.values translation tables.
const (
	FilterOperation    = "operation"
	FilterPropertyType = "property_type"
	FilterCity         = "city"
	FilterNeighborhood = "neighborhood"
	FilterRooms        = "rooms"
	FilterBathrooms    = "bathrooms"
	FilterParking      = "parking"
	FilterArea         = "area"
	FilterPrice        = "price"
	FilterStratum      = "stratum"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxPages = 1
)

//go:embed source_schema.json
var sourceSchemaJSON string

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

type SourceSchema struct {
	ID            string        `yaml:"id"`
	Name          string        `yaml:"name"`
	Active        *bool         `yaml:"active"`
	Extraction    Extraction    `yaml:"extraction"`
	Search        SearchConfig  `yaml:"search"`
	OutputMapping OutputMapping `yaml:"output_mapping"`
	Limits        Limits        `yaml:"limits"`
}

type Extraction struct {
	Method   string               `yaml:"method"`
	Listing  []string             `yaml:"listing"`
	WaitFor  string               `yaml:"wait_for"`
	NextPage []string             `yaml:"next_page"`
	Fields   map[string]FieldRule `yaml:"fields"`
}

// FieldRule locates one raw field inside a listing block. Selectors are
// tried first, in order, then Patterns against the block text. API sources
// use Path, a dotted key path into the listing object.
type FieldRule struct {
	Selectors []string `yaml:"selectors"`
	Attr      string   `yaml:"attr"`
	Multiple  bool     `yaml:"multiple"`
	Patterns  []string `yaml:"patterns"`
	Path      string   `yaml:"path"`

	compiled []*regexp.Regexp
}

type SearchConfig struct {
	BaseURL               string                       `yaml:"base_url"`
	Path                  string                       `yaml:"path"`
	Params                map[string]string            `yaml:"params"`
	PageParam             string                       `yaml:"page_param"`
	SupportsURLFiltering  bool                         `yaml:"supports_url_filtering"`
	SupportedFilters      []string                     `yaml:"supported_filters"`
	RequiresPostFiltering []string                     `yaml:"requires_post_filtering"`
	Values                map[string]map[string]string `yaml:"values"`
	PathDefaults          map[string]string            `yaml:"path_defaults"`
}

type OutputMapping struct {
	FieldMappings      map[string]string `yaml:"field_mappings"`
	Transformations    map[string]string `yaml:"transformations"`
	Defaults           map[string]string `yaml:"defaults"`
	PriceIncludesAdmin bool              `yaml:"price_includes_admin"`
}

type Limits struct {
	RequestsPerMinute      int `yaml:"requests_per_minute"`
	DelayBetweenRequestsMs int `yaml:"delay_between_requests_ms"`
	MaxConcurrentRequests  int `yaml:"max_concurrent_requests"`
	TimeoutMs              int `yaml:"timeout_ms"`
	MaxPages               int `yaml:"max_pages"`
}

func (l Limits) Delay() time.Duration {
	return time.Duration(l.DelayBetweenRequestsMs) * time.Millisecond
}

func (l Limits) Timeout() time.Duration {
	if l.TimeoutMs <= 0 {
		return defaultTimeout
	}
	return time.Duration(l.TimeoutMs) * time.Millisecond
}

func (l Limits) Pages() int {
	if l.MaxPages <= 0 {
		return defaultMaxPages
	}
	return l.MaxPages
}

func (l Limits) Concurrency() int {
	if l.MaxConcurrentRequests <= 0 {
		return 1
	}
	return l.MaxConcurrentRequests
}

// IsActive defaults to true when the file omits the flag.
func (s *SourceSchema) IsActive() bool {
	return s.Active == nil || *s.Active
}

func (s *SourceSchema) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// Supports reports whether filter can be pushed into the source query.
func (s *SourceSchema) Supports(filter string) bool {
	if !s.Search.SupportsURLFiltering {
		return false
	}
	for _, f := range s.Search.SupportedFilters {
		if f == filter {
			return true
		}
	}
	return false
}

// Translate maps a canonical filter value to the wording the source uses.
func (s *SourceSchema) Translate(filter, value string) string {
	if table, ok := s.Search.Values[filter]; ok {
		if v, ok := table[strings.ToLower(value)]; ok {
			return v
		}
	}
	return value
}

// CanonicalKey resolves a raw field name through field_mappings.
func (s *SourceSchema) CanonicalKey(raw string) string {
	if key, ok := s.OutputMapping.FieldMappings[raw]; ok {
		return key
	}
	return raw
}

func (r *FieldRule) CompiledPatterns() []*regexp.Regexp {
	return r.compiled
}

// ParseSourceSchema decodes a YAML schema, checks it against the embedded
// JSON Schema and compiles its patterns.
func ParseSourceSchema(data []byte) (*SourceSchema, error) {
	if err := validateDocument(data); err != nil {
		return nil, err
	}

	var schema SourceSchema
	if err := decodeStrict(data, &schema); err != nil {
		return nil, fmt.Errorf("decode source schema: %w", err)
	}

	if err := schema.compile(); err != nil {
		return nil, fmt.Errorf("source %s: %w", schema.ID, err)
	}
	return &schema, nil
}

func validateDocument(data []byte) error {
	compileOnce.Do(func() {
		compiledSchema, compileErr = jsonschema.CompileString("source_schema.json", sourceSchemaJSON)
	})
	if compileErr != nil {
		return fmt.Errorf("compile source schema definition: %w", compileErr)
	}

	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	// jsonschema only understands JSON-shaped values, so round-trip through
	// encoding/json with numbers kept as json.Number.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("convert yaml: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var normalized interface{}
	if err := dec.Decode(&normalized); err != nil {
		return fmt.Errorf("convert yaml: %w", err)
	}

	if err := compiledSchema.Validate(normalized); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}

func (s *SourceSchema) compile() error {
	for name, rule := range s.Extraction.Fields {
		switch s.Extraction.Method {
		case MethodAPI:
			if rule.Path == "" {
				return fmt.Errorf("field %s: api sources need a path", name)
			}
		default:
			if len(rule.Selectors) == 0 && len(rule.Patterns) == 0 {
				return fmt.Errorf("field %s: needs selectors or patterns", name)
			}
		}

		rule.compiled = rule.compiled[:0]
		for _, p := range rule.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return fmt.Errorf("field %s: pattern %q: %w", name, p, err)
			}
			rule.compiled = append(rule.compiled, re)
		}
		s.Extraction.Fields[name] = rule
	}
	return nil
}
