package scraper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"habitat_scrooper/config"
	"habitat_scrooper/models"
)

// scopeSelector addresses the listing block itself, for ids carried as
// attributes on the block element.
const scopeSelector = ":scope"

// extractHTML finds the listing blocks with the first listing selector that
// matches anything, then pulls every configured field from each block.
func extractHTML(body []byte, ext config.Extraction) pageResult {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return pageResult{}
	}

	var blocks *goquery.Selection
	for _, sel := range ext.Listing {
		if found := doc.Find(sel); found.Length() > 0 {
			blocks = found
			break
		}
	}

	var result pageResult
	if blocks != nil {
		blocks.Each(func(_ int, block *goquery.Selection) {
			rec, ok := extractBlock(block, ext.Fields)
			if !ok {
				result.skipped++
				return
			}
			result.records = append(result.records, rec)
		})
	}

	if len(ext.NextPage) == 0 {
		result.hasNext = len(result.records) > 0
		return result
	}
	for _, sel := range ext.NextPage {
		if doc.Find(sel).Length() > 0 {
			result.hasNext = true
			break
		}
	}
	return result
}

// extractBlock never panics; a block that cannot be read is reported as
// not ok and skipped by the caller.
func extractBlock(block *goquery.Selection, fields map[string]config.FieldRule) (rec models.RawRecord, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			rec, ok = nil, false
		}
	}()

	rec = models.RawRecord{}
	var text string
	for name, rule := range fields {
		if vals := selectorValues(block, rule); len(vals) > 0 {
			rec[name] = vals
			continue
		}
		if len(rule.CompiledPatterns()) == 0 {
			continue
		}
		if text == "" {
			text = strings.Join(strings.Fields(block.Text()), " ")
		}
		if v := patternValue(text, rule); v != "" {
			rec[name] = []string{v}
		}
	}
	return rec, len(rec) > 0
}

// selectorValues tries selectors in order; the first one yielding a
// non-empty value wins.
func selectorValues(block *goquery.Selection, rule config.FieldRule) []string {
	for _, sel := range rule.Selectors {
		found := block
		if sel != scopeSelector {
			found = block.Find(sel)
		}
		if found.Length() == 0 {
			continue
		}

		if rule.Multiple {
			var vals []string
			found.Each(func(_ int, s *goquery.Selection) {
				if v := nodeValue(s, rule.Attr); v != "" {
					vals = append(vals, v)
				}
			})
			if len(vals) > 0 {
				return vals
			}
			continue
		}

		if v := nodeValue(found.First(), rule.Attr); v != "" {
			return []string{v}
		}
	}
	return nil
}

func nodeValue(s *goquery.Selection, attr string) string {
	if attr != "" {
		v, _ := s.Attr(attr)
		return strings.TrimSpace(v)
	}
	return strings.Join(strings.Fields(s.Text()), " ")
}

// patternValue returns capture group 1 of the first matching pattern, or the
// whole match when the pattern has no groups.
func patternValue(text string, rule config.FieldRule) string {
	for _, re := range rule.CompiledPatterns() {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if len(m) > 1 {
			return strings.TrimSpace(m[1])
		}
		return strings.TrimSpace(m[0])
	}
	return ""
}

// extractJSON reads an API response: ext.Listing holds dotted paths to the
// listing array, field rules hold dotted paths inside each listing.
func extractJSON(body []byte, ext config.Extraction) (pageResult, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return pageResult{}, fmt.Errorf("decode json: %w", err)
	}

	var items []interface{}
	for _, path := range ext.Listing {
		if arr, ok := lookup(doc, path).([]interface{}); ok {
			items = arr
			break
		}
	}

	var result pageResult
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			result.skipped++
			continue
		}
		rec := models.RawRecord{}
		for name, rule := range ext.Fields {
			if vals := flatten(lookup(obj, rule.Path)); len(vals) > 0 {
				rec[name] = vals
			}
		}
		if len(rec) == 0 {
			result.skipped++
			continue
		}
		result.records = append(result.records, rec)
	}

	if len(ext.NextPage) == 0 {
		result.hasNext = len(result.records) > 0
		return result, nil
	}
	for _, path := range ext.NextPage {
		if truthy(lookup(doc, path)) {
			result.hasNext = true
			break
		}
	}
	return result, nil
}

// lookup walks a dotted path. Arrays met along the way are mapped over, so
// "images.url" yields every image url.
func lookup(v interface{}, path string) interface{} {
	if path == "" {
		return v
	}
	key, rest, _ := strings.Cut(path, ".")

	switch node := v.(type) {
	case map[string]interface{}:
		child, ok := node[key]
		if !ok {
			return nil
		}
		return lookup(child, rest)
	case []interface{}:
		var out []interface{}
		for _, el := range node {
			if r := lookup(el, path); r != nil {
				out = append(out, r)
			}
		}
		if out == nil {
			return nil
		}
		return out
	default:
		return nil
	}
}

func flatten(v interface{}) []string {
	switch node := v.(type) {
	case nil:
		return nil
	case string:
		if s := strings.TrimSpace(node); s != "" {
			return []string{s}
		}
		return nil
	case json.Number:
		return []string{node.String()}
	case bool:
		if node {
			return []string{"true"}
		}
		return []string{"false"}
	case []interface{}:
		var out []string
		for _, el := range node {
			out = append(out, flatten(el)...)
		}
		return out
	default:
		return nil
	}
}

func truthy(v interface{}) bool {
	switch node := v.(type) {
	case nil:
		return false
	case bool:
		return node
	case string:
		return node != ""
	case json.Number:
		return node.String() != "0"
	case []interface{}:
		return len(node) > 0
	default:
		return true
	}
}
