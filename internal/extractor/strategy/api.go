package strategy

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/pautaradar/newsradar/internal/source"
)

// timeLayouts covers the published/modified timestamp shapes seen across
// API_CONTRACT-described government/news JSON endpoints.
var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006",
}

func parseTimestamp(raw string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var defaultTextFields = []string{"text", "body", "content", "summary", "description"}
var defaultURLFields = []string{"url", "link", "canonical_url"}
var defaultTitleFields = []string{"title", "headline", "name"}

// APIExtractor resolves the API/SPA_API response shape of spec.md §4.4:
// items_path (dotted path, integer indices for lists already supported by
// gjson's own path grammar) with a items|results|data|rows fallback, then
// the root object as a single item. Grounded on the teacher's
// datafeed/marble "gjson.GetBytes(body, jsonPath)" convention, the same
// library used to resolve a configured path out of a JSON payload.
type APIExtractor struct{}

func NewAPIExtractor() *APIExtractor { return &APIExtractor{} }

func (a *APIExtractor) Extract(body []byte, contract *source.APIContract) ([]Item, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("api parse: invalid json")
	}
	root := gjson.ParseBytes(body)

	elems := resolveItems(root, contract)

	textFields, urlFields, canonFields, authorFields, langFields, pubFields, modFields := contractFields(contract)

	items := make([]Item, 0, len(elems))
	for _, el := range elems {
		u := firstOf(el, urlFields)
		if u == "" {
			continue
		}
		item := Item{
			URL:          u,
			CanonicalURL: firstOf(el, canonFields),
			Title:        firstOf(el, defaultTitleFields),
			Text:         truncate(concatFields(el, textFields), MaxTextChars),
			Author:       firstOf(el, authorFields),
			Lang:         firstOf(el, langFields),
		}
		if raw := firstOf(el, pubFields); raw != "" {
			if t, ok := parseTimestamp(raw); ok {
				item.PublishedAt = &t
			}
		}
		if raw := firstOf(el, modFields); raw != "" {
			if t, ok := parseTimestamp(raw); ok {
				item.ModifiedAt = &t
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// resolveItems implements the items_path / fallback-key / root-object
// resolution order of spec.md §4.4.
func resolveItems(root gjson.Result, contract *source.APIContract) []gjson.Result {
	var arr gjson.Result
	if contract != nil && contract.ItemsPath != "" {
		arr = root.Get(contract.ItemsPath)
	}
	if !arr.Exists() {
		for _, key := range []string{"items", "results", "data", "rows"} {
			if v := root.Get(key); v.Exists() {
				arr = v
				break
			}
		}
	}
	switch {
	case arr.Exists() && arr.IsArray():
		return arr.Array()
	case arr.Exists() && arr.IsObject():
		return []gjson.Result{arr}
	default:
		return []gjson.Result{root}
	}
}

func contractFields(contract *source.APIContract) (text, url, canon, author, lang, published, modified []string) {
	text, url = defaultTextFields, defaultURLFields
	if contract == nil {
		return
	}
	if len(contract.TextFields) > 0 {
		text = contract.TextFields
	}
	if len(contract.URLFields) > 0 {
		url = contract.URLFields
	}
	canon = contract.CanonicalURLFields
	author = contract.AuthorFields
	lang = contract.LangFields
	published = contract.PublishedFields
	modified = contract.ModifiedFields
	return
}

// firstOf returns the first non-empty scalar value among fields, in order.
func firstOf(el gjson.Result, fields []string) string {
	for _, f := range fields {
		if v := el.Get(f); v.Exists() {
			if s := v.String(); s != "" {
				return s
			}
		}
	}
	return ""
}

// concatFields joins every configured text field's value, JSON-stringifying
// objects/arrays rather than discarding them (spec.md §4.4: "dicts/lists are
// JSON-stringified").
func concatFields(el gjson.Result, fields []string) string {
	var out string
	for _, f := range fields {
		v := el.Get(f)
		if !v.Exists() {
			continue
		}
		var chunk string
		if v.IsArray() || v.IsObject() {
			chunk = v.Raw
		} else {
			chunk = v.String()
		}
		if chunk == "" {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += chunk
	}
	return out
}
