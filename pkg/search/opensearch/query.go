// Package opensearch translates backend-neutral filter predicates into the
// OpenSearch query DSL. The translation is mechanical: every Predicate maps
// to a bool query whose must holds the text clause and whose filter holds one
// entry per filter clause.
package opensearch

import (
	"strings"

	"stratum-hq/bastion/pkg/search"
)

// textSearchFields is the multi_match field list with relevance boosts.
var textSearchFields = []string{"title^3", "content^2", "author", "department", "location", "source_name", "raw_intel"}

// Query renders a predicate as an OpenSearch query body (the value of the
// request's "query" key).
func Query(pred search.Predicate) map[string]any {
	filters := make([]any, 0, len(pred.Filters))
	for _, clause := range pred.Filters {
		filters = append(filters, clauseQuery(clause))
	}
	return map[string]any{
		"bool": map[string]any{
			"must":   []any{textQuery(pred.Query)},
			"filter": filters,
		},
	}
}

func textQuery(query string) map[string]any {
	if strings.TrimSpace(query) == "" {
		return map[string]any{"match_all": map[string]any{}}
	}
	return map[string]any{
		"multi_match": map[string]any{
			"query":     query,
			"fields":    textSearchFields,
			"fuzziness": "AUTO",
		},
	}
}

// clauseQuery renders one OR-group. A single-term group collapses to a bare
// term/terms query; multi-term groups become a should with
// minimum_should_match=1.
func clauseQuery(clause search.FilterClause) map[string]any {
	if len(clause.Any) == 1 {
		return termQuery(clause.Any[0])
	}
	should := make([]any, 0, len(clause.Any))
	for _, t := range clause.Any {
		should = append(should, termQuery(t))
	}
	return map[string]any{
		"bool": map[string]any{
			"should":               should,
			"minimum_should_match": 1,
		},
	}
}

func termQuery(t search.Term) map[string]any {
	if len(t.Values) == 1 {
		return map[string]any{"term": map[string]any{t.Field: t.Values[0]}}
	}
	values := make([]any, 0, len(t.Values))
	for _, v := range t.Values {
		values = append(values, v)
	}
	return map[string]any{"terms": map[string]any{t.Field: values}}
}

// IndexSettings returns the settings and mappings body used to create the
// records index.
func IndexSettings() map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
			"analysis": map[string]any{
				"analyzer": map[string]any{
					"content_analyzer": map[string]any{
						"type":      "custom",
						"tokenizer": "standard",
						"filter":    []any{"lowercase", "stop", "snowball"},
					},
				},
			},
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"title":            map[string]any{"type": "text", "analyzer": "content_analyzer", "fields": map[string]any{"keyword": map[string]any{"type": "keyword"}}},
				"content":          map[string]any{"type": "text", "analyzer": "content_analyzer"},
				"author":           map[string]any{"type": "text", "fields": map[string]any{"keyword": map[string]any{"type": "keyword"}}},
				"classification":   map[string]any{"type": "keyword"},
				"organization":     map[string]any{"type": "keyword"},
				"department":       map[string]any{"type": "keyword"},
				"cell_tags":        map[string]any{"type": "keyword"},
				"shared_with":      map[string]any{"type": "keyword"},
				"ntk_required":     map[string]any{"type": "boolean"},
				"ntk_users":        map[string]any{"type": "keyword"},
				"ntk_compartments": map[string]any{"type": "keyword"},
				"source_name":      map[string]any{"type": "text", "fields": map[string]any{"keyword": map[string]any{"type": "keyword"}}},
				"handler_id":       map[string]any{"type": "keyword"},
				"raw_intel":        map[string]any{"type": "text"},
				"location":         map[string]any{"type": "text", "fields": map[string]any{"keyword": map[string]any{"type": "keyword"}}},
				"date_created":     map[string]any{"type": "date", "format": "yyyy-MM-dd"},
			},
		},
	}
}
