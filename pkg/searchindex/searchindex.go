// Package searchindex is the search-index port C7: idempotent index
// creation, upsert/delete by document id, and bool-query search. It is
// backed by Elasticsearch (github.com/elastic/go-elasticsearch), named as
// an explicitly out-of-pack ecosystem dependency — no example repo in the
// retrieval pack imports an Elasticsearch client, but spec.md §4.7's
// ensure_index/upsert/delete/search vocabulary is literally Elasticsearch's.
package searchindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// FieldSchema describes one mapped field for ensure_index.
type FieldSchema struct {
	Type     string // text, keyword, date, ...
	Analyzer string
	Enabled  *bool
}

// Clause is one term/match leaf in a bool query.
type Clause struct {
	Field string
	Value string
	Match bool // true = match clause, false = term clause
}

// Query is a bool composition of must/should/must_not clauses.
type Query struct {
	Must    []Clause
	Should  []Clause
	MustNot []Clause
}

// Hit is one search result.
type Hit struct {
	ID     string
	Source map[string]any
}

// Index wraps an Elasticsearch client.
type Index struct {
	es *elasticsearch.Client
}

// New connects to the Elasticsearch cluster at addresses.
func New(addresses []string) (*Index, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("searchindex: client: %w", err)
	}
	return &Index{es: es}, nil
}

// EnsureIndex idempotently creates name with the given field schema if it
// does not already exist. Failure at this call is Fatal per spec.md §7
// (index create failed at startup).
func (ix *Index) EnsureIndex(ctx context.Context, name string, schema map[string]FieldSchema) error {
	exists, err := esapi.IndicesExistsRequest{Index: []string{name}}.Do(ctx, ix.es)
	if err != nil {
		return fmt.Errorf("searchindex: exists check for %q: %w", name, err)
	}
	defer exists.Body.Close()
	if exists.StatusCode == 200 {
		return nil
	}

	props := make(map[string]any, len(schema))
	for field, fs := range schema {
		m := map[string]any{"type": fs.Type}
		if fs.Analyzer != "" {
			m["analyzer"] = fs.Analyzer
		}
		if fs.Enabled != nil {
			m["enabled"] = *fs.Enabled
		}
		props[field] = m
	}
	body, err := json.Marshal(map[string]any{
		"mappings": map[string]any{"properties": props},
	})
	if err != nil {
		return err
	}

	resp, err := esapi.IndicesCreateRequest{Index: name, Body: bytes.NewReader(body)}.Do(ctx, ix.es)
	if err != nil {
		return fmt.Errorf("searchindex: create %q: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return fmt.Errorf("searchindex: create %q: %s", name, resp.String())
	}
	return nil
}

// Upsert writes doc under id in index name, overwrite semantics.
func (ix *Index) Upsert(ctx context.Context, name, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	resp, err := esapi.IndexRequest{
		Index:      name,
		DocumentID: id,
		Body:       bytes.NewReader(body),
		Refresh:    "false",
	}.Do(ctx, ix.es)
	if err != nil {
		return fmt.Errorf("searchindex: upsert %s/%s: %w", name, id, err)
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return fmt.Errorf("searchindex: upsert %s/%s: %s", name, id, resp.String())
	}
	return nil
}

// Delete removes document id from index name.
func (ix *Index) Delete(ctx context.Context, name, id string) error {
	resp, err := esapi.DeleteRequest{Index: name, DocumentID: id}.Do(ctx, ix.es)
	if err != nil {
		return fmt.Errorf("searchindex: delete %s/%s: %w", name, id, err)
	}
	defer resp.Body.Close()
	if resp.IsError() && resp.StatusCode != 404 {
		return fmt.Errorf("searchindex: delete %s/%s: %s", name, id, resp.String())
	}
	return nil
}

// Search executes a bool query against name and returns an ordered hit
// list with _source objects.
func (ix *Index) Search(ctx context.Context, name string, q Query) ([]Hit, error) {
	body, err := json.Marshal(map[string]any{
		"query": map[string]any{"bool": boolBody(q)},
	})
	if err != nil {
		return nil, err
	}

	resp, err := esapi.SearchRequest{
		Index: []string{name},
		Body:  bytes.NewReader(body),
	}.Do(ctx, ix.es)
	if err != nil {
		return nil, fmt.Errorf("searchindex: search %q: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return nil, fmt.Errorf("searchindex: search %q: %s", name, resp.String())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("searchindex: decode search response: %w", err)
	}

	out := make([]Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		out = append(out, Hit{ID: h.ID, Source: h.Source})
	}
	return out, nil
}

func boolBody(q Query) map[string]any {
	return map[string]any{
		"must":     clauseList(q.Must),
		"should":   clauseList(q.Should),
		"must_not": clauseList(q.MustNot),
	}
}

func clauseList(cs []Clause) []map[string]any {
	out := make([]map[string]any, 0, len(cs))
	for _, c := range cs {
		kind := "term"
		if c.Match {
			kind = "match"
		}
		out = append(out, map[string]any{kind: map[string]any{c.Field: c.Value}})
	}
	return out
}
