package main

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// eachBatch hands fn consecutive slices of at most size rows, in order.
func eachBatch(rows []Row, size int, fn func(batch []Row) error) error {
	if size <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", size)
	}

	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		if err := fn(rows[start:end:end]); err != nil {
			return err
		}
	}
	return nil
}

type indexAction struct {
	Index string `json:"_index"`
	Type  string `json:"_type,omitempty"`
}

// indexDirective is the action line preceding each document in a bulk body.
type indexDirective struct {
	Index indexAction `json:"index"`
}

func newIndexDirective(index, docType string) indexDirective {
	return indexDirective{Index: indexAction{Index: index, Type: docType}}
}

// buildRequestBody pairs every mapped row with the directive, directive first.
func buildRequestBody(rows []Row, mapper RowMapper, directive indexDirective) []interface{} {
	body := make([]interface{}, 0, 2*len(rows))
	for _, row := range rows {
		body = append(body, directive, mapper(row))
	}
	return body
}

// encodeBulkBody renders the body as newline-delimited JSON.
func encodeBulkBody(body []interface{}) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)

	for i, entry := range body {
		if err := encoder.Encode(entry); err != nil {
			return nil, fmt.Errorf("failed to encode bulk entry %d: %w", i, err)
		}
	}
	return &buf, nil
}
