package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

// indexClient is the subset of the Elasticsearch client the loader drives.
type indexClient interface {
	DeleteIndex(ctx context.Context, name string) (bool, error)
	CreateIndex(ctx context.Context, name string, mapping map[string]interface{}) error
	Bulk(ctx context.Context, payload io.Reader, timeout time.Duration) (*BulkResult, error)
}

// Source is one export file and the dataset layout it uses.
type Source struct {
	Path    string
	Dataset Dataset
}

type CrimeLoader struct {
	client         indexClient
	index          string
	docType        string
	mapping        map[string]interface{}
	batchSize      int
	requestTimeout time.Duration
	logger         *log.Logger

	loadedRecords atomic.Int64
	totalRecords  atomic.Int64
}

func NewCrimeLoader(client indexClient, config Config, mapping map[string]interface{}, logger *log.Logger) *CrimeLoader {
	return &CrimeLoader{
		client:         client,
		index:          config.Index,
		docType:        config.DocumentType,
		mapping:        mapping,
		batchSize:      config.BatchSize,
		requestTimeout: config.RequestTimeout,
		logger:         logger,
	}
}

// Run resets the index, then imports every source concurrently. The first
// failing import cancels the rest and its error is returned.
func (l *CrimeLoader) Run(ctx context.Context, sources []Source) error {
	if err := l.ResetIndex(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		src := src
		g.Go(func() error {
			return l.ImportFile(gctx, src)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	l.logger.Printf("Import complete: %s of %s records submitted",
		humanize.Comma(l.loadedRecords.Load()), humanize.Comma(l.totalRecords.Load()))
	return nil
}

// ResetIndex deletes the target index and, when a mapping is configured,
// recreates it from that mapping. Without a mapping the first bulk write
// creates the index.
func (l *CrimeLoader) ResetIndex(ctx context.Context) error {
	l.DeleteIndex(ctx)

	if l.mapping == nil {
		return nil
	}

	if l.docType != "" {
		l.logger.Printf("Warning: document_type '%s' does not match the typeless mapping for '%s'; bulk writes will be rejected", l.docType, l.index)
	}

	l.logger.Printf("Creating index: %s", l.index)
	if err := l.client.CreateIndex(ctx, l.index, l.mapping); err != nil {
		return fmt.Errorf("failed to create index '%s': %w", l.index, err)
	}
	return nil
}

// DeleteIndex removes the target index. A missing index is fine and any other
// delete failure is only logged.
func (l *CrimeLoader) DeleteIndex(ctx context.Context) {
	deleted, err := l.client.DeleteIndex(ctx, l.index)
	switch {
	case err != nil:
		l.logger.Printf("Failed to delete index '%s': %v", l.index, err)
	case deleted:
		l.logger.Printf("Index '%s' deleted", l.index)
	default:
		l.logger.Printf("Index '%s' does not exist, nothing to delete", l.index)
	}
}

// ImportFile loads one export and submits it batch by batch. Each bulk
// request is acknowledged before the next one is sent.
func (l *CrimeLoader) ImportFile(ctx context.Context, src Source) error {
	l.logger.Printf("Importing %s (%s dataset)", src.Path, src.Dataset.Name)

	rows, err := readRows(src.Path)
	if err != nil {
		return err
	}
	l.totalRecords.Add(int64(len(rows)))
	l.logger.Printf("Read %s rows from %s", humanize.Comma(int64(len(rows))), src.Path)

	batches := 0
	err = eachBatch(rows, l.batchSize, func(batch []Row) error {
		batches++
		return l.submitBatch(ctx, batch, src.Dataset.Mapper)
	})
	if err != nil {
		return fmt.Errorf("importing %s: %w", src.Path, err)
	}

	l.logger.Printf("Finished %s (rows: %s, bulk requests: %d)", src.Path, humanize.Comma(int64(len(rows))), batches)
	return nil
}

func (l *CrimeLoader) submitBatch(ctx context.Context, batch []Row, mapper RowMapper) error {
	body := buildRequestBody(batch, mapper, newIndexDirective(l.index, l.docType))
	payload, err := encodeBulkBody(body)
	if err != nil {
		return err
	}

	result, err := l.client.Bulk(ctx, payload, l.requestTimeout)
	if err != nil {
		return err
	}

	l.logger.Printf("Bulk response: took=%dms items=%d errors=%t", result.Took, len(result.Items), result.Errors)
	if result.Errors {
		for _, itemErr := range result.ItemErrors(5) {
			l.logger.Printf("Bulk item error for %s: %s", l.index, itemErr)
		}
	}

	loaded := l.loadedRecords.Add(int64(len(batch)))
	l.logger.Printf("%s of %s records submitted", humanize.Comma(loaded), humanize.Comma(l.totalRecords.Load()))
	return nil
}
