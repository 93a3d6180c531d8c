package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elastic/elastic-transport-go/v8/elastictransport"
	"github.com/elastic/go-elasticsearch/v8"
)

type ElasticsearchClient struct {
	client   *elasticsearch.Client
	endpoint string
	logger   *log.Logger
}

// BulkResult is the part of a bulk response worth logging.
type BulkResult struct {
	Took   int  `json:"took"`
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

// ItemErrors returns up to limit "type: reason" strings for failed items.
func (r *BulkResult) ItemErrors(limit int) []string {
	var out []string
	for _, item := range r.Items {
		for _, result := range item {
			if result.Error == nil {
				continue
			}
			if len(out) >= limit {
				return out
			}
			out = append(out, fmt.Sprintf("%s: %s", result.Error.Type, result.Error.Reason))
		}
	}
	return out
}

func NewElasticsearchClient(config Config, logger *log.Logger) (*ElasticsearchClient, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required in the Elasticsearch config")
	}

	// The backoff is shared by concurrent requests.
	var backoffMu sync.Mutex
	retryBackoff := backoff.NewExponentialBackOff()
	cfg := elasticsearch.Config{
		Addresses:     []string{config.Endpoint},
		RetryOnStatus: []int{429, 502, 503, 504},
		MaxRetries:    config.MaxRetries,
		RetryBackoff: func(attempt int) time.Duration {
			backoffMu.Lock()
			defer backoffMu.Unlock()
			if attempt == 1 {
				retryBackoff.Reset()
			}
			return retryBackoff.NextBackOff()
		},
	}
	if config.MaxRetries == 0 {
		cfg.DisableRetry = true
	}

	if config.APIKey != "" {
		cfg.APIKey = config.APIKey
	} else if config.User != "" && config.Password != "" {
		cfg.Username = config.User
		cfg.Password = config.Password
	}

	if !config.SSLVerify {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		cfg.Transport = transport
	}

	if config.Trace {
		cfg.Logger = &elastictransport.TextLogger{
			Output:             logger.Writer(),
			EnableRequestBody:  false,
			EnableResponseBody: true,
		}
	}

	if len(config.Headers) > 0 {
		cfg.Header = make(http.Header)
		for k, v := range config.Headers {
			cfg.Header.Set(k, v)
		}
	}

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	return &ElasticsearchClient{
		client:   client,
		endpoint: config.Endpoint,
		logger:   logger,
	}, nil
}

func (c *ElasticsearchClient) ClusterHealth(ctx context.Context) (map[string]interface{}, error) {
	res, err := c.client.Cluster.Health(c.client.Cluster.Health.WithContext(ctx))
	if err != nil {
		return nil, c.connectionError("cluster health request failed", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("cluster health request failed: %s", string(body))
	}

	var result map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode cluster health response: %w", err)
	}

	return result, nil
}

// DeleteIndex reports false with no error when the index does not exist.
func (c *ElasticsearchClient) DeleteIndex(ctx context.Context, name string) (bool, error) {
	res, err := c.client.Indices.Delete([]string{name}, c.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		return false, c.connectionError("index deletion failed", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if res.StatusCode == http.StatusNotFound {
			return false, nil
		}
		body, _ := io.ReadAll(res.Body)
		return false, fmt.Errorf("index deletion failed: %s", string(body))
	}

	return true, nil
}

func (c *ElasticsearchClient) CreateIndex(ctx context.Context, name string, mapping map[string]interface{}) error {
	mappingJSON, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	res, err := c.client.Indices.Create(name,
		c.client.Indices.Create.WithBody(strings.NewReader(string(mappingJSON))),
		c.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return c.connectionError("index creation failed", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		if res.StatusCode == http.StatusBadRequest && strings.Contains(string(body), "resource_already_exists_exception") {
			c.logger.Printf("Index '%s' already exists (conflict)", name)
			return nil
		}
		return fmt.Errorf("index creation failed: %s", string(body))
	}

	c.logger.Printf("Index '%s' created", name)
	return nil
}

// Bulk sends one NDJSON payload. timeout bounds the whole HTTP round trip and
// is also passed to the cluster as the bulk timeout parameter.
func (c *ElasticsearchClient) Bulk(ctx context.Context, payload io.Reader, timeout time.Duration) (*BulkResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := c.client.Bulk(payload,
		c.client.Bulk.WithContext(ctx),
		c.client.Bulk.WithTimeout(timeout),
	)
	if err != nil {
		return nil, c.connectionError("bulk request failed", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("bulk request failed: %s", string(body))
	}

	var result BulkResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode bulk response: %w", err)
	}

	return &result, nil
}

func (c *ElasticsearchClient) connectionError(msg string, err error) error {
	if strings.Contains(err.Error(), "connection refused") || strings.Contains(err.Error(), "timeout") {
		return fmt.Errorf("%s: cannot connect to Elasticsearch at %s: %w", msg, c.endpoint, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
