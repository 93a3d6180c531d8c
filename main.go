package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

const defaultConfigPath = "config/elasticsearch.yml"

type Options struct {
	Config         string
	Mapping        string
	Index          string
	BatchSize      int
	RequestTimeout time.Duration
	Status         bool
	DeleteIndex    bool
	Sample         bool
	Trace          bool
	LegacyFile     string
	CurrentFile    string

	configRequired bool
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags] <2012-2015.json> <2015-present.json>\n\n", fs.Name())
		fs.PrintDefaults()
	}
}

func parseOptions(args []string) (*Options, error) {
	options := &Options{
		Config: defaultConfigPath,
	}

	fs := flag.NewFlagSet("crime-indexer", flag.ContinueOnError)
	fs.Usage = usage(fs)
	fs.StringVar(&options.Config, "c", options.Config, "Path to Elasticsearch config YAML")
	fs.StringVar(&options.Config, "config", options.Config, "Path to Elasticsearch config YAML")
	fs.StringVar(&options.Mapping, "m", options.Mapping, "Path to index mapping JSON, e.g. config/mappings-crime.json (default: dynamic mapping)")
	fs.StringVar(&options.Mapping, "mapping", options.Mapping, "Path to index mapping JSON, e.g. config/mappings-crime.json (default: dynamic mapping)")
	fs.StringVar(&options.Index, "index", "", "Override index name")
	fs.IntVar(&options.BatchSize, "batch-size", 0, "Override number of rows per bulk request")
	fs.DurationVar(&options.RequestTimeout, "timeout", 0, "Override per bulk request timeout")
	fs.BoolVar(&options.Status, "status", false, "Test connection and print cluster health status")
	fs.BoolVar(&options.DeleteIndex, "delete-index", false, "Delete the index and exit")
	fs.BoolVar(&options.Sample, "sample", false, "Print the first mapped record of each file and exit")
	fs.BoolVar(&options.Trace, "trace", false, "Log every Elasticsearch request and response")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if options.Status && options.DeleteIndex {
		return nil, fmt.Errorf("cannot use --status with --delete-index")
	}

	if !options.Status && !options.DeleteIndex {
		if fs.NArg() != 2 {
			return nil, fmt.Errorf("expected 2 data files (2012-2015 and 2015-present), got %d", fs.NArg())
		}
		options.LegacyFile = fs.Arg(0)
		options.CurrentFile = fs.Arg(1)
	}

	// Only an explicitly named config file has to exist.
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "c" || f.Name == "config" {
			options.configRequired = true
		}
	})

	return options, nil
}

func (o *Options) sources() []Source {
	return []Source{
		{Path: o.LegacyFile, Dataset: LegacyDataset},
		{Path: o.CurrentFile, Dataset: CurrentDataset},
	}
}

// apply overrides config values with any flags that were set.
func (o *Options) apply(config Config) (Config, error) {
	if o.Index != "" {
		config.Index = o.Index
	}
	if o.BatchSize != 0 {
		config.BatchSize = o.BatchSize
	}
	if o.RequestTimeout != 0 {
		config.RequestTimeout = o.RequestTimeout
	}
	if o.Trace {
		config.Trace = true
	}
	return config, config.validate()
}

func main() {
	startTime := time.Now()
	defer func() {
		duration := time.Since(startTime)
		minutes := int(duration.Minutes())
		seconds := duration.Seconds() - float64(minutes*60)
		if minutes > 0 {
			fmt.Printf("\nTotal time: %dm %.2fs\n", minutes, seconds)
		} else {
			fmt.Printf("\nTotal time: %.2fs\n", seconds)
		}
	}()

	logger := log.New(os.Stdout, "", log.LstdFlags)

	options, err := parseOptions(os.Args[1:])
	if err == flag.ErrHelp {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, options, logger); err != nil {
		logger.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context, options *Options, logger *log.Logger) error {
	if options.Sample {
		return sampleDocuments(options, os.Stdout)
	}

	config, err := loadConfig(options.Config, options.configRequired)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if config, err = options.apply(config); err != nil {
		return err
	}

	client, err := NewElasticsearchClient(config, logger)
	if err != nil {
		return err
	}

	if options.Status {
		return reportStatus(ctx, client, logger)
	}

	if options.DeleteIndex {
		NewCrimeLoader(client, config, nil, logger).DeleteIndex(ctx)
		return nil
	}

	mapping, err := loadMapping(options.Mapping)
	if err != nil {
		return fmt.Errorf("loading mapping: %w", err)
	}

	loader := NewCrimeLoader(client, config, mapping, logger)

	logger.Printf("Loading into index '%s' (batch size %d, request timeout %s)", config.Index, config.BatchSize, config.RequestTimeout)
	return loader.Run(ctx, options.sources())
}

func sampleDocuments(options *Options, out io.Writer) error {
	for _, src := range options.sources() {
		rows, err := readRows(src.Path)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return fmt.Errorf("no rows found in %s", src.Path)
		}

		jsonData, err := json.MarshalIndent(src.Dataset.Mapper(rows[0]), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "# %s (%s)\n%s\n", src.Path, src.Dataset.Name, string(jsonData))
	}
	return nil
}

func reportStatus(ctx context.Context, client *ElasticsearchClient, logger *log.Logger) error {
	status, err := client.ClusterHealth(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve cluster status: %w", err)
	}

	clusterName, _ := status["cluster_name"].(string)
	statusStr, _ := status["status"].(string)
	logger.Printf("Cluster: %s", strings.TrimSpace(clusterName))
	logger.Printf("Cluster status: %s", statusStr)

	activeShards, _ := status["active_shards"].(float64)
	nodeCount, _ := status["number_of_nodes"].(float64)
	logger.Printf("Active shards: %.0f, node count: %.0f", activeShards, nodeCount)

	return nil
}
