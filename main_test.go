package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptions(t *testing.T) {
	options, err := parseOptions([]string{"-batch-size", "500", "-timeout", "1m", "old.json", "new.json"})
	require.NoError(t, err)

	assert.Equal(t, "old.json", options.LegacyFile)
	assert.Equal(t, "new.json", options.CurrentFile)
	assert.Equal(t, defaultConfigPath, options.Config)
	assert.False(t, options.configRequired)

	sources := options.sources()
	require.Len(t, sources, 2)
	assert.Equal(t, LegacyDataset.Name, sources[0].Dataset.Name)
	assert.Equal(t, CurrentDataset.Name, sources[1].Dataset.Name)

	config, err := options.apply(defaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 500, config.BatchSize)
	assert.Equal(t, time.Minute, config.RequestTimeout)
	assert.Equal(t, "crime_data", config.Index)
	assert.False(t, config.Trace)
}

func TestParseOptionsExplicitConfig(t *testing.T) {
	options, err := parseOptions([]string{"-c", "prod.yml", "-index", "crime_test", "-trace", "a.json", "b.json"})
	require.NoError(t, err)
	assert.True(t, options.configRequired)

	config, err := options.apply(defaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "crime_test", config.Index)
	assert.True(t, config.Trace)
}

func TestParseOptionsErrors(t *testing.T) {
	_, err := parseOptions([]string{"only-one.json"})
	assert.Error(t, err)

	_, err = parseOptions([]string{"-status", "-delete-index"})
	assert.Error(t, err)

	options, err := parseOptions([]string{"-status"})
	require.NoError(t, err)
	assert.True(t, options.Status)

	options, err = parseOptions([]string{"-batch-size", "-3", "a.json", "b.json"})
	require.NoError(t, err)
	_, err = options.apply(defaultConfig())
	assert.Error(t, err)
}

func TestSampleDocuments(t *testing.T) {
	sources := testSources(t, 2, 1)
	options := &Options{LegacyFile: sources[0].Path, CurrentFile: sources[1].Path}

	var out bytes.Buffer
	require.NoError(t, sampleDocuments(options, &out))

	assert.Contains(t, out.String(), "(2012-2015)")
	assert.Contains(t, out.String(), `"offenseCode": "L0-11"`)
	assert.Contains(t, out.String(), "(2015-present)")
	assert.Contains(t, out.String(), `"offenseCode": "C0-9"`)
}
