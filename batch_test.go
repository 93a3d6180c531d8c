package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numberedRows(n int) []Row {
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{i}
	}
	return rows
}

func collectBatches(t *testing.T, rows []Row, size int) [][]Row {
	t.Helper()
	var batches [][]Row
	require.NoError(t, eachBatch(rows, size, func(batch []Row) error {
		batches = append(batches, batch)
		return nil
	}))
	return batches
}

func TestEachBatchPartition(t *testing.T) {
	const size = 7
	for _, n := range []int{0, 1, size - 1, size, size + 1, 5 * size, 5*size + 3} {
		rows := numberedRows(n)
		batches := collectBatches(t, rows, size)

		var joined []Row
		for i, batch := range batches {
			require.NotEmpty(t, batch, "n=%d batch %d", n, i)
			require.LessOrEqual(t, len(batch), size)
			joined = append(joined, batch...)
		}
		if n == 0 {
			assert.Empty(t, batches)
			continue
		}
		assert.Equal(t, rows, joined, "n=%d", n)
		assert.Len(t, batches, (n+size-1)/size, "n=%d", n)
	}
}

func TestEachBatchSizes(t *testing.T) {
	batches := collectBatches(t, numberedRows(45000), 20000)

	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 20000)
	assert.Len(t, batches[1], 20000)
	assert.Len(t, batches[2], 5000)
	assert.Equal(t, Row{40000}, batches[2][0])
}

func TestEachBatchDoesNotShareCapacity(t *testing.T) {
	rows := numberedRows(4)
	batches := collectBatches(t, rows, 2)

	_ = append(batches[0], Row{"x"})
	assert.Equal(t, Row{2}, rows[2])
}

func TestEachBatchStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := eachBatch(numberedRows(10), 3, func(batch []Row) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestEachBatchInvalidSize(t *testing.T) {
	err := eachBatch(numberedRows(3), 0, func([]Row) error { return nil })
	assert.Error(t, err)
}

func TestBuildRequestBody(t *testing.T) {
	rows := []Row{positionalRow("r", 24), positionalRow("q", 24), positionalRow("p", 24)}
	directive := newIndexDirective("crime_data", "report")

	body := buildRequestBody(rows, mapCurrentRow, directive)

	require.Len(t, body, 2*len(rows))
	for i := 0; i < len(body); i += 2 {
		assert.Equal(t, directive, body[i])
		assert.Equal(t, mapCurrentRow(rows[i/2]), body[i+1])
	}
	assert.Empty(t, buildRequestBody(nil, mapCurrentRow, directive))
}

func TestEncodeBulkBody(t *testing.T) {
	body := buildRequestBody([]Row{positionalRow("r", 24)}, mapCurrentRow, newIndexDirective("crime_data", "report"))

	buf, err := encodeBulkBody(body)
	require.NoError(t, err)

	var lines []string
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"index":{"_index":"crime_data","_type":"report"}}`, lines[0])

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &doc))
	assert.Equal(t, "r11", doc[fieldOffenseDescription])
}

func TestIndexDirectiveOmitsEmptyType(t *testing.T) {
	encoded, err := json.Marshal(newIndexDirective("crime_data", ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"index":{"_index":"crime_data"}}`, string(encoded))
}
