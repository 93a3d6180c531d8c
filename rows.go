package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// Row is one positional record from a dataset export.
type Row []interface{}

// Record is the normalized document stored in the index.
type Record map[string]interface{}

// RowMapper turns a positional row into a Record.
type RowMapper func(row Row) Record

const (
	fieldOffenseDescription = "offenseDescription"
	fieldOffenseCode        = "offenseCode"
	fieldReportingDistrict  = "reportingDistrict"
	fieldReportingArea      = "reportingArea"
	fieldShooting           = "shooting"
	fieldOccurredAt         = "occurredAt"
	fieldWeekday            = "weekday"
	fieldStreetName         = "streetName"
	fieldLatitude           = "latitude"
	fieldLongitude          = "longitude"
)

// Dataset identifies one export generation and the mapper for its layout.
type Dataset struct {
	Name   string
	Mapper RowMapper
}

var (
	// LegacyDataset covers the July 2012 - August 2015 export.
	LegacyDataset = Dataset{Name: "2012-2015", Mapper: mapLegacyRow}
	// CurrentDataset covers the August 2015 - present export.
	CurrentDataset = Dataset{Name: "2015-present", Mapper: mapCurrentRow}
)

// Legacy rows carry coordinates as a nested [address, lat, lon, ...] array.
const legacyLocationColumn = 27

var legacyColumns = map[string]int{
	fieldOffenseDescription: 10,
	fieldOffenseCode:        11,
	fieldReportingDistrict:  12,
	fieldReportingArea:      13,
	fieldOccurredAt:         14,
	fieldShooting:           16,
	fieldWeekday:            21,
	fieldStreetName:         25,
}

var currentColumns = map[string]int{
	fieldOffenseCode:        9,
	fieldOffenseDescription: 11,
	fieldReportingDistrict:  12,
	fieldReportingArea:      13,
	fieldShooting:           14,
	fieldOccurredAt:         15,
	fieldWeekday:            19,
	fieldStreetName:         21,
	fieldLatitude:           22,
	fieldLongitude:          23,
}

func mapLegacyRow(row Row) Record {
	doc := extractColumns(row, legacyColumns)

	if location, ok := valueAt(row, legacyLocationColumn); ok {
		if coords, ok := location.([]interface{}); ok {
			if lat, ok := valueAt(coords, 1); ok {
				doc[fieldLatitude] = lat
			}
			if lon, ok := valueAt(coords, 2); ok {
				doc[fieldLongitude] = lon
			}
		}
	}

	return doc
}

func mapCurrentRow(row Row) Record {
	return extractColumns(row, currentColumns)
}

// extractColumns copies each configured position into the record. Positions
// past the end of the row are left out rather than failing the row.
func extractColumns(row Row, columns map[string]int) Record {
	doc := make(Record, len(columns)+2)
	for field, pos := range columns {
		if value, ok := valueAt(row, pos); ok {
			doc[field] = value
		}
	}
	return doc
}

func valueAt(values []interface{}, pos int) (interface{}, bool) {
	if pos < 0 || pos >= len(values) {
		return nil, false
	}
	return values[pos], true
}

type datasetFile struct {
	Data []Row `json:"data"`
}

// readRows loads a whole export into memory and returns its row array.
func readRows(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	decoder.UseNumber()

	var data datasetFile
	if err := decoder.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return data.Data, nil
}
