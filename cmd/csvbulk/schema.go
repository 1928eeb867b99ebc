package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/csvbulk/csvbulk/internal/importjob"
)

// schemaFile is the on-disk JSON shape for an import job's destination
// schema, e.g.:
//
//	{
//	  "timestampIndex": 0,
//	  "delimiter": ",",
//	  "columns": [
//	    {"name": "ts", "type": "TIMESTAMP"},
//	    {"name": "symbol", "type": "SYMBOL", "indexed": true, "indexValueBlockCapacity": 4096},
//	    {"name": "price", "type": "DOUBLE"}
//	  ]
//	}
type schemaFile struct {
	TimestampIndex int            `json:"timestampIndex"`
	Delimiter      string         `json:"delimiter"`
	Columns        []schemaColumn `json:"columns"`
}

type schemaColumn struct {
	Name                    string `json:"name"`
	Type                    string `json:"type"`
	Indexed                 bool   `json:"indexed"`
	IndexValueBlockCapacity int    `json:"indexValueBlockCapacity"`
}

func loadSchema(path string, defaultIndexCapacity int) ([]importjob.Column, int, byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, 0, errors.Wrapf(err, "read schema file %s", path)
	}

	var sf schemaFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, 0, 0, errors.Wrapf(err, "parse schema file %s", path)
	}
	if len(sf.Columns) == 0 {
		return nil, 0, 0, errors.Errorf("schema file %s declares no columns", path)
	}

	cols := make([]importjob.Column, len(sf.Columns))
	for i, c := range sf.Columns {
		colType, err := parseColumnType(c.Type)
		if err != nil {
			return nil, 0, 0, errors.Wrapf(err, "schema file %s column %q", path, c.Name)
		}
		capacity := c.IndexValueBlockCapacity
		if c.Indexed && capacity == 0 {
			capacity = defaultIndexCapacity
		}
		cols[i] = importjob.Column{
			Name:                    c.Name,
			Type:                    colType,
			Indexed:                 c.Indexed,
			IndexValueBlockCapacity: capacity,
		}
	}

	delim := byte(',')
	if sf.Delimiter != "" {
		delim = sf.Delimiter[0]
	}
	return cols, sf.TimestampIndex, delim, nil
}

func parseColumnType(s string) (importjob.ColumnType, error) {
	switch s {
	case "INT":
		return importjob.ColInt, nil
	case "LONG":
		return importjob.ColLong, nil
	case "DOUBLE":
		return importjob.ColDouble, nil
	case "BOOLEAN":
		return importjob.ColBoolean, nil
	case "STRING":
		return importjob.ColString, nil
	case "SYMBOL":
		return importjob.ColSymbol, nil
	case "TIMESTAMP":
		return importjob.ColTimestamp, nil
	case "DATE":
		return importjob.ColDate, nil
	default:
		return 0, errors.Errorf("unknown column type %q", s)
	}
}
