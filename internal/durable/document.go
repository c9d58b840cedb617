// Package durable implements the durable composite of spec §4.8 (WAL +
// OCC + index interposed around the Git object engine) and the
// history/time-travel operations of spec §4.9, exposed through the
// internal/contracts.Store surface that external protocol servers call.
package durable

import (
	"encoding/json"
	"fmt"

	"github.com/moclojer/chrondb-sub002/internal/pathcodec"
)

// Document is a schemaless JSON object with a mandatory "id" and optional
// "_table", per spec §3.
type Document map[string]any

// ID returns the document's id field, or "" if absent/not a string.
func (d Document) ID() string {
	id, _ := d["id"].(string)
	return id
}

// Table returns the document's "_table" field, or "" if absent.
func (d Document) Table() string {
	t, _ := d["_table"].(string)
	return t
}

// Identifier builds the "table:id" (or bare "id") identifier used to
// address the document in the Git tree, deriving table from "_table" when
// present.
func (d Document) Identifier() string {
	id := d.ID()
	if table := d.Table(); table != "" {
		return table + ":" + id
	}
	return id
}

// normalize validates id is present and fills in "_table" from the
// identifier's table segment (the reverse of Identifier), per P1's
// "modulo system-added _table when absent".
func normalize(doc Document, identifier string) (Document, error) {
	if doc.ID() == "" {
		return nil, fmt.Errorf("durable: document missing id")
	}
	if _, hasTable := doc["_table"]; !hasTable {
		table, _ := pathcodec.SplitTableID(identifier)
		if table != "" {
			out := make(Document, len(doc)+1)
			for k, v := range doc {
				out[k] = v
			}
			out["_table"] = table
			return out, nil
		}
	}
	return doc, nil
}

func marshalDoc(doc Document) ([]byte, error) {
	data, err := json.Marshal(map[string]any(doc))
	if err != nil {
		return nil, fmt.Errorf("durable: marshal document %q: %w", doc.ID(), err)
	}
	return data, nil
}

func unmarshalDoc(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("durable: %w: %v", ErrParseError, err)
	}
	return doc, nil
}

// reconstructTable fills "_table" from path when the stored blob omits
// it, per spec §4.9 (get_at: "reconstructing _table from the path when
// the stored document omits it").
func reconstructTable(doc Document, identifier string) Document {
	if _, ok := doc["_table"]; ok {
		return doc
	}
	table, _ := pathcodec.SplitTableID(identifier)
	if table == "" {
		return doc
	}
	out := make(Document, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	out["_table"] = table
	return out
}
