// Package entity is the client side of the generic record store that holds
// every email, label, contact and account.
package entity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Kind names a record collection in the store.
type Kind string

const (
	KindEmail   Kind = "Email"
	KindLabel   Kind = "Label"
	KindContact Kind = "Contact"
	KindAccount Kind = "Account"
)

// Sort orders accepted by List and Filter. A leading "-" sorts descending.
const (
	NewestFirst = "-created_at"
	OldestFirst = "created_at"
)

// Record is one entity as the store returns it. The store assigns "id" and
// "created_at" on create.
type Record map[string]any

// ID returns the store-assigned identifier.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Predicate is an equality filter. Every field must match.
type Predicate map[string]any

// Store is the remote entity API. Implementations must report transport
// failures as *NetworkError and refusals as *RejectedError.
type Store interface {
	List(ctx context.Context, kind Kind, orderBy string) ([]Record, error)
	Filter(ctx context.Context, kind Kind, where Predicate, orderBy string) ([]Record, error)
	Create(ctx context.Context, kind Kind, fields Record) (Record, error)
	Update(ctx context.Context, kind Kind, id string, patch Record) (Record, error)
	Delete(ctx context.Context, kind Kind, id string) error
}

// Encode converts a typed value into a Record using its json tags.
func Encode(v any) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return decodeRecord(data)
}

// Decode converts a Record into T using T's json tags.
func Decode[T any](rec Record) (T, error) {
	var out T
	data, err := json.Marshal(rec)
	if err != nil {
		return out, fmt.Errorf("encoding record %s: %w", rec.ID(), err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decoding record %s: %w", rec.ID(), err)
	}
	return out, nil
}

// DecodeAll decodes every record, stopping at the first malformed one.
func DecodeAll[T any](recs []Record) ([]T, error) {
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		v, err := Decode[T](rec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// decodeRecord parses a JSON object keeping numbers as json.Number so
// amounts survive the round trip without float rounding.
func decodeRecord(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return rec, nil
}

// decodeRecords is decodeRecord for a JSON array.
func decodeRecords(data []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var recs []Record
	if err := dec.Decode(&recs); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}
	return recs, nil
}
