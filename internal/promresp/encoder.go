// Package promresp converts a generic columnar result set into the
// Prometheus HTTP API's matrix/vector/scalar JSON response shape. Columns
// are inspected by explicit named accessors rather than duck-typed by
// position, per spec.md §9's re-architecture note on the original's
// column-order probing.
package promresp

import (
	"encoding/json"
	"errors"
	"sort"
	"strconv"
)

// ColumnType is the semantic role a RecordBatch column plays when encoding a
// Prometheus series: exactly one timestamp column and one value column are
// required, with every remaining string column treated as a label.
type ColumnType int

const (
	Other ColumnType = iota
	TimestampMillisecond
	FloatValue
	StringLabel
)

// Column is one named, typed column of a RecordBatch. Exactly one of
// Timestamps, Floats, or Strings is populated, matching Type.
type Column struct {
	Name       string
	Type       ColumnType
	Timestamps []int64
	Floats     []float64
	Strings    []string
}

func (c Column) len() int {
	switch c.Type {
	case TimestampMillisecond:
		return len(c.Timestamps)
	case FloatValue:
		return len(c.Floats)
	default:
		return len(c.Strings)
	}
}

// RecordBatch is one batch of rows across a fixed set of typed columns.
type RecordBatch struct {
	Columns []Column
}

// NumRows returns the row count of the batch's first column, or 0 if empty.
func (b RecordBatch) NumRows() int {
	if len(b.Columns) == 0 {
		return 0
	}
	return b.Columns[0].len()
}

// schema is the explicit, named-accessor inspection of a RecordBatch's
// columns: the first timestamp column, the first float column, and every
// string column as a label — found once and reused across every batch,
// rather than re-probed row by row.
type schema struct {
	timestampIdx int
	valueIdx     int
	labelIdxs    []int
}

var (
	errNoTimestampColumn = errors.New("promresp: no millisecond timestamp column found")
	errNoValueColumn     = errors.New("promresp: no float value column found")
)

func inspectSchema(columns []Column) (schema, error) {
	s := schema{timestampIdx: -1, valueIdx: -1}
	for i, col := range columns {
		switch col.Type {
		case TimestampMillisecond:
			if s.timestampIdx == -1 {
				s.timestampIdx = i
			}
		case FloatValue:
			if s.valueIdx == -1 {
				s.valueIdx = i
			}
		case StringLabel:
			s.labelIdxs = append(s.labelIdxs, i)
		}
	}
	if s.timestampIdx == -1 {
		return schema{}, errNoTimestampColumn
	}
	if s.valueIdx == -1 {
		return schema{}, errNoValueColumn
	}
	return s, nil
}

// ValueType is the PromQL result shape requested by the query (instant
// vector, range matrix, or scalar/string).
type ValueType int

const (
	Vector ValueType = iota
	Matrix
	Scalar
	String
)

func (v ValueType) String() string {
	switch v {
	case Vector:
		return "vector"
	case Matrix:
		return "matrix"
	case Scalar:
		return "scalar"
	case String:
		return "string"
	default:
		return "vector"
	}
}

// metricNameLabel is the reserved Prometheus label carrying the series name.
const metricNameLabel = "__name__"

// Sample is one (timestamp, value) pair, encoded on the wire as Prometheus's
// 2-element tuple `[unix_seconds, "value"]`.
type Sample struct {
	TimestampSeconds float64
	Value            string
}

// MarshalJSON encodes Sample as Prometheus's `[ts, "value"]` tuple.
func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{s.TimestampSeconds, s.Value})
}

// Series is one labeled time series in a Prometheus response: a Value for
// instant/scalar/string results, or Values for a range matrix.
type Series struct {
	Metric map[string]string `json:"metric"`
	Value  *Sample           `json:"value,omitempty"`
	Values []Sample          `json:"values,omitempty"`
}

// Data is the Prometheus `data` field: a result type tag plus the series.
type Data struct {
	ResultType string   `json:"resultType"`
	Result     []Series `json:"result"`
}

// Response is the full Prometheus HTTP API JSON envelope.
type Response struct {
	Status    string         `json:"status"`
	Data      Data           `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorType string         `json:"errorType,omitempty"`
	Warnings  []string       `json:"warnings,omitempty"`
	Metrics   map[string]any `json:"-"`
}

// Success wraps data in a "status":"success" envelope.
func Success(data Data) Response {
	return Response{Status: "success", Data: data}
}

// ErrorResponse wraps a query failure in a "status":"error" envelope, matching the
// teacher's convention of surfacing the error's classification as errorType.
func ErrorResponse(errorType, reason string) Response {
	return Response{Status: "error", ErrorType: errorType, Error: reason}
}

// Encode converts batches into a Response carrying metricName's series in
// resultType's shape (spec.md §9's Prometheus response encoder note).
// Columns are inspected once via inspectSchema using the first batch;
// callers must present batches sharing one schema.
func Encode(metricName string, batches []RecordBatch, resultType ValueType) (Response, error) {
	if len(batches) == 0 {
		return Success(Data{ResultType: resultType.String()}), nil
	}
	s, err := inspectSchema(batches[0].Columns)
	if err != nil {
		return Response{}, err
	}

	type seriesKey string
	order := make([]seriesKey, 0)
	metrics := make(map[seriesKey]map[string]string)
	samples := make(map[seriesKey][]Sample)

	for _, batch := range batches {
		ts := batch.Columns[s.timestampIdx].Timestamps
		vals := batch.Columns[s.valueIdx].Floats
		labelCols := make([]Column, len(s.labelIdxs))
		for i, idx := range s.labelIdxs {
			labelCols[i] = batch.Columns[idx]
		}

		for row := 0; row < batch.NumRows(); row++ {
			metric := map[string]string{metricNameLabel: metricName}
			keyParts := make([]string, 0, len(labelCols)+1)
			keyParts = append(keyParts, metricNameLabel+"="+metricName)
			for _, col := range labelCols {
				if row >= len(col.Strings) {
					continue
				}
				metric[col.Name] = col.Strings[row]
				keyParts = append(keyParts, col.Name+"="+col.Strings[row])
			}
			sort.Strings(keyParts[1:])
			key := seriesKey(joinKey(keyParts))

			if _, ok := metrics[key]; !ok {
				metrics[key] = metric
				order = append(order, key)
			}
			if row >= len(ts) || row >= len(vals) {
				continue
			}
			samples[key] = append(samples[key], Sample{
				TimestampSeconds: float64(ts[row]) / 1000.0,
				Value:            formatFloat(vals[row]),
			})
		}
	}

	result := make([]Series, 0, len(order))
	for _, key := range order {
		ss := samples[key]
		switch resultType {
		case Matrix:
			result = append(result, Series{Metric: metrics[key], Values: ss})
		default:
			var last *Sample
			if len(ss) > 0 {
				v := ss[len(ss)-1]
				last = &v
			}
			result = append(result, Series{Metric: metrics[key], Value: last})
		}
	}

	return Success(Data{ResultType: resultType.String(), Result: result}), nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func joinKey(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += "\x00" + p
	}
	return out
}
