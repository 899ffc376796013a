package domain

import "time"

// ValueKind is the expected type of a metric value.
type ValueKind string

// Supported metric value kinds.
const (
	KindCurrency ValueKind = "currency"
	KindPercent  ValueKind = "percent"
	KindDate     ValueKind = "date"
	KindCount    ValueKind = "count"
)

// MetricStatus is the validation outcome of an extracted metric.
type MetricStatus string

// Metric statuses. Rejected and unverified states are terminal:
// validation failures are never retried or coerced to a best guess.
const (
	StatusValid              MetricStatus = "valid"
	StatusUnverified         MetricStatus = "unverified"
	StatusRejectedType       MetricStatus = "rejected:type_mismatch"
	StatusRejectedOutOfRange MetricStatus = "rejected:out_of_range"
)

// MetricSpec describes one metric to extract from a document set.
type MetricSpec struct {
	// Name is the metric name, e.g. "net revenue".
	Name string

	// Period scopes the metric in time, e.g. "Q3 2024". Optional.
	Period string

	// Kind is the expected value type.
	Kind ValueKind

	// Min and Max are optional sanity bounds applied to numeric kinds.
	Min *float64
	Max *float64
}

// NormalizedValue is a typed metric value after normalization.
// Exactly one of the typed fields is meaningful, selected by Kind.
type NormalizedValue struct {
	Kind ValueKind

	// Number carries currency amounts, percentages and counts.
	Number float64

	// Unit is the currency code or symbol for currency values,
	// "%" for percentages, empty otherwise.
	Unit string

	// Date carries date values.
	Date time.Time

	// Text is the canonical string form, set for every kind.
	Text string
}

// ExtractedMetric is one proposed-and-validated metric value.
// It is mutated only during validation and terminal once validated.
type ExtractedMetric struct {
	// Name and Period echo the requesting MetricSpec.
	Name   string
	Period string

	// DocumentID is the document the value was extracted from.
	DocumentID string

	// RawValue is the value exactly as proposed by the model.
	RawValue string

	// Value is the typed value after normalization. Zero when the
	// proposal was rejected before normalization completed.
	Value NormalizedValue

	// Citations anchor the proposal to its supporting chunks.
	Citations []Citation

	// Status is the validation outcome.
	Status MetricStatus

	// Note carries detail for unverified results, e.g. a conflict
	// description when two chunks proposed different values.
	Note string
}
