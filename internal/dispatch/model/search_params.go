package model

import "strings"

// SearchParams holds the recognized court-registry search keys for a task.
// The field names mirror the upstream registry's form parameters, which is why
// they keep their original capitalization on the wire. Unrecognized keys are
// discarded by the typed decode at the API edge; empty strings are treated as
// absent.
type SearchParams struct {
	CourtRegion      string `json:"CourtRegion,omitempty"`
	INSType          string `json:"INSType,omitempty"`
	ChairmenName     string `json:"ChairmenName,omitempty"`
	SearchExpression string `json:"SearchExpression,omitempty"`
	RegDateBegin     string `json:"RegDateBegin,omitempty"`
	RegDateEnd       string `json:"RegDateEnd,omitempty"`
	DateFrom         string `json:"DateFrom,omitempty"`
	DateTo           string `json:"DateTo,omitempty"`
}

// Normalize trims whitespace from every key so that blank values behave as
// absent everywhere downstream.
func (p *SearchParams) Normalize() {
	p.CourtRegion = strings.TrimSpace(p.CourtRegion)
	p.INSType = strings.TrimSpace(p.INSType)
	p.ChairmenName = strings.TrimSpace(p.ChairmenName)
	p.SearchExpression = strings.TrimSpace(p.SearchExpression)
	p.RegDateBegin = strings.TrimSpace(p.RegDateBegin)
	p.RegDateEnd = strings.TrimSpace(p.RegDateEnd)
	p.DateFrom = strings.TrimSpace(p.DateFrom)
	p.DateTo = strings.TrimSpace(p.DateTo)
}

// IsZero reports whether no recognized key is set.
func (p SearchParams) IsZero() bool {
	return p == SearchParams{}
}

// Indexable reports whether the parameters carry both classification keys, in
// which case tasks created from them appear in the task indexes.
func (p SearchParams) Indexable() bool {
	return p.CourtRegion != "" && p.INSType != ""
}
