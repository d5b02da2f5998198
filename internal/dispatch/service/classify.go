package service

import (
	"strings"

	"github.com/shepherdvovkes/reyestr/internal/dispatch/model"
)

// Region codes keyed by a substring of the court name. The table mirrors the
// registry's regional numbering for courts whose name carries the region city.
var regionKeywords = []struct {
	keyword string
	region  string
}{
	{"київ", "11"},
	{"львів", "14"},
	{"одес", "15"},
	{"харків", "19"},
	{"дніпро", "12"},
	{"запоріжж", "13"},
	{"вінниц", "05"},
	{"луцьк", "07"},
	{"донецьк", "14"},
	{"житомир", "18"},
	{"ужгород", "21"},
	{"івано-франківськ", "06"},
	{"кропивницьк", "09"},
	{"полтав", "17"},
	{"рівне", "18"},
	{"суми", "20"},
	{"тернопіль", "22"},
	{"херсон", "23"},
	{"хмельницьк", "24"},
	{"черкас", "25"},
	{"чернівці", "26"},
	{"чернігів", "27"},
}

// ClassifyDocument determines (court_region, instance_type) for a document.
//
// Two stages, first hit wins per field:
//  1. search parameters, authoritative for the query that produced the
//     document, tagged search_params;
//  2. keyword extraction from the court name, tagged extracted: appellate
//     keywords map to instance 2, cassation to 3, district/city/circuit
//     courts to 1; the region comes from the keyword table above.
//
// The classification counts only when both fields were determined; a partial
// result is returned with Source none so the registrar stores the document
// unclassified.
func ClassifyDocument(courtName string, searchParams *model.SearchParams) model.Classification {
	c := model.Classification{Source: model.ClassificationSourceNone}

	if searchParams != nil {
		if searchParams.CourtRegion != "" {
			c.CourtRegion = searchParams.CourtRegion
			c.Source = model.ClassificationSourceSearchParams
		}
		if searchParams.INSType != "" {
			c.InstanceType = searchParams.INSType
			if c.Source == model.ClassificationSourceNone {
				c.Source = model.ClassificationSourceSearchParams
			}
		}
	}

	name := strings.ToLower(courtName)

	if c.CourtRegion == "" && name != "" {
		for _, entry := range regionKeywords {
			if strings.Contains(name, entry.keyword) {
				c.CourtRegion = entry.region
				if c.Source == model.ClassificationSourceNone {
					c.Source = model.ClassificationSourceExtracted
				}
				break
			}
		}
	}

	if c.InstanceType == "" && name != "" {
		switch {
		case strings.Contains(name, "апеляційн") || strings.Contains(name, "апел"):
			c.InstanceType = "2"
		case strings.Contains(name, "касаційн") || strings.Contains(name, "касац"):
			c.InstanceType = "3"
		case strings.Contains(name, "районн") || strings.Contains(name, "міськ") || strings.Contains(name, "окружн"):
			c.InstanceType = "1"
		}
		if c.InstanceType != "" && c.Source == model.ClassificationSourceNone {
			c.Source = model.ClassificationSourceExtracted
		}
	}

	if c.CourtRegion == "" || c.InstanceType == "" {
		c.Source = model.ClassificationSourceNone
	}

	return c
}

// classificationComplete reports whether the classification carries both fields.
func classificationComplete(c model.Classification) bool {
	return c.CourtRegion != "" && c.InstanceType != ""
}
