package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shepherdvovkes/reyestr/internal/dispatch/model"
)

func TestClassifyDocument(t *testing.T) {
	tests := []struct {
		name         string
		courtName    string
		searchParams *model.SearchParams
		want         model.Classification
	}{
		{
			name:         "search params win over court name",
			courtName:    "Львівський окружний адміністративний суд",
			searchParams: &model.SearchParams{CourtRegion: "11", INSType: "1"},
			want: model.Classification{
				CourtRegion:  "11",
				InstanceType: "1",
				Source:       model.ClassificationSourceSearchParams,
			},
		},
		{
			name:      "extracted from court name when search params absent",
			courtName: "Київський апеляційний суд",
			want: model.Classification{
				CourtRegion:  "11",
				InstanceType: "2",
				Source:       model.ClassificationSourceExtracted,
			},
		},
		{
			name:      "district court maps to first instance",
			courtName: "Київський районний суд",
			want: model.Classification{
				CourtRegion:  "11",
				InstanceType: "1",
				Source:       model.ClassificationSourceExtracted,
			},
		},
		{
			name:      "cassation maps to third instance",
			courtName: "Касаційний цивільний суд у складі Верховного Суду",
			want: model.Classification{
				InstanceType: "3",
				Source:       model.ClassificationSourceNone,
			},
		},
		{
			name:         "mixed sources keep the search params tag",
			courtName:    "Львівський апеляційний суд",
			searchParams: &model.SearchParams{CourtRegion: "14"},
			want: model.Classification{
				CourtRegion:  "14",
				InstanceType: "2",
				Source:       model.ClassificationSourceSearchParams,
			},
		},
		{
			name:      "unrecognized court name stays unclassified",
			courtName: "Some Unknown Court",
			want:      model.Classification{Source: model.ClassificationSourceNone},
		},
		{
			name: "empty input stays unclassified",
			want: model.Classification{Source: model.ClassificationSourceNone},
		},
		{
			name:         "partial search params fall back to none",
			searchParams: &model.SearchParams{CourtRegion: "19"},
			want: model.Classification{
				CourtRegion: "19",
				Source:      model.ClassificationSourceNone,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyDocument(tt.courtName, tt.searchParams)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassificationComplete(t *testing.T) {
	assert.True(t, classificationComplete(model.Classification{CourtRegion: "11", InstanceType: "1"}))
	assert.False(t, classificationComplete(model.Classification{CourtRegion: "11"}))
	assert.False(t, classificationComplete(model.Classification{InstanceType: "1"}))
	assert.False(t, classificationComplete(model.Classification{}))
}
