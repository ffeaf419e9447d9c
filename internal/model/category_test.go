package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/bunrui/internal/model"
)

func TestTaxonomy_IncludesFallbackLast(t *testing.T) {
	tax := model.Taxonomy()
	require.Len(t, tax, len(model.AssignableCategories)+1)
	assert.Equal(t, model.CategoryUncategorized, tax[len(tax)-1])
	assert.NotContains(t, model.AssignableCategories, model.CategoryUncategorized)
}

func TestTaxonomy_ReturnsFreshSlice(t *testing.T) {
	tax := model.Taxonomy()
	tax[0] = "mutated"
	assert.Equal(t, model.CategorySocialMedia, model.AssignableCategories[0])
}

func TestCanonicalCategory(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"news", model.CategoryNews},
		{"SOCIAL MEDIA", model.CategorySocialMedia},
		{"work/productivity", model.CategoryWork},
		{"uncategorized", model.CategoryUncategorized},
		{"Gaming", "Gaming"},
		{"News.", "News."},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, model.CanonicalCategory(tt.in))
		})
	}
}

func TestCategoryMappingRequest_Validate(t *testing.T) {
	ok := model.CategoryMappingRequest{Domains: make([]string, model.MaxDomainsPerRequest)}
	assert.NoError(t, ok.Validate())

	tooMany := model.CategoryMappingRequest{Domains: make([]string, model.MaxDomainsPerRequest+1)}
	err := tooMany.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "domains")
}
