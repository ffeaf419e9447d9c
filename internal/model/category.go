package model

import (
	"strings"
	"time"
)

// Category labels. The set is closed: the classifier is asked to choose one of
// AssignableCategories, and CategoryUncategorized is the fallback for anything
// that could not be classified.
const (
	CategorySocialMedia   = "Social Media"
	CategoryEntertainment = "Entertainment"
	CategoryWork          = "Work/Productivity"
	CategoryShopping      = "Shopping"
	CategoryEducation     = "Education"
	CategoryNews          = "News"
	CategoryOther         = "Other"
	CategoryUncategorized = "Uncategorized"
)

// AssignableCategories lists the labels the classifier may return, in the
// order they are presented in the classification prompt.
var AssignableCategories = []string{
	CategorySocialMedia,
	CategoryEntertainment,
	CategoryWork,
	CategoryShopping,
	CategoryEducation,
	CategoryNews,
	CategoryOther,
}

// Taxonomy returns the full closed label set, including the fallback label.
func Taxonomy() []string {
	out := make([]string, 0, len(AssignableCategories)+1)
	out = append(out, AssignableCategories...)
	return append(out, CategoryUncategorized)
}

// CanonicalCategory maps a label that matches a taxonomy entry
// case-insensitively onto that entry. Anything else is returned unchanged.
func CanonicalCategory(label string) string {
	for _, c := range Taxonomy() {
		if strings.EqualFold(label, c) {
			return c
		}
	}
	return label
}

// DomainCategory is the memoized classification for one domain.
// Written once on the first successful classification and never mutated.
type DomainCategory struct {
	Domain    string    `json:"domain"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}
