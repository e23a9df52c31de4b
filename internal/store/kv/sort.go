package kv

import (
	"slices"
	"strings"

	"github.com/siftrapp/siftr-server/internal/domain"
)

func sortBySlug(datasets []*domain.Dataset) {
	slices.SortFunc(datasets, func(a, b *domain.Dataset) int {
		return strings.Compare(a.Slug, b.Slug)
	})
}
