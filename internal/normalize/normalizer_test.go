package normalize

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siftrapp/siftr-server/internal/domain"
)

func row(pairs ...string) Row {
	r := make(Row, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		r = append(r, Cell{Header: pairs[i], Value: pairs[i+1]})
	}
	return r
}

func TestSpecies_HeaderDispatch(t *testing.T) {
	s, ok := Species(row(
		"Scientific_Name", "  Acer rubrum ",
		"Common Name", "Red maple",
		"Genus", "Acer",
		"Species", "rubrum",
		"Family", "Maple (Aceraceae)",
		"Description", "A common tree.",
		"Description Bark", "Smooth and gray.",
		"d-Fruit", "Paired samaras.",
		"Info Wildlife", "Browsed by deer.",
		"Leaf Arrangement", "Opposite",
	))
	require.True(t, ok)

	assert.Equal(t, "Acer rubrum", s.Name)
	assert.Equal(t, "Red maple", s.DisplayName)
	assert.Equal(t, "Aceraceae", s.Family)
	assert.Equal(t, "A common tree.", s.Description)
	assert.Equal(t, map[string]string{"bark": "Smooth and gray.", "fruit": "Paired samaras."}, s.Tabs)
	assert.Equal(t, map[string]string{"wildlife": "Browsed by deer."}, s.Facts)
	assert.Equal(t, []string{"leaf arrangement"}, s.Attributes.Keys())
	assert.True(t, s.Values("leaf arrangement").Has("opposite"))
}

func TestSpecies_ShortDescriptionHeader(t *testing.T) {
	s, ok := Species(row("name", "x", "D-Description", "short form"))
	require.True(t, ok)

	assert.Equal(t, "short form", s.Description)
	assert.Nil(t, s.Tabs)
}

func TestSpecies_MergesNumberedColumns(t *testing.T) {
	s, ok := Species(row(
		"name", "Quercus alba",
		"color", "red",
		"color2", "brown, Red",
		"Leaf Shape 1", "ovate",
		"leaf shape*", "Orbiculate (round)",
	))
	require.True(t, ok)

	assert.Equal(t, []string{"color", "leaf shape"}, s.Attributes.Keys())
	assert.Equal(t, []string{"brown", "red"}, s.Values("color").Sorted())
	assert.Equal(t, []string{"orbicular", "ovate"}, s.Values("leaf shape").Sorted())
}

func TestSpecies_DropsBlankName(t *testing.T) {
	for _, name := range []string{"", "   ", "\t"} {
		_, ok := Species(row("name", name, "color", "red"))
		assert.False(t, ok, "name %q", name)
	}
}

func TestSpecies_BlankDuplicateNameKeepsFirst(t *testing.T) {
	s, ok := Species(row("name", "Pinus strobus", "scientific name", " "))
	require.True(t, ok)
	assert.Equal(t, "Pinus strobus", s.Name)
}

func TestSpecies_DiscardsPlantType(t *testing.T) {
	s, ok := Species(row("name", "x", "PlantType", "tree", "Tree_Type", "broadleaf", "color", "red"))
	require.True(t, ok)

	assert.NotContains(t, s.Attributes, "planttype")
	assert.NotContains(t, s.Attributes, "tree type")
	assert.Contains(t, s.Attributes, "color")
}

func TestSpecies_EmptyAttributeCellAddsNoKey(t *testing.T) {
	s, ok := Species(row("name", "x", "color", " , "))
	require.True(t, ok)
	assert.Empty(t, s.Attributes)
}

func TestParenthesized(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Maple (Aceraceae)", "Aceraceae"},
		{"(Pinaceae) pine (other)", "Pinaceae"},
		{"Aceraceae", ""},
		{"Maple (Aceraceae", ""},
		{"Maple )Aceraceae(", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parenthesized(tt.input))
		})
	}
}

func TestMergeKey(t *testing.T) {
	assert.Equal(t, "color", MergeKey("color2"))
	assert.Equal(t, "color", MergeKey("color*"))
	assert.Equal(t, "leaf shape", MergeKey("leaf shape 3"))
	assert.Equal(t, "color", MergeKey("color"))
	assert.Equal(t, "", MergeKey(""))
}

func TestBatch_EndToEnd(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	res := New(logger).Batch([]Row{
		row("name", "dog", "description", "it's a dog", "color", "brown", "size", "big"),
		row("name", " ", "color", "green"),
		row("name", "cat", "description", "it's a cat", "color", "white,brown", "size", "small"),
	})

	require.Len(t, res.Species, 2)
	assert.Equal(t, 1, res.Dropped)
	assert.Contains(t, buf.String(), "row=2")

	dog, cat := res.Species[0], res.Species[1]
	assert.Equal(t, "dog", dog.Name)
	assert.Equal(t, domain.Attributes{
		"color": domain.NewValueSet("brown"),
		"size":  domain.NewValueSet("big"),
	}, dog.Attributes)
	assert.Equal(t, "cat", cat.Name)
	assert.Equal(t, domain.Attributes{
		"color": domain.NewValueSet("white", "brown"),
		"size":  domain.NewValueSet("small"),
	}, cat.Attributes)
}

func TestBatch_NilLogger(t *testing.T) {
	res := New(nil).Batch([]Row{row("name", "")})
	assert.Empty(t, res.Species)
	assert.Equal(t, 1, res.Dropped)
}

func TestRowFromRecord(t *testing.T) {
	r := RowFromRecord([]string{"name", "color", "size"}, []string{"dog", "brown"})
	assert.Equal(t, Row{{"name", "dog"}, {"color", "brown"}, {"size", ""}}, r)
}
