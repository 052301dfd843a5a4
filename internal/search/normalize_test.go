package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "alba sos", Normalize("Ălbă Șos"))
	assert.Equal(t, "timisoara", Normalize("Timișoara"))
	assert.Equal(t, "tara romaneasca", Normalize("Țara Românească"))
	assert.Equal(t, "intai", Normalize("Întâi"))
	// Legacy cedilla spellings fold the same way as comma-below.
	assert.Equal(t, "brasov", Normalize("Braşov"))
	assert.Equal(t, "", Normalize(""))
	// Letters outside the table are only lowercased.
	assert.Equal(t, "cluj-napoca 42", Normalize("Cluj-Napoca 42"))
}

func TestContains(t *testing.T) {
	assert.True(t, Contains("Cluj-Napoca", "napoca"))
	assert.False(t, Contains("Cluj-Napoca", "xyz"))
	assert.True(t, Contains("Strada Ștefan cel Mare", "stefan"))
	assert.True(t, Contains("Bulevardul Unirii", "UNIRII"))
	// Needle with diacritics matches a plain haystack too.
	assert.True(t, Contains("Strada Stefan", "Ștefan"))
}

func TestStartsWithAndEquals(t *testing.T) {
	assert.True(t, StartsWith("Șoseaua Nordului", "sosea"))
	assert.False(t, StartsWith("Șoseaua Nordului", "nord"))
	assert.True(t, Equals("BRAȘOV", "braşov"))
	assert.False(t, Equals("Brașov", "Brasov city"))
}

func TestSortByKey(t *testing.T) {
	type row struct{ Name string }
	list := []row{{"Șos Colentina"}, {"alba"}, {"Ărad"}, {"alba"}}

	SortByKey(list, true, func(r row) string { return r.Name })
	assert.Equal(t, []row{{"alba"}, {"alba"}, {"Ărad"}, {"Șos Colentina"}}, list)

	SortByKey(list, false, func(r row) string { return r.Name })
	assert.Equal(t, "Șos Colentina", list[0].Name)
}
