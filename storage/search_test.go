package storage

import (
	"testing"
	"time"
)

func seededIndex(t *testing.T) *SearchIndex {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	seed := []struct {
		id, title string
		texts     []string
	}{
		{"go", "Go generics questions", []string{"How do type parameters work?", "They are declared in brackets."}},
		{"trip", "Trip planning for Kyoto", []string{"Plan a trip to Kyoto", "Day one: visit Fushimi Inari."}},
		{"recipes", "Weeknight recipes", []string{"Something quick with GENERICS of pasta", "Try aglio e olio."}},
	}
	for i, s := range seed {
		c := conversationAt(t, s.id, s.title, base.Add(time.Duration(i)*time.Hour), s.texts...)
		if err := store.Save(c); err != nil {
			t.Fatal(err)
		}
	}
	return NewSearchIndex(store)
}

func TestSearchTitles(t *testing.T) {
	si := seededIndex(t)

	tests := []struct {
		query string
		want  string
	}{
		{"kyoto", "trip"},
		{"gogen", "go"},
		{"wkrcp", "recipes"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			results, err := si.SearchTitles(tt.query)
			if err != nil {
				t.Fatalf("SearchTitles() error = %v", err)
			}
			if len(results) == 0 || results[0].ID != tt.want {
				t.Errorf("SearchTitles(%q) = %+v, want %s first", tt.query, results, tt.want)
			}
		})
	}

	all, err := si.SearchTitles("")
	if err != nil || len(all) != 3 {
		t.Errorf("SearchTitles(\"\") = %d results, %v", len(all), err)
	}
}

func TestSearchMessages(t *testing.T) {
	si := seededIndex(t)

	results, err := si.SearchMessages("generics")
	if err != nil {
		t.Fatalf("SearchMessages() error = %v", err)
	}
	// Only message text is searched, not titles.
	if len(results) != 1 {
		t.Fatalf("results = %+v, want 1", results)
	}
	got := results[0]
	if got.ConversationID != "recipes" || got.MessageIndex != 0 || got.Role != "user" {
		t.Errorf("result = %+v", got)
	}
	if got.Preview != "Something quick with GENERICS of pasta" {
		t.Errorf("Preview = %q", got.Preview)
	}

	if results, _ := si.SearchMessages("   "); results != nil {
		t.Errorf("blank query returned %v", results)
	}
}

func TestMatchPreview(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog and keeps running far beyond the hills until nightfall comes and then it rests quietly in a warm den"
	lower := text
	idx := len("The quick brown fox jumps over the lazy dog and keeps running far beyond ")
	got := matchPreview(text, lower, idx, len("the"))
	if got[:3] != "..." || got[len(got)-3:] != "..." {
		t.Errorf("matchPreview() = %q, want ellipses on both sides", got)
	}
}
