package document_test

import (
	"testing"

	"mentions/internal/document"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pikachu   = document.Creature{ID: 25, Name: "Pikachu", Sprite: "https://img/25.png", NationalNumber: 25}
	flamethr  = document.Move{ID: 53, Name: "Flamethrower", Kind: "fire", Class: "special"}
	leftovers = document.Item{ID: 234, Name: "Leftovers", Sprite: "https://img/leftovers.png"}
	static    = document.Ability{ID: 9, Name: "Static"}
)

func sample() document.Document {
	return document.Document{
		document.Text{Content: "See "},
		document.Mention{Token: pikachu},
		document.Text{Content: " with "},
		document.Mention{Token: leftovers},
		document.Text{Content: ", "},
		document.Mention{Token: flamethr},
		document.Text{Content: " and "},
		document.Mention{Token: static},
		document.Text{Content: "!\nnext line"},
	}
}

func TestRender(t *testing.T) {
	got := document.Render(sample())
	assert.Equal(t, "See @Pikachu with @Leftovers, @Flamethrower and @Static!\nnext line", got)
}

func TestRoundTrip(t *testing.T) {
	docs := []document.Document{
		sample(),
		document.Empty(),
		{document.Mention{Token: pikachu}},
		{document.Text{Content: "a"}, document.Text{Content: "b"}},
		{document.Text{Content: `{"segments": "quoted"}`}},
	}
	for _, doc := range docs {
		stored, err := document.Serialize(doc)
		require.NoError(t, err)
		back := document.Deserialize(stored)
		assert.Equal(t, document.Render(doc), document.Render(back))
		if diff := cmp.Diff(doc, back); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestSerializeWireFormat(t *testing.T) {
	stored, err := document.Serialize(document.Document{
		document.Text{Content: "x"},
		document.Mention{Token: flamethr},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"segments":[
		{"type":"text","content":"x"},
		{"type":"mention","content":{"type":"move","id":53,"name":"Flamethrower","moveType":"fire","moveCategory":"special"}}
	]}`, stored)
}

func TestSerializeRejectsInvalidToken(t *testing.T) {
	_, err := document.Serialize(document.Document{document.Mention{Token: document.Ability{ID: 0, Name: "x"}}})
	require.ErrorIs(t, err, document.ErrInvalidToken)
}

func TestDeserializeLegacy(t *testing.T) {
	inputs := []string{
		"plain string",
		"",
		"{not json",
		`{"other": []}`,
		`{"segments": null}`,
		`{"segments": "nope"}`,
		`[1, 2, 3]`,
		"  @Pikachu is great  ",
	}
	for _, in := range inputs {
		doc := document.Deserialize(in)
		require.Len(t, doc, 1, in)
		assert.Equal(t, document.Text{Content: in}, doc[0])
		assert.Equal(t, in, document.Render(doc))
	}
}

func TestDeserializeDegradesBadEntries(t *testing.T) {
	stored := `{"segments":[
		{"type":"text","content":"a "},
		{"type":"mention","content":{"type":"pokemon","id":25,"name":"Pikachu","nationalNumber":25}},
		{"type":"mention","content":{"type":"weather","id":1,"name":"Rain"}},
		{"type":"mention","content":{"type":"move","id":0}},
		{"type":"heading","content":" end"},
		{"type":"text","content":42}
	]}`
	doc := document.Deserialize(stored)
	want := document.Document{
		document.Text{Content: "a "},
		document.Mention{Token: document.Creature{ID: 25, Name: "Pikachu", NationalNumber: 25}},
		document.Text{Content: "@Rain"},
		document.Text{Content: " end"},
	}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Errorf("unexpected document (-want +got):\n%s", diff)
	}
}

func TestDeserializeEmptySegments(t *testing.T) {
	doc := document.Deserialize(`{"segments":[]}`)
	assert.Equal(t, document.Empty(), doc)
}

func TestAnchors(t *testing.T) {
	spans := document.Anchors(sample())
	require.Len(t, spans, 4)
	assert.Equal(t, document.Span{Index: 1, Start: 4, End: 12}, spans[0])

	flat := document.Render(sample())
	for _, s := range spans {
		m := sample()[s.Index].(document.Mention)
		assert.Equal(t, document.Anchor(m.Token), flat[s.Start:s.End])
	}

	m, span, ok := document.MentionAt(sample(), 7)
	require.True(t, ok)
	assert.Equal(t, pikachu, m.Token)
	assert.Equal(t, 4, span.Start)

	_, _, ok = document.MentionAt(sample(), 12)
	assert.False(t, ok)
}

func TestMentionWithoutToken(t *testing.T) {
	doc := document.Document{
		document.Text{Content: "a "},
		document.Mention{},
		document.Mention{Token: pikachu},
	}
	assert.Equal(t, "a @Pikachu", document.Render(doc))
	assert.Equal(t, []document.Span{{Index: 2, Start: 2, End: 10}}, document.Anchors(doc))
	assert.Equal(t, []document.Token{pikachu}, document.Mentions(doc))
	assert.Equal(t, "", document.Anchor(nil))

	_, err := document.Serialize(doc)
	assert.ErrorIs(t, err, document.ErrInvalidToken)
}

func TestNormalize(t *testing.T) {
	doc := document.Normalize(document.Document{
		document.Text{Content: ""},
		document.Text{Content: "a"},
		document.Text{Content: "b"},
		document.Mention{Token: static},
		document.Text{Content: ""},
		document.Mention{Token: static},
		document.Text{Content: "c"},
	})
	want := document.Document{
		document.Text{Content: "ab"},
		document.Mention{Token: static},
		document.Mention{Token: static},
		document.Text{Content: "c"},
	}
	assert.Equal(t, want, doc)
	assert.Equal(t, document.Empty(), document.Normalize(document.Document{document.Text{}}))
	assert.Equal(t, document.Empty(), document.Normalize(nil))
}

func TestTokenConstructors(t *testing.T) {
	_, err := document.NewCreature(0, "Missingno", "", 0)
	assert.ErrorIs(t, err, document.ErrInvalidToken)

	_, err = document.NewCreature(1, "Bulbasaur", "", -1)
	assert.ErrorIs(t, err, document.ErrInvalidToken)

	_, err = document.NewMove(1, "  ", "", "")
	assert.ErrorIs(t, err, document.ErrInvalidToken)

	_, err = document.NewItem(1, "Two\nLines", "")
	assert.ErrorIs(t, err, document.ErrInvalidToken)

	ab, err := document.NewAbility(65, "Overgrow")
	require.NoError(t, err)
	assert.Equal(t, "@Overgrow", document.Anchor(ab))

	c, err := document.NewCreature(10025, "Pikachu", "", 25)
	require.NoError(t, err)
	assert.Equal(t, 25, c.RouteID())
	assert.Equal(t, 7, document.Creature{ID: 7, Name: "Squirtle"}.RouteID())
}

func TestParseCategory(t *testing.T) {
	for _, c := range document.Categories {
		got, err := document.ParseCategory(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	got, err := document.ParseCategory("Pokemon")
	require.NoError(t, err)
	assert.Equal(t, document.CategoryCreature, got)

	_, err = document.ParseCategory("type")
	assert.Error(t, err)
	assert.False(t, document.Category(9).Valid())
}
