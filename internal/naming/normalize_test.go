package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "punctuation stripped", input: "My Org!!", want: "my_org"},
		{name: "whitespace collapsed and trimmed", input: "  a   b ", want: "a_b"},
		{name: "tabs and newlines", input: "Acme\t\nCorp", want: "acme_corp"},
		{name: "already normalized", input: "acme_corp_2", want: "acme_corp_2"},
		{name: "uppercase", input: "ACME", want: "acme"},
		{name: "hyphen removed", input: "Acme-Corp", want: "acmecorp"},
		{name: "non-ascii letters removed", input: "Café Zürich", want: "caf_zrich"},
		{name: "stripped char between spaces keeps both underscores", input: "a ! b", want: "a__b"},
		{name: "nothing survives", input: "!!! ???", want: "_"},
		{name: "only symbols", input: "%$#", want: ""},
		{name: "empty", input: "", want: ""},
		{name: "only whitespace", input: "   \t ", want: ""},
		{name: "information separators are whitespace", input: "a\x1cb\x1dc\x1ed\x1fe", want: "a_b_c_d_e"},
		{name: "unicode whitespace", input: "a\u00a0b\u2003c\u2028d\u0085e", want: "a_b_c_d_e"},
		{name: "vertical tab and form feed", input: "a\vb\fc", want: "a_b_c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"My Org!!",
		"  a   b ",
		"Acme Corp",
		"ÄÖÜ  weird space",
		"__already__",
		"",
		"x y\tz\n",
	}

	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "org_acme", CollectionName(DefaultCollectionPrefix, Normalize("Acme")))
	assert.Equal(t, "org_", CollectionName(DefaultCollectionPrefix, Normalize("???")))
	assert.Equal(t, "tenant_acme_corp", CollectionName("tenant_", "acme_corp"))
}
