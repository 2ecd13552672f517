package websearch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummary(t *testing.T) {
	resp := Response{
		Answer: "Rates are about 4%.",
		Results: []Result{
			{URL: "https://a.example", Content: "first   result\ncontent"},
			{URL: "https://b.example", Content: "0123456789"},
			{URL: "https://c.example", Content: "dropped"},
		},
	}

	t.Run("Should keep the answer and clip results", func(t *testing.T) {
		got := Summary(resp, 2, 5)
		assert.Equal(t, "Rates are about 4%.\n\nfirst... (https://a.example)\n\n01234... (https://b.example)", got)
	})

	t.Run("Should render nothing for an empty response", func(t *testing.T) {
		assert.Empty(t, Summary(Response{}, 2, 150))
	})
}
