package tokenize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerms(t *testing.T) {
	t.Run("Should lowercase and drop stopwords", func(t *testing.T) {
		assert.Equal(t, []string{"compound", "interest"}, Terms("What is Compound Interest?"))
	})

	t.Run("Should keep numbers and apostrophes inside words", func(t *testing.T) {
		assert.Equal(t, []string{"roth", "ira", "2024", "investor's", "limit"}, Terms("Roth IRA 2024: the investor's limit"))
	})

	t.Run("Should return nothing for punctuation only", func(t *testing.T) {
		assert.Empty(t, Terms("?! --- ..."))
	})
}

func TestWords(t *testing.T) {
	t.Run("Should keep stopwords", func(t *testing.T) {
		assert.Equal(t, []string{"what", "is", "a", "bond"}, Words("What is a bond"))
	})
}
