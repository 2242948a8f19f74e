package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	got := Tokenize("The Quick brown fox, isn't it? Version 42 of the FOX.")
	assert.Equal(t, []string{"quick", "brown", "fox", "isn't", "version", "42", "fox"}, got)
}

func TestTokenize_Empty(t *testing.T) {
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("the and of ... !!"))
}

func TestTokenize_Unicode(t *testing.T) {
	assert.Equal(t, []string{"привет", "мир"}, Tokenize("Привет, мир!"))
}
