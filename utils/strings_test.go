package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInternReturnsSharedString(t *testing.T) {
	first := Intern([]byte("GET"))
	second := Intern([]byte("GET"))

	assert.Equal(t, "GET", first)
	assert.Equal(t, first, second)

	// Distinct values stay distinct.
	assert.Equal(t, "POST", Intern([]byte("POST")))
}

func TestBytesToString(t *testing.T) {
	assert.Equal(t, "", BytesToString(nil))
	assert.Equal(t, "", BytesToString([]byte{}))
	assert.Equal(t, "/api/document", BytesToString([]byte("/api/document")))
}
