package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSum(t *testing.T) {
	a := Sum([]byte("hello"))
	assert.Len(t, a, HexLen)
	assert.Equal(t, a, Sum([]byte("hello")))
	assert.NotEqual(t, a, Sum([]byte("hello!")))
}

func TestTaggedDomainSeparation(t *testing.T) {
	data := []byte("payload")
	assert.NotEqual(t, Tagged("domain-a", data), Tagged("domain-b", data))
	assert.NotEqual(t, Tagged("domain-a", data), Sum(data))
}

func TestTaggedPartBoundaries(t *testing.T) {
	// "ab"+"c" and "a"+"bc" must not collide by concatenation.
	assert.NotEqual(t,
		Tagged("t", []byte("ab"), []byte("c")),
		Tagged("t", []byte("a"), []byte("bc")))
}
