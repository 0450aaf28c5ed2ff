package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCardExpDate(t *testing.T) {
	card := &Card{Month: 9, Year: 2024}
	assert.Equal(t, "09/24", card.ExpDate("/"))
	assert.Equal(t, "0924", card.ExpDate(""))

	card = &Card{Month: 12, Year: 2030}
	assert.Equal(t, "1230", card.ExpDate(""))
}

func TestCardName(t *testing.T) {
	card := &Card{FirstName: "Longbob", LastName: "Longsen"}
	assert.Equal(t, "Longbob Longsen", card.Name(60))
	assert.Equal(t, "Longbob L", card.Name(9))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "abcde", Truncate("abcdefgh", 5))
}

func TestOptionsCloneOfNil(t *testing.T) {
	var opts *Options
	clone := opts.Clone()
	assert.NotNil(t, clone)
	assert.Empty(t, clone.OrderID)
}

func TestOptionsCloneDoesNotAliasCaller(t *testing.T) {
	opts := &Options{OrderID: "order-1"}
	clone := opts.Clone()
	clone.CustomerID = "generated"
	assert.Empty(t, opts.CustomerID)
	assert.Equal(t, "order-1", clone.OrderID)
}
