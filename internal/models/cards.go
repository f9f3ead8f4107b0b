package models

import "slices"

// Card is a planning poker card value.
type Card int

const (
	// CardUnknown is played when the voter cannot estimate the story.
	CardUnknown Card = -1
	// CardBreak is played when the voter needs a break.
	CardBreak Card = -2
)

// Deck is the closed set of playable cards in display order.
var Deck = []Card{0, 1, 2, 3, 5, 8, 13, 21, CardUnknown, CardBreak}

// MaxRounds caps the number of voting rounds for a single story.
const MaxRounds = 3

// MaxCommentLength is the maximum number of characters in a vote comment.
const MaxCommentLength = 200

// IsValid reports whether the card belongs to the deck.
func (c Card) IsValid() bool {
	return slices.Contains(Deck, c)
}

// IsNumeric reports whether the card carries an estimate rather than a sentinel.
func (c Card) IsNumeric() bool {
	return c >= 0
}
