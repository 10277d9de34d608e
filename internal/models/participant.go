package models

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Palette is the set of avatar colors handed out to new participants.
var Palette = []string{"#E53935", "#7CB342", "#1E88E5", "#FB8C00", "#5E35B1", "#00897B", "#C62828", "#F57C00"}

var validate = validator.New()

// Participant is a person who may claim items on a bill.
type Participant struct {
	// ID is opaque: a generated guest ID or an identity-provider user ID.
	ID string `validate:"required,max=128"`

	// Initials are shown in the avatar bubble.
	Initials string `validate:"required,max=2,uppercase"`

	// Color is the avatar background as #RRGGBB.
	Color string `validate:"required,hexcolor"`

	Name string `validate:"max=100"`

	// PhotoURL optionally references an avatar image.
	PhotoURL string `validate:"omitempty,url"`
}

// Validate checks the participant's display fields.
func (p Participant) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid participant: %w", err)
	}
	return nil
}

// Initials derives avatar initials from a display name: the first letter of up to two
// words, uppercased. An empty name yields "G".
func Initials(name string) string {
	var out []rune
	for _, word := range strings.Fields(name) {
		out = append(out, unicode.ToUpper([]rune(word)[0]))
		if len(out) == 2 {
			break
		}
	}
	if len(out) == 0 {
		return "G"
	}
	return string(out)
}

// ColorFor picks a stable palette color for an ID.
func ColorFor(id string) string {
	h := fnv.New32a()
	h.Write([]byte(id))
	return Palette[h.Sum32()%uint32(len(Palette))]
}
