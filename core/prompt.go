package core

import (
	"fmt"

	"github.com/charmbracelet/huh"
)

// Continue asks a yes/no question on the terminal.
func Continue(txt string) bool {
	var confirm bool

	huh.NewConfirm().
		Title(txt).
		Affirmative("Yes").
		Negative("No").
		Value(&confirm).
		Run()

	return confirm
}

// OnOffer is the default incoming-transfer prompt.
func OnOffer(remote string) bool {
	return Continue(fmt.Sprintf("Accept incoming transfer from %s?", remote))
}
