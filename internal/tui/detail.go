package tui

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/cat-gallery/pkg/catapi"
)

// RenderDetail renders the detail panel for the selected cat. It is a pure
// function of the selection and returns "" when nothing is selected.
func RenderDetail(cat catapi.Cat, selected bool, width int) string {
	if !selected {
		return ""
	}

	row := func(label, value string) string {
		return labelStyle.Render(label) + value
	}

	size := "unknown"
	if cat.Width > 0 && cat.Height > 0 {
		size = fmt.Sprintf("%d x %d", cat.Width, cat.Height)
	}
	breed := cat.BreedName()
	if breed == "" {
		breed = mutedStyle.Render("unknown")
	}

	lines := []string{
		titleStyle.Render("Cat code: " + cat.ID),
		"",
		row("Image", accentStyle.Render(cat.URL)),
		row("Size", size),
		row("Breed", breed),
		"",
		helpStyle.Render("esc close"),
	}

	style := detailStyle
	if width > 4 {
		style = style.Width(width - 4)
	}
	return style.Render(strings.Join(lines, "\n"))
}
