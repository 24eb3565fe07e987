package screen

import (
	"fmt"
	"regexp"
	"strings"
)

// Markers printed by the terminal
const (
	MainMenuMarker     = "Failure Analysis Menu"
	MorePagesMarker    = "More..."
	BottomMarker       = "Bottom"
	ConfirmationMarker = "Type OK"
)

var serialPattern = regexp.MustCompile(`\b\d{10}\b`)

// Header holds the values printed on the first line of the main menu
type Header struct {
	Receiver string
	Date     string // MM/DD/YY
}

// IsMainMenu reports whether the capture shows the Failure Analysis main menu
func IsMainMenu(blob string) bool {
	return strings.Contains(blob, MainMenuMarker)
}

// HasMorePages reports whether the terminal indicates further pages
func HasMorePages(blob string) bool {
	return strings.Contains(blob, MorePagesMarker)
}

// AtBottom reports whether the last page has been reached
func AtBottom(blob string) bool {
	return strings.Contains(blob, BottomMarker)
}

// NeedsConfirmation reports whether the terminal asks for OK before showing an item
func NeedsConfirmation(blob string) bool {
	return strings.Contains(blob, ConfirmationMarker)
}

// Serials returns every standalone 10 digit number in order of appearance.
// Duplicates are kept.
func Serials(blob string) []string {
	return serialPattern.FindAllString(blob, -1)
}

// ParseHeader reads the receiver and date from the first line of the main
// menu. The receiver is the second word and the date the sixth.
func ParseHeader(blob string) (Header, error) {
	first, _, _ := strings.Cut(strings.ReplaceAll(blob, "\r\n", "\n"), "\n")
	words := strings.Fields(first)
	if len(words) < 6 {
		return Header{}, &FieldError{Field: "header", Keyword: "receiver/date"}
	}
	return Header{Receiver: words[1], Date: words[5]}, nil
}

// Item is the typed record extracted from an item detail screen
type Item struct {
	SLA        string
	ReturnType string
	PartNumber string
}

// ParseItem extracts SLA, return type and part number from a detail screen
func ParseItem(blob string) (Item, error) {
	tokens := Tokenize(blob)

	sla, err := tokens.SLA()
	if err != nil {
		return Item{}, fmt.Errorf("reading SLA: %w", err)
	}
	returnType, err := tokens.ReturnType()
	if err != nil {
		return Item{}, fmt.Errorf("reading return type: %w", err)
	}
	partNumber, err := tokens.PartNumber()
	if err != nil {
		return Item{}, fmt.Errorf("reading part number: %w", err)
	}

	return Item{SLA: sla, ReturnType: returnType, PartNumber: partNumber}, nil
}
