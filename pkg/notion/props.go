package notion

import (
	"time"

	"github.com/jomei/notionapi"
)

// Notion rejects rich text content longer than this.
const maxTextLen = 2000

func richText(s string) []notionapi.RichText {
	if r := []rune(s); len(r) > maxTextLen {
		s = string(r[:maxTextLen])
	}
	return []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}}
}

// Title builds a title property.
func Title(s string) notionapi.TitleProperty {
	return notionapi.TitleProperty{Type: notionapi.PropertyTypeTitle, Title: richText(s)}
}

// Text builds a rich_text property.
func Text(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: richText(s)}
}

// Number builds a number property.
func Number(f float64) notionapi.NumberProperty {
	return notionapi.NumberProperty{Type: notionapi.PropertyTypeNumber, Number: f}
}

// Select builds a select property.
func Select(name string) notionapi.SelectProperty {
	return notionapi.SelectProperty{Type: notionapi.PropertyTypeSelect, Select: notionapi.Option{Name: name}}
}

// Checkbox builds a checkbox property.
func Checkbox(b bool) notionapi.CheckboxProperty {
	return notionapi.CheckboxProperty{Type: notionapi.PropertyTypeCheckbox, Checkbox: b}
}

// DateOf builds a date property.
func DateOf(t time.Time) notionapi.DateProperty {
	d := notionapi.Date(t)
	return notionapi.DateProperty{Type: notionapi.PropertyTypeDate, Date: &notionapi.DateObject{Start: &d}}
}

// PlainText returns the concatenated plain text of a title or rich_text
// property read back from a page, or "" for other property types.
func PlainText(p notionapi.Property) string {
	var parts []notionapi.RichText
	switch v := p.(type) {
	case *notionapi.RichTextProperty:
		parts = v.RichText
	case notionapi.RichTextProperty:
		parts = v.RichText
	case *notionapi.TitleProperty:
		parts = v.Title
	case notionapi.TitleProperty:
		parts = v.Title
	}
	var s string
	for _, rt := range parts {
		if rt.PlainText != "" {
			s += rt.PlainText
		} else if rt.Text != nil {
			s += rt.Text.Content
		}
	}
	return s
}
