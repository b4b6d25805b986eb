package notion

import (
	"strings"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPropertyBuilders(t *testing.T) {
	title := Title("price_mismatch: Surgical Gloves")
	require.Len(t, title.Title, 1)
	assert.Equal(t, "price_mismatch: Surgical Gloves", title.Title[0].Text.Content)
	assert.Equal(t, notionapi.PropertyTypeTitle, title.Type)

	assert.Equal(t, 450.0, Number(450).Number)
	assert.Equal(t, "Out of Range", Select("Out of Range").Select.Name)
	assert.False(t, Checkbox(false).Checkbox)

	when := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	d := DateOf(when)
	require.NotNil(t, d.Date)
	assert.Equal(t, when, time.Time(*d.Date.Start))
}

func TestText_Truncates(t *testing.T) {
	long := strings.Repeat("é", maxTextLen+10)
	p := Text(long)
	assert.Len(t, []rune(p.RichText[0].Text.Content), maxTextLen)
	assert.Equal(t, "short", Text("short").RichText[0].Text.Content)
}

func TestPlainText(t *testing.T) {
	read := &notionapi.RichTextProperty{RichText: []notionapi.RichText{{PlainText: "ex-"}, {PlainText: "1"}}}
	assert.Equal(t, "ex-1", PlainText(read))

	assert.Equal(t, "Invoice 7", PlainText(Title("Invoice 7")))
	assert.Equal(t, "built", PlainText(Text("built")))
	assert.Equal(t, "", PlainText(Number(3)))
	assert.Equal(t, "", PlainText(nil))
}
