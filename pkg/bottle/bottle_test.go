package bottle

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBottle_UnmarshalNumericID(t *testing.T) {
	var b Bottle
	require.NoError(t, json.Unmarshal([]byte(`{"bottle_id": 17, "content": "hi", "images": []}`), &b))
	assert.Equal(t, "17", b.ID)
	assert.Equal(t, "hi", b.Content)

	require.NoError(t, json.Unmarshal([]byte(`{"bottle_id": "l3"}`), &b))
	assert.Equal(t, "l3", b.ID)
}

func TestBottle_View(t *testing.T) {
	b := Bottle{
		ID: "l1",
		Images: []Image{
			{Type: ImagePlatformURL, Data: "https://qq.example/img?fileid=1"},
			{Type: ImageURL, Data: "https://cdn.example/a.png"},
			{Type: ImageBase64, Data: "aGVsbG8="},
		},
	}

	v := b.View("secret")
	assert.Contains(t, v.Images[0].Data, "access_token=secret")
	assert.Contains(t, v.Images[0].Data, "fileid=1")
	assert.Equal(t, "https://cdn.example/a.png", v.Images[1].Data)
	assert.Equal(t, "aGVsbG8=", v.Images[2].Data)

	// The stored bottle is unchanged.
	assert.Equal(t, "https://qq.example/img?fileid=1", b.Images[0].Data)

	plain := b.View("")
	assert.Equal(t, b.Images, plain.Images)
}

func TestLimits_Check(t *testing.T) {
	l := DefaultLimits()

	assert.NoError(t, l.Check(strings.Repeat("海", 500), nil))
	assert.NoError(t, l.Check("", []Image{{Type: ImageURL, Data: "x"}}))

	err := l.Check(strings.Repeat("海", 501), nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "content", verr.Field)
	assert.Equal(t, 501, verr.Got)

	err = l.Check("", []Image{{}, {}})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "images", verr.Field)
	assert.Contains(t, err.Error(), "max 1")
}

func TestPickStatus_String(t *testing.T) {
	assert.Equal(t, "picked", Picked.String())
	assert.Equal(t, "empty", Empty.String())
	assert.Equal(t, "blocked", Blocked.String())
}

func TestImageURI(t *testing.T) {
	assert.Equal(t, "http://img", Image{Type: ImageURL, Data: "http://img"}.URI())
	assert.Equal(t, "data:image/png;base64,iVBORw0KGgoAAA", Image{Type: ImageBase64, Data: "iVBORw0KGgoAAA"}.URI())
	assert.Equal(t, "data:image/gif;base64,xx", DataURI("data:image/gif;base64,xx"))

	mt, payload := SplitDataURI("data:image/webp;base64,UklGRabc")
	assert.Equal(t, "image/webp", mt)
	assert.Equal(t, "UklGRabc", payload)

	mt, payload = SplitDataURI("/9j/4AAQ")
	assert.Equal(t, "image/jpeg", mt)
	assert.Equal(t, "/9j/4AAQ", payload)
}
