// Package bottle implements the drift bottle lifecycle: throwing bottles into
// the local sea or the cloud, picking other users' bottles at random, and
// keeping every picked bottle in the picker's collection.
package bottle

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// TimeLayout is the timestamp format stored in the data file. Second
// precision; sorting compares the strings directly.
const TimeLayout = "2006-01-02 15:04:05"

type ImageKind string

const (
	ImageBase64 ImageKind = "base64"
	ImageURL    ImageKind = "url"
	// ImagePlatformURL is a URL served by the chat platform (QQ via OneBot)
	// that may need an access token to fetch.
	ImagePlatformURL ImageKind = "qq_url"
)

type Image struct {
	Type ImageKind `json:"type"`
	Data string    `json:"data"`
}

type Origin int

const (
	Local Origin = iota
	Cloud
)

func (o Origin) String() string {
	if o == Cloud {
		return "cloud"
	}
	return "local"
}

// ID prefixes mark where a bottle came from.
const (
	LocalPrefix = "l"
	CloudPrefix = "c"
)

type Bottle struct {
	ID        string  `json:"bottle_id"`
	Content   string  `json:"content"`
	Images    []Image `json:"images"`
	Sender    string  `json:"sender"`
	SenderID  string  `json:"sender_id"`
	Timestamp string  `json:"timestamp"`
	Picked    bool    `json:"picked"`
}

// UnmarshalJSON accepts numeric bottle ids as well as strings, so bottles
// returned by the remote service decode without a separate type.
func (b *Bottle) UnmarshalJSON(data []byte) error {
	type alias Bottle
	aux := struct {
		*alias

		ID json.RawMessage `json:"bottle_id"`
	}{alias: (*alias)(b)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	id, err := ParseID(aux.ID)
	if err != nil {
		return fmt.Errorf("bottle_id: %w", err)
	}
	b.ID = id
	return nil
}

// ParseID decodes a bottle id given either as a JSON string or a number.
func ParseID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// Clone returns a deep copy of the bottle.
func (b Bottle) Clone() Bottle {
	if b.Images != nil {
		imgs := make([]Image, len(b.Images))
		copy(imgs, b.Images)
		b.Images = imgs
	}
	return b
}

// View returns a copy of the bottle prepared for delivery. Platform image
// URLs get the access token appended; the receiver is left untouched.
func (b Bottle) View(token string) Bottle {
	v := b.Clone()
	if token == "" {
		return v
	}
	for i, img := range v.Images {
		if img.Type != ImagePlatformURL {
			continue
		}
		v.Images[i].Data = withToken(img.Data, token)
	}
	return v
}

func withToken(raw, token string) string {
	u, err := url.Parse(raw)
	if err != nil {
		sep := "?"
		if strings.Contains(raw, "?") {
			sep = "&"
		}
		return raw + sep + "access_token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// Draft is a bottle before it has been thrown.
type Draft struct {
	Content  string
	Images   []Image
	Sender   string
	SenderID string
}

func localID(n int) string { return LocalPrefix + strconv.Itoa(n) }

func cloudID(raw string) string { return CloudPrefix + raw }
