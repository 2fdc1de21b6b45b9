// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package tautulli

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// FlexFloat is a float64 that tolerates Tautulli returning numeric
// fields as either JSON numbers or strings ("7.8", "", null).
type FlexFloat float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*f = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Unparseable ratings are treated as absent, not fatal
		*f = 0
		return nil
	}
	*f = FlexFloat(v)
	return nil
}

// FlexInt is an int64 with the same string/number tolerance as FlexFloat.
type FlexInt int64

// UnmarshalJSON implements json.Unmarshaler.
func (i *FlexInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*i = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	// Percent fields occasionally arrive as "97.0"
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		*i = FlexInt(v)
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		*i = FlexInt(int64(v))
		return nil
	}
	*i = 0
	return nil
}

// GUIDList tolerates the two shapes Tautulli emits for the guids field:
// a list of strings, or a list of {"id": "..."} objects (older agents).
type GUIDList []string

// UnmarshalJSON implements json.Unmarshaler.
func (g *GUIDList) UnmarshalJSON(data []byte) error {
	var asStrings []string
	if err := json.Unmarshal(data, &asStrings); err == nil {
		*g = asStrings
		return nil
	}
	var asObjects []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &asObjects); err != nil {
		return err
	}
	out := make([]string, 0, len(asObjects))
	for _, o := range asObjects {
		if o.ID != "" {
			out = append(out, o.ID)
		}
	}
	*g = out
	return nil
}

// History represents the API response from Tautulli's get_history endpoint.
type History struct {
	Response HistoryResponse `json:"response"`
}

type HistoryResponse struct {
	Result  string      `json:"result"`
	Message *string     `json:"message,omitempty"`
	Data    HistoryData `json:"data"`
}

type HistoryData struct {
	RecordsFiltered int             `json:"recordsFiltered"`
	RecordsTotal    int             `json:"recordsTotal"`
	Data            []HistoryRecord `json:"data"`
}

// HistoryRecord is a single playback record from get_history.
// Duration is in SECONDS (unlike get_activity which returns milliseconds).
// Pointer types distinguish null from zero in Tautulli API responses.
type HistoryRecord struct {
	Date   int64 `json:"date"` // unix seconds of playback start
	RowID  int64 `json:"row_id"`
	ID     int64 `json:"id"`
	UserID *int  `json:"user_id"` // nullable in edge cases

	MediaType        string  `json:"media_type"`
	Title            string  `json:"title"`
	ParentTitle      *string `json:"parent_title"`      // null for movies
	GrandparentTitle *string `json:"grandparent_title"` // null for movies
	FullTitle        string  `json:"full_title"`

	RatingKey            FlexInt `json:"rating_key"`
	ParentRatingKey      FlexInt `json:"parent_rating_key"`
	GrandparentRatingKey FlexInt `json:"grandparent_rating_key"`

	Duration        FlexInt `json:"duration"` // seconds
	PercentComplete FlexInt `json:"percent_complete"`
	Year            FlexInt `json:"year"`

	TranscodeDecision string `json:"transcode_decision"`
	Player            string `json:"player"`
}

// Metadata represents the API response from Tautulli's get_metadata endpoint.
type Metadata struct {
	Response MetadataResponse `json:"response"`
}

type MetadataResponse struct {
	Result  string       `json:"result"`
	Message *string      `json:"message,omitempty"`
	Data    MetadataData `json:"data"`
}

type MetadataData struct {
	RatingKey            string  `json:"rating_key"`
	ParentRatingKey      string  `json:"parent_rating_key"`
	GrandparentRatingKey string  `json:"grandparent_rating_key"`
	Title                string  `json:"title"`
	GrandparentTitle     string  `json:"grandparent_title"`
	MediaType            string  `json:"media_type"`
	Year                 FlexInt `json:"year"`

	Rating         FlexFloat `json:"rating"`          // critic rating, 0-10
	AudienceRating FlexFloat `json:"audience_rating"` // 0-10

	GUID  string   `json:"guid"`
	Guids GUIDList `json:"guids"`

	Actors []string `json:"actors"`
	Genres []string `json:"genres"`

	MediaInfo []MediaInfo `json:"media_info"`
}

// AllGUIDs merges the guids array with the root guid string, which older
// Plex agents populate instead of the array.
func (m *MetadataData) AllGUIDs() []string {
	guids := make([]string, 0, len(m.Guids)+1)
	guids = append(guids, m.Guids...)
	if m.GUID != "" {
		guids = append(guids, m.GUID)
	}
	return guids
}

// FileSizeBytes returns the file size of the first media part, or 0
// when the metadata carries no media info.
func (m *MetadataData) FileSizeBytes() int64 {
	for _, mi := range m.MediaInfo {
		for _, p := range mi.Parts {
			if p.FileSize > 0 {
				return int64(p.FileSize)
			}
		}
	}
	return 0
}

type MediaInfo struct {
	Parts []MediaPart `json:"parts"`
}

type MediaPart struct {
	FileSize FlexInt `json:"file_size"`
}

// Users represents the API response from Tautulli's get_users endpoint.
type Users struct {
	Response UsersResponse `json:"response"`
}

type UsersResponse struct {
	Result  string       `json:"result"`
	Message *string      `json:"message,omitempty"`
	Data    []UserRecord `json:"data"`
}

// UserRecord is one entry from the Tautulli user table.
type UserRecord struct {
	UserID    int     `json:"user_id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	UserThumb string  `json:"user_thumb"`
	IsActive  FlexInt `json:"is_active"` // 1 or 0
}
