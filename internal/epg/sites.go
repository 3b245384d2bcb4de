// SPDX-License-Identifier: MIT

package epg

// Site is one entry of the static site catalog exposed by the API.
type Site struct {
	Site string `json:"site"`
	Name string `json:"name"`
}

// Sites returns the catalog of well-known grabber sources. The grabber itself
// supports many more; this list only seeds the API for discovery.
func Sites() []Site {
	return []Site{
		{Site: "arirang.com", Name: "Arirang TV"},
		{Site: "bloomberg.com", Name: "Bloomberg"},
		{Site: "cnn.com", Name: "CNN"},
		{Site: "bbc.co.uk", Name: "BBC"},
		{Site: "aljazeera.com", Name: "Al Jazeera"},
		{Site: "dw.com", Name: "DW (Deutsche Welle)"},
		{Site: "france24.com", Name: "France 24"},
		{Site: "rt.com", Name: "RT"},
		{Site: "trtworld.com", Name: "TRT World"},
	}
}
