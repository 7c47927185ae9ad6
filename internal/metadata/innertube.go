package metadata

// Innertube wire types. Only the fields this client navigates are declared;
// anything else in the platform's responses is ignored by encoding/json.

const (
	playerPath = "/youtubei/v1/player"
	browsePath = "/youtubei/v1/browse"

	// The ANDROID client receives directly usable stream URLs from the
	// player endpoint, avoiding the web player's signature descrambling.
	androidClientName    = "ANDROID"
	androidClientVersion = "19.09.37"
	androidSDKVersion    = 30

	// Playlist browsing uses the WEB client, whose responses carry the
	// playlist renderer tree and continuation tokens.
	webClientName    = "WEB"
	webClientVersion = "2.20231219.01.00"

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

type innertubeClient struct {
	ClientName        string `json:"clientName"`
	ClientVersion     string `json:"clientVersion"`
	AndroidSDKVersion int    `json:"androidSdkVersion,omitempty"`
	Hl                string `json:"hl"`
	Gl                string `json:"gl"`
}

type innertubeContext struct {
	Client innertubeClient `json:"client"`
}

type playerRequest struct {
	Context innertubeContext `json:"context"`
	VideoID string           `json:"videoId"`
}

type browseRequest struct {
	Context      innertubeContext `json:"context"`
	BrowseID     string           `json:"browseId,omitempty"`
	Continuation string           `json:"continuation,omitempty"`
}

func androidContext() innertubeContext {
	return innertubeContext{Client: innertubeClient{
		ClientName:        androidClientName,
		ClientVersion:     androidClientVersion,
		AndroidSDKVersion: androidSDKVersion,
		Hl:                "en",
		Gl:                "US",
	}}
}

func webContext() innertubeContext {
	return innertubeContext{Client: innertubeClient{
		ClientName:    webClientName,
		ClientVersion: webClientVersion,
		Hl:            "en",
		Gl:            "US",
	}}
}

// --- player response ---

type playerResponse struct {
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	StreamingData *struct {
		Formats         []rawFormat `json:"formats"`
		AdaptiveFormats []rawFormat `json:"adaptiveFormats"`
	} `json:"streamingData"`
}

// rawFormat is one format descriptor. ContentLength arrives as a JSON
// string; URL is empty for cipher-protected variants.
type rawFormat struct {
	Itag            int    `json:"itag"`
	MimeType        string `json:"mimeType"`
	QualityLabel    string `json:"qualityLabel"`
	Quality         string `json:"quality"`
	AudioQuality    string `json:"audioQuality"`
	URL             string `json:"url"`
	SignatureCipher string `json:"signatureCipher"`
	ContentLength   string `json:"contentLength"`
}

// --- browse response ---

type browseResponse struct {
	Header                    *browseHeader      `json:"header"`
	Contents                  *browseContents    `json:"contents"`
	OnResponseReceivedActions []continuationPage `json:"onResponseReceivedActions"`
}

type browseHeader struct {
	PlaylistHeaderRenderer *playlistHeader `json:"playlistHeaderRenderer"`
	PageHeaderRenderer     *struct {
		Content struct {
			PlaylistHeaderRenderer *playlistHeader `json:"playlistHeaderRenderer"`
		} `json:"content"`
	} `json:"pageHeaderRenderer"`
}

type playlistHeader struct {
	Title         textValue   `json:"title"`
	OwnerText     textValue   `json:"ownerText"`
	Subtitle      textValue   `json:"subtitle"`
	NumVideosText textValue   `json:"numVideosText"`
	Stats         []textValue `json:"stats"`
}

type browseContents struct {
	TwoColumnBrowseResultsRenderer struct {
		Tabs []struct {
			TabRenderer *struct {
				Selected bool `json:"selected"`
				Content  struct {
					SectionListRenderer struct {
						Contents []struct {
							ItemSectionRenderer *struct {
								Contents []struct {
									PlaylistVideoListRenderer *struct {
										Contents []playlistEntry `json:"contents"`
									} `json:"playlistVideoListRenderer"`
								} `json:"contents"`
							} `json:"itemSectionRenderer"`
						} `json:"contents"`
					} `json:"sectionListRenderer"`
				} `json:"content"`
			} `json:"tabRenderer"`
		} `json:"tabs"`
	} `json:"twoColumnBrowseResultsRenderer"`
}

type continuationPage struct {
	AppendContinuationItemsAction *struct {
		ContinuationItems []playlistEntry `json:"continuationItems"`
	} `json:"appendContinuationItemsAction"`
}

// playlistEntry is either a video row or the continuation sentinel that
// closes a page.
type playlistEntry struct {
	PlaylistVideoRenderer *struct {
		VideoID string    `json:"videoId"`
		Title   textValue `json:"title"`
	} `json:"playlistVideoRenderer"`
	ContinuationItemRenderer *struct {
		ContinuationEndpoint struct {
			ContinuationCommand struct {
				Token string `json:"token"`
			} `json:"continuationCommand"`
		} `json:"continuationEndpoint"`
	} `json:"continuationItemRenderer"`
}

// textValue covers the platform's two text encodings: runs and simpleText.
type textValue struct {
	SimpleText string `json:"simpleText"`
	Runs       []struct {
		Text string `json:"text"`
	} `json:"runs"`
}

func (t textValue) String() string {
	if t.SimpleText != "" {
		return t.SimpleText
	}
	if len(t.Runs) > 0 {
		return t.Runs[0].Text
	}
	return ""
}
