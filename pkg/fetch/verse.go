package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// DefaultAPIBase is the quran.com v4 API root.
	DefaultAPIBase = "https://api.quran.com/api/v4"
	// DefaultAudioBase hosts per-verse and per-word recitation audio.
	DefaultAudioBase = "https://verses.quran.foundation/"

	verseFields = "text_uthmani,chapter_id,page_number,juz_number,hizb_number,sajdah_number"
	wordFields  = "text_uthmani,page_number,line_number,char_type,audio"
)

// VerseKey addresses one verse as sura:ayah, e.g. "2:255".
type VerseKey struct {
	Sura int
	Ayah int
}

func (k VerseKey) String() string { return fmt.Sprintf("%d:%d", k.Sura, k.Ayah) }

// WordRecord is one token of a verse as returned by the remote source.
// Page/line/audio are optional; zero or empty means the payload did not
// carry them.
type WordRecord struct {
	ID         int64
	Position   int
	Text       string
	Type       string
	PageNumber *int
	LineNumber *int
	AudioURL   string
}

// VerseRecord is the parsed remote payload for one verse, shaped for the
// Ayats/Words tables. All identifiers are the upstream source's own.
type VerseRecord struct {
	AyatID       int64
	SuraID       int
	AyatNumber   int
	Text         string
	JuzNumber    int
	HezbNumber   int
	PageNumber   int
	SajdahNumber *int
	AudioURL     string
	Words        []WordRecord
}

// VerseFetcher pulls one verse (with its words) per logical request.
// It never writes to the store.
type VerseFetcher struct {
	Client    *Client
	APIBase   string
	AudioBase string
}

// NewVerseFetcher wires a fetcher against the default API endpoints.
func NewVerseFetcher(c *Client) *VerseFetcher {
	return &VerseFetcher{Client: c, APIBase: DefaultAPIBase, AudioBase: DefaultAudioBase}
}

// verse payload shapes, field-named per the v4 API.
type versePayload struct {
	Verse struct {
		ID              int64  `json:"id"`
		VerseNumber     int    `json:"verse_number"`
		ChapterID       int    `json:"chapter_id"`
		TextUthmani     string `json:"text_uthmani"`
		JuzNumber       int    `json:"juz_number"`
		HizbNumber      int    `json:"hizb_number"`
		RubElHizbNumber int    `json:"rub_el_hizb_number"`
		PageNumber      int    `json:"page_number"`
		SajdahNumber    *int   `json:"sajdah_number"`
		Audio           *struct {
			URL string `json:"url"`
		} `json:"audio"`
		Words []wordPayload `json:"words"`
	} `json:"verse"`
}

type wordPayload struct {
	ID           int64  `json:"id"`
	Position     int    `json:"position"`
	TextUthmani  string `json:"text_uthmani"`
	CharTypeName string `json:"char_type_name"`
	CharType     string `json:"char_type"`
	PageNumber   *int   `json:"page_number"`
	LineNumber   *int   `json:"line_number"`
	AudioURL     string `json:"audio_url"`
	Audio        *struct {
		URL string `json:"url"`
	} `json:"audio"`
}

// FetchVerse fetches and parses one verse. Malformed payloads and missing
// required fields come back as a *Failure with KindPermanent: retrying
// cannot fix a bad payload.
func (f *VerseFetcher) FetchVerse(ctx context.Context, key VerseKey) (*VerseRecord, error) {
	url := fmt.Sprintf("%s/verses/by_key/%s?words=true&audio=7&word_fields=%s&fields=%s",
		strings.TrimRight(f.apiBase(), "/"), key, wordFields, verseFields)

	body, err := f.Client.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	var p versePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &Failure{Kind: KindPermanent, Attempts: 1, Err: fmt.Errorf("parse verse %s: %w", key, err)}
	}

	rec, err := f.normalize(key, &p)
	if err != nil {
		return nil, &Failure{Kind: KindPermanent, Attempts: 1, Err: err}
	}
	return rec, nil
}

// normalize maps the raw payload onto our schema and validates the fields
// the writer cannot do without.
func (f *VerseFetcher) normalize(key VerseKey, p *versePayload) (*VerseRecord, error) {
	v := &p.Verse
	hezb := v.HizbNumber
	if hezb == 0 {
		hezb = v.RubElHizbNumber
	}
	ayahNumber := v.VerseNumber
	if ayahNumber == 0 {
		ayahNumber = key.Ayah
	}

	switch {
	case v.ID <= 0:
		return nil, fmt.Errorf("verse %s: missing id", key)
	case v.ChapterID != key.Sura:
		return nil, fmt.Errorf("verse %s: payload chapter %d does not match key", key, v.ChapterID)
	case v.TextUthmani == "":
		return nil, fmt.Errorf("verse %s: missing text_uthmani", key)
	case v.JuzNumber <= 0 || hezb <= 0 || v.PageNumber <= 0:
		return nil, fmt.Errorf("verse %s: missing structural fields (juz=%d hezb=%d page=%d)",
			key, v.JuzNumber, hezb, v.PageNumber)
	}

	rec := &VerseRecord{
		AyatID:       v.ID,
		SuraID:       v.ChapterID,
		AyatNumber:   ayahNumber,
		Text:         v.TextUthmani,
		JuzNumber:    v.JuzNumber,
		HezbNumber:   hezb,
		PageNumber:   v.PageNumber,
		SajdahNumber: v.SajdahNumber,
	}
	if v.Audio != nil {
		rec.AudioURL = f.combineURL(v.Audio.URL)
	}

	for _, w := range v.Words {
		if w.ID <= 0 || w.Position <= 0 {
			return nil, fmt.Errorf("verse %s: word with missing id or position", key)
		}
		wordType := w.CharTypeName
		if wordType == "" {
			wordType = w.CharType
		}
		audio := w.AudioURL
		if audio == "" && w.Audio != nil {
			audio = w.Audio.URL
		}
		rec.Words = append(rec.Words, WordRecord{
			ID:         w.ID,
			Position:   w.Position,
			Text:       w.TextUthmani,
			Type:       wordType,
			PageNumber: w.PageNumber,
			LineNumber: w.LineNumber,
			AudioURL:   f.combineURL(audio),
		})
	}

	return rec, nil
}

// ChapterRecord is one chapter from the chapters listing.
type ChapterRecord struct {
	ID              int    `json:"id"`
	NameArabic      string `json:"name_arabic"`
	RevelationOrder int    `json:"revelation_order"`
	VersesCount     int    `json:"verses_count"`
}

// FetchChapters fetches the chapter listing used to seed Suras and to build
// the full verse key space.
func (f *VerseFetcher) FetchChapters(ctx context.Context) ([]ChapterRecord, error) {
	url := strings.TrimRight(f.apiBase(), "/") + "/chapters?language=ar"
	body, err := f.Client.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	var p struct {
		Chapters []ChapterRecord `json:"chapters"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &Failure{Kind: KindPermanent, Attempts: 1, Err: fmt.Errorf("parse chapters: %w", err)}
	}
	if len(p.Chapters) == 0 {
		return nil, &Failure{Kind: KindPermanent, Attempts: 1, Err: fmt.Errorf("chapters payload empty")}
	}
	for _, ch := range p.Chapters {
		if ch.ID <= 0 || ch.VersesCount <= 0 {
			return nil, &Failure{Kind: KindPermanent, Attempts: 1,
				Err: fmt.Errorf("chapter %d: missing id or verses_count", ch.ID)}
		}
	}
	return p.Chapters, nil
}

// KeySpace expands the chapter listing into the full ordered verse key
// space, ascending in canonical reading order.
func KeySpace(chapters []ChapterRecord) []VerseKey {
	var keys []VerseKey
	for _, ch := range chapters {
		for a := 1; a <= ch.VersesCount; a++ {
			keys = append(keys, VerseKey{Sura: ch.ID, Ayah: a})
		}
	}
	return keys
}

func (f *VerseFetcher) apiBase() string {
	if f.APIBase != "" {
		return f.APIBase
	}
	return DefaultAPIBase
}

// combineURL joins a relative audio path onto the audio host, avoiding
// double slashes. Empty paths stay empty.
func (f *VerseFetcher) combineURL(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	base := f.AudioBase
	if base == "" {
		base = DefaultAudioBase
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
