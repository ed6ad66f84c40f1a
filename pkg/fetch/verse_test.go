package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const sampleVerseJSON = `{
  "verse": {
    "id": 262,
    "verse_number": 255,
    "chapter_id": 2,
    "text_uthmani": "ٱللَّهُ لَآ إِلَـٰهَ إِلَّا هُوَ",
    "juz_number": 3,
    "hizb_number": 5,
    "rub_el_hizb_number": 17,
    "page_number": 42,
    "sajdah_number": null,
    "audio": {"url": "Alafasy/mp3/002255.mp3"},
    "words": [
      {"id": 10001, "position": 1, "text_uthmani": "ٱللَّهُ", "char_type_name": "word",
       "page_number": 42, "line_number": 3, "audio_url": "wbw/002_255_001.mp3"},
      {"id": 10002, "position": 2, "text_uthmani": "لَآ", "char_type_name": "word",
       "page_number": 42, "line_number": 3}
    ]
  }
}`

func verseServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		fmt.Fprint(w, body)
	}))
}

func testFetcher(srvURL string) *VerseFetcher {
	f := NewVerseFetcher(NewClient(testPolicy(2)))
	f.APIBase = srvURL
	return f
}

func TestFetchVerseParsesPayload(t *testing.T) {
	srv := verseServer(t, sampleVerseJSON, http.StatusOK)
	defer srv.Close()

	rec, err := testFetcher(srv.URL).FetchVerse(context.Background(), VerseKey{Sura: 2, Ayah: 255})
	if err != nil {
		t.Fatalf("fetch verse: %v", err)
	}

	if rec.AyatID != 262 {
		t.Errorf("ayat id = %d, want 262", rec.AyatID)
	}
	if rec.SuraID != 2 || rec.AyatNumber != 255 {
		t.Errorf("key = %d:%d, want 2:255", rec.SuraID, rec.AyatNumber)
	}
	if rec.JuzNumber != 3 || rec.HezbNumber != 5 || rec.PageNumber != 42 {
		t.Errorf("structure = juz %d hezb %d page %d", rec.JuzNumber, rec.HezbNumber, rec.PageNumber)
	}
	if rec.SajdahNumber != nil {
		t.Errorf("sajdah = %v, want nil", *rec.SajdahNumber)
	}
	if want := DefaultAudioBase + "Alafasy/mp3/002255.mp3"; rec.AudioURL != want {
		t.Errorf("audio url = %q, want %q", rec.AudioURL, want)
	}

	if len(rec.Words) != 2 {
		t.Fatalf("words = %d, want 2", len(rec.Words))
	}
	w := rec.Words[0]
	if w.ID != 10001 || w.Position != 1 || w.Type != "word" {
		t.Errorf("word 1 = %+v", w)
	}
	if w.PageNumber == nil || *w.PageNumber != 42 || w.LineNumber == nil || *w.LineNumber != 3 {
		t.Errorf("word 1 layout = %v/%v", w.PageNumber, w.LineNumber)
	}
	if !strings.HasPrefix(w.AudioURL, DefaultAudioBase) {
		t.Errorf("word audio not joined onto audio base: %q", w.AudioURL)
	}
	if rec.Words[1].AudioURL != "" {
		t.Errorf("word 2 audio = %q, want empty", rec.Words[1].AudioURL)
	}
}

func TestFetchVerseMalformedPayload(t *testing.T) {
	srv := verseServer(t, "this is not json", http.StatusOK)
	defer srv.Close()

	_, err := testFetcher(srv.URL).FetchVerse(context.Background(), VerseKey{Sura: 1, Ayah: 1})

	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *Failure, got %T: %v", err, err)
	}
	if f.Kind != KindPermanent {
		t.Fatalf("malformed payload must be permanent, got %s", f.Kind)
	}
}

func TestFetchVerseMissingRequiredFields(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"no id", `{"verse": {"verse_number": 1, "chapter_id": 1, "text_uthmani": "x", "juz_number": 1, "hizb_number": 1, "page_number": 1}}`},
		{"no text", `{"verse": {"id": 1, "verse_number": 1, "chapter_id": 1, "juz_number": 1, "hizb_number": 1, "page_number": 1}}`},
		{"no structure", `{"verse": {"id": 1, "verse_number": 1, "chapter_id": 1, "text_uthmani": "x"}}`},
		{"wrong chapter", `{"verse": {"id": 1, "verse_number": 1, "chapter_id": 9, "text_uthmani": "x", "juz_number": 1, "hizb_number": 1, "page_number": 1}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := verseServer(t, tc.body, http.StatusOK)
			defer srv.Close()

			_, err := testFetcher(srv.URL).FetchVerse(context.Background(), VerseKey{Sura: 1, Ayah: 1})
			var f *Failure
			if !errors.As(err, &f) {
				t.Fatalf("expected *Failure, got %T: %v", err, err)
			}
			if f.Kind != KindPermanent {
				t.Fatalf("expected permanent, got %s", f.Kind)
			}
		})
	}
}

func TestFetchVerseFallsBackToRubElHizb(t *testing.T) {
	body := `{"verse": {"id": 5, "verse_number": 1, "chapter_id": 1, "text_uthmani": "x",
		"juz_number": 1, "rub_el_hizb_number": 2, "page_number": 1}}`
	srv := verseServer(t, body, http.StatusOK)
	defer srv.Close()

	rec, err := testFetcher(srv.URL).FetchVerse(context.Background(), VerseKey{Sura: 1, Ayah: 1})
	if err != nil {
		t.Fatalf("fetch verse: %v", err)
	}
	if rec.HezbNumber != 2 {
		t.Fatalf("hezb = %d, want rub_el_hizb fallback 2", rec.HezbNumber)
	}
}

func TestFetchChaptersAndKeySpace(t *testing.T) {
	body := `{"chapters": [
		{"id": 1, "name_arabic": "الفاتحة", "revelation_order": 5, "verses_count": 7},
		{"id": 2, "name_arabic": "البقرة", "revelation_order": 87, "verses_count": 286}
	]}`
	srv := verseServer(t, body, http.StatusOK)
	defer srv.Close()

	chapters, err := testFetcher(srv.URL).FetchChapters(context.Background())
	if err != nil {
		t.Fatalf("fetch chapters: %v", err)
	}
	if len(chapters) != 2 {
		t.Fatalf("chapters = %d, want 2", len(chapters))
	}

	keys := KeySpace(chapters)
	if len(keys) != 7+286 {
		t.Fatalf("key space = %d, want 293", len(keys))
	}
	if keys[0] != (VerseKey{Sura: 1, Ayah: 1}) {
		t.Errorf("first key = %s", keys[0])
	}
	if keys[7] != (VerseKey{Sura: 2, Ayah: 1}) {
		t.Errorf("key after sura 1 = %s, want 2:1", keys[7])
	}
	if keys[len(keys)-1] != (VerseKey{Sura: 2, Ayah: 286}) {
		t.Errorf("last key = %s, want 2:286", keys[len(keys)-1])
	}
}

func TestFetchChaptersEmptyPayload(t *testing.T) {
	srv := verseServer(t, `{"chapters": []}`, http.StatusOK)
	defer srv.Close()

	_, err := testFetcher(srv.URL).FetchChapters(context.Background())
	var f *Failure
	if !errors.As(err, &f) || f.Kind != KindPermanent {
		t.Fatalf("expected permanent failure, got %v", err)
	}
}

func TestCombineURL(t *testing.T) {
	f := &VerseFetcher{AudioBase: "https://cdn.example/"}
	cases := []struct{ in, want string }{
		{"", ""},
		{"a/b.mp3", "https://cdn.example/a/b.mp3"},
		{"/a/b.mp3", "https://cdn.example/a/b.mp3"},
		{"https://other.example/x.mp3", "https://other.example/x.mp3"},
	}
	for _, tc := range cases {
		if got := f.combineURL(tc.in); got != tc.want {
			t.Errorf("combineURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
