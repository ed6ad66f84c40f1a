package db

// Sura is a chapter of the corpus. PageNumber/LineNumber locate its first
// word and are derived, not ingested.
type Sura struct {
	ID              int
	NameArabic      string
	RevelationOrder int
	AyatCount       int
	PageNumber      *int
	LineNumber      *int
}

// Juz is one of the 30 reading divisions partitioning the verse id space.
// VersesCount and the first/last ids are derived from the owned Ayats.
type Juz struct {
	ID          int
	Number      int
	VersesCount *int
	FirstAyatID *int64
	LastAyatID  *int64
	PageNumber  *int
}

// Hezb is a subdivision of a Juz.
type Hezb struct {
	ID         int
	Number     int
	JuzID      int
	PageNumber *int
}

// Page is one physical page of the fixed 15-line layout.
type Page struct {
	ID     int
	Number int
}

// Ayat is a single verse, the primary addressable unit. The id is the
// upstream source's global verse id, strictly increasing in canonical
// reading order.
type Ayat struct {
	ID           int64
	SuraID       int
	AyatNumber   int
	Text         string
	JuzID        int
	HezbID       int
	PageID       int
	SajdahNumber *int
	AudioURL     string
}

// Word is a single token of an Ayat with its layout position.
type Word struct {
	ID         int64
	AyatID     int64
	WordNumber int
	Text       string
	Type       string
	PageNumber *int
	LineNumber *int
	AudioURL   string
}
