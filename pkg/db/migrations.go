package db

// migrationsSQL holds the full store schema. Column names are fixed: the
// packaged artifact is read by downstream consumers that address these
// tables directly. Derived columns (verses_count, first/last_ayat_id,
// page_number on Juzs/Hezbs, page/line on Suras) are written only by the
// enrichment passes, never during ingestion.
const migrationsSQL = `
CREATE TABLE IF NOT EXISTS Suras (
    sura_id INTEGER PRIMARY KEY,
    name_arabic TEXT NOT NULL,
    revelation_order INTEGER NOT NULL,
    ayat_count INTEGER NOT NULL,
    page_number INTEGER,
    line_number INTEGER
);

CREATE TABLE IF NOT EXISTS Juzs (
    juz_id INTEGER PRIMARY KEY,
    juz_number INTEGER NOT NULL UNIQUE,
    verses_count INTEGER,
    first_ayat_id INTEGER,
    last_ayat_id INTEGER,
    page_number INTEGER
);

CREATE TABLE IF NOT EXISTS Hezbs (
    hezb_id INTEGER PRIMARY KEY,
    hezb_number INTEGER NOT NULL UNIQUE,
    juz_id INTEGER NOT NULL,
    page_number INTEGER,
    FOREIGN KEY (juz_id) REFERENCES Juzs(juz_id)
);

CREATE TABLE IF NOT EXISTS Pages (
    page_id INTEGER PRIMARY KEY,
    page_number INTEGER NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS Ayats (
    ayat_id INTEGER PRIMARY KEY,
    sura_id INTEGER NOT NULL,
    ayat_number INTEGER NOT NULL,
    text_uthmani TEXT NOT NULL,
    juz_id INTEGER NOT NULL,
    hezb_id INTEGER NOT NULL,
    page_id INTEGER NOT NULL,
    sajdah_number INTEGER,
    audio_url TEXT,
    FOREIGN KEY (sura_id) REFERENCES Suras(sura_id),
    FOREIGN KEY (juz_id) REFERENCES Juzs(juz_id),
    FOREIGN KEY (hezb_id) REFERENCES Hezbs(hezb_id),
    FOREIGN KEY (page_id) REFERENCES Pages(page_id)
);

CREATE TABLE IF NOT EXISTS Words (
    word_id INTEGER PRIMARY KEY,
    ayat_id INTEGER NOT NULL,
    word_number INTEGER NOT NULL,
    text_uthmani TEXT NOT NULL,
    type TEXT NOT NULL,
    page_number INTEGER,
    line_number INTEGER,
    audio_url TEXT,
    FOREIGN KEY (ayat_id) REFERENCES Ayats(ayat_id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_ayats_sura_number ON Ayats(sura_id, ayat_number);
CREATE INDEX IF NOT EXISTS idx_ayat_juz ON Ayats(juz_id);
CREATE INDEX IF NOT EXISTS idx_ayat_hezb ON Ayats(hezb_id);
CREATE INDEX IF NOT EXISTS idx_ayat_page ON Ayats(page_id);
CREATE INDEX IF NOT EXISTS idx_word_ayat ON Words(ayat_id)
`
