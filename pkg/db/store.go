package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// WriteFailure signals that a single record could not be persisted. A
// constraint violation means a referenced Sura/Juz/Hezb/Page row is missing,
// i.e. the store was not seeded; that is fatal to the unit, not the run.
type WriteFailure struct {
	Op         string
	ID         int64
	Constraint bool
	Err        error
}

func (w *WriteFailure) Error() string {
	return fmt.Sprintf("%s %d: %v", w.Op, w.ID, w.Err)
}

func (w *WriteFailure) Unwrap() error { return w.Err }

// isConstraintErr returns true when the error indicates a foreign-key,
// unique, or NOT NULL constraint violation.
func isConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "constraint failed") || strings.Contains(s, "foreign key")
}

func writeFailure(op string, id int64, err error) error {
	if err == nil {
		return nil
	}
	return &WriteFailure{Op: op, ID: id, Constraint: isConstraintErr(err), Err: err}
}

// UpsertAyat inserts or updates a verse row keyed by its canonical id.
// Required columns always take the incoming value; optional columns
// (sajdah_number, audio_url) are never blanked by a leaner re-fetch.
func UpsertAyat(db DBExecutor, a *Ayat) error {
	if a.ID <= 0 {
		return fmt.Errorf("ayat id must be positive")
	}
	if strings.TrimSpace(a.Text) == "" {
		return fmt.Errorf("ayat %d: text must be non-empty", a.ID)
	}

	_, err := db.Exec(`INSERT INTO Ayats (ayat_id, sura_id, ayat_number, text_uthmani, juz_id, hezb_id, page_id, sajdah_number, audio_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ayat_id) DO UPDATE SET
		  sura_id = excluded.sura_id,
		  ayat_number = excluded.ayat_number,
		  text_uthmani = COALESCE(NULLIF(excluded.text_uthmani, ''), Ayats.text_uthmani),
		  juz_id = excluded.juz_id,
		  hezb_id = excluded.hezb_id,
		  page_id = excluded.page_id,
		  sajdah_number = COALESCE(excluded.sajdah_number, Ayats.sajdah_number),
		  audio_url = COALESCE(NULLIF(excluded.audio_url, ''), Ayats.audio_url)`,
		a.ID, a.SuraID, a.AyatNumber, a.Text, a.JuzID, a.HezbID, a.PageID,
		a.SajdahNumber, nullableString(a.AudioURL))
	return writeFailure("upsert ayat", a.ID, err)
}

// UpsertWord inserts or updates a word row keyed by its canonical id, with
// the same merge policy as UpsertAyat for the optional layout and audio
// columns.
func UpsertWord(db DBExecutor, w *Word) error {
	if w.ID <= 0 {
		return fmt.Errorf("word id must be positive")
	}
	if w.AyatID <= 0 {
		return fmt.Errorf("word %d: ayat id must be positive", w.ID)
	}

	_, err := db.Exec(`INSERT INTO Words (word_id, ayat_id, word_number, text_uthmani, type, page_number, line_number, audio_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(word_id) DO UPDATE SET
		  ayat_id = excluded.ayat_id,
		  word_number = excluded.word_number,
		  text_uthmani = COALESCE(NULLIF(excluded.text_uthmani, ''), Words.text_uthmani),
		  type = COALESCE(NULLIF(excluded.type, ''), Words.type),
		  page_number = COALESCE(excluded.page_number, Words.page_number),
		  line_number = COALESCE(excluded.line_number, Words.line_number),
		  audio_url = COALESCE(NULLIF(excluded.audio_url, ''), Words.audio_url)`,
		w.ID, w.AyatID, w.WordNumber, w.Text, w.Type,
		w.PageNumber, w.LineNumber, nullableString(w.AudioURL))
	return writeFailure("upsert word", w.ID, err)
}

// UpsertSura seeds a chapter row. Existing rows keep their values; seeding
// never overwrites, and never touches the derived page/line columns.
func UpsertSura(db DBExecutor, s *Sura) error {
	if s.ID <= 0 {
		return fmt.Errorf("sura id must be positive")
	}
	_, err := db.Exec(`INSERT OR IGNORE INTO Suras (sura_id, name_arabic, revelation_order, ayat_count)
		VALUES (?, ?, ?, ?)`,
		s.ID, s.NameArabic, s.RevelationOrder, s.AyatCount)
	return writeFailure("upsert sura", int64(s.ID), err)
}

// AyatComplete reports whether the verse identified by (sura, ayah) is
// already present with its required fields populated, including at least
// one word row. Used by the orchestrator's fill-missing-only resume mode.
func AyatComplete(db DBExecutor, suraID, ayatNumber int) (bool, error) {
	var one int
	err := db.QueryRow(`SELECT 1 FROM Ayats a
		WHERE a.sura_id = ? AND a.ayat_number = ? AND a.text_uthmani != ''
		AND EXISTS (SELECT 1 FROM Words w WHERE w.ayat_id = a.ayat_id)`,
		suraID, ayatNumber).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CompleteAyatKeys returns the set of (sura_id, ayat_number) pairs that
// AyatComplete would report true for, in one scan. The orchestrator uses it
// to pre-filter the key space instead of probing per unit.
func CompleteAyatKeys(db DBExecutor) (map[[2]int]bool, error) {
	rows, err := db.Query(`SELECT a.sura_id, a.ayat_number FROM Ayats a
		WHERE a.text_uthmani != ''
		AND EXISTS (SELECT 1 FROM Words w WHERE w.ayat_id = a.ayat_id)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	complete := make(map[[2]int]bool)
	for rows.Next() {
		var sura, ayah int
		if err := rows.Scan(&sura, &ayah); err != nil {
			return nil, err
		}
		complete[[2]int{sura, ayah}] = true
	}
	return complete, rows.Err()
}

// SeededIDs returns the id sets of the four seeded parent tables so the
// orchestrator can validate a record's foreign keys before handing it to
// the writer.
func SeededIDs(db DBExecutor) (suras, juzs, hezbs, pages map[int]bool, err error) {
	load := func(query string) (map[int]bool, error) {
		rows, err := db.Query(query)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		ids := make(map[int]bool)
		for rows.Next() {
			var id int
			if err := rows.Scan(&id); err != nil {
				return nil, err
			}
			ids[id] = true
		}
		return ids, rows.Err()
	}

	if suras, err = load(`SELECT sura_id FROM Suras`); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load sura ids: %w", err)
	}
	if juzs, err = load(`SELECT juz_id FROM Juzs`); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load juz ids: %w", err)
	}
	if hezbs, err = load(`SELECT hezb_id FROM Hezbs`); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load hezb ids: %w", err)
	}
	if pages, err = load(`SELECT page_id FROM Pages`); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load page ids: %w", err)
	}
	return suras, juzs, hezbs, pages, nil
}

// ListSuras returns all chapters in canonical order.
func ListSuras(db DBExecutor) ([]Sura, error) {
	rows, err := db.Query(`SELECT sura_id, name_arabic, revelation_order, ayat_count, page_number, line_number
		FROM Suras ORDER BY sura_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sura
	for rows.Next() {
		var s Sura
		var page, line sql.NullInt64
		if err := rows.Scan(&s.ID, &s.NameArabic, &s.RevelationOrder, &s.AyatCount, &page, &line); err != nil {
			return nil, err
		}
		if page.Valid {
			v := int(page.Int64)
			s.PageNumber = &v
		}
		if line.Valid {
			v := int(line.Int64)
			s.LineNumber = &v
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// nullableString returns nil for "" so empty optionals store as NULL.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
