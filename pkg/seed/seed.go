// Package seed populates the parent tables (Suras, Juzs, Hezbs, Pages) the
// ingestion writer's foreign keys point at. Seeding runs before ingestion
// and never deletes; all inserts are INSERT OR IGNORE so re-seeding is a
// no-op.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/aelbannan/quranstore/pkg/db"
	"github.com/aelbannan/quranstore/pkg/fetch"
)

const (
	// JuzCount is fixed by the corpus: 30 divisions.
	JuzCount = 30
	// PageCount is the page count of the standard 15-line layout.
	PageCount = 604
	// DefaultHezbsPerJuz is the subdivision count per division. The seed
	// metadata has not confirmed this is uniform, so it stays configurable.
	DefaultHezbsPerJuz = 2
)

// Static populates Juzs, Hezbs and Pages with their fixed id spaces.
// hezbsPerJuz <= 0 selects DefaultHezbsPerJuz.
func Static(exec db.DBExecutor, hezbsPerJuz int) error {
	if hezbsPerJuz <= 0 {
		hezbsPerJuz = DefaultHezbsPerJuz
	}
	for juz := 1; juz <= JuzCount; juz++ {
		if _, err := exec.Exec(`INSERT OR IGNORE INTO Juzs (juz_id, juz_number) VALUES (?, ?)`, juz, juz); err != nil {
			return fmt.Errorf("seed juz %d: %w", juz, err)
		}
	}
	for hezb := 1; hezb <= JuzCount*hezbsPerJuz; hezb++ {
		juzID := ((hezb - 1) / hezbsPerJuz) + 1
		if _, err := exec.Exec(`INSERT OR IGNORE INTO Hezbs (hezb_id, hezb_number, juz_id) VALUES (?, ?, ?)`,
			hezb, hezb, juzID); err != nil {
			return fmt.Errorf("seed hezb %d: %w", hezb, err)
		}
	}
	for page := 1; page <= PageCount; page++ {
		if _, err := exec.Exec(`INSERT OR IGNORE INTO Pages (page_id, page_number) VALUES (?, ?)`, page, page); err != nil {
			return fmt.Errorf("seed page %d: %w", page, err)
		}
	}
	return nil
}

// Chapters fetches the chapter listing and seeds Suras from it. It returns
// the listing so the caller can build the verse key space without a second
// fetch.
func Chapters(ctx context.Context, f *fetch.VerseFetcher, exec db.DBExecutor) ([]fetch.ChapterRecord, error) {
	chapters, err := f.FetchChapters(ctx)
	if err != nil {
		return nil, err
	}
	for _, ch := range chapters {
		s := &db.Sura{
			ID:              ch.ID,
			NameArabic:      ch.NameArabic,
			RevelationOrder: ch.RevelationOrder,
			AyatCount:       ch.VersesCount,
		}
		if err := db.UpsertSura(exec, s); err != nil {
			return nil, err
		}
	}
	return chapters, nil
}

// Verify checks the fatal precondition for an ingestion run: the parent
// tables must hold their full id spaces. An empty seed store aborts the
// whole run rather than failing every unit.
func Verify(exec db.DBExecutor) error {
	counts := []struct {
		table string
		min   int
	}{
		{"Suras", 1},
		{"Juzs", JuzCount},
		{"Hezbs", JuzCount},
		{"Pages", PageCount},
	}
	for _, c := range counts {
		var n int
		if err := exec.QueryRow(`SELECT COUNT(*) FROM ` + c.table).Scan(&n); err != nil {
			return fmt.Errorf("count %s: %w", c.table, err)
		}
		if n < c.min {
			return fmt.Errorf("store not seeded: %s has %d rows, need at least %d", c.table, n, c.min)
		}
	}
	return nil
}

// ImportJuzMeta copies the per-division range metadata (verses_count and
// the first/last verse keys) from a pre-built auxiliary store into Juzs,
// resolving "sura:ayah" keys to ayat ids through the ingested Ayats rows.
// Divisions whose keys cannot be resolved are skipped and logged, not
// fatal. The enrichment engine derives the same columns from the Ayats
// themselves; this import is the seed-store path for partially ingested
// databases.
func ImportJuzMeta(ctx context.Context, target *sql.DB, sourcePath string, logger *slog.Logger) (updated, skipped int, err error) {
	src, err := sql.Open("sqlite3", "file:"+sourcePath+"?mode=ro")
	if err != nil {
		return 0, 0, fmt.Errorf("open juz metadata store: %w", err)
	}
	defer src.Close()

	rows, err := src.QueryContext(ctx,
		`SELECT juz_number, verses_count, first_verse_key, last_verse_key FROM juz ORDER BY juz_number`)
	if err != nil {
		return 0, 0, fmt.Errorf("read juz metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var number, count int
		var firstKey, lastKey string
		if err := rows.Scan(&number, &count, &firstKey, &lastKey); err != nil {
			return updated, skipped, err
		}

		firstID, err := resolveVerseKey(target, firstKey)
		if err == nil {
			var lastID int64
			lastID, err = resolveVerseKey(target, lastKey)
			if err == nil {
				_, err = target.ExecContext(ctx,
					`UPDATE Juzs SET verses_count = ?, first_ayat_id = ?, last_ayat_id = ? WHERE juz_id = ?`,
					count, firstID, lastID, number)
			}
		}
		if err != nil {
			skipped++
			if logger != nil {
				logger.Warn("skipping juz metadata row", "juz", number, "err", err)
			}
			continue
		}
		updated++
	}
	return updated, skipped, rows.Err()
}

// resolveVerseKey maps a "sura:ayah" key onto the global ayat id via the
// (sura_id, ayat_number) index.
func resolveVerseKey(exec db.DBExecutor, key string) (int64, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid verse key %q", key)
	}
	sura, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid verse key %q", key)
	}
	ayah, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid verse key %q", key)
	}

	var id int64
	err = exec.QueryRow(`SELECT ayat_id FROM Ayats WHERE sura_id = ? AND ayat_number = ? LIMIT 1`, sura, ayah).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("ayat not found for %s", key)
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}
