// Package enrich derives the aggregate columns of the store from the
// ingested Ayats and Words: per-Juz ranges and counts, minimum pages for
// Juzs and Hezbs, and each Sura's opening page/line. Every pass is
// idempotent: re-running against the same leaf data rewrites the same
// values. The engine never touches leaf rows and has no network dependency.
package enrich

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Problem reports a group a pass could not enrich, almost always a seeded
// group that owns no verses (a seeding or ingestion gap, not a transient
// condition). The group's derived fields are left untouched.
type Problem struct {
	Pass   string
	Group  string
	Reason string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s: %s: %s", p.Pass, p.Group, p.Reason)
}

// Engine runs the enrichment passes. Each pass executes inside its own
// transaction so it sees a consistent snapshot of the leaf data.
type Engine struct {
	DB     *sql.DB
	Logger *slog.Logger
}

// New creates an Engine over the given store.
func New(conn *sql.DB) *Engine {
	return &Engine{DB: conn}
}

// Run executes all passes in order and collects their problems. A problem
// in one group never stops the others; only infrastructure errors abort.
func (e *Engine) Run(ctx context.Context) ([]Problem, error) {
	var problems []Problem
	passes := []func(context.Context) ([]Problem, error){
		e.JuzRanges,
		e.JuzHezbPages,
		e.SuraPageLine,
	}
	for _, pass := range passes {
		ps, err := pass(ctx)
		problems = append(problems, ps...)
		if err != nil {
			return problems, err
		}
	}
	for _, p := range problems {
		if e.Logger != nil {
			e.Logger.Warn("enrichment problem", "pass", p.Pass, "group", p.Group, "reason", p.Reason)
		}
	}
	return problems, nil
}

// JuzRanges computes each division's verse range and count from its owned
// Ayats: first_ayat_id/last_ayat_id are the min/max ayat ids, verses_count
// the owned-row count.
func (e *Engine) JuzRanges(ctx context.Context) ([]Problem, error) {
	const pass = "juz_ranges"
	var problems []Problem

	err := e.inTx(ctx, func(tx *sql.Tx) error {
		ids, err := groupIDs(tx, `SELECT juz_id FROM Juzs ORDER BY juz_id`)
		if err != nil {
			return err
		}
		for _, juzID := range ids {
			var count int
			var first, last sql.NullInt64
			err := tx.QueryRow(`SELECT COUNT(*), MIN(ayat_id), MAX(ayat_id) FROM Ayats WHERE juz_id = ?`, juzID).
				Scan(&count, &first, &last)
			if err != nil {
				return fmt.Errorf("scan juz %d: %w", juzID, err)
			}
			if count == 0 {
				problems = append(problems, Problem{pass, fmt.Sprintf("juz %d", juzID), "no owned verses"})
				continue
			}
			_, err = tx.Exec(`UPDATE Juzs SET verses_count = ?, first_ayat_id = ?, last_ayat_id = ? WHERE juz_id = ?`,
				count, first.Int64, last.Int64, juzID)
			if err != nil {
				return fmt.Errorf("update juz %d: %w", juzID, err)
			}
		}
		return nil
	})
	return problems, err
}

// JuzHezbPages propagates the minimum page among directly owned verses
// onto each Juz and Hezb. The aggregate comes from the group's own verses,
// not from any coarser grouping.
func (e *Engine) JuzHezbPages(ctx context.Context) ([]Problem, error) {
	const pass = "juz_hezb_pages"
	var problems []Problem

	err := e.inTx(ctx, func(tx *sql.Tx) error {
		for _, t := range []struct {
			table, idCol, label string
		}{
			{"Juzs", "juz_id", "juz"},
			{"Hezbs", "hezb_id", "hezb"},
		} {
			ids, err := groupIDs(tx, fmt.Sprintf(`SELECT %s FROM %s ORDER BY %s`, t.idCol, t.table, t.idCol))
			if err != nil {
				return err
			}
			for _, id := range ids {
				var minPage sql.NullInt64
				err := tx.QueryRow(fmt.Sprintf(
					`SELECT MIN(p.page_number) FROM Ayats a JOIN Pages p ON p.page_id = a.page_id WHERE a.%s = ?`, t.idCol), id).
					Scan(&minPage)
				if err != nil {
					return fmt.Errorf("scan %s %d: %w", t.label, id, err)
				}
				if !minPage.Valid {
					problems = append(problems, Problem{pass, fmt.Sprintf("%s %d", t.label, id), "no owned verses"})
					continue
				}
				_, err = tx.Exec(fmt.Sprintf(`UPDATE %s SET page_number = ? WHERE %s = ?`, t.table, t.idCol),
					minPage.Int64, id)
				if err != nil {
					return fmt.Errorf("update %s %d: %w", t.label, id, err)
				}
			}
		}
		return nil
	})
	return problems, err
}

// SuraPageLine sets each chapter's page/line to the layout position of its
// first verse's first word.
func (e *Engine) SuraPageLine(ctx context.Context) ([]Problem, error) {
	const pass = "sura_page_line"
	var problems []Problem

	err := e.inTx(ctx, func(tx *sql.Tx) error {
		ids, err := groupIDs(tx, `SELECT sura_id FROM Suras ORDER BY sura_id`)
		if err != nil {
			return err
		}
		for _, suraID := range ids {
			var firstAyat sql.NullInt64
			err := tx.QueryRow(`SELECT MIN(ayat_id) FROM Ayats WHERE sura_id = ?`, suraID).Scan(&firstAyat)
			if err != nil {
				return fmt.Errorf("scan sura %d: %w", suraID, err)
			}
			if !firstAyat.Valid {
				problems = append(problems, Problem{pass, fmt.Sprintf("sura %d", suraID), "no owned verses"})
				continue
			}

			var page, line sql.NullInt64
			err = tx.QueryRow(`SELECT page_number, line_number FROM Words WHERE ayat_id = ? ORDER BY word_number LIMIT 1`,
				firstAyat.Int64).Scan(&page, &line)
			if err == sql.ErrNoRows {
				problems = append(problems, Problem{pass, fmt.Sprintf("sura %d", suraID), "first verse has no words"})
				continue
			}
			if err != nil {
				return fmt.Errorf("scan first word of sura %d: %w", suraID, err)
			}
			if !page.Valid || !line.Valid {
				problems = append(problems, Problem{pass, fmt.Sprintf("sura %d", suraID), "first word has no layout position"})
				continue
			}

			_, err = tx.Exec(`UPDATE Suras SET page_number = ?, line_number = ? WHERE sura_id = ?`,
				page.Int64, line.Int64, suraID)
			if err != nil {
				return fmt.Errorf("update sura %d: %w", suraID, err)
			}
		}
		return nil
	})
	return problems, err
}

func (e *Engine) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin pass tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func groupIDs(tx *sql.Tx, query string) ([]int, error) {
	rows, err := tx.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
