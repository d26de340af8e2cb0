package main

import (
	"database/sql"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ResultsDB wraps the SQLite ledger of finished rounds. It lives only as long
// as the process unless pointed at a file DSN.
type ResultsDB struct {
	conn *sql.DB
}

// RoundRow is one finished round as served by /results
type RoundRow struct {
	ID         int64    `json:"id"`
	Map        string   `json:"map"`
	Winner     string   `json:"winner"`
	Players    []string `json:"players"`
	Duration   float64  `json:"duration"`
	FinishedAt string   `json:"finished_at"`
}

// WinCount is a per-name tally of won rounds
type WinCount struct {
	Name string `json:"name"`
	Wins int    `json:"wins"`
}

// OpenResultsDB opens (or creates) the results database
func OpenResultsDB(dsn string) (*ResultsDB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One connection keeps an in-memory database alive and shared
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &ResultsDB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *ResultsDB) Close() error {
	return db.conn.Close()
}

func (db *ResultsDB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rounds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		map_name TEXT NOT NULL,
		winner TEXT NOT NULL,
		duration REAL NOT NULL DEFAULT 0,
		finished_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS round_players (
		round_id INTEGER NOT NULL REFERENCES rounds(id),
		seat INTEGER NOT NULL,
		name TEXT NOT NULL,
		PRIMARY KEY (round_id, seat)
	);

	CREATE INDEX IF NOT EXISTS idx_rounds_winner ON rounds(winner);
	`
	_, err := db.conn.Exec(schema)
	if err != nil {
		log.Printf("results migration error: %v", err)
	}
	return err
}

// RecordRounds writes a batch of results in one transaction
func (db *ResultsDB) RecordRounds(results []MatchResult) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	roundStmt, err := tx.Prepare(`INSERT INTO rounds (map_name, winner, duration, finished_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer roundStmt.Close()
	playerStmt, err := tx.Prepare(`INSERT INTO round_players (round_id, seat, name) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer playerStmt.Close()

	for _, r := range results {
		res, err := roundStmt.Exec(r.MapName, r.Winner, r.Duration.Seconds(), r.FinishedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for seat, name := range r.Players {
			if _, err := playerStmt.Exec(id, seat, name); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// RecentRounds returns the latest rounds, newest first
func (db *ResultsDB) RecentRounds(limit int) ([]RoundRow, error) {
	rows, err := db.conn.Query(`
		SELECT id, map_name, winner, duration, finished_at
		FROM rounds ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []RoundRow{}
	index := make(map[int64]int)
	for rows.Next() {
		var r RoundRow
		if err := rows.Scan(&r.ID, &r.Map, &r.Winner, &r.Duration, &r.FinishedAt); err != nil {
			return nil, err
		}
		r.Players = []string{}
		index[r.ID] = len(result)
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return result, nil
	}

	prows, err := db.conn.Query(`
		SELECT round_id, name FROM round_players
		WHERE round_id >= ? ORDER BY round_id, seat`, result[len(result)-1].ID)
	if err != nil {
		return nil, err
	}
	defer prows.Close()
	for prows.Next() {
		var id int64
		var name string
		if err := prows.Scan(&id, &name); err != nil {
			return nil, err
		}
		if i, ok := index[id]; ok {
			result[i].Players = append(result[i].Players, name)
		}
	}
	return result, prows.Err()
}

// WinCounts returns names ordered by rounds won, draws excluded
func (db *ResultsDB) WinCounts(limit int) ([]WinCount, error) {
	rows, err := db.conn.Query(`
		SELECT winner, COUNT(*) AS wins FROM rounds
		WHERE winner != ?
		GROUP BY winner ORDER BY wins DESC, winner LIMIT ?`, DrawMarker, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []WinCount{}
	for rows.Next() {
		var w WinCount
		if err := rows.Scan(&w.Name, &w.Wins); err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

// Recorder batches finished rounds into the database off the tick path
type Recorder struct {
	db      *ResultsDB
	results chan MatchResult
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewRecorder creates and starts the background writer
func NewRecorder(db *ResultsDB) *Recorder {
	r := &Recorder{
		db:      db,
		results: make(chan MatchResult, 64),
		stop:    make(chan struct{}),
	}
	r.wg.Add(1)
	go r.writer()
	return r
}

// Track enqueues a result without blocking the game loop
func (r *Recorder) Track(res MatchResult) {
	select {
	case r.results <- res:
	default:
		log.Printf("results queue full, dropping round on %s", res.MapName)
	}
}

// Stop flushes pending results and stops the writer
func (r *Recorder) Stop() {
	close(r.stop)
	r.wg.Wait()
}

func (r *Recorder) writer() {
	defer r.wg.Done()

	batch := make([]MatchResult, 0, 16)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case res := <-r.results:
			batch = append(batch, res)
			if len(batch) >= 16 {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-r.stop:
			for {
				select {
				case res := <-r.results:
					batch = append(batch, res)
				default:
					r.flush(batch)
					return
				}
			}
		}
	}
}

func (r *Recorder) flush(batch []MatchResult) {
	if r.db == nil || len(batch) == 0 {
		return
	}
	if err := r.db.RecordRounds(batch); err != nil {
		log.Printf("results: write error: %v", err)
	}
}
