package library

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteStore persists the circulation records in a single SQLite database.
// SaveAll rewrites all three tables inside one transaction, which keeps the
// same whole-state overwrite contract as JSONStore. Loans carry no foreign
// key on ISBN: a loan pointing at a book no longer in the catalog is
// tolerated and surfaces as an absent book when projected.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

const schemaVersion = 1

// NewSQLiteStore opens (or creates) the database at dbPath and applies the
// schema.
func NewSQLiteStore(dbPath string, log *zap.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = zap.NewNop()
	}

	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, log: log}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func applyMigrations(db *sql.DB) error {
	// WAL improves crash safety for the frequent full-state rewrites.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS books (
            isbn TEXT PRIMARY KEY,
            title TEXT NOT NULL,
            author TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'Available'
        );`,
		`CREATE TABLE IF NOT EXISTS users (
            user_id TEXT PRIMARY KEY,
            name TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS loans (
            user_id TEXT NOT NULL REFERENCES users(user_id),
            isbn TEXT NOT NULL,
            due_date TEXT NOT NULL,
            PRIMARY KEY (user_id, isbn)
        );`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}

	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
        ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	return tx.Commit()
}

// LoadBooks reads the catalog in insertion order.
func (s *SQLiteStore) LoadBooks() ([]*Book, error) {
	rows, err := s.db.Query(`SELECT title, author, isbn, status FROM books ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("load books: %w", err)
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		var r BookRecord
		if err := rows.Scan(&r.Title, &r.Author, &r.ISBN, &r.Status); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, bookFromRecord(r))
	}
	return books, rows.Err()
}

// LoadUsers reads the roster in insertion order, with each user's loans.
func (s *SQLiteStore) LoadUsers() ([]*User, error) {
	loanRows, err := s.db.Query(`SELECT user_id, isbn, due_date FROM loans ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("load loans: %w", err)
	}
	defer loanRows.Close()

	loansByUser := make(map[string][]Loan)
	for loanRows.Next() {
		var userID string
		var loan Loan
		if err := loanRows.Scan(&userID, &loan.ISBN, &loan.DueDate); err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		loansByUser[userID] = append(loansByUser[userID], loan)
	}
	if err := loanRows.Err(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT user_id, name FROM users ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var userID, name string
		if err := rows.Scan(&userID, &name); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u := NewUser(name, userID)
		for _, loan := range loansByUser[userID] {
			u.setLoan(loan.ISBN, loan.DueDate)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SaveAll replaces the full contents of all three tables in one transaction.
func (s *SQLiteStore) SaveAll(books []*Book, users []*User) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"loans", "users", "books"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, b := range books {
		if _, err := tx.Exec(`INSERT INTO books(title,author,isbn,status) VALUES(?,?,?,?)`,
			b.Title, b.Author, b.ISBN, b.Status()); err != nil {
			return fmt.Errorf("save book %s: %w", b.ISBN, err)
		}
	}
	for _, u := range users {
		if _, err := tx.Exec(`INSERT INTO users(user_id,name) VALUES(?,?)`, u.UserID, u.Name); err != nil {
			return fmt.Errorf("save user %s: %w", u.UserID, err)
		}
		for _, loan := range u.Loans() {
			if _, err := tx.Exec(`INSERT INTO loans(user_id,isbn,due_date) VALUES(?,?,?)`,
				u.UserID, loan.ISBN, loan.DueDate); err != nil {
				return fmt.Errorf("save loan %s/%s: %w", u.UserID, loan.ISBN, err)
			}
		}
	}

	return tx.Commit()
}
