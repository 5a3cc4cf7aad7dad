package library

import "sort"

// BookRecord is the flat persisted form of a catalog entry.
type BookRecord struct {
	Title  string `json:"Title"`
	Author string `json:"Author"`
	ISBN   string `json:"ISBN"`
	Status string `json:"Status"`
}

// UserRecord is the flat persisted form of a roster entry. Borrowed books map
// ISBN to the due date in DueDateLayout.
type UserRecord struct {
	Name   string            `json:"User"`
	UserID string            `json:"User Id"`
	Loans  map[string]string `json:"Borrowed books"`
}

// Record returns the book's persisted form.
func (b *Book) Record() BookRecord {
	return BookRecord{Title: b.Title, Author: b.Author, ISBN: b.ISBN, Status: b.Status()}
}

func bookFromRecord(r BookRecord) *Book {
	b := NewBook(r.Title, r.Author, r.ISBN)
	if r.Status == StatusBorrowed {
		b.Borrow()
	}
	return b
}

// Record returns the user's persisted form.
func (u *User) Record() UserRecord {
	loans := make(map[string]string, len(u.loans))
	for isbn, due := range u.loans {
		loans[isbn] = due
	}
	return UserRecord{Name: u.Name, UserID: u.UserID, Loans: loans}
}

// userFromRecord rebuilds a user. JSON objects carry no order, so loans are
// restored sorted by ISBN to keep iteration stable across restarts.
func userFromRecord(r UserRecord) *User {
	u := NewUser(r.Name, r.UserID)
	isbns := make([]string, 0, len(r.Loans))
	for isbn := range r.Loans {
		isbns = append(isbns, isbn)
	}
	sort.Strings(isbns)
	for _, isbn := range isbns {
		u.setLoan(isbn, r.Loans[isbn])
	}
	return u
}
