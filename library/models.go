package library

import "time"

// DueDateLayout is the calendar-date format used for due dates, both in
// memory and in the persisted records.
const DueDateLayout = "2006-01-02"

// Book statuses as they appear in the persisted catalog record.
const (
	StatusAvailable = "Available"
	StatusBorrowed  = "Borrowed"
)

// Book represents one bibliographic item in the catalog. The book only knows
// whether it is out; who holds it is tracked on the borrowing user's loan set.
type Book struct {
	Title    string
	Author   string
	ISBN     string
	borrowed bool
}

// NewBook creates an available book. ISBN is the catalog key.
func NewBook(title, author, isbn string) *Book {
	return &Book{Title: title, Author: author, ISBN: isbn}
}

// Borrow flips the book to Borrowed. It reports false, with no side effects,
// when the book is already out.
func (b *Book) Borrow() bool {
	if b.borrowed {
		return false
	}
	b.borrowed = true
	return true
}

// Return flips the book back to Available. It reports false, with no side
// effects, when the book was not out.
func (b *Book) Return() bool {
	if !b.borrowed {
		return false
	}
	b.borrowed = false
	return true
}

// Status reports StatusAvailable or StatusBorrowed.
func (b *Book) Status() string {
	if b.borrowed {
		return StatusBorrowed
	}
	return StatusAvailable
}

// Loan is one outstanding borrow: an ISBN and its due date.
type Loan struct {
	ISBN    string
	DueDate string // DueDateLayout
}

// User represents a registered borrower and the set of books currently
// checked out to them, keyed by ISBN.
type User struct {
	Name   string
	UserID string

	loans     map[string]string // isbn -> due date
	loanOrder []string
}

// NewUser creates a user with no outstanding loans. UserID is the roster key.
func NewUser(name, userID string) *User {
	return &User{Name: name, UserID: userID, loans: make(map[string]string)}
}

// AddLoan records the loan, overwriting the due date if the ISBN is already
// present.
func (u *User) AddLoan(isbn string, due time.Time) {
	u.setLoan(isbn, due.Format(DueDateLayout))
}

func (u *User) setLoan(isbn, due string) {
	if u.loans == nil {
		u.loans = make(map[string]string)
	}
	if _, ok := u.loans[isbn]; !ok {
		u.loanOrder = append(u.loanOrder, isbn)
	}
	u.loans[isbn] = due
}

// RemoveLoan deletes the loan entry; removing an absent ISBN is a no-op.
func (u *User) RemoveLoan(isbn string) {
	if _, ok := u.loans[isbn]; !ok {
		return
	}
	delete(u.loans, isbn)
	for i, key := range u.loanOrder {
		if key == isbn {
			u.loanOrder = append(u.loanOrder[:i], u.loanOrder[i+1:]...)
			break
		}
	}
}

// DueDate reports the due date for the given ISBN, if the user holds it.
func (u *User) DueDate(isbn string) (string, bool) {
	due, ok := u.loans[isbn]
	return due, ok
}

// Loans returns the outstanding loans in the order they were taken out.
func (u *User) Loans() []Loan {
	loans := make([]Loan, 0, len(u.loanOrder))
	for _, isbn := range u.loanOrder {
		loans = append(loans, Loan{ISBN: isbn, DueDate: u.loans[isbn]})
	}
	return loans
}

// LoanCount reports how many books the user currently has out.
func (u *User) LoanCount() int { return len(u.loans) }
