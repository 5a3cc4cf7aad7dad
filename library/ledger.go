package library

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Policy holds the circulation rules applied when books go out.
type Policy struct {
	LoanDays      int
	LateFeePerDay int64
}

// DefaultPolicy is the desk's standing rules: two-week loans, 10 per day late.
var DefaultPolicy = Policy{LoanDays: 14, LateFeePerDay: 10}

// Library is the circulation ledger. It owns the catalog and the user roster,
// enforces the cross-entity rules (a book goes out only when available, a
// return must match an outstanding loan), computes due dates and fines, and
// rewrites the full persisted state after every successful mutation.
//
// Every mutating operation follows the same shape: validate, mutate, persist,
// report. A single Library assumes one active session; wrap calls in a mutex
// before sharing it across goroutines.
type Library struct {
	store  Store
	log    *zap.Logger
	clock  func() time.Time
	policy Policy

	books     map[string]*Book
	bookOrder []string
	users     map[string]*User
	userOrder []string
}

// Option configures a Library.
type Option func(*Library)

// WithLogger sets the logger used for persistence warnings.
func WithLogger(log *zap.Logger) Option {
	return func(l *Library) { l.log = log }
}

// WithClock overrides the time source. Tests use it to pin "today".
func WithClock(clock func() time.Time) Option {
	return func(l *Library) { l.clock = clock }
}

// WithPolicy overrides the loan period and late fee.
func WithPolicy(p Policy) Option {
	return func(l *Library) { l.policy = p }
}

// NewLibrary creates an empty ledger over the given store. Call Load before
// serving operations.
func NewLibrary(store Store, opts ...Option) *Library {
	l := &Library{
		store:  store,
		log:    zap.NewNop(),
		clock:  time.Now,
		policy: DefaultPolicy,
		books:  make(map[string]*Book),
		users:  make(map[string]*User),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load replaces the in-memory state with the stored records. A missing
// snapshot means an empty collection; a malformed one is an error.
func (l *Library) Load() error {
	books, err := l.store.LoadBooks()
	if err != nil {
		return fmt.Errorf("load books: %w", err)
	}
	users, err := l.store.LoadUsers()
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}

	l.books = make(map[string]*Book, len(books))
	l.bookOrder = nil
	for _, b := range books {
		if _, ok := l.books[b.ISBN]; !ok {
			l.bookOrder = append(l.bookOrder, b.ISBN)
		}
		l.books[b.ISBN] = b
	}

	l.users = make(map[string]*User, len(users))
	l.userOrder = nil
	for _, u := range users {
		if _, ok := l.users[u.UserID]; !ok {
			l.userOrder = append(l.userOrder, u.UserID)
		}
		l.users[u.UserID] = u
	}
	return nil
}

// AddBook puts a new title in the catalog. The ISBN must be unused.
func (l *Library) AddBook(b *Book) error {
	if _, ok := l.books[b.ISBN]; ok {
		return fmt.Errorf("add book %s: %w", b.ISBN, ErrDuplicateISBN)
	}
	l.books[b.ISBN] = b
	l.bookOrder = append(l.bookOrder, b.ISBN)
	return l.persist("add book")
}

// RegisterUser adds a borrower to the roster. The user ID must be unused.
func (l *Library) RegisterUser(u *User) error {
	if _, ok := l.users[u.UserID]; ok {
		return fmt.Errorf("register user %s: %w", u.UserID, ErrDuplicateUserID)
	}
	l.users[u.UserID] = u
	l.userOrder = append(l.userOrder, u.UserID)
	return l.persist("register user")
}

// BorrowBook checks the book out to the user and reports the due date:
// today plus the loan period.
func (l *Library) BorrowBook(isbn, userID string) (time.Time, error) {
	book, ok := l.books[isbn]
	if !ok {
		return time.Time{}, fmt.Errorf("borrow %s: %w", isbn, ErrBookNotFound)
	}
	user, ok := l.users[userID]
	if !ok {
		return time.Time{}, fmt.Errorf("borrow for %s: %w", userID, ErrUserNotFound)
	}
	if !book.Borrow() {
		return time.Time{}, fmt.Errorf("borrow %s: %w", isbn, ErrAlreadyBorrowed)
	}

	due := l.today().AddDate(0, 0, l.policy.LoanDays)
	user.AddLoan(isbn, due)
	if err := l.persist("borrow book"); err != nil {
		return due, err
	}
	return due, nil
}

// ReturnReceipt reports the outcome of a completed return. LateDays is the
// raw whole-day difference between today and the due date and goes negative
// on early returns; the fine is zero unless the book came back late.
type ReturnReceipt struct {
	DueDate  time.Time
	LateDays int
	Fine     int64
}

// ReturnBook takes the book back from the user, computing the fine owed.
// Fines are reported, never recorded.
func (l *Library) ReturnBook(isbn, userID string) (ReturnReceipt, error) {
	book, ok := l.books[isbn]
	if !ok {
		return ReturnReceipt{}, fmt.Errorf("return %s: %w", isbn, ErrBookNotFound)
	}
	user, ok := l.users[userID]
	if !ok {
		return ReturnReceipt{}, fmt.Errorf("return for %s: %w", userID, ErrUserNotFound)
	}
	dueStr, ok := user.DueDate(isbn)
	if !ok {
		return ReturnReceipt{}, fmt.Errorf("return %s: %w", isbn, ErrLoanNotFound)
	}
	due, err := time.Parse(DueDateLayout, dueStr)
	if err != nil {
		return ReturnReceipt{}, fmt.Errorf("return %s: bad due date %q: %w", isbn, dueStr, err)
	}

	receipt := ReturnReceipt{DueDate: due, LateDays: daysBetween(due, l.today())}
	if receipt.LateDays > 0 {
		receipt.Fine = int64(receipt.LateDays) * l.policy.LateFeePerDay
	}

	user.RemoveLoan(isbn)
	book.Return()
	if err := l.persist("return book"); err != nil {
		return receipt, err
	}
	return receipt, nil
}

// SearchBooks matches the query against title and author case-insensitively,
// and against the raw ISBN as a substring. Results keep catalog insertion
// order; no match yields an empty slice.
func (l *Library) SearchBooks(query string) []*Book {
	q := strings.ToLower(query)
	results := make([]*Book, 0)
	for _, isbn := range l.bookOrder {
		b := l.books[isbn]
		if strings.Contains(strings.ToLower(b.Title), q) ||
			strings.Contains(strings.ToLower(b.Author), q) ||
			strings.Contains(b.ISBN, q) {
			results = append(results, b)
		}
	}
	return results
}

// ListBooks returns the catalog in insertion order, optionally only the
// books currently on the shelf.
func (l *Library) ListBooks(availableOnly bool) []*Book {
	books := make([]*Book, 0, len(l.bookOrder))
	for _, isbn := range l.bookOrder {
		b := l.books[isbn]
		if availableOnly && b.Status() != StatusAvailable {
			continue
		}
		books = append(books, b)
	}
	return books
}

// ListBorrowedBooks returns the books currently out, in insertion order.
func (l *Library) ListBorrowedBooks() []*Book {
	books := make([]*Book, 0)
	for _, isbn := range l.bookOrder {
		if b := l.books[isbn]; b.Status() == StatusBorrowed {
			books = append(books, b)
		}
	}
	return books
}

// ListUsers returns the roster in registration order.
func (l *Library) ListUsers() []*User {
	users := make([]*User, 0, len(l.userOrder))
	for _, id := range l.userOrder {
		users = append(users, l.users[id])
	}
	return users
}

// LoanDetail pairs one of a user's loans with the catalog entry it
// references. Book is nil when the loan points at an ISBN no longer in the
// catalog; the storage layer does not enforce that reference.
type LoanDetail struct {
	ISBN    string
	Book    *Book
	DueDate string
}

// ListUserLoans returns the user's outstanding loans in the order they were
// taken out.
func (l *Library) ListUserLoans(userID string) ([]LoanDetail, error) {
	user, ok := l.users[userID]
	if !ok {
		return nil, fmt.Errorf("list loans for %s: %w", userID, ErrUserNotFound)
	}
	loans := user.Loans()
	details := make([]LoanDetail, 0, len(loans))
	for _, loan := range loans {
		details = append(details, LoanDetail{ISBN: loan.ISBN, Book: l.books[loan.ISBN], DueDate: loan.DueDate})
	}
	return details, nil
}

// OverdueLoan previews what returning a late book today would cost, using
// the same formula as ReturnBook.
type OverdueLoan struct {
	ISBN     string
	Book     *Book
	DueDate  time.Time
	LateDays int
	Fine     int64
}

// OverdueUser is one borrower with at least one overdue loan.
type OverdueUser struct {
	User  *User
	Loans []OverdueLoan
}

// ListOverdueUsers reports every user holding overdue books, in registration
// order. It mutates nothing.
func (l *Library) ListOverdueUsers() []OverdueUser {
	today := l.today()
	overdueUsers := make([]OverdueUser, 0)
	for _, id := range l.userOrder {
		user := l.users[id]
		var overdue []OverdueLoan
		for _, loan := range user.Loans() {
			due, err := time.Parse(DueDateLayout, loan.DueDate)
			if err != nil {
				l.log.Warn("skipping loan with bad due date",
					zap.String("user_id", id), zap.String("isbn", loan.ISBN), zap.Error(err))
				continue
			}
			if !today.After(due) {
				continue
			}
			lateDays := daysBetween(due, today)
			overdue = append(overdue, OverdueLoan{
				ISBN:     loan.ISBN,
				Book:     l.books[loan.ISBN],
				DueDate:  due,
				LateDays: lateDays,
				Fine:     int64(lateDays) * l.policy.LateFeePerDay,
			})
		}
		if len(overdue) > 0 {
			overdueUsers = append(overdueUsers, OverdueUser{User: user, Loans: overdue})
		}
	}
	return overdueUsers
}

// persist rewrites the full persisted state. The mutation that triggered it
// stays applied even when the write fails; the next successful save catches
// durable state up.
func (l *Library) persist(op string) error {
	if err := l.store.SaveAll(l.ListBooks(false), l.ListUsers()); err != nil {
		l.log.Warn("state save failed", zap.String("op", op), zap.Error(err))
		return &PersistError{Op: op, Err: err}
	}
	return nil
}

// today is the clock's date at UTC midnight; loans and fines work in whole
// calendar days.
func (l *Library) today() time.Time {
	y, m, d := l.clock().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween counts whole days from a to b; negative when b precedes a.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}
