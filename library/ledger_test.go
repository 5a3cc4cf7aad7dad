package library

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newLedger(t *testing.T, opts ...Option) *Library {
	t.Helper()
	dir := t.TempDir()
	store := NewJSONStore(filepath.Join(dir, "books.json"), filepath.Join(dir, "users.json"), zap.NewNop())
	lib := NewLibrary(store, opts...)
	if err := lib.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	return lib
}

func mustAddBook(t *testing.T, lib *Library, title, author, isbn string) {
	t.Helper()
	if err := lib.AddBook(NewBook(title, author, isbn)); err != nil {
		t.Fatalf("add book %s: %v", isbn, err)
	}
}

func mustRegister(t *testing.T, lib *Library, name, userID string) {
	t.Helper()
	if err := lib.RegisterUser(NewUser(name, userID)); err != nil {
		t.Fatalf("register %s: %v", userID, err)
	}
}

func TestBorrowMarksBookAndUser(t *testing.T) {
	lib := newLedger(t)
	mustAddBook(t, lib, "Dune", "Frank Herbert", "111")
	mustRegister(t, lib, "Alice", "U1")

	due, err := lib.BorrowBook("111", "U1")
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if due.IsZero() {
		t.Fatalf("expected a due date")
	}

	borrowed := lib.ListBorrowedBooks()
	if len(borrowed) != 1 || borrowed[0].ISBN != "111" {
		t.Fatalf("want 111 borrowed, got %v", borrowed)
	}
	loans, err := lib.ListUserLoans("U1")
	if err != nil {
		t.Fatalf("list loans: %v", err)
	}
	if len(loans) != 1 || loans[0].ISBN != "111" {
		t.Fatalf("want one loan for 111, got %v", loans)
	}
	if loans[0].DueDate != due.Format(DueDateLayout) {
		t.Fatalf("loan due date %s != reported %s", loans[0].DueDate, due.Format(DueDateLayout))
	}
}

func TestBorrowUnknownKeys(t *testing.T) {
	lib := newLedger(t)
	mustAddBook(t, lib, "Dune", "Frank Herbert", "111")
	mustRegister(t, lib, "Alice", "U1")

	if _, err := lib.BorrowBook("999", "U1"); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("want ErrBookNotFound, got %v", err)
	}
	if _, err := lib.BorrowBook("111", "U9"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("want ErrUserNotFound, got %v", err)
	}
	// Nothing changed.
	if got := lib.ListBooks(false)[0].Status(); got != StatusAvailable {
		t.Fatalf("book status changed to %s", got)
	}
}

func TestBorrowAlreadyBorrowedFails(t *testing.T) {
	lib := newLedger(t)
	mustAddBook(t, lib, "Dune", "Frank Herbert", "111")
	mustRegister(t, lib, "Alice", "U1")
	mustRegister(t, lib, "Bob", "U2")

	if _, err := lib.BorrowBook("111", "U1"); err != nil {
		t.Fatalf("first borrow: %v", err)
	}
	if _, err := lib.BorrowBook("111", "U2"); !errors.Is(err, ErrAlreadyBorrowed) {
		t.Fatalf("want ErrAlreadyBorrowed, got %v", err)
	}

	// Both entities unchanged: the book is still out to U1, U2 holds nothing.
	u1Loans, _ := lib.ListUserLoans("U1")
	u2Loans, _ := lib.ListUserLoans("U2")
	if len(u1Loans) != 1 || len(u2Loans) != 0 {
		t.Fatalf("loan sets changed: U1=%d U2=%d", len(u1Loans), len(u2Loans))
	}
}

func TestReturnWithoutLoanFails(t *testing.T) {
	lib := newLedger(t)
	mustAddBook(t, lib, "Dune", "Frank Herbert", "111")
	mustRegister(t, lib, "Alice", "U1")
	mustRegister(t, lib, "Bob", "U2")

	if _, err := lib.ReturnBook("111", "U1"); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("return of never-borrowed book: want ErrLoanNotFound, got %v", err)
	}

	if _, err := lib.BorrowBook("111", "U1"); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if _, err := lib.ReturnBook("111", "U2"); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("return by wrong user: want ErrLoanNotFound, got %v", err)
	}
	// Book still out to U1.
	if len(lib.ListBorrowedBooks()) != 1 {
		t.Fatalf("book state changed by failed return")
	}
	u1Loans, _ := lib.ListUserLoans("U1")
	if len(u1Loans) != 1 {
		t.Fatalf("U1 loan set changed by failed return")
	}

	// Double return.
	if _, err := lib.ReturnBook("111", "U1"); err != nil {
		t.Fatalf("return: %v", err)
	}
	if _, err := lib.ReturnBook("111", "U1"); !errors.Is(err, ErrLoanNotFound) {
		t.Fatalf("double return: want ErrLoanNotFound, got %v", err)
	}
}

func TestDuplicateAddBookLeavesExisting(t *testing.T) {
	lib := newLedger(t)
	mustAddBook(t, lib, "Original", "Author A", "111")

	err := lib.AddBook(NewBook("Impostor", "Author B", "111"))
	if !errors.Is(err, ErrDuplicateISBN) {
		t.Fatalf("want ErrDuplicateISBN, got %v", err)
	}

	books := lib.ListBooks(false)
	if len(books) != 1 || books[0].Title != "Original" {
		t.Fatalf("existing entry disturbed: %+v", books)
	}
}

func TestDuplicateRegisterUserFails(t *testing.T) {
	lib := newLedger(t)
	mustRegister(t, lib, "Alice", "U1")

	err := lib.RegisterUser(NewUser("Someone Else", "U1"))
	if !errors.Is(err, ErrDuplicateUserID) {
		t.Fatalf("want ErrDuplicateUserID, got %v", err)
	}
	users := lib.ListUsers()
	if len(users) != 1 || users[0].Name != "Alice" {
		t.Fatalf("existing user disturbed: %+v", users)
	}
}

func TestFineComputation(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	lib := newLedger(t, WithClock(func() time.Time { return now }))
	mustAddBook(t, lib, "Dune", "Frank Herbert", "B1")
	mustRegister(t, lib, "Alice", "U1")

	borrowAndReturnAfter := func(days int) ReturnReceipt {
		t.Helper()
		start := now
		if _, err := lib.BorrowBook("B1", "U1"); err != nil {
			t.Fatalf("borrow: %v", err)
		}
		now = start.AddDate(0, 0, days)
		receipt, err := lib.ReturnBook("B1", "U1")
		if err != nil {
			t.Fatalf("return: %v", err)
		}
		return receipt
	}

	// Exactly on the due date: no fine.
	if r := borrowAndReturnAfter(14); r.Fine != 0 || r.LateDays != 0 {
		t.Fatalf("day 14: want no fine, got lateDays=%d fine=%d", r.LateDays, r.Fine)
	}
	// Six days late: 6 x 10.
	if r := borrowAndReturnAfter(20); r.Fine != 60 || r.LateDays != 6 {
		t.Fatalf("day 20: want lateDays=6 fine=60, got lateDays=%d fine=%d", r.LateDays, r.Fine)
	}
	// Early return: negative day difference, no credit.
	if r := borrowAndReturnAfter(10); r.Fine != 0 || r.LateDays != -4 {
		t.Fatalf("day 10: want lateDays=-4 fine=0, got lateDays=%d fine=%d", r.LateDays, r.Fine)
	}
}

func TestOverduePreviewDoesNotMutate(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	lib := newLedger(t, WithClock(func() time.Time { return now }))
	mustAddBook(t, lib, "Dune", "Frank Herbert", "B1")
	mustAddBook(t, lib, "Emma", "Jane Austen", "B2")
	mustRegister(t, lib, "Alice", "U1")

	if _, err := lib.BorrowBook("B1", "U1"); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	// Not yet due.
	if overdue := lib.ListOverdueUsers(); len(overdue) != 0 {
		t.Fatalf("nothing should be overdue yet, got %v", overdue)
	}

	now = now.AddDate(0, 0, 20)
	overdue := lib.ListOverdueUsers()
	if len(overdue) != 1 {
		t.Fatalf("want one overdue user, got %d", len(overdue))
	}
	entry := overdue[0]
	if entry.User.UserID != "U1" || len(entry.Loans) != 1 {
		t.Fatalf("unexpected overdue entry: %+v", entry)
	}
	loan := entry.Loans[0]
	if loan.ISBN != "B1" || loan.LateDays != 6 || loan.Fine != 60 {
		t.Fatalf("want B1 6 days late fine 60, got %+v", loan)
	}

	// Preview mutated nothing: the loan and the book state are intact.
	loans, _ := lib.ListUserLoans("U1")
	if len(loans) != 1 {
		t.Fatalf("loan set mutated by preview")
	}
	if len(lib.ListBorrowedBooks()) != 1 {
		t.Fatalf("book state mutated by preview")
	}
}

func TestSearchBooks(t *testing.T) {
	lib := newLedger(t)
	mustAddBook(t, lib, "Go Programming", "John Smith", "111")
	mustAddBook(t, lib, "Mystery Novel", "Jane Doe", "99smith9")
	mustAddBook(t, lib, "Other", "Somebody", "222")

	results := lib.SearchBooks("smith")
	if len(results) != 2 {
		t.Fatalf("want 2 matches, got %d", len(results))
	}
	// Insertion order: author match first, ISBN substring match second.
	if results[0].ISBN != "111" || results[1].ISBN != "99smith9" {
		t.Fatalf("unexpected order: %s, %s", results[0].ISBN, results[1].ISBN)
	}

	if got := lib.SearchBooks("nothing matches this"); len(got) != 0 {
		t.Fatalf("want empty result, got %d", len(got))
	}
}

func TestListBooksAvailableOnly(t *testing.T) {
	lib := newLedger(t)
	mustAddBook(t, lib, "A", "X", "1")
	mustAddBook(t, lib, "B", "Y", "2")
	mustRegister(t, lib, "Alice", "U1")

	if _, err := lib.BorrowBook("1", "U1"); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	all := lib.ListBooks(false)
	if len(all) != 2 {
		t.Fatalf("want 2 books, got %d", len(all))
	}
	available := lib.ListBooks(true)
	if len(available) != 1 || available[0].ISBN != "2" {
		t.Fatalf("want only book 2 available, got %v", available)
	}
}

func TestEndToEndCirculation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lib := newLedger(t, WithClock(func() time.Time { return now }))

	mustRegister(t, lib, "Alice", "U1")
	mustRegister(t, lib, "Bob", "U2")
	mustAddBook(t, lib, "Dune", "Frank Herbert", "978X")

	due, err := lib.BorrowBook("978X", "U1")
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	wantDue := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	if !due.Equal(wantDue) {
		t.Fatalf("due date %v, want %v", due, wantDue)
	}

	if _, err := lib.BorrowBook("978X", "U2"); !errors.Is(err, ErrAlreadyBorrowed) {
		t.Fatalf("second borrower should fail, got %v", err)
	}

	receipt, err := lib.ReturnBook("978X", "U1")
	if err != nil {
		t.Fatalf("return: %v", err)
	}
	if receipt.Fine != 0 {
		t.Fatalf("on-time return fined %d", receipt.Fine)
	}
	if got := lib.ListBooks(false)[0].Status(); got != StatusAvailable {
		t.Fatalf("book status after return: %s", got)
	}
	loans, err := lib.ListUserLoans("U1")
	if err != nil {
		t.Fatalf("list loans: %v", err)
	}
	if len(loans) != 0 {
		t.Fatalf("U1 should hold nothing, got %v", loans)
	}
}

// failingStore fails every save once armed, to exercise the accepted
// no-rollback behavior.
type failingStore struct {
	fail bool
}

func (f *failingStore) LoadBooks() ([]*Book, error) { return nil, nil }
func (f *failingStore) LoadUsers() ([]*User, error) { return nil, nil }
func (f *failingStore) SaveAll([]*Book, []*User) error {
	if f.fail {
		return errors.New("disk full")
	}
	return nil
}

func TestPersistFailureKeepsMutation(t *testing.T) {
	store := &failingStore{}
	lib := NewLibrary(store)
	if err := lib.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	mustAddBook(t, lib, "Dune", "Frank Herbert", "111")

	store.fail = true
	err := lib.RegisterUser(NewUser("Alice", "U1"))
	var perr *PersistError
	if !errors.As(err, &perr) {
		t.Fatalf("want PersistError, got %v", err)
	}

	// The in-memory mutation stays applied.
	users := lib.ListUsers()
	if len(users) != 1 || users[0].UserID != "U1" {
		t.Fatalf("mutation rolled back: %v", users)
	}
}

func TestLoanReferencingMissingBook(t *testing.T) {
	dir := t.TempDir()
	store := NewJSONStore(filepath.Join(dir, "books.json"), filepath.Join(dir, "users.json"), zap.NewNop())

	u := NewUser("Alice", "U1")
	u.AddLoan("ghost-isbn", time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	if err := store.SaveAll(nil, []*User{u}); err != nil {
		t.Fatalf("save: %v", err)
	}

	lib := NewLibrary(store)
	if err := lib.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	loans, err := lib.ListUserLoans("U1")
	if err != nil {
		t.Fatalf("list loans: %v", err)
	}
	if len(loans) != 1 || loans[0].Book != nil || loans[0].ISBN != "ghost-isbn" {
		t.Fatalf("dangling loan should surface with a nil book, got %+v", loans)
	}
}
