package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"library-circulation/config"
	"library-circulation/library"
	"library-circulation/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath   string
		booksFile string
		usersFile string
		backend   string
		dbPath    string
	)

	cmd := &cobra.Command{
		Use:          "circulation",
		Short:        "Interactive circulation desk for a single-branch library",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("books") {
				cfg.Storage.BooksFile = booksFile
			}
			if cmd.Flags().Changed("users") {
				cfg.Storage.UsersFile = usersFile
			}
			if cmd.Flags().Changed("backend") {
				cfg.Storage.Backend = backend
			}
			if cmd.Flags().Changed("db") {
				cfg.Storage.SQLitePath = dbPath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runDesk(cfg)
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", "", "path to a config file")
	cmd.Flags().StringVar(&booksFile, "books", "", "books snapshot file (json backend)")
	cmd.Flags().StringVar(&usersFile, "users", "", "users snapshot file (json backend)")
	cmd.Flags().StringVar(&backend, "backend", "", `storage backend: "json" or "sqlite"`)
	cmd.Flags().StringVar(&dbPath, "db", "", "database path (sqlite backend)")
	return cmd
}

func runDesk(cfg *config.Config) error {
	log, err := logging.New(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		return err
	}
	defer log.Sync()

	store, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	lib := library.NewLibrary(store,
		library.WithLogger(log),
		library.WithPolicy(library.Policy{
			LoanDays:      cfg.Circulation.LoanDays,
			LateFeePerDay: cfg.Circulation.LateFeePerDay,
		}),
	)
	if err := lib.Load(); err != nil {
		return fmt.Errorf("load library state: %w", err)
	}

	runMenu(lib)
	return nil
}

func openStore(cfg *config.Config, log *zap.Logger) (library.Store, func(), error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		s, err := library.NewSQLiteStore(cfg.Storage.SQLitePath, log)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		s := library.NewJSONStore(cfg.Storage.BooksFile, cfg.Storage.UsersFile, log)
		return s, func() {}, nil
	}
}

func runMenu(lib *library.Library) {
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("Welcome to the Circulation Desk!")
	fmt.Println("Available commands:")
	fmt.Println("  Catalog: add book, list books, search")
	fmt.Println("  Users: register user, list users, user loans")
	fmt.Println("  Circulation: borrow, return, borrowed, overdue")
	fmt.Println("  System: exit")

	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		cmd := strings.TrimSpace(scanner.Text())

		switch cmd {
		case "add book":
			handleAddBook(scanner, lib)
		case "register user":
			handleRegisterUser(scanner, lib)
		case "borrow":
			handleBorrow(scanner, lib)
		case "return":
			handleReturn(scanner, lib)
		case "list books":
			handleListBooks(scanner, lib)
		case "search":
			handleSearch(scanner, lib)
		case "list users":
			handleListUsers(lib)
		case "user loans":
			handleUserLoans(scanner, lib)
		case "borrowed":
			handleBorrowed(lib)
		case "overdue":
			handleOverdue(lib)
		case "exit":
			fmt.Println("Goodbye!")
			return
		case "":
		default:
			fmt.Println("Unknown command. Type one of the available commands listed above.")
		}
	}
}

// prompt reads one trimmed line, reporting false on EOF.
func prompt(sc *bufio.Scanner, label string) (string, bool) {
	fmt.Print(label)
	if !sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(sc.Text()), true
}

// reportOutcome prints success or failure for a mutating operation. A failed
// state save is a warning, not a failure: the operation itself went through
// and durable state catches up on the next save.
func reportOutcome(err error, success string) {
	if err == nil {
		fmt.Println(success)
		return
	}
	var perr *library.PersistError
	if errors.As(err, &perr) {
		fmt.Println(success)
		fmt.Printf("Warning: %v\n", perr)
		return
	}
	fmt.Printf("Error: %v\n", err)
}

func handleAddBook(sc *bufio.Scanner, lib *library.Library) {
	title, ok := prompt(sc, "Title: ")
	if !ok {
		return
	}
	author, ok := prompt(sc, "Author: ")
	if !ok {
		return
	}
	isbn, ok := prompt(sc, "ISBN: ")
	if !ok {
		return
	}

	err := lib.AddBook(library.NewBook(title, author, isbn))
	reportOutcome(err, fmt.Sprintf("Book '%s' added successfully.", title))
}

func handleRegisterUser(sc *bufio.Scanner, lib *library.Library) {
	name, ok := prompt(sc, "Name: ")
	if !ok {
		return
	}
	userID, ok := prompt(sc, "User ID (leave blank to generate): ")
	if !ok {
		return
	}
	if userID == "" {
		userID = uuid.NewString()
	}

	err := lib.RegisterUser(library.NewUser(name, userID))
	reportOutcome(err, fmt.Sprintf("User ID %s registered successfully.", userID))
}

func handleBorrow(sc *bufio.Scanner, lib *library.Library) {
	isbn, ok := prompt(sc, "ISBN of the book to borrow: ")
	if !ok {
		return
	}
	userID, ok := prompt(sc, "User ID: ")
	if !ok {
		return
	}

	due, err := lib.BorrowBook(isbn, userID)
	reportOutcome(err, fmt.Sprintf("Book borrowed. Due date: %s", due.Format(library.DueDateLayout)))
}

func handleReturn(sc *bufio.Scanner, lib *library.Library) {
	isbn, ok := prompt(sc, "ISBN of the book to return: ")
	if !ok {
		return
	}
	userID, ok := prompt(sc, "User ID: ")
	if !ok {
		return
	}

	receipt, err := lib.ReturnBook(isbn, userID)
	var success string
	if receipt.LateDays > 0 {
		success = fmt.Sprintf("Book is %d day(s) late. Fine: %d", receipt.LateDays, receipt.Fine)
	} else {
		success = "Book returned on time. No fine."
	}
	reportOutcome(err, success)
}

func handleListBooks(sc *bufio.Scanner, lib *library.Library) {
	answer, ok := prompt(sc, "Show only available books? (y/n): ")
	if !ok {
		return
	}
	availableOnly := strings.EqualFold(answer, "y")

	books := lib.ListBooks(availableOnly)
	if len(books) == 0 {
		fmt.Println("No books to show.")
		return
	}
	for _, b := range books {
		printBook(b)
	}
}

func handleSearch(sc *bufio.Scanner, lib *library.Library) {
	query, ok := prompt(sc, "Title/author/ISBN to search: ")
	if !ok {
		return
	}

	results := lib.SearchBooks(query)
	if len(results) == 0 {
		fmt.Println("No matching books found.")
		return
	}
	for _, b := range results {
		printBook(b)
	}
}

func handleListUsers(lib *library.Library) {
	users := lib.ListUsers()
	if len(users) == 0 {
		fmt.Println("No users registered.")
		return
	}
	for _, u := range users {
		fmt.Printf("User: %s\n", u.Name)
		fmt.Printf("User Id: %s\n", u.UserID)
		fmt.Printf("Borrowed books: %d\n", u.LoanCount())
		fmt.Println(strings.Repeat("-", 30))
	}
}

func handleUserLoans(sc *bufio.Scanner, lib *library.Library) {
	userID, ok := prompt(sc, "User ID: ")
	if !ok {
		return
	}

	loans, err := lib.ListUserLoans(userID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if len(loans) == 0 {
		fmt.Println("No borrowed books.")
		return
	}
	for _, loan := range loans {
		if loan.Book != nil {
			printBook(loan.Book)
		} else {
			fmt.Printf("ISBN: %s [not in catalog]\n", loan.ISBN)
		}
		fmt.Printf("Due Date: %s\n", loan.DueDate)
		fmt.Println(strings.Repeat("-", 30))
	}
}

func handleBorrowed(lib *library.Library) {
	books := lib.ListBorrowedBooks()
	if len(books) == 0 {
		fmt.Println("No books are currently borrowed.")
		return
	}
	for _, b := range books {
		printBook(b)
	}
}

func handleOverdue(lib *library.Library) {
	overdue := lib.ListOverdueUsers()
	if len(overdue) == 0 {
		fmt.Println("No users have overdue books.")
		return
	}
	for _, entry := range overdue {
		fmt.Printf("User: %s (ID: %s) has overdue books:\n", entry.User.Name, entry.User.UserID)
		for _, loan := range entry.Loans {
			title := "[not in catalog]"
			if loan.Book != nil {
				title = loan.Book.Title
			}
			fmt.Printf("  - %s, Due: %s, Late: %d day(s), Fine: %d\n",
				title, loan.DueDate.Format(library.DueDateLayout), loan.LateDays, loan.Fine)
		}
		fmt.Println(strings.Repeat("-", 40))
	}
}

func printBook(b *library.Book) {
	fmt.Printf("Title: %s\n", b.Title)
	fmt.Printf("Author: %s\n", b.Author)
	fmt.Printf("ISBN: %s\n", b.ISBN)
	fmt.Printf("Status: %s\n", b.Status())
	fmt.Println(strings.Repeat("-", 30))
}
