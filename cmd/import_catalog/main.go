package main

import (
	"errors"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"

	"library-circulation/config"
	"library-circulation/library"
	"library-circulation/logging"
)

// Bulk-loads a catalog file into the library. The input is a JSON array of
// book records: [{"Title":"...","Author":"...","ISBN":"..."}, ...]. Books
// whose ISBN is already in the catalog are skipped and counted as errors.
func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <catalog.json>\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	store := library.NewJSONStore(cfg.Storage.BooksFile, cfg.Storage.UsersFile, log)
	lib := library.NewLibrary(store, library.WithLogger(log))
	if err := lib.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading library state: %v\n", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading catalog file: %v\n", err)
		os.Exit(1)
	}
	var records []library.BookRecord
	if err := jsoniter.ConfigFastest.Unmarshal(data, &records); err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding catalog file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Importing %d books...\n", len(records))

	successCount := 0
	errorCount := 0
	for _, r := range records {
		fmt.Printf("Importing: %s by %s... ", r.Title, r.Author)
		if err := lib.AddBook(library.NewBook(r.Title, r.Author, r.ISBN)); err != nil {
			if errors.Is(err, library.ErrDuplicateISBN) {
				fmt.Println("SKIPPED - already in catalog")
			} else {
				fmt.Printf("ERROR - %v\n", err)
			}
			errorCount++
			continue
		}
		fmt.Printf("SUCCESS (ISBN: %s)\n", r.ISBN)
		successCount++
	}

	fmt.Printf("\nImport complete!\n")
	fmt.Printf("Successfully imported: %d books\n", successCount)
	fmt.Printf("Errors/skipped: %d\n", errorCount)

	if successCount > 0 {
		fmt.Println("\nCatalog:")
		fmt.Printf("%-20s %-40s %-30s\n", "ISBN", "Title", "Author")
		for _, b := range lib.ListBooks(false) {
			fmt.Printf("%-20s %-40s %-30s\n", b.ISBN, b.Title, b.Author)
		}
	}
}
