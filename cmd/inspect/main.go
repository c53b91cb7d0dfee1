package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"chat-sync/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

var kindColors = map[string]color.Color{
	"chat":    color.FgGreen,
	"msg":     color.FgCyan,
	"user":    color.FgYellow,
	"index":   color.FgGray,
	"corrupt": color.FgRed,
}

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	prefix := flag.String("prefix", "chat:", "Prefix to scan (chat:, msg:<chat id>:, user:, pair:, member:)")
	limit := flag.Int("limit", 200, "Maximum number of rows")
	flag.Parse()

	if err := run(*dbPath, *prefix, *limit); err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		os.Exit(1)
	}
}

func run(dbPath, prefix string, limit int) error {
	db, err := openDB(dbPath)
	if err != nil {
		return fmt.Errorf("error while opening badger: %w", err)
	}
	defer func() { _ = db.Close() }()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Kind", "Timestamp", "ID", "Owner", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	rows := 0
	errStop := fmt.Errorf("limit reached")
	err = repositories.Scan(db, prefix, func(r repositories.Record) error {
		if rows == limit {
			return errStop
		}
		rows++
		at := "--:--:--"
		if !r.At.IsZero() {
			at = r.At.Format("2006-01-02 15:04:05")
		}
		table.Append([]string{r.Key, paint(r.Kind), at, short(r.ID), r.Owner, r.Detail})
		return nil
	})
	if err != nil && err != errStop {
		return err
	}
	table.Render()
	fmt.Printf("%d rows under %q\n", rows, prefix)
	return nil
}

func paint(kind string) string {
	if c, ok := kindColors[kind]; ok {
		return c.Render(kind)
	}
	return kind
}

// short keeps the first 8 characters of an id for readability.
func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil && strings.Contains(err.Error(), "Log truncate required") {
		// A crashed writer left an untruncated value log: open once in write mode to repair it.
		repair, repairErr := badger.Open(badger.DefaultOptions(path).WithLogger(nil).WithBypassLockGuard(true))
		if repairErr != nil {
			return nil, fmt.Errorf("repair failed: %w", repairErr)
		}
		_ = repair.Close()
		return badger.Open(opts)
	}
	return db, err
}
