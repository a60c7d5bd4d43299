package stores_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/maintlog/maintlog/pkg/stores"
)

// ExampleNewCollectionStore demonstrates saving and reloading the shared
// collection.
func ExampleNewCollectionStore() {
	dir, err := os.MkdirTemp("", "maintlog-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store, err := stores.NewCollectionStore(stores.CollectionConfig{
		Path: filepath.Join(dir, "reports.json"),
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	records := []stores.ReportRecord{
		{ID: "0a1b2c3d", Project: "1. Acme", Fields: stores.Payload{stores.FieldTicket: "INC-100"}},
		{ID: "4e5f6a7b", Project: "2. Globex", Fields: stores.Payload{stores.FieldTicket: "INC-200"}},
	}
	if _, err := store.Save(ctx, records, ""); err != nil {
		log.Fatal(err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		log.Fatal(err)
	}
	for _, r := range loaded {
		fmt.Printf("%s %s %s\n", r.ID, r.Project, r.Field(stores.FieldTicket))
	}
	// Output:
	// 0a1b2c3d 1. Acme INC-100
	// 4e5f6a7b 2. Globex INC-200
}

// ExampleCollectionStore_DeleteByPartition demonstrates removing a project
// regardless of its list numbering.
func ExampleCollectionStore_DeleteByPartition() {
	dir, err := os.MkdirTemp("", "maintlog-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store, _ := stores.NewCollectionStore(stores.CollectionConfig{Path: filepath.Join(dir, "reports.json")})
	ctx := context.Background()
	_, _ = store.Save(ctx, []stores.ReportRecord{
		{ID: "a", Project: "2. Acme"},
		{ID: "b", Project: "Acme"},
		{ID: "c", Project: "3. Other"},
	}, "")

	removed, err := store.DeleteByPartition(ctx, "2. Acme")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("removed:", removed)
	// Output: removed: 2
}

// ExampleAuditStore demonstrates journalling a repository action.
func ExampleAuditStore() {
	store, err := stores.NewAuditStore(stores.AuditConfig{Path: ":memory:"})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	project := "1. Acme"
	if err := store.CreateAuditEntry(ctx, &stores.AuditEntry{
		Action:  "record.added",
		Actor:   "cli",
		Project: &project,
	}); err != nil {
		log.Fatal(err)
	}

	entries, err := store.ListAuditEntries(ctx, nil, &project, 10, 0)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(len(entries), entries[0].Action)
	// Output: 1 record.added
}
