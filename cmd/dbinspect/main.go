// Package main prints a read-only summary of a Siftr Badger store.
package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/siftrapp/siftr-server/internal/domain"
)

func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = os.ExpandEnv("$HOME/Siftr/data/db")
	}

	opts := badger.DefaultOptions(dbPath).
		WithReadOnly(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	fmt.Println("=== Database Inspection ===")
	fmt.Println()

	var datasets []domain.Dataset
	speciesKeys := make(map[string]int)
	generations := make(map[string]uint64)

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())

			switch {
			case strings.HasPrefix(key, "dataset:idx:"):
				continue
			case strings.HasPrefix(key, "dataset:"):
				err := item.Value(func(val []byte) error {
					var ds domain.Dataset
					if err := json.Unmarshal(val, &ds); err != nil {
						return fmt.Errorf("%s: %w", key, err)
					}
					datasets = append(datasets, ds)
					return nil
				})
				if err != nil {
					return err
				}
			case strings.HasPrefix(key, "spcgen:"):
				err := item.Value(func(val []byte) error {
					if len(val) == 8 {
						generations[strings.TrimPrefix(key, "spcgen:")] = binary.BigEndian.Uint64(val)
					}
					return nil
				})
				if err != nil {
					return err
				}
			case strings.HasPrefix(key, "spc:"):
				// spc:<datasetID>:<gen>:<pos>
				parts := strings.SplitN(strings.TrimPrefix(key, "spc:"), ":", 3)
				if len(parts) == 3 {
					speciesKeys[parts[0]+":"+parts[1]]++
				}
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to read database: %v", err)
	}

	sort.Slice(datasets, func(i, j int) bool { return datasets[i].Slug < datasets[j].Slug })

	fmt.Printf("Datasets: %d\n\n", len(datasets))
	for _, ds := range datasets {
		fmt.Printf("%s (%s)\n", ds.Slug, ds.Name)
		fmt.Printf("  ID: %s\n", ds.ID)
		fmt.Printf("  Format: %s, header row %d\n", ds.Format, ds.HeaderRow)
		fmt.Printf("  Species: %d (dropped %d rows)\n", ds.SpeciesCount, ds.DroppedRows)
		fmt.Printf("  Updated: %s\n", ds.UpdatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("  Generation: %d\n", generations[ds.ID])
		fmt.Println()
	}

	// More than one generation per dataset means a swap left old records behind.
	stale := 0
	for genKey, count := range speciesKeys {
		datasetID, _, _ := strings.Cut(genKey, ":")
		if genKey != fmt.Sprintf("%s:%08d", datasetID, generations[datasetID]) {
			stale += count
		}
	}
	fmt.Printf("Species records: %d stale\n", stale)
}
