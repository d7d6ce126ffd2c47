package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/procpool/pkg/types"
)

var (
	dbPath     = flag.String("db", "", "Path to the task database (required)")
	bucketName = flag.String("bucket", "task", "Bucket holding the task records")
	dryRun     = flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	backupPath = flag.String("backup", "", "Path to backup the database before migration (default: <db>.backup)")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Procpool Database Migration Tool - legacy record layout")
	log.Println("=======================================================")

	if *dbPath == "" {
		log.Fatal("--db is required")
	}
	if _, err := os.Stat(*dbPath); os.IsNotExist(err) {
		log.Fatalf("Database not found at %s", *dbPath)
	}

	log.Printf("Database: %s", *dbPath)
	log.Printf("Bucket: %s", *bucketName)
	log.Printf("Dry run: %v", *dryRun)

	// Create backup unless in dry-run mode
	if !*dryRun {
		backupFile := *backupPath
		if backupFile == "" {
			backupFile = *dbPath + ".backup"
		}
		log.Printf("Creating backup: %s", backupFile)
		if err := copyFile(*dbPath, backupFile); err != nil {
			log.Fatalf("Failed to create backup: %v", err)
		}
		log.Println("✓ Backup created successfully")
	}

	db, err := bolt.Open(*dbPath, 0600, nil)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := migrateLegacyRecords(db, *bucketName, *dryRun); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	if *dryRun {
		log.Println("Dry run completed. No changes made.")
		log.Println("Run without --dry-run to perform the migration.")
	} else {
		log.Println("✓ Migration completed successfully!")
	}
}

// migrateLegacyRecords rewrites records produced by old deployments so the
// current daemon can load them:
//   - status "created" becomes "queued"
//   - a missing exit_code is seeded with the never-awaited sentinel
//   - a missing or empty notes list is seeded with the creation note
func migrateLegacyRecords(db *bolt.DB, bucket string, dryRun bool) error {
	var total int
	var legacy int

	// First, inspect what exists
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			log.Printf("✓ No %q bucket found - nothing to migrate", bucket)
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			total++
			var doc map[string]interface{}
			if err := json.Unmarshal(v, &doc); err != nil {
				log.Printf("⚠ Warning: invalid JSON for key %s: %v", k, err)
				return nil
			}
			if needsMigration(doc) {
				legacy++
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	log.Printf("Found %d records, %d need migration", total, legacy)
	if legacy == 0 {
		log.Println("✓ Database is already using the current layout")
		return nil
	}

	if dryRun {
		log.Println("[DRY RUN] Would perform the following operations:")
		log.Println("1. Rewrite status 'created' to 'queued'")
		log.Printf("2. Seed missing exit_code with %d", types.ExitCodeNone)
		log.Println("3. Seed missing notes with the creation note")
		log.Printf("4. Rewrite %d legacy records in place", legacy)
		return nil
	}

	var migrated int
	err = db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}

		// Collect rewrites first, Put outside the cursor walk
		updates := make(map[string][]byte)
		err := b.ForEach(func(k, v []byte) error {
			var doc map[string]interface{}
			if err := json.Unmarshal(v, &doc); err != nil {
				log.Printf("⚠ Warning: skipping invalid JSON for key %s: %v", k, err)
				return nil
			}
			if !needsMigration(doc) {
				return nil
			}

			rewriteRecord(doc)
			out, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("failed to re-encode record %s: %w", k, err)
			}
			updates[string(k)] = out
			return nil
		})
		if err != nil {
			return err
		}

		for k, v := range updates {
			if err := b.Put([]byte(k), v); err != nil {
				return fmt.Errorf("failed to rewrite record %s: %w", k, err)
			}
			migrated++
			if migrated%10 == 0 {
				log.Printf("  Migrated %d/%d...", migrated, legacy)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("✓ Migrated %d/%d legacy records", migrated, legacy)
	return nil
}

func needsMigration(doc map[string]interface{}) bool {
	if doc["status"] == "created" {
		return true
	}
	if _, ok := doc["exit_code"]; !ok {
		return true
	}
	if notes, ok := doc["notes"].([]interface{}); !ok || len(notes) == 0 {
		return true
	}
	return false
}

func rewriteRecord(doc map[string]interface{}) {
	if doc["status"] == "created" {
		doc["status"] = "queued"
	}
	if _, ok := doc["exit_code"]; !ok {
		doc["exit_code"] = types.ExitCodeNone
	}
	if notes, ok := doc["notes"].([]interface{}); !ok || len(notes) == 0 {
		stamp, _ := doc["init_time"].(string)
		if stamp == "" {
			stamp = time.Now().Format(types.TimeFormat)
		}
		doc["notes"] = []types.Note{{
			Text:      "task created",
			Timestamp: stamp,
			User:      "internal_default",
		}}
	}
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0600)
}
