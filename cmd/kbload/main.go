// kbload loads knowledge entries from a YAML file into the sqlite knowledge
// base consumed by the gateway's calibration stage. Ingestion is out-of-band:
// the gateway reads the database once at startup.
//
// Usage:
//
//	kbload -db ./data/knowledge.db -file corrections.yaml [-replace]
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	_ "modernc.org/sqlite"

	"github.com/balizero/reasoning-gateway/internal/knowledge"
)

type entryFile struct {
	Entries []struct {
		ID       string `koanf:"id"`
		Category string `koanf:"category"`
		Match    string `koanf:"match"`
		Payload  string `koanf:"payload"`
	} `koanf:"entries"`
}

func main() {
	dbPath := flag.String("db", "./data/knowledge.db", "path to the knowledge sqlite database")
	filePath := flag.String("file", "", "YAML file with entries to load")
	replace := flag.Bool("replace", false, "delete existing entries before loading")
	flag.Parse()

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "Usage: kbload -db <path> -file <entries.yaml> [-replace]")
		os.Exit(1)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(*filePath), yaml.Parser()); err != nil {
		log.Fatalf("Failed to read %s: %v", *filePath, err)
	}
	var ef entryFile
	if err := k.Unmarshal("", &ef); err != nil {
		log.Fatalf("Failed to parse %s: %v", *filePath, err)
	}
	if len(ef.Entries) == 0 {
		log.Fatalf("No entries found in %s", *filePath)
	}

	ctx := context.Background()
	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS knowledge_entries (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		match_text TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	if *replace {
		if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge_entries`); err != nil {
			log.Fatalf("Failed to clear existing entries: %v", err)
		}
	}

	loaded := 0
	for i, e := range ef.Entries {
		switch knowledge.Category(e.Category) {
		case knowledge.CategoryCorrection, knowledge.CategoryInsight, knowledge.CategoryServiceDefinition:
		default:
			log.Fatalf("Entry %d: unknown category %q (want correction, insight, or service_definition)", i, e.Category)
		}
		if e.Match == "" || e.Payload == "" {
			log.Fatalf("Entry %d: match and payload are required", i)
		}
		id := e.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO knowledge_entries (id, category, match_text, payload) VALUES (?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET category=excluded.category,
			   match_text=excluded.match_text, payload=excluded.payload`,
			id, e.Category, e.Match, e.Payload); err != nil {
			log.Fatalf("Entry %d: insert failed: %v", i, err)
		}
		loaded++
	}

	if err := tx.Commit(); err != nil {
		log.Fatalf("Failed to commit: %v", err)
	}

	fmt.Printf("Loaded %d entries into %s\n", loaded, *dbPath)
}
