package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"animeshelf/internal/database"
	"animeshelf/services/profiles"
)

func main() {
	dbPath := flag.String("db", "data/animeshelf.db", "path to the SQLite database")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: dumpprofile [-db path] <user-id>")
		os.Exit(1)
	}
	db, err := database.NewDB(database.Config{DatabasePath: *dbPath})
	if err != nil {
		panic(err)
	}
	defer db.Close()

	p, err := profiles.NewStore(db, profiles.Options{}).Get(context.Background(), flag.Arg(0))
	if err != nil {
		panic(err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&p); err != nil {
		panic(err)
	}
}
