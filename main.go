package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/cairndb/cairn/internal/dbconfig"
	"github.com/cairndb/cairn/pkg/cairn"
)

// main is a thin command-line front end over pkg/cairn, one subcommand
// per façade operation (init/put/get/delete/find/history/remote/sync),
// in the teacher's verb-per-subcommand shape (cmd/zeta/main.go's App)
// without pulling in pkg/kong -- that package's actual parser
// (New/Context/Kong, referenced by global.go) isn't vendored here, so
// it cannot compile standalone. This front end dispatches on os.Args[1]
// with the standard library's flag package instead.
func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx := context.Background()
	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(ctx, os.Args[2:])
	case "put":
		err = runPut(ctx, os.Args[2:])
	case "get":
		err = runGet(ctx, os.Args[2:])
	case "delete":
		err = runDelete(ctx, os.Args[2:])
	case "find":
		err = runFind(ctx, os.Args[2:])
	case "history":
		err = runHistory(ctx, os.Args[2:])
	case "remote":
		err = runRemote(ctx, os.Args[2:])
	case "sync":
		err = runSync(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "cairn:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cairn <init|put|get|delete|find|history|remote|sync> [flags]")
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	db := fs.String("db", ".", "path to the database's git directory")
	author := fs.String("author", "", "author name")
	email := fs.String("author-email", "", "author email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	d, err := cairn.Init(ctx, *db, cairn.OpenOptions{Author: dbconfig.Author{Name: *author, Email: *email}})
	if err != nil {
		return err
	}
	defer d.Close()
	fmt.Printf("initialized database %s (dbId=%s)\n", *db, d.Info.DBID)
	return nil
}

func openDatabase(ctx context.Context, gitDir string) (*cairn.Database, error) {
	return cairn.Open(ctx, gitDir, cairn.OpenOptions{})
}

func runPut(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("put", flag.ExitOnError)
	db := fs.String("db", ".", "path to the database's git directory")
	coll := fs.String("collection", "", "collection path, e.g. \"notes/\"")
	id := fs.String("id", "", "document short id")
	insertOnly := fs.Bool("insert", false, "fail if the id already exists")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("put: -id is required")
	}
	var value map[string]any
	if err := json.NewDecoder(os.Stdin).Decode(&value); err != nil {
		return fmt.Errorf("put: reading document from stdin: %w", err)
	}

	d, err := openDatabase(ctx, *db)
	if err != nil {
		return err
	}
	defer d.Close()
	c, err := d.Collection(*coll)
	if err != nil {
		return err
	}
	var result *cairn.PutResult
	if *insertOnly {
		result, err = c.Insert(ctx, *id, value)
	} else {
		result, err = c.Put(ctx, *id, value)
	}
	if err != nil {
		return err
	}
	fmt.Printf("commit %s\n", result.CommitOID)
	return nil
}

func runGet(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	db := fs.String("db", ".", "path to the database's git directory")
	coll := fs.String("collection", "", "collection path")
	name := fs.String("name", "", "short name (short id + extension)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	d, err := openDatabase(ctx, *db)
	if err != nil {
		return err
	}
	defer d.Close()
	c, err := d.Collection(*coll)
	if err != nil {
		return err
	}
	doc, found, err := c.Get(ctx, *name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("get: %s not found", *name)
	}
	return json.NewEncoder(os.Stdout).Encode(doc.Value)
}

func runDelete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	db := fs.String("db", ".", "path to the database's git directory")
	coll := fs.String("collection", "", "collection path")
	id := fs.String("id", "", "document short id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	d, err := openDatabase(ctx, *db)
	if err != nil {
		return err
	}
	defer d.Close()
	c, err := d.Collection(*coll)
	if err != nil {
		return err
	}
	result, err := c.Delete(ctx, *id)
	if err != nil {
		return err
	}
	fmt.Printf("commit %s\n", result.CommitOID)
	return nil
}

func runFind(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("find", flag.ExitOnError)
	db := fs.String("db", ".", "path to the database's git directory")
	coll := fs.String("collection", "", "collection path")
	prefix := fs.String("prefix", "", "name/sub-path prefix")
	descending := fs.Bool("desc", false, "descending order")
	recursive := fs.Bool("recursive", true, "descend into subdirectories")
	limit := fs.Int("limit", 0, "maximum results (0 = unbounded)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	d, err := openDatabase(ctx, *db)
	if err != nil {
		return err
	}
	defer d.Close()
	c, err := d.Collection(*coll)
	if err != nil {
		return err
	}
	results, err := c.Find(ctx, cairn.FindOptions{
		Prefix:     *prefix,
		Descending: *descending,
		Recursive:  *recursive,
		Limit:      *limit,
	})
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Println(r.Path)
	}
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	db := fs.String("db", ".", "path to the database's git directory")
	coll := fs.String("collection", "", "collection path")
	id := fs.String("id", "", "document short id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	d, err := openDatabase(ctx, *db)
	if err != nil {
		return err
	}
	defer d.Close()
	c, err := d.Collection(*coll)
	if err != nil {
		return err
	}
	entries, err := c.GetHistory(ctx, *id, nil)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%s exists=%v %s\n", e.CommitOID, e.Exists, e.Message)
	}
	return nil
}

func runRemote(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("remote", flag.ExitOnError)
	db := fs.String("db", ".", "path to the database's git directory")
	name := fs.String("name", "origin", "remote name")
	url := fs.String("url", "", "remote url")
	connection := fs.String("connection", "", "\"\", \"https\", or \"ssh\"")
	pat := fs.String("pat", "", "personal access token (connection=https)")
	keyPath := fs.String("ssh-key", "", "ssh private key path (connection=ssh)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	d, err := openDatabase(ctx, *db)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.AddRemote(ctx, cairn.RemoteOptions{
		Name:                *name,
		URL:                 *url,
		Connection:          *connection,
		PersonalAccessToken: *pat,
		SSHKeyPath:          *keyPath,
	})
}

func runSync(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	db := fs.String("db", ".", "path to the database's git directory")
	remote := fs.String("remote", "origin", "remote name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	d, err := openDatabase(ctx, *db)
	if err != nil {
		return err
	}
	defer d.Close()
	result, err := d.Sync(ctx, *remote, cairn.SyncOptions{})
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", result.Action, result.CommitOID)
	return nil
}
