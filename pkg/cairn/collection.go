package cairn

import (
	"context"
	"fmt"
	"time"

	"github.com/cairndb/cairn/internal/cairnerr"
	"github.com/cairndb/cairn/internal/docid"
	"github.com/cairndb/cairn/internal/events"
	"github.com/cairndb/cairn/internal/gitwire"
	"github.com/cairndb/cairn/internal/odb"
	"github.com/cairndb/cairn/internal/search"
	"github.com/cairndb/cairn/internal/taskqueue"
)

// Collection is a handle scoped to one collection path within a Database.
// Every CRUD method runs as a single task on the database's shared queue,
// preserving the single-writer ordering guarantee (spec §5).
type Collection struct {
	db             *Database
	collectionPath string
	branch         string
	search         *search.Index
}

// CollectionOption configures a Collection at construction time.
type CollectionOption func(*Collection)

// WithBranch scopes the collection to a branch other than the database's
// configured default.
func WithBranch(branch string) CollectionOption {
	return func(c *Collection) { c.branch = branch }
}

// WithSearchIndex attaches idx so every successful write/delete notifies
// it (spec §4.M's hook). The caller owns idx's lifecycle (OpenOrCreate,
// Rebuild, Close).
func WithSearchIndex(idx *search.Index) CollectionOption {
	return func(c *Collection) { c.search = idx }
}

func validateCollectionPath(p string) error {
	return docid.ValidateCollectionPath(p)
}

func (db *Database) actor() odb.Actor {
	return odb.Actor{Name: db.Config.Author.Name, Email: db.Config.Author.Email}
}

func (c *Collection) headRef() string {
	return "refs/heads/" + c.branch
}

// ext returns the file extension this collection's configured serializer
// writes documents with ("json" -> ".json", "front-matter" -> ".md").
func (c *Collection) ext() string {
	if c.db.Config.Core.Serializer == "front-matter" {
		return ".md"
	}
	return ".json"
}

func (c *Collection) fullPath(shortID string) string {
	return c.collectionPath + shortID + c.ext()
}

// PutOptions customizes a single write.
type PutOptions struct {
	// Message overrides the generated commit message.
	Message string
}

// PutOption mutates PutOptions.
type PutOption func(*PutOptions)

// WithMessage overrides the commit message a write would otherwise
// generate (spec §6's message templating).
func WithMessage(message string) PutOption {
	return func(o *PutOptions) { o.Message = message }
}

func applyPutOptions(opts []PutOption) PutOptions {
	var o PutOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// PutResult reports the outcome of a successful write.
type PutResult struct {
	CommitOID string
	FileOID   string
	ShortID   string
}

type writeMode int

const (
	writeModePut writeMode = iota
	writeModeInsert
	writeModeUpdate
)

// Put writes value at shortID unconditionally, inserting it if absent or
// replacing it if present.
func (c *Collection) Put(ctx context.Context, shortID string, value map[string]any, opts ...PutOption) (*PutResult, error) {
	return c.write(ctx, taskqueue.LabelPut, shortID, value, writeModePut, opts)
}

// Insert writes value at shortID, failing with *cairnerr.SameIdExists if
// HEAD already holds a document there.
func (c *Collection) Insert(ctx context.Context, shortID string, value map[string]any, opts ...PutOption) (*PutResult, error) {
	return c.write(ctx, taskqueue.LabelInsert, shortID, value, writeModeInsert, opts)
}

// Update replaces the document at shortID, failing with
// *cairnerr.DocumentNotFound if HEAD has no document there.
func (c *Collection) Update(ctx context.Context, shortID string, value map[string]any, opts ...PutOption) (*PutResult, error) {
	return c.write(ctx, taskqueue.LabelUpdate, shortID, value, writeModeUpdate, opts)
}

func (c *Collection) write(ctx context.Context, label taskqueue.Label, shortID string, value map[string]any, mode writeMode, opts []PutOption) (*PutResult, error) {
	if err := docid.ValidateID(shortID); err != nil {
		return nil, err
	}
	fullPath := c.fullPath(shortID)
	if err := docid.ValidateFullPath(fullPath); err != nil {
		return nil, err
	}
	cfg := applyPutOptions(opts)

	var result PutResult
	task := taskqueue.NewTask(label, func(taskCtx context.Context, hooks taskqueue.Hooks) error {
		headOID, treeOID, err := c.resolveHead(taskCtx)
		if err != nil {
			return err
		}
		_, exists, err := odb.ReadBlob(taskCtx, c.db.GitDir, treeOID, fullPath)
		if err != nil {
			return err
		}
		switch mode {
		case writeModeInsert:
			if exists {
				return &cairnerr.SameIdExists{ShortID: shortID}
			}
		case writeModeUpdate:
			if !exists {
				return &cairnerr.DocumentNotFound{ShortID: shortID}
			}
		}

		body := map[string]any{}
		for k, v := range value {
			body[k] = v
		}
		body["_id"] = shortID
		data, err := c.db.Registry.For(c.ext()).Encode(body)
		if err != nil {
			return err
		}

		kind := odb.ChangeInsert
		op := events.OpInsert
		if exists {
			kind = odb.ChangeUpdate
			op = events.OpUpdate
		}

		commitRes, err := odb.Commit(taskCtx, c.db.GitDir, odb.CommitRequest{
			ParentOID:   headOID,
			BaseTreeOID: treeOID,
			Mutations:   []odb.Mutation{{Path: fullPath, Data: data}},
			Kind:        kind,
			Paths:       []string{fullPath},
			Message:     cfg.Message,
			Actor:       c.db.actor(),
			CommittedAt: time.Now(),
		})
		if err != nil {
			return err
		}
		if err := advanceBranch(taskCtx, c.db.GitDir, c.branch, commitRes.CommitOID, headOID); err != nil {
			return err
		}

		fileOID, err := gitwire.HashObject(taskCtx, c.db.GitDir, data, false)
		if err != nil {
			return err
		}
		result = PutResult{CommitOID: commitRes.CommitOID, FileOID: fileOID, ShortID: shortID}

		newDoc := &odb.FatDoc{Name: shortID + c.ext(), ShortID: shortID, FileOID: fileOID, Value: body}
		c.emitChange(op, nil, newDoc)
		if c.search != nil {
			doc := search.Document{ID: shortID, Path: fullPath, Fields: body}
			if exists {
				c.search.UpdateIndex(doc)
			} else {
				c.search.AddIndex(doc)
			}
		}

		hooks.BeforeResolve()
		return nil
	})
	if err := c.db.Queue.PushAndWait(task); err != nil {
		return nil, err
	}
	return &result, nil
}

// Delete removes the document at shortID, failing with
// *cairnerr.DocumentNotFound if HEAD has none.
func (c *Collection) Delete(ctx context.Context, shortID string, opts ...PutOption) (*PutResult, error) {
	if err := docid.ValidateID(shortID); err != nil {
		return nil, err
	}
	fullPath := c.fullPath(shortID)
	cfg := applyPutOptions(opts)

	var result PutResult
	task := taskqueue.NewTask(taskqueue.LabelDelete, func(taskCtx context.Context, hooks taskqueue.Hooks) error {
		headOID, treeOID, err := c.resolveHead(taskCtx)
		if err != nil {
			return err
		}
		oldDoc, exists, err := odb.ReadFatDoc(taskCtx, c.db.GitDir, treeOID, fullPath, c.db.Registry, nil)
		if err != nil {
			return err
		}
		if !exists {
			return &cairnerr.DocumentNotFound{ShortID: shortID}
		}

		commitRes, err := odb.Commit(taskCtx, c.db.GitDir, odb.CommitRequest{
			ParentOID:   headOID,
			BaseTreeOID: treeOID,
			Mutations:   []odb.Mutation{{Path: fullPath, Delete: true}},
			Kind:        odb.ChangeDelete,
			Paths:       []string{fullPath},
			Message:     cfg.Message,
			Actor:       c.db.actor(),
			CommittedAt: time.Now(),
		})
		if err != nil {
			return err
		}
		if err := advanceBranch(taskCtx, c.db.GitDir, c.branch, commitRes.CommitOID, headOID); err != nil {
			return err
		}

		result = PutResult{CommitOID: commitRes.CommitOID, ShortID: shortID}
		c.emitChange(events.OpDelete, oldDoc, nil)
		if c.search != nil {
			c.search.DeleteIndex(shortID)
		}

		hooks.BeforeResolve()
		return nil
	})
	if err := c.db.Queue.PushAndWait(task); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Collection) resolveHead(ctx context.Context) (headOID, treeOID string, err error) {
	headOID, err = gitwire.RevParse(ctx, c.db.GitDir, c.headRef())
	if err != nil {
		return "", "", err
	}
	if headOID == "" {
		return "", "", nil
	}
	treeOID, err = gitwire.CommitTreeOID(ctx, c.db.GitDir, headOID)
	if err != nil {
		return "", "", err
	}
	return headOID, treeOID, nil
}

func (c *Collection) emitChange(op events.ChangedFileOp, old, new *odb.FatDoc) {
	if c.db.Events == nil {
		return
	}
	var oldAny, newAny any
	if old != nil {
		oldAny = old
	}
	if new != nil {
		newAny = new
	}
	payload := &events.ChangeSetEvent{
		CollectionPath: c.collectionPath,
		Changes:        []events.ChangedFile{{Op: op, Old: oldAny, New: newAny}},
	}
	c.db.Events.Emit(events.KindChange, payload)
}

// Get resolves shortName (shortId + extension) against HEAD and decodes
// it. Returns (nil, false, nil) if no document exists there.
func (c *Collection) Get(ctx context.Context, shortName string) (*odb.FatDoc, bool, error) {
	_, treeOID, err := c.resolveHead(ctx)
	if err != nil {
		return nil, false, err
	}
	return odb.ReadFatDoc(ctx, c.db.GitDir, treeOID, c.collectionPath+shortName, c.db.Registry, nil)
}

// GetAtRevision reads shortName as of the commit revision (a specific OID
// or ref-ish; "" means HEAD, mirroring spec §4.C's get() resolution).
func (c *Collection) GetAtRevision(ctx context.Context, shortName, revision string) (*odb.FatDoc, bool, error) {
	if revision == "" {
		return c.Get(ctx, shortName)
	}
	commitOID, err := gitwire.RevParse(ctx, c.db.GitDir, revision)
	if err != nil {
		return nil, false, err
	}
	if commitOID == "" {
		return nil, false, fmt.Errorf("cairn: revision %q not found", revision)
	}
	treeOID, err := gitwire.CommitTreeOID(ctx, c.db.GitDir, commitOID)
	if err != nil {
		return nil, false, err
	}
	return odb.ReadFatDoc(ctx, c.db.GitDir, treeOID, c.collectionPath+shortName, c.db.Registry, nil)
}
