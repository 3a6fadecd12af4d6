// Package journal persists completed merges in a badger key-value store so
// services built on the forge can pick up the commit each merge produced.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/odvcencio/forgevcs/pkg/merge"
	"github.com/odvcencio/forgevcs/pkg/object"
)

const keyPrefix = "merge:"

var ErrInvalidProject = errors.New("journal: project id must not contain ':'")

// Entry is the stored form of a merge.Record.
type Entry struct {
	OperationID  string         `json:"operationId"`
	Project      string         `json:"project"`
	Source       string         `json:"source"`
	Target       string         `json:"target"`
	Strategy     merge.Strategy `json:"strategy"`
	Commit       object.Hash    `json:"commit"`
	PreviousHead object.Hash    `json:"previousHead"`
	Replayed     int            `json:"replayed,omitempty"`
	At           time.Time      `json:"at"`
}

// Journal is a merge.Recorder backed by badger.
type Journal struct {
	db     *badger.DB
	logger *zap.Logger
}

var _ merge.Recorder = (*Journal)(nil)

// Open opens the journal stored in dir, creating it if needed. An empty dir
// keeps the journal in memory.
func Open(dir string, logger *zap.Logger) (*Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{db: db, logger: logger}, nil
}

// Close flushes and closes the store.
func (j *Journal) Close() error {
	return j.db.Close()
}

func entryKey(project string, at time.Time, opID string) []byte {
	// Zero padding keeps byte order equal to time order.
	return []byte(fmt.Sprintf("%s%s:%020d:%s", keyPrefix, project, at.UnixNano(), opID))
}

// Record stores rec. It implements merge.Recorder.
func (j *Journal) Record(ctx context.Context, rec merge.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.Contains(rec.Project, ":") {
		return fmt.Errorf("%w: %q", ErrInvalidProject, rec.Project)
	}
	if rec.OperationID == "" {
		return fmt.Errorf("journal: record without operation id")
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	data, err := json.Marshal(Entry(rec))
	if err != nil {
		return fmt.Errorf("journal: marshal: %w", err)
	}

	key := entryKey(rec.Project, rec.At, rec.OperationID)
	if err := j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	}); err != nil {
		return fmt.Errorf("journal: write %s: %w", rec.OperationID, err)
	}
	j.logger.Debug("merge journaled",
		zap.String("project", rec.Project),
		zap.String("operation_id", rec.OperationID),
		zap.String("commit", string(rec.Commit)),
	)
	return nil
}

// List returns up to limit entries of project, newest first. An empty
// project lists every project; limit <= 0 means no limit.
func (j *Journal) List(project string, limit int) ([]Entry, error) {
	if strings.Contains(project, ":") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProject, project)
	}
	prefix := []byte(keyPrefix)
	if project != "" {
		prefix = []byte(keyPrefix + project + ":")
	}

	var out []Entry
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var e Entry
			if err := json.Unmarshal(val, &e); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, e)
			if project != "" && limit > 0 && len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}

	if project == "" {
		// Keys only order by time within one project.
		sort.SliceStable(out, func(a, b int) bool { return out[a].At.After(out[b].At) })
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
	}
	return out, nil
}
