package importer

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-memdb"
)

const sessionTable = "session"

// Store keeps the sessions of running wizards, indexed by id and by work folder.
type Store struct {
	db *memdb.MemDB
}

// NewStore returns an empty Store.
func NewStore() (*Store, error) {
	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			sessionTable: {
				Name: sessionTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					"work_folder": {
						Name:    "work_folder",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "WorkFolder"},
					},
				},
			},
		},
	}
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Create adds a session.
func (st *Store) Create(s *Session) error {
	txn := st.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(sessionTable, "work_folder", s.WorkFolder)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrWorkFolderInUse, s.WorkFolder)
	}
	if err := txn.Insert(sessionTable, s); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// Get returns the session with the given id.
func (st *Store) Get(id string) (*Session, error) {
	return st.first("id", id)
}

func (st *Store) first(index, value string) (*Session, error) {
	txn := st.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(sessionTable, index, value)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrSessionNotFound
	}
	return raw.(*Session), nil
}

// List returns every session.
func (st *Store) List() ([]*Session, error) {
	txn := st.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(sessionTable, "id")
	if err != nil {
		return nil, err
	}
	var sessions []*Session
	for raw := it.Next(); raw != nil; raw = it.Next() {
		sessions = append(sessions, raw.(*Session))
	}
	return sessions, nil
}

// Delete removes a session and stops its pending lookups.
func (st *Store) Delete(id string) (*Session, error) {
	txn := st.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(sessionTable, "id", id)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrSessionNotFound
	}
	if err := txn.Delete(sessionTable, raw); err != nil {
		return nil, err
	}
	txn.Commit()

	s := raw.(*Session)
	s.Close()
	return s, nil
}

// Prune deletes the sessions created before deadline and returns them.
func (st *Store) Prune(deadline time.Time) ([]*Session, error) {
	sessions, err := st.List()
	if err != nil {
		return nil, err
	}
	var pruned []*Session
	for _, s := range sessions {
		if !s.CreatedAt.Before(deadline) {
			continue
		}
		if _, err := st.Delete(s.ID); err != nil && err != ErrSessionNotFound {
			return pruned, err
		}
		pruned = append(pruned, s)
	}
	return pruned, nil
}
