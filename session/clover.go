package session

import (
	"os"
	"sync"
	"time"

	"github.com/ostafen/clover"

	"github.com/saiset-co/servicehub-client/types"
	"github.com/saiset-co/servicehub-client/utils"
)

const sessionCollection = "session"

// CloverStore keeps the session as the single document of a clover
// collection.
type CloverStore struct {
	mu sync.Mutex
	db *clover.DB
}

func NewCloverStore(config *types.SessionConfig) (types.SessionStore, error) {
	if config == nil || config.Path == "" {
		return nil, types.Errorf(types.ErrSessionOpenFailed, "clover session store needs a path")
	}

	if err := os.MkdirAll(config.Path, 0o700); err != nil {
		return nil, types.Errorf(types.ErrSessionOpenFailed, "create %s: %v", config.Path, err)
	}

	db, err := clover.Open(config.Path)
	if err != nil {
		return nil, types.Errorf(types.ErrSessionOpenFailed, "open clover at %s: %v", config.Path, err)
	}

	exists, err := db.HasCollection(sessionCollection)
	if err != nil {
		_ = db.Close()
		return nil, types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		if err := db.CreateCollection(sessionCollection); err != nil {
			_ = db.Close()
			return nil, types.WrapError(err, "failed to create collection")
		}
	}

	return &CloverStore{db: db}, nil
}

func (c *CloverStore) Save(session types.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.db.Query(sessionCollection).Delete(); err != nil {
		return types.WrapError(err, "failed to replace session document")
	}

	doc := clover.NewDocument()
	doc.Set("token", session.Token)
	doc.Set("email", session.Email)
	doc.Set("name", session.Name)
	doc.Set("role", session.Role)
	doc.Set("user_id", session.UserID)
	doc.Set("branch", session.Branch)
	doc.Set("ch_time", time.Now().UnixNano())

	if err := c.db.Insert(sessionCollection, doc); err != nil {
		return types.WrapError(err, "failed to insert session document")
	}

	return nil
}

func (c *CloverStore) Load() (types.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	docs, err := c.db.Query(sessionCollection).FindAll()
	if err != nil {
		return types.Session{}, types.WrapError(err, "failed to find session document")
	}

	if len(docs) == 0 {
		return types.Session{}, nil
	}

	docMap := make(map[string]interface{})
	if err := docs[0].Unmarshal(&docMap); err != nil {
		return types.Session{}, types.Errorf(types.ErrSessionCorrupted, "%v", err)
	}
	delete(docMap, "_id")
	delete(docMap, "ch_time")

	var session types.Session
	if err := utils.UnmarshalConfig(docMap, &session); err != nil {
		return types.Session{}, types.Errorf(types.ErrSessionCorrupted, "%v", err)
	}

	return session, nil
}

func (c *CloverStore) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.db.Query(sessionCollection).Delete(); err != nil {
		return types.WrapError(err, "failed to delete session document")
	}
	return nil
}

func (c *CloverStore) Close() error {
	if err := c.db.Close(); err != nil {
		return types.WrapError(err, "failed to close CloverDB")
	}
	return nil
}
