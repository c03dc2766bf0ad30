package mirror

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"net/url"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/storage"
	lutil "github.com/syndtr/goleveldb/leveldb/util"
)

type gobDB struct {
	*leveldb.DB
}

// The crawl state only lives as long as the process, so it is kept in
// a memory-backed database.
func newMemDB() (*gobDB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &gobDB{db}, nil
}

func (db *gobDB) PutObjBatch(wb *leveldb.Batch, key []byte, obj interface{}) error {
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(obj); err != nil {
		return err
	}
	wb.Put(key, b.Bytes())
	return nil
}

func (db *gobDB) NewPrefixIterator(prefix []byte) *gobIterator {
	return &gobIterator{db.NewIterator(lutil.BytesPrefix(prefix), nil)}
}

type gobIterator struct {
	iterator.Iterator
}

func (i *gobIterator) Value(obj interface{}) error {
	return gob.NewDecoder(bytes.NewReader(i.Iterator.Value())).Decode(obj)
}

var (
	queuePrefix = []byte("queue/")
	seenPrefix  = []byte("_seen/")
)

type queueEntry struct {
	URL string
}

// queue is the crawl frontier together with the set of URLs that were
// ever added to it. Entries come out in the order they went in.
type queue struct {
	db *gobDB

	mx      sync.Mutex
	seq     uint64
	pending int
	seen    int
}

func newQueue(db *gobDB) *queue {
	return &queue{db: db}
}

// URLs are seen by their canonical form, but queued as given.
func seenKey(u *url.URL) []byte {
	return append(append([]byte{}, seenPrefix...), normalizeURL(u).String()...)
}

func queueKey(seq uint64) []byte {
	key := make([]byte, len(queuePrefix)+8)
	copy(key, queuePrefix)
	binary.BigEndian.PutUint64(key[len(queuePrefix):], seq)
	return key
}

// Add marks u as seen and appends it to the queue, unless it was seen
// before in any form that normalizes the same. The check and the insertion are a single atomic step, so of
// two concurrent calls with the same URL exactly one returns true.
func (q *queue) Add(u *url.URL) (bool, error) {
	key := seenKey(u)

	q.mx.Lock()
	defer q.mx.Unlock()

	seen, err := q.db.Has(key, nil)
	if err != nil {
		return false, err
	}
	if seen {
		return false, nil
	}

	wb := new(leveldb.Batch)
	if err := q.db.PutObjBatch(wb, queueKey(q.seq+1), &queueEntry{URL: u.String()}); err != nil {
		return false, err
	}
	wb.Put(key, []byte{})
	if err := q.db.Write(wb, nil); err != nil {
		return false, err
	}
	q.seq++
	q.pending++
	q.seen++
	return true, nil
}

// Pop removes the oldest entry from the queue. It returns false when
// the queue is empty.
func (q *queue) Pop() (*url.URL, bool, error) {
	q.mx.Lock()
	defer q.mx.Unlock()

	if q.pending == 0 {
		return nil, false, nil
	}

	iter := q.db.NewPrefixIterator(queuePrefix)
	defer iter.Release()
	if !iter.First() {
		if err := iter.Error(); err != nil {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("queue: %d entries pending but none found", q.pending)
	}
	var e queueEntry
	if err := iter.Value(&e); err != nil {
		return nil, false, err
	}
	if err := q.db.Delete(append([]byte{}, iter.Key()...), nil); err != nil {
		return nil, false, err
	}
	q.pending--

	u, err := url.Parse(e.URL)
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

// HasSeen tells whether u was ever added.
func (q *queue) HasSeen(u *url.URL) bool {
	ok, err := q.db.Has(seenKey(u), nil)
	return err == nil && ok
}

// Len returns the number of entries waiting in the queue.
func (q *queue) Len() int {
	q.mx.Lock()
	defer q.mx.Unlock()
	return q.pending
}

// Seen returns the number of distinct URLs ever added.
func (q *queue) Seen() int {
	q.mx.Lock()
	defer q.mx.Unlock()
	return q.seen
}
