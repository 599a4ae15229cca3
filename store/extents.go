package store

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// ExtentIterator implements spec §4.6 "Referenced-extent iterator": a
// lazy, finite, single-pass enumeration of every opaque persistence chunk
// reachable from live metadata, fed to an external garbage collector.
// Traversal order: committed blobs (single-shot persistency field, then
// every committedBlocksInOrder entry), then uncommitted blocks with
// deleting = 0. Concurrent mutation during iteration is not prevented;
// the external GC must re-check liveness before deleting anything this
// yields.
type ExtentIterator struct {
	store    *Store
	pageSize int

	group singleflight.Group

	phase      int // 0 = blobs, 1 = blocks, 2 = done
	blobMarker int64
	blockMarker uint64
	buf        []PersistencyChunk
}

// NewExtentIterator constructs an iterator with the given page size
// (spec default 2000, see cmn.DefaultExtentPageSize).
func NewExtentIterator(s *Store, pageSize int) *ExtentIterator {
	if pageSize <= 0 {
		pageSize = 2000
	}
	return &ExtentIterator{store: s, pageSize: pageSize}
}

// Next returns the next batch of chunk references, or (nil, false) once
// every live chunk has been yielded. Each call that would re-fetch the
// same page (same phase+marker, e.g. a retried caller) is deduplicated
// via singleflight so concurrent callers driving the same iterator don't
// double-scan a page.
func (it *ExtentIterator) Next(ctx context.Context) ([]PersistencyChunk, bool, error) {
	for len(it.buf) == 0 && it.phase < 2 {
		if err := it.fillPage(ctx); err != nil {
			return nil, false, err
		}
	}
	if len(it.buf) == 0 {
		return nil, false, nil
	}
	out := it.buf
	it.buf = nil
	return out, true, nil
}

func (it *ExtentIterator) fillPage(ctx context.Context) error {
	switch it.phase {
	case 0:
		key := fmt.Sprintf("blobs:%d", it.blobMarker)
		v, err, _ := it.group.Do(key, func() (interface{}, error) {
			return it.fetchBlobPage()
		})
		if err != nil {
			return err
		}
		page := v.(blobPage)
		it.buf = page.chunks
		if page.next == it.blobMarker {
			it.phase = 1
		} else {
			it.blobMarker = page.next
		}
		return nil
	case 1:
		key := fmt.Sprintf("blocks:%d", it.blockMarker)
		v, err, _ := it.group.Do(key, func() (interface{}, error) {
			return it.fetchBlockPage()
		})
		if err != nil {
			return err
		}
		page := v.(blockPage)
		it.buf = page.chunks
		if page.next == it.blockMarker {
			it.phase = 2
		} else {
			it.blockMarker = page.next
		}
		return nil
	}
	return nil
}

type blobPage struct {
	chunks []PersistencyChunk
	next   int64
}

type blockPage struct {
	chunks []PersistencyChunk
	next   uint64
}

func (it *ExtentIterator) fetchBlobPage() (interface{}, error) {
	blobs, cursor, err := it.store.ListAllBlobs("", it.pageSize, it.blobMarker)
	if err != nil {
		return nil, err
	}
	var chunks []PersistencyChunk
	for _, b := range blobs {
		if b.Persistency.Val != nil {
			chunks = append(chunks, *b.Persistency.Val)
		}
		for _, ref := range b.CommittedBlocksInOrder.Val {
			chunks = append(chunks, ref.Persistency)
		}
	}
	if cursor == 0 {
		// no full page returned: mark end-of-phase by echoing the marker.
		return blobPage{chunks: chunks, next: it.blobMarker}, nil
	}
	return blobPage{chunks: chunks, next: cursor}, nil
}

func (it *ExtentIterator) fetchBlockPage() (interface{}, error) {
	var blocks []Block
	err := it.store.withTx("", func(t *txn) error {
		return t.tx.Where("deleting = 0 AND id > ?", it.blockMarker).
			Order("id ASC").Limit(it.pageSize).Find(&blocks).Error
	})
	if err != nil {
		return nil, err
	}
	chunks := make([]PersistencyChunk, 0, len(blocks))
	var next uint64
	for _, blk := range blocks {
		chunks = append(chunks, blk.Persistency.Val)
		next = blk.ID
	}
	if len(blocks) < it.pageSize {
		next = it.blockMarker
	}
	return blockPage{chunks: chunks, next: next}, nil
}
