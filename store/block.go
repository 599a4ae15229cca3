package store

import (
	"time"

	"gorm.io/gorm"

	"github.com/NVIDIA/aistore-blobmeta/cmn"
)

// BlockListType names which list a commitBlockList entry is drawn from,
// per spec §4.5.
type BlockListType string

const (
	BlockListUncommitted BlockListType = "Uncommitted"
	BlockListCommitted   BlockListType = "Committed"
	BlockListLatest      BlockListType = "Latest"
)

// BlockListEntry is one element of the caller-supplied commit list.
type BlockListEntry struct {
	BlockName string
	Type      BlockListType
}

// StageBlock implements spec §4.5 stageBlock: upsert by
// (account, container, blob, blockName).
func (s *Store) StageBlock(requestID, account, container, blob, blockName string, size int64, p PersistencyChunk) (*Block, error) {
	var out Block
	err := s.withTx(requestID, func(t *txn) error {
		if _, err := t.checkContainerExist(account, container); err != nil {
			return err
		}
		var existing Block
		err := t.tx.Where("account_name = ? AND container_name = ? AND blob_name = ? AND block_name = ? AND deleting = 0",
			account, container, blob, blockName).Take(&existing).Error
		switch err {
		case nil:
			existing.Size = size
			existing.Persistency = NewJSONColumn(p)
			if err := t.tx.Save(&existing).Error; err != nil {
				return err
			}
			out = existing
		case gorm.ErrRecordNotFound:
			out = Block{
				AccountName: account,
				Container:   container,
				BlobName:    blob,
				BlockName:   blockName,
				Size:        size,
				Persistency: NewJSONColumn(p),
			}
			if err := t.tx.Create(&out).Error; err != nil {
				return err
			}
		default:
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// BlockList is the return value of GetBlockList.
type BlockList struct {
	Committed   []BlockRef
	Uncommitted []Block
}

// GetBlockList implements spec §4.5 getBlockList: committed blocks come
// from the live blob's committedBlocksInOrder (read-gated); uncommitted
// blocks come from staged rows, ordered by insertion id.
func (s *Store) GetBlockList(requestID, account, container, blob string, now time.Time, ac AccessConditions, wantCommitted, wantUncommitted bool) (*BlockList, error) {
	var out BlockList
	err := s.withTx(requestID, func(t *txn) error {
		if _, err := t.checkContainerExist(account, container); err != nil {
			return err
		}
		if wantCommitted {
			b, err := t.findBlob(account, container, blob, "")
			if err != nil && !KindOfIs(err, KindBlobNotFound) {
				return err
			}
			if err == nil {
				lease := ProjectLease(b.GetLease(), now)
				if err := CheckReadGate(t.requestID, lease, ac); err != nil {
					return err
				}
				out.Committed = b.CommittedBlocksInOrder.Val
			}
		}
		if wantUncommitted {
			var blocks []Block
			if err := t.tx.Where("account_name = ? AND container_name = ? AND blob_name = ? AND deleting = 0",
				account, container, blob).Order("id ASC").Find(&blocks).Error; err != nil {
				return err
			}
			out.Uncommitted = blocks
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CommitBlockList implements spec §4.5 commitBlockList: builds the new
// committed sequence from a mix of previously-committed and
// newly-staged blocks, upserts the live blob row, and tombstones every
// staged block for the blob.
func (s *Store) CommitBlockList(requestID, account, container, blobName string, now time.Time, ac AccessConditions, entries []BlockListEntry) (*Blob, error) {
	var out Blob
	err := s.withTx(requestID, func(t *txn) error {
		if _, err := t.checkContainerExist(account, container); err != nil {
			return err
		}

		existing, err := t.findBlob(account, container, blobName, "")
		pCommitted := map[string]BlockRef{}
		var lease Lease
		var b Blob
		switch {
		case err == nil:
			lease = ProjectLease(existing.GetLease(), now)
			if err := CheckWriteGate(t.requestID, lease, ac); err != nil {
				return err
			}
			for _, r := range existing.CommittedBlocksInOrder.Val {
				pCommitted[r.Name] = r
			}
			b = *existing
		case KindOfIs(err, KindBlobNotFound):
			lease = AvailableLease()
			b = Blob{AccountName: account, Container: container, Name: blobName}
		default:
			return err
		}

		var staged []Block
		if err := t.tx.Where("account_name = ? AND container_name = ? AND blob_name = ? AND deleting = 0",
			account, container, blobName).Find(&staged).Error; err != nil {
			return err
		}
		pUncommitted := map[string]Block{}
		for _, blk := range staged {
			pUncommitted[blk.BlockName] = blk
		}

		selected := make([]BlockRef, 0, len(entries))
		var total int64
		for _, e := range entries {
			var ref BlockRef
			switch e.Type {
			case BlockListUncommitted:
				blk, ok := pUncommitted[e.BlockName]
				if !ok {
					return newErr(t.requestID, KindInvalidOperation, "uncommitted block %q not staged", e.BlockName)
				}
				ref = BlockRef{Name: blk.BlockName, Size: blk.Size, Persistency: blk.Persistency.Val}
			case BlockListCommitted:
				r, ok := pCommitted[e.BlockName]
				if !ok {
					return newErr(t.requestID, KindInvalidOperation, "committed block %q not found", e.BlockName)
				}
				ref = r
			case BlockListLatest:
				if blk, ok := pUncommitted[e.BlockName]; ok {
					ref = BlockRef{Name: blk.BlockName, Size: blk.Size, Persistency: blk.Persistency.Val}
				} else if r, ok := pCommitted[e.BlockName]; ok {
					ref = r
				} else {
					return newErr(t.requestID, KindInvalidOperation, "block %q not found in either list", e.BlockName)
				}
			default:
				return newErr(t.requestID, KindInvalidOperation, "unrecognized block list type %q", e.Type)
			}
			selected = append(selected, ref)
			total += ref.Size
		}

		if b.CreationTime.IsZero() {
			b.CreationTime = now
		}
		b.BlobType = BlobBlockBlob
		b.IsCommitted = true
		b.LastModified = now
		b.ETag = cmn.GenUUID()
		b.CommittedBlocksInOrder = NewJSONColumn(selected)
		cp := b.ContentProperties.Val
		cp.ContentLength = total
		b.ContentProperties = NewJSONColumn(cp)
		b.SetLease(CollapseIfExpiredOrBroken(lease))

		if err := t.tx.Save(&b).Error; err != nil {
			return err
		}

		if err := t.tx.Model(&Block{}).
			Where("account_name = ? AND container_name = ? AND blob_name = ? AND deleting = 0", account, container, blobName).
			UpdateColumn("deleting", gorm.Expr("deleting + 1")).Error; err != nil {
			return err
		}

		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
