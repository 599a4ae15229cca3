package store

import (
	"time"

	"gorm.io/gorm"

	"github.com/NVIDIA/aistore-blobmeta/cmn"
)

// DeleteSnapshotsOption is the deleteBlob "deleteSnapshots" parameter of
// spec §4.4.
type DeleteSnapshotsOption string

const (
	DeleteSnapshotsNone    DeleteSnapshotsOption = ""
	DeleteSnapshotsInclude DeleteSnapshotsOption = "include"
	DeleteSnapshotsOnly    DeleteSnapshotsOption = "only"
)

func (t *txn) findBlob(account, container, name, snapshot string) (*Blob, error) {
	var b Blob
	err := t.tx.Where("account_name = ? AND container_name = ? AND blob_name = ? AND snapshot = ? AND deleting = 0",
		account, container, name, snapshot).Take(&b).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, newErr(t.requestID, KindBlobNotFound, "%s/%s/%s", account, container, name)
		}
		return nil, err
	}
	return &b, nil
}

// CreateBlob implements spec §4.4 createBlob: the container must exist;
// if a live blob of the same (name, snapshot) exists it is write-gated and
// rejected with BlobArchived if its access tier is Archive; otherwise the
// row is upserted.
func (s *Store) CreateBlob(requestID, account, container string, b *Blob, ac AccessConditions, now time.Time) (*Blob, error) {
	var out Blob
	err := s.withTx(requestID, func(t *txn) error {
		if _, err := t.checkContainerExist(account, container); err != nil {
			return err
		}

		existing, err := t.findBlob(account, container, b.Name, b.Snapshot)
		switch {
		case err == nil:
			lease := ProjectLease(existing.GetLease(), now)
			if err := CheckWriteGate(t.requestID, lease, ac); err != nil {
				return err
			}
			if existing.AccessTier == AccessTierArchive {
				return newErr(t.requestID, KindBlobArchived, "%s is archived", b.Name)
			}
			b.BlobID = existing.BlobID
			b.SetLease(CollapseIfExpiredOrBroken(lease))
		case KindOfIs(err, KindBlobNotFound):
			b.SetLease(AvailableLease())
		default:
			return err
		}

		b.AccountName, b.Container, b.Snapshot, b.Deleting = account, container, b.Snapshot, 0
		if b.CreationTime.IsZero() {
			b.CreationTime = now
		}
		b.LastModified = now
		b.ETag = cmn.GenUUID()
		if b.ContentProperties.Val.ContentLength == 0 && b.Persistency.Val != nil {
			cp := b.ContentProperties.Val
			cp.ContentLength = b.Persistency.Val.Count
			b.ContentProperties = NewJSONColumn(cp)
		}
		b.IsCommitted = true

		if err := t.tx.Save(b).Error; err != nil {
			return err
		}
		out = *b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// KindOfIs is a small convenience wrapper used where the caller already
// has an error and just needs a yes/no against one Kind.
func KindOfIs(err error, k Kind) bool {
	kind, ok := KindOf(err)
	return ok && kind == k
}

// GetBlobProperties / DownloadBlob implement spec §4.4: read-gated,
// BlobNotFound if no live committed row matches.
func (s *Store) GetBlobProperties(requestID, account, container, name, snapshot string, now time.Time, ac AccessConditions) (*Blob, error) {
	var out Blob
	err := s.withTx(requestID, func(t *txn) error {
		if _, err := t.checkContainerExist(account, container); err != nil {
			return err
		}
		b, err := t.findBlob(account, container, name, snapshot)
		if err != nil {
			return err
		}
		if !b.IsCommitted {
			return newErr(t.requestID, KindBlobNotFound, "%s not committed", name)
		}
		lease := ProjectLease(b.GetLease(), now)
		if err := CheckReadGate(t.requestID, lease, ac); err != nil {
			return err
		}
		b.SetLease(lease)
		out = *b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadBlob is an alias of GetBlobProperties: the spec describes them
// as sharing identical gating, differing only in which content upper
// layers stream after the metadata read returns.
func (s *Store) DownloadBlob(requestID, account, container, name, snapshot string, now time.Time, ac AccessConditions) (*Blob, error) {
	return s.GetBlobProperties(requestID, account, container, name, snapshot, now, ac)
}

// ListBlobs implements spec §4.4 listBlobs: filtered by name prefix or a
// blobName marker cursor, deleting=0, snapshots excluded unless asked
// for. Over-fetches by one row to detect a continuation.
func (s *Store) ListBlobs(requestID, account, container, prefix string, maxResults int, marker string, includeSnapshots bool) ([]Blob, string, error) {
	var out []Blob
	err := s.withTx(requestID, func(t *txn) error {
		if _, err := t.checkContainerExist(account, container); err != nil {
			return err
		}
		q := t.tx.Where("account_name = ? AND container_name = ? AND deleting = 0", account, container)
		if !includeSnapshots {
			q = q.Where("snapshot = ''")
		}
		if prefix != "" {
			q = q.Where("blob_name LIKE ?", prefix+"%")
		}
		if marker != "" {
			q = q.Where("blob_name > ?", marker)
		}
		return q.Order("blob_name ASC, snapshot ASC").Limit(maxResults + 1).Find(&out).Error
	})
	if err != nil {
		return nil, "", err
	}
	var cursor string
	if len(out) > maxResults {
		out = out[:maxResults]
		cursor = out[len(out)-1].Name
	}
	return out, cursor, nil
}

// ListAllBlobs implements spec §4.4 listAllBlobs: the account/container
// agnostic counterpart used by the referenced-extent iterator, paginated
// by surrogate blobId.
func (s *Store) ListAllBlobs(requestID string, maxResults int, marker int64) ([]Blob, int64, error) {
	var out []Blob
	err := s.withTx(requestID, func(t *txn) error {
		return t.tx.Where("blob_id > ? AND deleting = 0 AND is_committed = ?", marker, true).
			Order("blob_id ASC").Limit(maxResults).Find(&out).Error
	})
	if err != nil {
		return nil, 0, err
	}
	var cursor int64
	if len(out) == maxResults && maxResults > 0 {
		cursor = out[len(out)-1].BlobID
	}
	return out, cursor, nil
}

// SetBlobHTTPHeaders implements spec §4.4 setBlobHTTPHeaders: write-gated,
// replaces content properties, refreshes etag and lastModified.
func (s *Store) SetBlobHTTPHeaders(requestID, account, container, name, snapshot string, now time.Time, ac AccessConditions, cp ContentProperties) (*Blob, error) {
	var out Blob
	err := s.withTx(requestID, func(t *txn) error {
		if _, err := t.checkContainerExist(account, container); err != nil {
			return err
		}
		b, err := t.findBlob(account, container, name, snapshot)
		if err != nil {
			return err
		}
		lease := ProjectLease(b.GetLease(), now)
		if err := CheckWriteGate(t.requestID, lease, ac); err != nil {
			return err
		}
		b.ContentProperties = NewJSONColumn(cp)
		b.LastModified = now
		b.ETag = cmn.GenUUID()
		b.SetLease(CollapseIfExpiredOrBroken(lease))
		if err := t.tx.Save(b).Error; err != nil {
			return err
		}
		out = *b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SetBlobMetadata implements spec §4.4 setBlobMetadata: write-gated,
// refreshes metadata and lastModified, applies post-write lease collapse.
func (s *Store) SetBlobMetadata(requestID, account, container, name, snapshot string, now time.Time, ac AccessConditions, metadata Metadata) (*Blob, error) {
	var out Blob
	err := s.withTx(requestID, func(t *txn) error {
		if _, err := t.checkContainerExist(account, container); err != nil {
			return err
		}
		b, err := t.findBlob(account, container, name, snapshot)
		if err != nil {
			return err
		}
		lease := ProjectLease(b.GetLease(), now)
		if err := CheckWriteGate(t.requestID, lease, ac); err != nil {
			return err
		}
		b.Metadata = NewJSONColumn(metadata)
		b.LastModified = now
		b.ETag = cmn.GenUUID()
		b.SetLease(CollapseIfExpiredOrBroken(lease))
		if err := t.tx.Save(b).Error; err != nil {
			return err
		}
		out = *b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSnapshot implements spec §4.4 createSnapshot: read-gated, clones
// the live blob row with snapshot = now (ISO-8601) and cleared lease.
func (s *Store) CreateSnapshot(requestID, account, container, name string, now time.Time, ac AccessConditions) (*Blob, error) {
	var out Blob
	err := s.withTx(requestID, func(t *txn) error {
		if _, err := t.checkContainerExist(account, container); err != nil {
			return err
		}
		b, err := t.findBlob(account, container, name, "")
		if err != nil {
			return err
		}
		lease := ProjectLease(b.GetLease(), now)
		if err := CheckReadGate(t.requestID, lease, ac); err != nil {
			return err
		}

		snap := *b
		snap.BlobID = 0
		snap.Snapshot = now.UTC().Format(time.RFC3339Nano)
		snap.SetLease(AvailableLease())
		if err := t.tx.Create(&snap).Error; err != nil {
			return err
		}
		out = snap
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteBlob implements spec §4.4 deleteBlob: the container and the
// target (name, snapshot) must exist; the base blob is write-gated.
// Tombstoning is an atomic increment of deleting.
func (s *Store) DeleteBlob(requestID, account, container, name, snapshot string, now time.Time, ac AccessConditions, deleteSnapshots DeleteSnapshotsOption) error {
	return s.withTx(requestID, func(t *txn) error {
		if _, err := t.checkContainerExist(account, container); err != nil {
			return err
		}
		b, err := t.findBlob(account, container, name, snapshot)
		if err != nil {
			return err
		}

		isBase := snapshot == ""
		if isBase {
			lease := ProjectLease(b.GetLease(), now)
			if err := CheckWriteGate(t.requestID, lease, ac); err != nil {
				return err
			}
		} else if deleteSnapshots != DeleteSnapshotsNone {
			return newErr(t.requestID, KindInvalidOperation, "deleteSnapshots not allowed on a snapshot row")
		}

		if isBase {
			var snapCount int64
			if err := t.tx.Model(&Blob{}).
				Where("account_name = ? AND container_name = ? AND blob_name = ? AND snapshot <> '' AND deleting = 0", account, container, name).
				Count(&snapCount).Error; err != nil {
				return err
			}

			switch {
			case deleteSnapshots == DeleteSnapshotsNone && snapCount > 0:
				return newErr(t.requestID, KindSnapshotsPresent, "%s has %d snapshots", name, snapCount)
			case deleteSnapshots == DeleteSnapshotsInclude:
				if err := t.tombstoneBlobRow(b); err != nil {
					return err
				}
				if err := t.tx.Model(&Blob{}).
					Where("account_name = ? AND container_name = ? AND blob_name = ? AND snapshot <> '' AND deleting = 0", account, container, name).
					UpdateColumn("deleting", gorm.Expr("deleting + 1")).Error; err != nil {
					return err
				}
				return t.tombstoneBlocks(account, container, name)
			case deleteSnapshots == DeleteSnapshotsOnly:
				return t.tx.Model(&Blob{}).
					Where("account_name = ? AND container_name = ? AND blob_name = ? AND snapshot <> '' AND deleting = 0", account, container, name).
					UpdateColumn("deleting", gorm.Expr("deleting + 1")).Error
			default: // no snapshots present, nothing else to cascade
				if err := t.tombstoneBlobRow(b); err != nil {
					return err
				}
				return t.tombstoneBlocks(account, container, name)
			}
		}

		return t.tombstoneBlobRow(b)
	})
}

func (t *txn) tombstoneBlobRow(b *Blob) error {
	return t.tx.Model(b).UpdateColumn("deleting", gorm.Expr("deleting + 1")).Error
}

func (t *txn) tombstoneBlocks(account, container, name string) error {
	return t.tx.Model(&Block{}).
		Where("account_name = ? AND container_name = ? AND blob_name = ? AND deleting = 0", account, container, name).
		UpdateColumn("deleting", gorm.Expr("deleting + 1")).Error
}

// SetTier implements spec §4.4 setTier: only block blobs accept
// {Hot, Cool, Archive}; snapshots are rejected; Archive -> Hot/Cool
// reports HTTP 202, every other valid transition 200.
func (s *Store) SetTier(requestID, account, container, name string, now time.Time, ac AccessConditions, tier AccessTierType) (int, *Blob, error) {
	var out Blob
	var status int
	err := s.withTx(requestID, func(t *txn) error {
		if _, err := t.checkContainerExist(account, container); err != nil {
			return err
		}
		b, err := t.findBlob(account, container, name, "")
		if err != nil {
			return err
		}
		if b.Snapshot != "" {
			return newErr(t.requestID, KindBlobSnapshotsPresent, "cannot set tier on a snapshot")
		}
		if b.BlobType != BlobBlockBlob {
			return newErr(t.requestID, KindInvalidBlobType, "tier only applies to block blobs")
		}
		switch tier {
		case AccessTierHot, AccessTierCool, AccessTierArchive:
		default:
			return newErr(t.requestID, KindInvalidBlobType, "invalid tier %s", tier)
		}

		lease := ProjectLease(b.GetLease(), now)
		if err := CheckWriteGate(t.requestID, lease, ac); err != nil {
			return err
		}

		if b.AccessTier == AccessTierArchive && (tier == AccessTierHot || tier == AccessTierCool) {
			status = 202
		} else {
			status = 200
		}

		b.AccessTier = tier
		b.AccessTierInferred = false
		t2 := now
		b.AccessTierChangeTime = &t2
		b.SetLease(CollapseIfExpiredOrBroken(lease))
		if err := t.tx.Save(b).Error; err != nil {
			return err
		}
		out = *b
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return status, &out, nil
}

// AcquireBlobLease implements spec §4.4: identical to the container
// version save that a snapshot target is rejected with
// BlobSnapshotsPresent.
func (s *Store) AcquireBlobLease(requestID, account, container, name, snapshot string, now time.Time, duration int32, proposedID string) (Lease, error) {
	var out Lease
	err := s.withTx(requestID, func(t *txn) error {
		if _, err := t.checkContainerExist(account, container); err != nil {
			return err
		}
		b, err := t.findBlob(account, container, name, snapshot)
		if err != nil {
			return err
		}
		if b.Snapshot != "" {
			return newErr(t.requestID, KindBlobSnapshotsPresent, "cannot lease a snapshot")
		}
		lease, err := AcquireLease(t.requestID, ProjectLease(b.GetLease(), now), now, duration, proposedID)
		if err != nil {
			return err
		}
		b.SetLease(lease)
		if err := t.tx.Save(b).Error; err != nil {
			return err
		}
		out = lease
		return nil
	})
	return out, err
}

func (s *Store) RenewBlobLease(requestID, account, container, name, snapshot string, now time.Time, leaseID string) (Lease, error) {
	var out Lease
	err := s.withTx(requestID, func(t *txn) error {
		if _, err := t.checkContainerExist(account, container); err != nil {
			return err
		}
		b, err := t.findBlob(account, container, name, snapshot)
		if err != nil {
			return err
		}
		lease, err := RenewLease(t.requestID, ProjectLease(b.GetLease(), now), now, leaseID)
		if err != nil {
			return err
		}
		b.SetLease(lease)
		if err := t.tx.Save(b).Error; err != nil {
			return err
		}
		out = lease
		return nil
	})
	return out, err
}

func (s *Store) ChangeBlobLease(requestID, account, container, name, snapshot string, now time.Time, currentID, proposedID string) (Lease, error) {
	var out Lease
	err := s.withTx(requestID, func(t *txn) error {
		if _, err := t.checkContainerExist(account, container); err != nil {
			return err
		}
		b, err := t.findBlob(account, container, name, snapshot)
		if err != nil {
			return err
		}
		lease, err := ChangeLease(t.requestID, ProjectLease(b.GetLease(), now), currentID, proposedID)
		if err != nil {
			return err
		}
		b.SetLease(lease)
		if err := t.tx.Save(b).Error; err != nil {
			return err
		}
		out = lease
		return nil
	})
	return out, err
}

func (s *Store) ReleaseBlobLease(requestID, account, container, name, snapshot string, now time.Time, leaseID string) error {
	return s.withTx(requestID, func(t *txn) error {
		if _, err := t.checkContainerExist(account, container); err != nil {
			return err
		}
		b, err := t.findBlob(account, container, name, snapshot)
		if err != nil {
			return err
		}
		lease, err := ReleaseLease(t.requestID, ProjectLease(b.GetLease(), now), leaseID)
		if err != nil {
			return err
		}
		b.SetLease(lease)
		return t.tx.Save(b).Error
	})
}

func (s *Store) BreakBlobLease(requestID, account, container, name, snapshot string, now time.Time, breakPeriod *int32) (Lease, int64, error) {
	var outLease Lease
	var outTime int64
	err := s.withTx(requestID, func(t *txn) error {
		if _, err := t.checkContainerExist(account, container); err != nil {
			return err
		}
		b, err := t.findBlob(account, container, name, snapshot)
		if err != nil {
			return err
		}
		lease, leaseTime, err := BreakLease(t.requestID, ProjectLease(b.GetLease(), now), now, breakPeriod)
		if err != nil {
			return err
		}
		b.SetLease(lease)
		if err := t.tx.Save(b).Error; err != nil {
			return err
		}
		outLease, outTime = lease, leaseTime
		return nil
	})
	return outLease, outTime, err
}

// GetBlobType implements spec §4.4 getBlobType: a pure lookup.
func (s *Store) GetBlobType(requestID, account, container, name, snapshot string) (BlobType, bool, error) {
	var b Blob
	err := s.withTx(requestID, func(t *txn) error {
		row, err := t.findBlob(account, container, name, snapshot)
		if err != nil {
			return err
		}
		b = *row
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return b.BlobType, b.IsCommitted, nil
}
