package store

import (
	"time"

	"gorm.io/gorm"

	"github.com/NVIDIA/aistore-blobmeta/cmn"
)

// ListContainers implements spec §4.3 listContainers: containers for
// account filtered by a containerName prefix and containerId > marker,
// ordered ascending, limited to maxResults. The returned cursor is the
// last containerId returned, or 0 if fewer than maxResults came back.
func (s *Store) ListContainers(requestID, account, prefix string, maxResults int, marker int64) ([]Container, int64, error) {
	var out []Container
	err := s.withTx(requestID, func(t *txn) error {
		q := t.tx.Where("account_name = ? AND container_id > ?", account, marker)
		if prefix != "" {
			q = q.Where("container_name LIKE ?", prefix+"%")
		}
		return q.Order("container_id ASC").Limit(maxResults).Find(&out).Error
	})
	if err != nil {
		return nil, 0, err
	}
	var cursor int64
	if len(out) == maxResults && maxResults > 0 {
		cursor = out[len(out)-1].ContainerID
	}
	return out, cursor, nil
}

// CreateContainer implements spec §4.3 createContainer: insert; a unique
// violation on (accountName, containerName) is translated by
// wrapBackingStoreErr to ContainerAlreadyExists.
func (s *Store) CreateContainer(requestID string, c *Container) (*Container, error) {
	if c.LeaseJSON.Val == (Lease{}) {
		c.SetLease(AvailableLease())
	}
	err := s.withTx(requestID, func(t *txn) error {
		return t.tx.Create(c).Error
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetContainerProperties implements spec §4.3 getContainerProperties:
// read-gated, lease projected against now.
func (s *Store) GetContainerProperties(requestID, account, name string, now time.Time, ac AccessConditions) (*Container, error) {
	var out Container
	err := s.withTx(requestID, func(t *txn) error {
		c, err := t.checkContainerExist(account, name)
		if err != nil {
			return err
		}
		lease := ProjectLease(c.GetLease(), now)
		if err := CheckReadGate(t.requestID, lease, ac); err != nil {
			return err
		}
		c.SetLease(lease)
		out = *c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetContainerACL implements spec §4.3 getContainerACL: identical gating
// to GetContainerProperties.
func (s *Store) GetContainerACL(requestID, account, name string, now time.Time, ac AccessConditions) ([]SignedIdentifier, error) {
	c, err := s.GetContainerProperties(requestID, account, name, now, ac)
	if err != nil {
		return nil, err
	}
	return c.ACL.Val, nil
}

// SetContainerMetadata implements spec §4.3 setContainerMetadata:
// write-gated, refreshes etag and lastModified.
func (s *Store) SetContainerMetadata(requestID, account, name string, now time.Time, ac AccessConditions, metadata Metadata) (*Container, error) {
	var out Container
	err := s.withTx(requestID, func(t *txn) error {
		c, err := t.checkContainerExist(account, name)
		if err != nil {
			return err
		}
		lease := ProjectLease(c.GetLease(), now)
		if err := CheckWriteGate(t.requestID, lease, ac); err != nil {
			return err
		}
		c.Metadata = NewJSONColumn(metadata)
		c.LastModified = now
		c.ETag = cmn.GenUUID()
		c.SetLease(lease)
		if err := t.tx.Save(c).Error; err != nil {
			return err
		}
		out = *c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SetContainerACL implements spec §4.3 setContainerACL: write-gated,
// updates ACL and public-access mode atomically, refreshes etag and
// lastModified.
func (s *Store) SetContainerACL(requestID, account, name string, now time.Time, ac AccessConditions, acl []SignedIdentifier, publicAccess PublicAccessType) (*Container, error) {
	var out Container
	err := s.withTx(requestID, func(t *txn) error {
		c, err := t.checkContainerExist(account, name)
		if err != nil {
			return err
		}
		lease := ProjectLease(c.GetLease(), now)
		if err := CheckWriteGate(t.requestID, lease, ac); err != nil {
			return err
		}
		c.ACL = NewJSONColumn(acl)
		c.PublicAccess = NewJSONColumn(publicAccess)
		c.LastModified = now
		c.ETag = cmn.GenUUID()
		c.SetLease(lease)
		if err := t.tx.Save(c).Error; err != nil {
			return err
		}
		out = *c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteContainer implements spec §4.3 deleteContainer: delete-gated,
// removes the container row and tombstones (bumps the deleting counter
// of) every child blob and block row. External GC physically removes
// tombstoned rows later.
func (s *Store) DeleteContainer(requestID, account, name string, now time.Time, ac AccessConditions) error {
	return s.withTx(requestID, func(t *txn) error {
		c, err := t.checkContainerExist(account, name)
		if err != nil {
			return err
		}
		lease := ProjectLease(c.GetLease(), now)
		if err := CheckWriteGate(t.requestID, lease, ac); err != nil {
			return err
		}
		if err := t.tx.Model(&Blob{}).
			Where("account_name = ? AND container_name = ? AND deleting = 0", account, name).
			UpdateColumn("deleting", gorm.Expr("deleting + 1")).Error; err != nil {
			return err
		}
		if err := t.tx.Model(&Block{}).
			Where("account_name = ? AND container_name = ? AND deleting = 0", account, name).
			UpdateColumn("deleting", gorm.Expr("deleting + 1")).Error; err != nil {
			return err
		}
		return t.tx.Delete(c).Error
	})
}

// AcquireContainerLease, RenewContainerLease, ChangeContainerLease,
// ReleaseContainerLease, and BreakContainerLease all follow the same
// shape: project, transition via lease.go, persist, return the new lease.

func (s *Store) AcquireContainerLease(requestID, account, name string, now time.Time, duration int32, proposedID string) (Lease, error) {
	var out Lease
	err := s.withTx(requestID, func(t *txn) error {
		c, err := t.checkContainerExist(account, name)
		if err != nil {
			return err
		}
		lease, err := AcquireLease(t.requestID, ProjectLease(c.GetLease(), now), now, duration, proposedID)
		if err != nil {
			return err
		}
		c.SetLease(lease)
		if err := t.tx.Save(c).Error; err != nil {
			return err
		}
		out = lease
		return nil
	})
	return out, err
}

func (s *Store) RenewContainerLease(requestID, account, name string, now time.Time, leaseID string) (Lease, error) {
	var out Lease
	err := s.withTx(requestID, func(t *txn) error {
		c, err := t.checkContainerExist(account, name)
		if err != nil {
			return err
		}
		lease, err := RenewLease(t.requestID, ProjectLease(c.GetLease(), now), now, leaseID)
		if err != nil {
			return err
		}
		c.SetLease(lease)
		if err := t.tx.Save(c).Error; err != nil {
			return err
		}
		out = lease
		return nil
	})
	return out, err
}

func (s *Store) ChangeContainerLease(requestID, account, name string, now time.Time, currentID, proposedID string) (Lease, error) {
	var out Lease
	err := s.withTx(requestID, func(t *txn) error {
		c, err := t.checkContainerExist(account, name)
		if err != nil {
			return err
		}
		lease, err := ChangeLease(t.requestID, ProjectLease(c.GetLease(), now), currentID, proposedID)
		if err != nil {
			return err
		}
		c.SetLease(lease)
		if err := t.tx.Save(c).Error; err != nil {
			return err
		}
		out = lease
		return nil
	})
	return out, err
}

func (s *Store) ReleaseContainerLease(requestID, account, name string, now time.Time, leaseID string) error {
	return s.withTx(requestID, func(t *txn) error {
		c, err := t.checkContainerExist(account, name)
		if err != nil {
			return err
		}
		lease, err := ReleaseLease(t.requestID, ProjectLease(c.GetLease(), now), leaseID)
		if err != nil {
			return err
		}
		c.SetLease(lease)
		return t.tx.Save(c).Error
	})
}

func (s *Store) BreakContainerLease(requestID, account, name string, now time.Time, breakPeriod *int32) (Lease, int64, error) {
	var outLease Lease
	var outTime int64
	err := s.withTx(requestID, func(t *txn) error {
		c, err := t.checkContainerExist(account, name)
		if err != nil {
			return err
		}
		lease, leaseTime, err := BreakLease(t.requestID, ProjectLease(c.GetLease(), now), now, breakPeriod)
		if err != nil {
			return err
		}
		c.SetLease(lease)
		if err := t.tx.Save(c).Error; err != nil {
			return err
		}
		outLease, outTime = lease, leaseTime
		return nil
	})
	return outLease, outTime, err
}

// CheckContainerExist implements spec §4.3 checkContainerExist: a bare
// existence probe, surfacing ContainerNotFound on miss.
func (s *Store) CheckContainerExist(requestID, account, name string) (*Container, error) {
	var out Container
	err := s.withTx(requestID, func(t *txn) error {
		c, err := t.checkContainerExist(account, name)
		if err != nil {
			return err
		}
		out = *c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
