package store

import (
	"fmt"
	"sync/atomic"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/NVIDIA/aistore-blobmeta/cmn"
)

var testDBCounter int64

func newTestStore() *Store {
	n := atomic.AddInt64(&testDBCounter, 1)
	cfg := &cmn.DBConfig{
		Dialect: cmn.DialectSQLite,
		Name:    fmt.Sprintf("file:blobmeta_test_%d?mode=memory&cache=shared", n),
		// keep an idle connection open: a shared in-memory sqlite database
		// is dropped when its last connection closes.
		MaxIdleConns: cmn.DefaultMaxIdleConns,
	}
	s, err := New(cfg, nil)
	Expect(err).NotTo(HaveOccurred())
	return s
}

var _ = Describe("container and blob lease scenarios", func() {
	var (
		s         *Store
		account   = "acct"
		container = "c"
	)

	BeforeEach(func() {
		s = newTestStore()
		_, err := s.CreateContainer("", &Container{AccountName: account, Name: container})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(s.Close()).To(Succeed())
	})

	// S1: Acquire, renew, release fixed lease on a blob.
	It("acquires, renews, and releases a fixed blob lease", func() {
		_, err := s.CreateBlob("", account, container, &Blob{Name: "b", BlobType: BlobBlockBlob}, AccessConditions{}, at(0))
		Expect(err).NotTo(HaveOccurred())

		lease, err := s.AcquireBlobLease(account, account, container, "b", "", at(0), 30, "L1")
		Expect(err).NotTo(HaveOccurred())
		Expect(lease.LeaseID).To(Equal("L1"))
		Expect(lease.LeaseState).To(Equal(LeaseStateLeased))

		lease, err = s.RenewBlobLease(account, account, container, "b", "", at(20), "L1")
		Expect(err).NotTo(HaveOccurred())
		Expect(*lease.LeaseExpireTime).To(BeTemporally("==", at(50)))

		err = s.ReleaseBlobLease(account, account, container, "b", "", at(25), "L1")
		Expect(err).NotTo(HaveOccurred())

		b, err := s.GetBlobProperties(account, account, container, "b", "", at(25), AccessConditions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(b.LeaseState).To(Equal(LeaseStateAvailable))
		Expect(b.LeaseID).To(BeEmpty())
	})

	// S2: Expired lease is observable on next read, then collapses on write.
	It("observes an expired lease and collapses it on the next write", func() {
		_, err := s.CreateBlob("", account, container, &Blob{Name: "b", BlobType: BlobBlockBlob}, AccessConditions{}, at(0))
		Expect(err).NotTo(HaveOccurred())

		_, err = s.AcquireBlobLease(account, account, container, "b", "", at(0), 15, "L1")
		Expect(err).NotTo(HaveOccurred())

		b, err := s.GetBlobProperties(account, account, container, "b", "", at(20), AccessConditions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(b.LeaseState).To(Equal(LeaseStateExpired))
		Expect(b.LeaseStatus).To(Equal(LeaseStatusUnlocked))

		_, err = s.SetBlobMetadata(account, account, container, "b", "", at(20), AccessConditions{}, Metadata{"k": "v"})
		Expect(err).NotTo(HaveOccurred())

		b, err = s.GetBlobProperties(account, account, container, "b", "", at(20), AccessConditions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(b.LeaseState).To(Equal(LeaseStateAvailable))
	})

	// S3: Break then acquire.
	It("rejects acquire while breaking and allows it once broken", func() {
		_, err := s.CreateBlob("", account, container, &Blob{Name: "b", BlobType: BlobBlockBlob}, AccessConditions{}, at(0))
		Expect(err).NotTo(HaveOccurred())

		_, err = s.AcquireBlobLease(account, account, container, "b", "", at(0), -1, "L1")
		Expect(err).NotTo(HaveOccurred())

		period := int32(30)
		_, leaseTime, err := s.BreakBlobLease(account, account, container, "b", "", at(10), &period)
		Expect(err).NotTo(HaveOccurred())
		Expect(leaseTime).To(Equal(int64(30)))

		_, err = s.AcquireBlobLease(account, account, container, "b", "", at(20), 30, "L2")
		Expect(err).To(HaveOccurred())
		kind, ok := KindOf(err)
		Expect(ok).To(BeTrue())
		Expect(kind).To(Equal(KindLeaseAlreadyPresent))

		_, err = s.AcquireBlobLease(account, account, container, "b", "", at(45), 30, "L2")
		Expect(err).NotTo(HaveOccurred())
	})

	// S4: Commit block list with mixed sources.
	It("commits a block list from both uncommitted and committed sources", func() {
		_, err := s.StageBlock(account, account, container, "b", "A", 5, PersistencyChunk{ID: "x", Offset: 0, Count: 5})
		Expect(err).NotTo(HaveOccurred())
		_, err = s.StageBlock(account, account, container, "b", "B", 7, PersistencyChunk{ID: "x", Offset: 5, Count: 7})
		Expect(err).NotTo(HaveOccurred())

		blob, err := s.CommitBlockList(account, account, container, "b", at(0), AccessConditions{}, []BlockListEntry{
			{BlockName: "A", Type: BlockListUncommitted},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(blob.ContentProperties.Val.ContentLength).To(Equal(int64(5)))

		_, err = s.StageBlock(account, account, container, "b", "B", 7, PersistencyChunk{ID: "x", Offset: 5, Count: 7})
		Expect(err).NotTo(HaveOccurred())

		blob, err = s.CommitBlockList(account, account, container, "b", at(1), AccessConditions{}, []BlockListEntry{
			{BlockName: "A", Type: BlockListCommitted},
			{BlockName: "B", Type: BlockListLatest},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(blob.ContentProperties.Val.ContentLength).To(Equal(int64(12)))
		Expect(blob.CommittedBlocksInOrder.Val).To(HaveLen(2))

		list, err := s.GetBlockList(account, account, container, "b", at(1), AccessConditions{}, false, true)
		Expect(err).NotTo(HaveOccurred())
		for _, blk := range list.Uncommitted {
			Expect(blk.Deleting).To(BeNumerically(">", 0))
		}
	})

	// S5: Delete container cascades to blobs.
	It("cascades container deletion to all child blobs", func() {
		for _, name := range []string{"b1", "b2"} {
			_, err := s.CreateBlob("", account, container, &Blob{Name: name, BlobType: BlobBlockBlob}, AccessConditions{}, at(0))
			Expect(err).NotTo(HaveOccurred())
			_, err = s.CreateSnapshot(account, account, container, name, at(1), AccessConditions{})
			Expect(err).NotTo(HaveOccurred())
		}

		Expect(s.DeleteContainer(account, account, container, at(2), AccessConditions{})).To(Succeed())

		var tombstoned int64
		Expect(s.db.Model(&Blob{}).
			Where("account_name = ? AND container_name = ? AND deleting = 1", account, container).
			Count(&tombstoned).Error).NotTo(HaveOccurred())
		Expect(tombstoned).To(Equal(int64(4)))

		_, err := s.CheckContainerExist(account, account, container)
		Expect(err).To(HaveOccurred())
		kind, _ := KindOf(err)
		Expect(kind).To(Equal(KindContainerNotFound))
	})

	// S6: Archive tier blocks overwrite.
	It("blocks overwrite of an archive-tier blob until rehydrated", func() {
		_, err := s.CreateBlob("", account, container, &Blob{Name: "b", BlobType: BlobBlockBlob}, AccessConditions{}, at(0))
		Expect(err).NotTo(HaveOccurred())

		status, _, err := s.SetTier(account, account, container, "b", at(1), AccessConditions{}, AccessTierArchive)
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(200))

		_, err = s.CreateBlob("", account, container, &Blob{Name: "b", BlobType: BlobBlockBlob}, AccessConditions{}, at(2))
		Expect(err).To(HaveOccurred())
		kind, _ := KindOf(err)
		Expect(kind).To(Equal(KindBlobArchived))

		status, _, err = s.SetTier(account, account, container, "b", at(3), AccessConditions{}, AccessTierHot)
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(202))

		_, err = s.CreateBlob("", account, container, &Blob{Name: "b", BlobType: BlobBlockBlob}, AccessConditions{}, at(4))
		Expect(err).NotTo(HaveOccurred())
	})
})

var _ = Describe("container listing", func() {
	It("paginates by containerId and filters by prefix", func() {
		s := newTestStore()
		defer s.Close()

		for _, name := range []string{"aaa", "aab", "abc", "zzz"} {
			_, err := s.CreateContainer("", &Container{AccountName: "acct", Name: name})
			Expect(err).NotTo(HaveOccurred())
		}

		page, cursor, err := s.ListContainers("", "acct", "aa", 10, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(page).To(HaveLen(2))
		Expect(cursor).To(Equal(int64(0)))
	})
})
