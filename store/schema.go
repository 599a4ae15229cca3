package store

import (
	"time"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// Domain enums are typed as the exact Azure SDK wire types (azblob) rather
// than repo-local string enums, so that values round-trip byte-for-byte
// through whatever REST layer sits above this store — see SPEC_FULL.md §B.
type (
	BlobType          = azblob.BlobType
	AccessTierType    = azblob.AccessTierType
	PublicAccessType  = azblob.PublicAccessType
	LeaseStatusType   = azblob.LeaseStatusType
	LeaseStateType    = azblob.LeaseStateType
	LeaseDurationType = azblob.LeaseDurationType
)

const (
	BlobBlockBlob  = azblob.BlobBlockBlob
	BlobPageBlob   = azblob.BlobPageBlob
	BlobAppendBlob = azblob.BlobAppendBlob

	AccessTierHot     = azblob.AccessTierHot
	AccessTierCool    = azblob.AccessTierCool
	AccessTierArchive = azblob.AccessTierArchive
	AccessTierNone    = azblob.AccessTierNone

	LeaseStatusLocked   = azblob.LeaseStatusLocked
	LeaseStatusUnlocked = azblob.LeaseStatusUnlocked

	LeaseStateAvailable = azblob.LeaseStateAvailable
	LeaseStateLeased    = azblob.LeaseStateLeased
	LeaseStateExpired   = azblob.LeaseStateExpired
	LeaseStateBreaking  = azblob.LeaseStateBreaking
	LeaseStateBroken    = azblob.LeaseStateBroken

	LeaseDurationFixed    = azblob.LeaseDurationTypeFixed
	LeaseDurationInfinite = azblob.LeaseDurationTypeInfinite
	LeaseDurationNone     = azblob.LeaseDurationTypeNone

	PublicAccessNone      = azblob.PublicAccessNone
	PublicAccessBlob      = azblob.PublicAccessBlob
	PublicAccessContainer = azblob.PublicAccessContainer
)

// Metadata is a case-sensitive key/value map attached to containers and
// blobs.
type Metadata map[string]string

// PersistencyChunk is the opaque reference to bulk content bytes held by
// the extent store (spec §1/§3): "{storeId, offset, length}". The
// metadata core never dereferences it.
type PersistencyChunk struct {
	ID     string `json:"id"`
	Offset int64  `json:"offset"`
	Count  int64  `json:"count"`
}

// BlockRef is one entry of a committed block list.
type BlockRef struct {
	Name         string           `json:"name"`
	Size         int64            `json:"size"`
	Persistency  PersistencyChunk `json:"persistency"`
}

// ContentProperties holds the blob HTTP content properties (spec §3).
type ContentProperties struct {
	ContentLength      int64    `json:"contentLength"`
	ContentType        string   `json:"contentType,omitempty"`
	ContentEncoding    string   `json:"contentEncoding,omitempty"`
	ContentLanguage    string   `json:"contentLanguage,omitempty"`
	ContentMD5         RawBytes `json:"contentMD5,omitempty"`
	ContentDisposition string   `json:"contentDisposition,omitempty"`
	CacheControl       string   `json:"cacheControl,omitempty"`
}

// SignedIdentifier is one entry of a container's stored access policy ACL.
type SignedIdentifier struct {
	ID           string     `json:"id"`
	StartTime    *time.Time `json:"start,omitempty"`
	ExpiryTime   *time.Time `json:"expiry,omitempty"`
	Permission   string     `json:"permission,omitempty"`
}

// CORSRule is one stored CORS rule (spec §9).
type CORSRule struct {
	AllowedOrigins  []string `json:"allowedOrigins"`
	AllowedMethods  []string `json:"allowedMethods"`
	AllowedHeaders  []string `json:"allowedHeaders"`
	ExposedHeaders  []string `json:"exposedHeaders"`
	MaxAgeInSeconds int32    `json:"maxAgeInSeconds"`
}

// LoggingProperties, MetricsProperties, StaticWebsiteProperties, and
// DeleteRetentionPolicy are the remaining optional service-properties
// sub-documents named in spec §3; they're opaque to the store beyond
// being round-tripped, so they're modeled loosely.
type LoggingProperties struct {
	Version       string `json:"version"`
	Delete        bool   `json:"delete"`
	Read          bool   `json:"read"`
	Write         bool   `json:"write"`
	RetentionDays *int32 `json:"retentionDays,omitempty"`
}

type MetricsProperties struct {
	Version       string `json:"version"`
	Enabled       bool   `json:"enabled"`
	IncludeAPIs   *bool  `json:"includeAPIs,omitempty"`
	RetentionDays *int32 `json:"retentionDays,omitempty"`
}

type StaticWebsiteProperties struct {
	Enabled            bool   `json:"enabled"`
	IndexDocument      string `json:"indexDocument,omitempty"`
	ErrorDocument404   string `json:"errorDocument404Path,omitempty"`
}

type DeleteRetentionPolicy struct {
	Enabled       bool   `json:"enabled"`
	RetentionDays *int32 `json:"retentionDays,omitempty"`
}

// Lease is the embedded lease record shared by containers and blobs
// (spec §3 "Lease record"). It is treated as an immutable value type: the
// state machine in lease.go always returns a new Lease rather than
// mutating one in place.
type Lease struct {
	LeaseID              string            `json:"leaseId,omitempty"`
	LeaseStatus          LeaseStatusType   `json:"leaseStatus"`
	LeaseState           LeaseStateType    `json:"leaseState"`
	LeaseDurationType    LeaseDurationType `json:"leaseDurationType,omitempty"`
	LeaseDurationSeconds int32             `json:"leaseDurationSeconds,omitempty"`
	LeaseExpireTime      *time.Time        `json:"leaseExpireTime,omitempty"`
	LeaseBreakTime       *time.Time        `json:"leaseBreakTime,omitempty"`
}

// AvailableLease is the zero-value lease: Unlocked/Available, no id, no
// timers. Used both as the initial state of a freshly created container
// or blob and as the post-release/post-collapse state.
func AvailableLease() Lease {
	return Lease{LeaseStatus: LeaseStatusUnlocked, LeaseState: LeaseStateAvailable}
}

// Service is the one-per-account row described in spec §3 "Service
// properties". It is created on first set and updated in place; never
// deleted by the core.
type Service struct {
	AccountName           string `gorm:"primaryKey;column:account_name"`
	DefaultServiceVersion string
	CORS                  JSONColumn[[]CORSRule]                 `gorm:"type:text"`
	Logging               JSONColumn[*LoggingProperties]         `gorm:"type:text"`
	HourMetrics           JSONColumn[*MetricsProperties]         `gorm:"type:text"`
	MinuteMetrics         JSONColumn[*MetricsProperties]         `gorm:"type:text"`
	StaticWebsite         JSONColumn[*StaticWebsiteProperties]   `gorm:"type:text"`
	DeleteRetentionPolicy JSONColumn[*DeleteRetentionPolicy]     `gorm:"type:text"`
}

func (Service) TableName() string { return "services" }

// Container is the persisted row for spec §3 "Container".
type Container struct {
	ContainerID int64  `gorm:"primaryKey;autoIncrement;column:container_id"`
	AccountName string `gorm:"column:account_name;uniqueIndex:uniq_container,priority:1"`
	Name        string `gorm:"column:container_name;uniqueIndex:uniq_container,priority:2"`

	LastModified time.Time
	ETag         string

	Metadata     JSONColumn[Metadata]           `gorm:"type:text"`
	ACL          JSONColumn[[]SignedIdentifier] `gorm:"type:text"`
	PublicAccess JSONColumn[PublicAccessType]   `gorm:"type:text"`
	LeaseJSON    JSONColumn[Lease]              `gorm:"column:lease;type:text"`

	HasImmutabilityPolicy bool
	HasLegalHold          bool
}

func (Container) TableName() string { return "containers" }

func (c *Container) GetLease() Lease    { return c.LeaseJSON.Val }
func (c *Container) SetLease(l Lease)   { c.LeaseJSON = NewJSONColumn(l) }

// Blob is the persisted row for spec §3 "Blob". Note the quintuple
// identity (account, container, name, snapshot, deleting) as the unique
// key, and that the lease is stored as flat columns (not JSON) per
// spec §6's schema table.
type Blob struct {
	BlobID      int64  `gorm:"primaryKey;autoIncrement;column:blob_id"`
	AccountName string `gorm:"column:account_name;uniqueIndex:uniq_blob,priority:1"`
	Container   string `gorm:"column:container_name;uniqueIndex:uniq_blob,priority:2"`
	Name        string `gorm:"column:blob_name;uniqueIndex:uniq_blob,priority:3"`
	Snapshot    string `gorm:"column:snapshot;uniqueIndex:uniq_blob,priority:4"`
	Deleting    uint64 `gorm:"column:deleting;uniqueIndex:uniq_blob,priority:5;default:0"`

	BlobType     BlobType
	IsCommitted  bool
	CreationTime time.Time
	LastModified time.Time
	ETag         string

	ContentProperties JSONColumn[ContentProperties] `gorm:"type:text"`

	AccessTier           AccessTierType
	AccessTierInferred   bool
	AccessTierChangeTime *time.Time

	BlobSequenceNumber int64

	Lease `gorm:"embedded"`

	CommittedBlocksInOrder JSONColumn[[]BlockRef]      `gorm:"type:text"`
	Persistency            JSONColumn[*PersistencyChunk] `gorm:"type:text"`
	Metadata                JSONColumn[Metadata]        `gorm:"type:text"`
}

func (Blob) TableName() string { return "blobs" }

func (b *Blob) GetLease() Lease  { return b.Lease }
func (b *Blob) SetLease(l Lease) { b.Lease = l }

// IsLive reports whether the row is the current, non-tombstoned blob
// (snapshot == "" and deleting == 0) as opposed to a snapshot or a
// tombstoned generation.
func (b *Blob) IsLive() bool { return b.Snapshot == "" && b.Deleting == 0 }

// Block is the persisted row for spec §3 "Block" (staged uncommitted
// block awaiting a commitBlockList).
type Block struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement;column:id"`
	AccountName string `gorm:"column:account_name;index:idx_block,priority:1"`
	Container   string `gorm:"column:container_name;index:idx_block,priority:2"`
	BlobName    string `gorm:"column:blob_name;index:idx_block,priority:3"`
	BlockName   string `gorm:"column:block_name;index:idx_block,priority:4"`
	Deleting    uint64 `gorm:"column:deleting;default:0"`

	Size        int64
	Persistency JSONColumn[PersistencyChunk] `gorm:"type:text"`
}

func (Block) TableName() string { return "blocks" }
