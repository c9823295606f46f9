package models

import "time"

type PlanTier string

const (
	PlanFree   PlanTier = "free"
	PlanSilver PlanTier = "silver"
	PlanGold   PlanTier = "gold"
)

type FileKind string

const (
	KindDocument FileKind = "document"
	KindVideo    FileKind = "video"
	KindAudio    FileKind = "audio"
	KindPhoto    FileKind = "photo"
)

type OperationState string

const (
	StateNone                     OperationState = "none"
	StateAwaitingName             OperationState = "awaiting_name"
	StateAwaitingThumbnail        OperationState = "awaiting_thumbnail"
	StateAwaitingCaption          OperationState = "awaiting_caption"
	StateAwaitingDefaultThumbnail OperationState = "awaiting_default_thumbnail"
	StateAwaitingDefaultCaption   OperationState = "awaiting_default_caption"
	StateTransferring             OperationState = "transferring"
)

// Account is the per-user quota record. It owns at most one Operation.
type Account struct {
	TelegramID          int64      `json:"telegram_id"`
	Plan                PlanTier   `json:"plan"`
	DailyUploadedBytes  int64      `json:"daily_uploaded_bytes"`
	LastUploadAt        *time.Time `json:"last_upload_at,omitempty"`
	DailyLimitBytes     int64      `json:"daily_limit_bytes"`
	ParallelLimit       int        `json:"parallel_limit"`
	PlanExpiresAt       *time.Time `json:"plan_expires_at,omitempty"`
	DefaultThumbnailID  string     `json:"default_thumbnail_id,omitempty"`
	DefaultThumbnailKey string     `json:"default_thumbnail_key,omitempty"`
	DefaultCaption      string     `json:"default_caption,omitempty"`
	Operation           *Operation `json:"operation,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Fits reports whether an incoming file of size bytes stays within today's limit.
func (a *Account) Fits(size int64) bool {
	return a.DailyUploadedBytes+size <= a.DailyLimitBytes
}

func (a *Account) RemainingBytes() int64 {
	if rest := a.DailyLimitBytes - a.DailyUploadedBytes; rest > 0 {
		return rest
	}
	return 0
}

// Operation tracks one rename request. ID doubles as the fencing token for
// every stored mutation.
type Operation struct {
	ID                string         `json:"id"`
	State             OperationState `json:"state"`
	File              *SourceFile    `json:"file,omitempty"`
	NewName           string         `json:"new_name,omitempty"`
	CustomThumbnailID string         `json:"custom_thumbnail_id,omitempty"`
	CustomCaption     *string        `json:"custom_caption,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

func (o *Operation) Clone() *Operation {
	if o == nil {
		return nil
	}
	c := *o
	if o.File != nil {
		f := *o.File
		c.File = &f
	}
	if o.CustomCaption != nil {
		caption := *o.CustomCaption
		c.CustomCaption = &caption
	}
	return &c
}

// SourceFile references the media the user sent. FileID is opaque to us.
type SourceFile struct {
	FileID      string   `json:"file_id"`
	UniqueID    string   `json:"unique_id,omitempty"`
	Kind        FileKind `json:"kind"`
	Name        string   `json:"name"`
	MimeType    string   `json:"mime_type,omitempty"`
	Size        int64    `json:"size"`
	ThumbnailID string   `json:"thumbnail_id,omitempty"`
	Duration    int      `json:"duration,omitempty"`
	Width       int      `json:"width,omitempty"`
	Height      int      `json:"height,omitempty"`
	Title       string   `json:"title,omitempty"`
	Performer   string   `json:"performer,omitempty"`
}

// Plan is a quota tier shown by /upgrade and assigned by admins.
type Plan struct {
	Tier            PlanTier  `json:"tier"`
	Title           string    `json:"title"`
	DailyLimitBytes int64     `json:"daily_limit_bytes"`
	ParallelLimit   int       `json:"parallel_limit"`
	Price           string    `json:"price"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type TransferStatus string

const (
	TransferSucceeded TransferStatus = "succeeded"
	TransferFailed    TransferStatus = "failed"
	TransferCancelled TransferStatus = "cancelled"
	TransferThrottled TransferStatus = "throttled"
)

// TransferLog is one finished pipeline run.
type TransferLog struct {
	ID           int64          `json:"id"`
	UserID       int64          `json:"user_id"`
	OperationID  string         `json:"operation_id"`
	Kind         FileKind       `json:"kind"`
	OriginalName string         `json:"original_name"`
	NewName      string         `json:"new_name"`
	SizeBytes    int64          `json:"size_bytes"`
	Status       TransferStatus `json:"status"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
