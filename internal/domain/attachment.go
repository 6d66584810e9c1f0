package domain

import "time"

// AttachmentBlob 内容寻址的附件二进制存储。
// sha256 全局唯一：相同内容无论被多少封邮件引用，只保留一行。
type AttachmentBlob struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	SHA256    string    `json:"sha256" gorm:"column:sha256;type:varchar(64);uniqueIndex;not null"`
	Size      int64     `json:"size" gorm:"not null"`
	Content   []byte    `json:"-" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName 指定表名。
func (AttachmentBlob) TableName() string { return "attachment_blob" }

// EmailAttachment 表示某个 Blob 在某封邮件中的一次出现。
// 多条记录可以引用同一个 Blob。
type EmailAttachment struct {
	ID          string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	EmailID     string `json:"emailId" gorm:"type:varchar(36);index;not null"`
	BlobID      string `json:"blobId" gorm:"type:varchar(36);index;not null"`
	Filename    string `json:"filename" gorm:"type:varchar(255)"`
	ContentType string `json:"contentType" gorm:"type:varchar(255)"`
	ContentID   string `json:"contentId" gorm:"type:varchar(255)"`
	Disposition string `json:"disposition" gorm:"type:varchar(64)"`
	Size        int64  `json:"size" gorm:"not null"`
}

// TableName 指定表名。
func (EmailAttachment) TableName() string { return "email_attachment" }

// IncomingAttachment 是入库前的附件载荷：元数据 + 完整内容 + 预先算好的内容哈希。
// 哈希由编排器计算；存储层在事务内按哈希去重。
type IncomingAttachment struct {
	Filename    string
	ContentType string
	ContentID   string
	Disposition string
	Size        int64
	SHA256      string
	Content     []byte
}
