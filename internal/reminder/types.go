package reminder

import "time"

// AttachmentKind tags the Attachment variant.
type AttachmentKind uint8

const (
	AttachNone AttachmentKind = iota
	AttachPhoto
	AttachDocument
)

func (k AttachmentKind) String() string {
	switch k {
	case AttachPhoto:
		return "photo"
	case AttachDocument:
		return "document"
	default:
		return ""
	}
}

// ParseAttachmentKind is the inverse of String. Unknown names report false.
func ParseAttachmentKind(s string) (AttachmentKind, bool) {
	switch s {
	case "":
		return AttachNone, true
	case "photo":
		return AttachPhoto, true
	case "document":
		return AttachDocument, true
	default:
		return AttachNone, false
	}
}

// Attachment is None, Photo(handle) or Document(handle).
// The handle is opaque; only the transport knows how to redeem it.
type Attachment struct {
	kind   AttachmentKind
	handle string
}

func NoAttachment() Attachment { return Attachment{} }

func Photo(handle string) Attachment { return Attachment{kind: AttachPhoto, handle: handle} }

func Document(handle string) Attachment { return Attachment{kind: AttachDocument, handle: handle} }

func (a Attachment) Kind() AttachmentKind { return a.kind }
func (a Attachment) Handle() string       { return a.handle }
func (a Attachment) IsNone() bool         { return a.kind == AttachNone }

type Reminder struct {
	ID         string
	Owner      string
	Text       string
	DueAt      time.Time
	Attachment Attachment
	CreatedAt  time.Time
}

// Entry is a reminder with its 1-based position in the owner's list.
type Entry struct {
	Position int
	Reminder
}

// Due is a reminder removed by PopDue, ready to be delivered.
type Due struct {
	Owner    string
	Reminder Reminder
}

type Stats struct {
	Owners  int
	Pending int
	NextDue time.Time // zero when nothing is pending
}
