// Package archive defines the normalized message model and the persisted
// LogItem wire format, and transforms raw Telegram updates into both.
package archive

import "strconv"

// UserMeta is an identity snapshot, overwritten on every observed appearance
// of a user.
type UserMeta struct {
	ID           string `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	IsBot        bool   `json:"is_bot"`
	LanguageCode string `json:"language_code,omitempty"`
}

// DisplayName picks the most specific human-readable field.
func (u UserMeta) DisplayName() string {
	switch {
	case u.Username != "":
		return u.Username
	case u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	}
	return u.ID
}

// ChatMeta is a tagged variant identifying a conversation namespace. Exactly
// one field is set; the variant's id is the partition key for every record of
// that chat.
type ChatMeta struct {
	Private    *PrivateChat    `json:"Private,omitempty"`
	Group      *GroupChat      `json:"Group,omitempty"`
	SuperGroup *SuperGroupChat `json:"SuperGroup,omitempty"`
	Channel    *ChannelChat    `json:"Channel,omitempty"`
	Unknown    *UnknownChat    `json:"Unknown,omitempty"`
}

type PrivateChat struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

type GroupChat struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type SuperGroupChat struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Username string `json:"username,omitempty"`
}

type ChannelChat struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Username string `json:"username,omitempty"`
}

type UnknownChat struct {
	ID int64 `json:"id"`
}

// ID returns the conversation id of whichever variant is set.
func (c ChatMeta) ID() int64 {
	switch {
	case c.Private != nil:
		return c.Private.ID
	case c.Group != nil:
		return c.Group.ID
	case c.SuperGroup != nil:
		return c.SuperGroup.ID
	case c.Channel != nil:
		return c.Channel.ID
	case c.Unknown != nil:
		return c.Unknown.ID
	}
	return 0
}

// DisplayName picks the most specific human field across variants:
// username, first+last, first, title, raw id.
func (c ChatMeta) DisplayName() string {
	switch {
	case c.Private != nil:
		p := c.Private
		switch {
		case p.Username != "":
			return p.Username
		case p.LastName != "":
			return p.FirstName + " " + p.LastName
		case p.FirstName != "":
			return p.FirstName
		}
	case c.Group != nil && c.Group.Title != "":
		return c.Group.Title
	case c.SuperGroup != nil:
		if c.SuperGroup.Username != "" {
			return c.SuperGroup.Username
		}
		if c.SuperGroup.Title != "" {
			return c.SuperGroup.Title
		}
	case c.Channel != nil:
		if c.Channel.Username != "" {
			return c.Channel.Username
		}
		if c.Channel.Title != "" {
			return c.Channel.Title
		}
	}
	return strconv.FormatInt(c.ID(), 10)
}

// IsZero reports whether no variant is set.
func (c ChatMeta) IsZero() bool {
	return c.Private == nil && c.Group == nil && c.SuperGroup == nil &&
		c.Channel == nil && c.Unknown == nil
}

// Forward carries the replay metadata of a forwarded message: the original
// post date and the origin variant.
type Forward struct {
	Date int64       `json:"date"`
	From ForwardFrom `json:"from"`
}

// ForwardFrom is a tagged variant over the possible forward origins.
type ForwardFrom struct {
	User             *UserMeta                `json:"user,omitempty"`
	Channel          *ForwardChannel          `json:"channel,omitempty"`
	HiddenUser       *ForwardHiddenUser       `json:"hidden_user,omitempty"`
	HiddenGroupAdmin *ForwardHiddenGroupAdmin `json:"hidden_group_admin,omitempty"`
}

// ForwardChannel is a channel origin with the original message id.
type ForwardChannel struct {
	Chat      ChatMeta `json:"chat"`
	MessageID int      `json:"message_id"`
}

// ForwardHiddenUser is a user who disallowed linking back to their account.
type ForwardHiddenUser struct {
	Name string `json:"name"`
}

// ForwardHiddenGroupAdmin is an anonymous group admin origin.
type ForwardHiddenGroupAdmin struct {
	ChatID int64  `json:"chat_id"`
	Title  string `json:"title"`
}

// InterMessage is the normalized form of one message or channel post. From is
// nil for channel posts. ReplyTo chains are bounded by the normalizer.
type InterMessage struct {
	ID       int           `json:"id"`
	From     *UserMeta     `json:"from,omitempty"`
	Date     int64         `json:"date"`
	Chat     ChatMeta      `json:"chat"`
	Forward  *Forward      `json:"forward,omitempty"`
	ReplyTo  *InterMessage `json:"reply_to_message,omitempty"`
	EditDate int64         `json:"edit_date,omitempty"`
	Kind     MessageKind   `json:"kind"`
}

// PhotoSize is one rendition of a photo or thumbnail. A zero FileSize means
// the upstream did not declare one.
type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int64  `json:"width"`
	Height   int64  `json:"height"`
	FileSize int64  `json:"file_size,omitempty"`
}

// MessageKind mirrors the message-variant payload of the upstream API. At
// most one of the variant fields is populated.
type MessageKind struct {
	Text      *TextKind      `json:"text,omitempty"`
	Audio     *AudioKind     `json:"audio,omitempty"`
	Document  *DocumentKind  `json:"document,omitempty"`
	Photo     []PhotoSize    `json:"photo,omitempty"`
	Sticker   *StickerKind   `json:"sticker,omitempty"`
	Video     *VideoKind     `json:"video,omitempty"`
	Voice     *VoiceKind     `json:"voice,omitempty"`
	VideoNote *VideoNoteKind `json:"video_note,omitempty"`
	Contact   *ContactKind   `json:"contact,omitempty"`
	Location  *LocationKind  `json:"location,omitempty"`
	Venue     *VenueKind     `json:"venue,omitempty"`
	Poll      *PollKind      `json:"poll,omitempty"`

	Caption string `json:"caption,omitempty"`

	NewChatMembers  []UserMeta  `json:"new_chat_members,omitempty"`
	LeftChatMember  *UserMeta   `json:"left_chat_member,omitempty"`
	NewChatTitle    string      `json:"new_chat_title,omitempty"`
	NewChatPhoto    []PhotoSize `json:"new_chat_photo,omitempty"`
	DeleteChatPhoto bool        `json:"delete_chat_photo,omitempty"`

	PinnedMessage *InterMessage `json:"pinned_message,omitempty"`

	GroupChatCreated      bool  `json:"group_chat_created,omitempty"`
	SupergroupChatCreated bool  `json:"supergroup_chat_created,omitempty"`
	ChannelChatCreated    bool  `json:"channel_chat_created,omitempty"`
	MigrateToChatID       int64 `json:"migrate_to_chat_id,omitempty"`
	MigrateFromChatID     int64 `json:"migrate_from_chat_id,omitempty"`
}

type TextKind struct {
	Data     string   `json:"data"`
	Entities []Entity `json:"entities,omitempty"`
}

type AudioKind struct {
	FileID    string `json:"file_id"`
	FileSize  int64  `json:"file_size,omitempty"`
	Duration  int64  `json:"duration"`
	Performer string `json:"performer,omitempty"`
	Title     string `json:"title,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
}

type DocumentKind struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size,omitempty"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

type StickerKind struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size,omitempty"`
	Width    int64  `json:"width"`
	Height   int64  `json:"height"`
	Emoji    string `json:"emoji,omitempty"`
	SetName  string `json:"set_name,omitempty"`
}

type VideoKind struct {
	FileID   string     `json:"file_id"`
	FileSize int64      `json:"file_size,omitempty"`
	Duration int64      `json:"duration"`
	Width    int64      `json:"width"`
	Height   int64      `json:"height"`
	MimeType string     `json:"mime_type,omitempty"`
	Thumb    *PhotoSize `json:"thumb,omitempty"`
}

type VoiceKind struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size,omitempty"`
	Duration int64  `json:"duration"`
	MimeType string `json:"mime_type,omitempty"`
}

type VideoNoteKind struct {
	FileID   string     `json:"file_id"`
	FileSize int64      `json:"file_size,omitempty"`
	Duration int64      `json:"duration"`
	Thumb    *PhotoSize `json:"thumb,omitempty"`
}

type ContactKind struct {
	UserID      int64  `json:"user_id,omitempty"`
	PhoneNumber string `json:"phone_number"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name,omitempty"`
}

type LocationKind struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type VenueKind struct {
	Location     LocationKind `json:"location"`
	Title        string       `json:"title"`
	Address      string       `json:"address"`
	FoursquareID string       `json:"foursquare_id,omitempty"`
}

type PollKind struct {
	ID                    string       `json:"id"`
	Question              string       `json:"question"`
	Options               []PollOption `json:"options"`
	TotalVoterCount       int64        `json:"total_voter_count"`
	IsClosed              bool         `json:"is_closed"`
	IsAnonymous           bool         `json:"is_anonymous"`
	PollType              string       `json:"poll_type"`
	AllowsMultipleAnswers bool         `json:"allows_multiple_answers"`
	CorrectOptionID       int64        `json:"correct_option_id,omitempty"`
	Explanation           string       `json:"explanation,omitempty"`
	ExplanationEntities   []Entity     `json:"explanation_entities,omitempty"`
	OpenPeriod            int64        `json:"open_period,omitempty"`
	CloseDate             int64        `json:"close_date,omitempty"`
}

type PollOption struct {
	Text       string `json:"text"`
	VoterCount int64  `json:"voter_count"`
}

// Entity kinds. TextLink carries a URL, TextMention a user id; everything the
// upstream adds later degrades to EntityUnknown.
const (
	EntityMention     = "mention"
	EntityHashtag     = "hashtag"
	EntityBotCommand  = "bot_command"
	EntityURL         = "url"
	EntityEmail       = "email"
	EntityBold        = "bold"
	EntityItalic      = "italic"
	EntityCode        = "code"
	EntityPre         = "pre"
	EntityTextLink    = "text_link"
	EntityTextMention = "text_mention"
	EntityUnknown     = "unknown"
)

// Entity is one inline markup span of a text or caption.
type Entity struct {
	Offset int64  `json:"offset"`
	Length int64  `json:"length"`
	Kind   string `json:"kind"`
	URL    string `json:"url,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

// LogItem is the persisted record form. Exactly one variant field is set,
// which doubles as the serde-style external tag on the wire:
// {"message":{...}}, {"media":{...}}, and so on.
type LogItem struct {
	Message       *MessageItem       `json:"message,omitempty"`
	Media         *MediaItem         `json:"media,omitempty"`
	Special       *SpecialItem       `json:"special,omitempty"`
	Membership    *MembershipItem    `json:"membership,omitempty"`
	Chat          *ChatEventItem     `json:"chat,omitempty"`
	Pin           *PinItem           `json:"pin,omitempty"`
	Unimplemented *UnimplementedItem `json:"unimplemented,omitempty"`
}

type MessageItem struct {
	UserID   string        `json:"user_id,omitempty"`
	Time     int64         `json:"time"`
	Text     string        `json:"text"`
	Entities []Entity      `json:"entities"`
	Source   *InterMessage `json:"source,omitempty"`
}

type MediaItem struct {
	UserID  string        `json:"user_id,omitempty"`
	Time    int64         `json:"time"`
	Caption string        `json:"caption,omitempty"`
	Type    MediaType     `json:"type"`
	Files   []string      `json:"files"`
	Source  *InterMessage `json:"source,omitempty"`
}

// MediaType is a tagged variant over the archived media shapes.
type MediaType struct {
	Image     *ImageMedia     `json:"image,omitempty"`
	Video     *VideoMedia     `json:"video,omitempty"`
	Audio     *AudioMedia     `json:"audio,omitempty"`
	Voice     *VoiceMedia     `json:"voice,omitempty"`
	VideoNote *VideoNoteMedia `json:"videonote,omitempty"`
	Document  *DocumentMedia  `json:"document,omitempty"`
	Sticker   *StickerMedia   `json:"sticker,omitempty"`
}

// IsImageLike reports whether the media renders as an inline image, which is
// the set of types whose file-ids get rewritten to /file/image/ URLs.
func (m MediaType) IsImageLike() bool {
	return m.Image != nil || m.Sticker != nil
}

type ImageMedia struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

type VideoMedia struct {
	Duration    int64  `json:"duration"`
	Width       int64  `json:"width"`
	Height      int64  `json:"height"`
	ThumbFileID string `json:"thumb_file_id,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
}

type AudioMedia struct {
	Duration  int64  `json:"duration"`
	Performer string `json:"performer,omitempty"`
	Title     string `json:"title,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
}

type VoiceMedia struct {
	Duration int64  `json:"duration"`
	MimeType string `json:"mime_type,omitempty"`
}

type VideoNoteMedia struct {
	Duration    int64  `json:"duration"`
	ThumbFileID string `json:"thumb_file_id,omitempty"`
}

type DocumentMedia struct {
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

type StickerMedia struct {
	Emoji   string `json:"emoji,omitempty"`
	SetName string `json:"set_name,omitempty"`
}

type SpecialItem struct {
	UserID string        `json:"user_id,omitempty"`
	Time   int64         `json:"time"`
	Type   SpecialType   `json:"type"`
	Source *InterMessage `json:"source,omitempty"`
}

// SpecialType is a tagged variant over the non-media, non-text payloads.
type SpecialType struct {
	Contact       *ContactKind  `json:"contact,omitempty"`
	Location      *LocationKind `json:"location,omitempty"`
	Venue         *VenueKind    `json:"venue,omitempty"`
	Poll          *PollKind     `json:"poll,omitempty"`
	PinnedMessage bool          `json:"pinnedmessage,omitempty"`
}

// Membership kinds.
const (
	MembershipJoined = "joined"
	MembershipLeft   = "left"
)

type MembershipItem struct {
	UserID string        `json:"user_id,omitempty"`
	Time   int64         `json:"time"`
	Type   string        `json:"type"`
	Source *InterMessage `json:"source,omitempty"`
}

type ChatEventItem struct {
	UserID string        `json:"user_id,omitempty"`
	Time   int64         `json:"time"`
	Type   ChatEventType `json:"type"`
	Source *InterMessage `json:"source,omitempty"`
}

// ChatEventType is a tagged variant over chat-level changes.
type ChatEventType struct {
	NewTitle    *NewTitleEvent `json:"newtitle,omitempty"`
	NewPhoto    *NewPhotoEvent `json:"newphoto,omitempty"`
	DeletePhoto bool           `json:"deletephoto,omitempty"`
}

type NewTitleEvent struct {
	Title string `json:"title"`
}

type NewPhotoEvent struct {
	FileID string `json:"file_id,omitempty"`
}

type PinItem struct {
	UserID    string        `json:"user_id,omitempty"`
	Time      int64         `json:"time"`
	Message   string        `json:"message,omitempty"`
	MessageID string        `json:"message_id"`
	Source    *InterMessage `json:"source,omitempty"`
}

// UnimplementedItem preserves the wire shape of message kinds the archiver
// does not model yet.
type UnimplementedItem struct {
	Tag    string        `json:"tag"`
	UserID string        `json:"user_id,omitempty"`
	Time   int64         `json:"time"`
	Source *InterMessage `json:"source,omitempty"`
}

// Time returns the effective timestamp of whichever variant is set.
func (l LogItem) Time() int64 {
	switch {
	case l.Message != nil:
		return l.Message.Time
	case l.Media != nil:
		return l.Media.Time
	case l.Special != nil:
		return l.Special.Time
	case l.Membership != nil:
		return l.Membership.Time
	case l.Chat != nil:
		return l.Chat.Time
	case l.Pin != nil:
		return l.Pin.Time
	case l.Unimplemented != nil:
		return l.Unimplemented.Time
	}
	return 0
}

// UserID returns the author id of whichever variant is set; empty for channel
// posts.
func (l LogItem) UserID() string {
	switch {
	case l.Message != nil:
		return l.Message.UserID
	case l.Media != nil:
		return l.Media.UserID
	case l.Special != nil:
		return l.Special.UserID
	case l.Membership != nil:
		return l.Membership.UserID
	case l.Chat != nil:
		return l.Chat.UserID
	case l.Pin != nil:
		return l.Pin.UserID
	case l.Unimplemented != nil:
		return l.Unimplemented.UserID
	}
	return ""
}

// Source returns the preserved pre-normalization message, if any.
func (l LogItem) Source() *InterMessage {
	switch {
	case l.Message != nil:
		return l.Message.Source
	case l.Media != nil:
		return l.Media.Source
	case l.Special != nil:
		return l.Special.Source
	case l.Membership != nil:
		return l.Membership.Source
	case l.Chat != nil:
		return l.Chat.Source
	case l.Pin != nil:
		return l.Pin.Source
	case l.Unimplemented != nil:
		return l.Unimplemented.Source
	}
	return nil
}
