package archive

import (
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MaxReplyDepth bounds reply-chain expansion. Adversarial updates could
// otherwise nest arbitrarily deep and blow up storage per update.
const MaxReplyDepth = 32

// FromUpdate normalizes one Telegram update into an InterMessage. Channel
// posts get a nil From. Update kinds other than (edited) messages and channel
// posts yield nil and are dropped by the caller.
func FromUpdate(u tgbotapi.Update) *InterMessage {
	switch {
	case u.Message != nil:
		return fromMessage(u.Message, 0)
	case u.EditedMessage != nil:
		return fromMessage(u.EditedMessage, 0)
	case u.ChannelPost != nil:
		m := fromMessage(u.ChannelPost, 0)
		m.From = nil
		return m
	case u.EditedChannelPost != nil:
		m := fromMessage(u.EditedChannelPost, 0)
		m.From = nil
		return m
	}
	return nil
}

func fromMessage(m *tgbotapi.Message, depth int) *InterMessage {
	im := &InterMessage{
		ID:       m.MessageID,
		From:     UserMetaFrom(m.From),
		Date:     int64(m.Date),
		Chat:     ChatMetaFrom(m.Chat),
		Forward:  forwardOf(m),
		EditDate: int64(m.EditDate),
		Kind:     kindOf(m, depth),
	}
	if m.ReplyToMessage != nil && depth < MaxReplyDepth {
		im.ReplyTo = fromMessage(m.ReplyToMessage, depth+1)
	}
	return im
}

// UserMetaFrom snapshots a Telegram user. Nil in, nil out.
func UserMetaFrom(u *tgbotapi.User) *UserMeta {
	if u == nil {
		return nil
	}
	return &UserMeta{
		ID:           strconv.FormatInt(u.ID, 10),
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Username:     u.UserName,
		IsBot:        u.IsBot,
		LanguageCode: u.LanguageCode,
	}
}

// ChatMetaFrom maps a Telegram chat onto the tagged ChatMeta variant.
func ChatMetaFrom(c *tgbotapi.Chat) ChatMeta {
	if c == nil {
		return ChatMeta{Unknown: &UnknownChat{}}
	}
	switch c.Type {
	case "private":
		return ChatMeta{Private: &PrivateChat{
			ID:        c.ID,
			FirstName: c.FirstName,
			LastName:  c.LastName,
			Username:  c.UserName,
		}}
	case "group":
		return ChatMeta{Group: &GroupChat{ID: c.ID, Title: c.Title}}
	case "supergroup":
		return ChatMeta{SuperGroup: &SuperGroupChat{ID: c.ID, Title: c.Title, Username: c.UserName}}
	case "channel":
		return ChatMeta{Channel: &ChannelChat{ID: c.ID, Title: c.Title, Username: c.UserName}}
	}
	return ChatMeta{Unknown: &UnknownChat{ID: c.ID}}
}

func forwardOf(m *tgbotapi.Message) *Forward {
	if m.ForwardDate == 0 {
		return nil
	}
	fwd := &Forward{Date: int64(m.ForwardDate)}
	switch {
	case m.ForwardFrom != nil:
		fwd.From.User = UserMetaFrom(m.ForwardFrom)
	case m.ForwardFromChat != nil && m.ForwardFromChat.Type == "channel":
		fwd.From.Channel = &ForwardChannel{
			Chat:      ChatMetaFrom(m.ForwardFromChat),
			MessageID: m.ForwardFromMessageID,
		}
	case m.ForwardFromChat != nil:
		fwd.From.HiddenGroupAdmin = &ForwardHiddenGroupAdmin{
			ChatID: m.ForwardFromChat.ID,
			Title:  m.ForwardFromChat.Title,
		}
	case m.ForwardSenderName != "":
		fwd.From.HiddenUser = &ForwardHiddenUser{Name: m.ForwardSenderName}
	}
	return fwd
}

func kindOf(m *tgbotapi.Message, depth int) MessageKind {
	k := MessageKind{Caption: m.Caption}

	switch {
	case m.Text != "":
		k.Text = &TextKind{Data: m.Text, Entities: mapEntities(m.Entities)}
	case m.Audio != nil:
		k.Audio = &AudioKind{
			FileID:    m.Audio.FileID,
			FileSize:  int64(m.Audio.FileSize),
			Duration:  int64(m.Audio.Duration),
			Performer: m.Audio.Performer,
			Title:     m.Audio.Title,
			MimeType:  m.Audio.MimeType,
		}
	case m.Document != nil:
		k.Document = &DocumentKind{
			FileID:   m.Document.FileID,
			FileSize: int64(m.Document.FileSize),
			FileName: m.Document.FileName,
			MimeType: m.Document.MimeType,
		}
	case len(m.Photo) > 0:
		k.Photo = photoSizes(m.Photo)
	case m.Sticker != nil:
		k.Sticker = &StickerKind{
			FileID:   m.Sticker.FileID,
			FileSize: int64(m.Sticker.FileSize),
			Width:    int64(m.Sticker.Width),
			Height:   int64(m.Sticker.Height),
			Emoji:    m.Sticker.Emoji,
			SetName:  m.Sticker.SetName,
		}
	case m.Video != nil:
		k.Video = &VideoKind{
			FileID:   m.Video.FileID,
			FileSize: int64(m.Video.FileSize),
			Duration: int64(m.Video.Duration),
			Width:    int64(m.Video.Width),
			Height:   int64(m.Video.Height),
			MimeType: m.Video.MimeType,
			Thumb:    photoSize(m.Video.Thumbnail),
		}
	case m.Voice != nil:
		k.Voice = &VoiceKind{
			FileID:   m.Voice.FileID,
			FileSize: int64(m.Voice.FileSize),
			Duration: int64(m.Voice.Duration),
			MimeType: m.Voice.MimeType,
		}
	case m.VideoNote != nil:
		k.VideoNote = &VideoNoteKind{
			FileID:   m.VideoNote.FileID,
			FileSize: int64(m.VideoNote.FileSize),
			Duration: int64(m.VideoNote.Duration),
			Thumb:    photoSize(m.VideoNote.Thumbnail),
		}
	case m.Contact != nil:
		k.Contact = &ContactKind{
			UserID:      m.Contact.UserID,
			PhoneNumber: m.Contact.PhoneNumber,
			FirstName:   m.Contact.FirstName,
			LastName:    m.Contact.LastName,
		}
	case m.Venue != nil:
		// Venue carries a location of its own, so this arm must come first.
		k.Venue = &VenueKind{
			Location: LocationKind{
				Latitude:  m.Venue.Location.Latitude,
				Longitude: m.Venue.Location.Longitude,
			},
			Title:        m.Venue.Title,
			Address:      m.Venue.Address,
			FoursquareID: m.Venue.FoursquareID,
		}
	case m.Location != nil:
		k.Location = &LocationKind{
			Latitude:  m.Location.Latitude,
			Longitude: m.Location.Longitude,
		}
	case m.Poll != nil:
		k.Poll = pollOf(m.Poll)
	case len(m.NewChatMembers) > 0:
		for i := range m.NewChatMembers {
			k.NewChatMembers = append(k.NewChatMembers, *UserMetaFrom(&m.NewChatMembers[i]))
		}
	case m.LeftChatMember != nil:
		k.LeftChatMember = UserMetaFrom(m.LeftChatMember)
	case m.NewChatTitle != "":
		k.NewChatTitle = m.NewChatTitle
	case len(m.NewChatPhoto) > 0:
		k.NewChatPhoto = photoSizes(m.NewChatPhoto)
	case m.DeleteChatPhoto:
		k.DeleteChatPhoto = true
	case m.PinnedMessage != nil:
		if depth < MaxReplyDepth {
			k.PinnedMessage = fromMessage(m.PinnedMessage, depth+1)
		}
	case m.GroupChatCreated:
		k.GroupChatCreated = true
	case m.SuperGroupChatCreated:
		k.SupergroupChatCreated = true
	case m.ChannelChatCreated:
		k.ChannelChatCreated = true
	case m.MigrateToChatID != 0:
		k.MigrateToChatID = m.MigrateToChatID
	case m.MigrateFromChatID != 0:
		k.MigrateFromChatID = m.MigrateFromChatID
	}
	return k
}

func pollOf(p *tgbotapi.Poll) *PollKind {
	out := &PollKind{
		ID:                    p.ID,
		Question:              p.Question,
		TotalVoterCount:       int64(p.TotalVoterCount),
		IsClosed:              p.IsClosed,
		IsAnonymous:           p.IsAnonymous,
		PollType:              p.Type,
		AllowsMultipleAnswers: p.AllowsMultipleAnswers,
		CorrectOptionID:       int64(p.CorrectOptionID),
		Explanation:           p.Explanation,
		ExplanationEntities:   mapEntities(p.ExplanationEntities),
		OpenPeriod:            int64(p.OpenPeriod),
		CloseDate:             int64(p.CloseDate),
	}
	for _, opt := range p.Options {
		out.Options = append(out.Options, PollOption{
			Text:       opt.Text,
			VoterCount: int64(opt.VoterCount),
		})
	}
	return out
}

func mapEntities(ents []tgbotapi.MessageEntity) []Entity {
	if len(ents) == 0 {
		return nil
	}
	out := make([]Entity, 0, len(ents))
	for _, e := range ents {
		entity := Entity{
			Offset: int64(e.Offset),
			Length: int64(e.Length),
			Kind:   mapEntityKind(e.Type),
		}
		switch entity.Kind {
		case EntityTextLink:
			entity.URL = e.URL
		case EntityTextMention:
			if e.User != nil {
				entity.UserID = strconv.FormatInt(e.User.ID, 10)
			}
		}
		out = append(out, entity)
	}
	return out
}

func mapEntityKind(t string) string {
	switch t {
	case "mention":
		return EntityMention
	case "hashtag":
		return EntityHashtag
	case "bot_command":
		return EntityBotCommand
	case "url":
		return EntityURL
	case "email":
		return EntityEmail
	case "bold":
		return EntityBold
	case "italic":
		return EntityItalic
	case "code":
		return EntityCode
	case "pre":
		return EntityPre
	case "text_link":
		return EntityTextLink
	case "text_mention":
		return EntityTextMention
	}
	return EntityUnknown
}

func photoSizes(sizes []tgbotapi.PhotoSize) []PhotoSize {
	out := make([]PhotoSize, 0, len(sizes))
	for _, p := range sizes {
		out = append(out, PhotoSize{
			FileID:   p.FileID,
			Width:    int64(p.Width),
			Height:   int64(p.Height),
			FileSize: int64(p.FileSize),
		})
	}
	return out
}

func photoSize(p *tgbotapi.PhotoSize) *PhotoSize {
	if p == nil {
		return nil
	}
	return &PhotoSize{
		FileID:   p.FileID,
		Width:    int64(p.Width),
		Height:   int64(p.Height),
		FileSize: int64(p.FileSize),
	}
}

// BiggestPhoto picks the rendition maximizing width*height. Ties resolve to
// the first seen.
func BiggestPhoto(sizes []PhotoSize) (PhotoSize, bool) {
	if len(sizes) == 0 {
		return PhotoSize{}, false
	}
	best := sizes[0]
	area := best.Width * best.Height
	for _, s := range sizes[1:] {
		if a := s.Width * s.Height; a > area {
			best = s
			area = a
		}
	}
	return best, true
}

// EffectiveTime is the timestamp a record is archived under: the original
// post date for forwards, the message date otherwise. Re-posted history lands
// on its original day, at the cost of colliding with other forwards of the
// same original.
func (m *InterMessage) EffectiveTime() int64 {
	if m.Forward != nil {
		return m.Forward.Date
	}
	return m.Date
}

// ArchiveChat resolves the chat a record is filed under. Forwards received in
// private or unknown chats redirect to the forward origin, folding
// "user DMs the bot a forwarded channel post" into the channel's archive.
// Group, supergroup, and channel chats always archive in place, as do hidden
// origins, which carry no resolvable namespace of their own.
func (m *InterMessage) ArchiveChat() ChatMeta {
	if m.Forward == nil || (m.Chat.Private == nil && m.Chat.Unknown == nil) {
		return m.Chat
	}
	switch {
	case m.Forward.From.User != nil:
		u := m.Forward.From.User
		id, err := strconv.ParseInt(u.ID, 10, 64)
		if err != nil {
			return m.Chat
		}
		return ChatMeta{Private: &PrivateChat{
			ID:        id,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Username:  u.Username,
		}}
	case m.Forward.From.Channel != nil:
		return m.Forward.From.Channel.Chat
	}
	return m.Chat
}

// Chain returns the reply chain in ingestion order: deepest reply target
// first, the message itself last.
func (m *InterMessage) Chain() []*InterMessage {
	var chain []*InterMessage
	for cur := m; cur != nil; cur = cur.ReplyTo {
		chain = append([]*InterMessage{cur}, chain...)
	}
	return chain
}

// MediaArtifacts carries the outcome of the media pipeline into LogItem
// construction: which blobs were stored and under which ids.
type MediaArtifacts struct {
	// Files lists the file-ids whose blobs exist under file:chat:.
	Files []string
	// ThumbFileID is set when a video/video-note thumbnail was stored.
	ThumbFileID string
	// ChatPhotoFileID is set when a new-chat-photo blob was stored.
	ChatPhotoFileID string
}

// BuildLogItem folds a normalized message and its stored media artifacts into
// the persisted record form. The InterMessage itself is preserved as source.
func BuildLogItem(m *InterMessage, art MediaArtifacts) LogItem {
	userID := ""
	if m.From != nil {
		userID = m.From.ID
	}
	ts := m.EffectiveTime()
	files := art.Files
	if files == nil {
		files = []string{}
	}

	k := m.Kind
	switch {
	case k.Text != nil:
		entities := k.Text.Entities
		if entities == nil {
			entities = []Entity{}
		}
		return LogItem{Message: &MessageItem{
			UserID:   userID,
			Time:     ts,
			Text:     k.Text.Data,
			Entities: entities,
			Source:   m,
		}}

	case k.Photo != nil:
		media := MediaType{Image: &ImageMedia{}}
		if best, ok := BiggestPhoto(k.Photo); ok {
			media.Image.Width = best.Width
			media.Image.Height = best.Height
		}
		return mediaItem(m, userID, ts, media, files)

	case k.Audio != nil:
		return mediaItem(m, userID, ts, MediaType{Audio: &AudioMedia{
			Duration:  k.Audio.Duration,
			Performer: k.Audio.Performer,
			Title:     k.Audio.Title,
			MimeType:  k.Audio.MimeType,
		}}, files)

	case k.Voice != nil:
		return mediaItem(m, userID, ts, MediaType{Voice: &VoiceMedia{
			Duration: k.Voice.Duration,
			MimeType: k.Voice.MimeType,
		}}, files)

	case k.Video != nil:
		return mediaItem(m, userID, ts, MediaType{Video: &VideoMedia{
			Duration:    k.Video.Duration,
			Width:       k.Video.Width,
			Height:      k.Video.Height,
			ThumbFileID: art.ThumbFileID,
			MimeType:    k.Video.MimeType,
		}}, files)

	case k.VideoNote != nil:
		return mediaItem(m, userID, ts, MediaType{VideoNote: &VideoNoteMedia{
			Duration:    k.VideoNote.Duration,
			ThumbFileID: art.ThumbFileID,
		}}, files)

	case k.Document != nil:
		return mediaItem(m, userID, ts, MediaType{Document: &DocumentMedia{
			FileName: k.Document.FileName,
			MimeType: k.Document.MimeType,
		}}, files)

	case k.Sticker != nil:
		return mediaItem(m, userID, ts, MediaType{Sticker: &StickerMedia{
			Emoji:   k.Sticker.Emoji,
			SetName: k.Sticker.SetName,
		}}, files)

	case k.Contact != nil:
		return LogItem{Special: &SpecialItem{
			UserID: userID, Time: ts,
			Type:   SpecialType{Contact: k.Contact},
			Source: m,
		}}

	case k.Venue != nil:
		return LogItem{Special: &SpecialItem{
			UserID: userID, Time: ts,
			Type:   SpecialType{Venue: k.Venue},
			Source: m,
		}}

	case k.Location != nil:
		return LogItem{Special: &SpecialItem{
			UserID: userID, Time: ts,
			Type:   SpecialType{Location: k.Location},
			Source: m,
		}}

	case k.Poll != nil:
		return LogItem{Special: &SpecialItem{
			UserID: userID, Time: ts,
			Type:   SpecialType{Poll: k.Poll},
			Source: m,
		}}

	case k.NewChatMembers != nil:
		return LogItem{Membership: &MembershipItem{
			UserID: userID, Time: ts,
			Type:   MembershipJoined,
			Source: m,
		}}

	case k.LeftChatMember != nil:
		return LogItem{Membership: &MembershipItem{
			UserID: userID, Time: ts,
			Type:   MembershipLeft,
			Source: m,
		}}

	case k.NewChatTitle != "":
		return LogItem{Chat: &ChatEventItem{
			UserID: userID, Time: ts,
			Type:   ChatEventType{NewTitle: &NewTitleEvent{Title: k.NewChatTitle}},
			Source: m,
		}}

	case k.NewChatPhoto != nil:
		return LogItem{Chat: &ChatEventItem{
			UserID: userID, Time: ts,
			Type:   ChatEventType{NewPhoto: &NewPhotoEvent{FileID: art.ChatPhotoFileID}},
			Source: m,
		}}

	case k.DeleteChatPhoto:
		return LogItem{Chat: &ChatEventItem{
			UserID: userID, Time: ts,
			Type:   ChatEventType{DeletePhoto: true},
			Source: m,
		}}

	case k.PinnedMessage != nil:
		pinned := ""
		if k.PinnedMessage.Kind.Text != nil {
			pinned = k.PinnedMessage.Kind.Text.Data
		}
		return LogItem{Pin: &PinItem{
			UserID:    userID,
			Time:      ts,
			Message:   pinned,
			MessageID: strconv.Itoa(k.PinnedMessage.ID),
			Source:    m,
		}}

	case k.GroupChatCreated:
		return unimplemented("GroupChatCreated", userID, ts, m)
	case k.SupergroupChatCreated:
		return unimplemented("SupergroupChatCreated", userID, ts, m)
	case k.ChannelChatCreated:
		return unimplemented("ChannelChatCreated", userID, ts, m)
	case k.MigrateToChatID != 0:
		return unimplemented("MigrateToChatId", userID, ts, m)
	case k.MigrateFromChatID != 0:
		return unimplemented("MigrateFromChatId", userID, ts, m)
	}
	return unimplemented("Unknown", userID, ts, m)
}

func mediaItem(m *InterMessage, userID string, ts int64, media MediaType, files []string) LogItem {
	return LogItem{Media: &MediaItem{
		UserID:  userID,
		Time:    ts,
		Caption: m.Kind.Caption,
		Type:    media,
		Files:   files,
		Source:  m,
	}}
}

func unimplemented(tag, userID string, ts int64, m *InterMessage) LogItem {
	return LogItem{Unimplemented: &UnimplementedItem{
		Tag:    tag,
		UserID: userID,
		Time:   ts,
		Source: m,
	}}
}
