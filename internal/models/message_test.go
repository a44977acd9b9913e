package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMessage_Identity(t *testing.T) {
	withID := Message{ID: "msg_abc", MessageID: "<x@mail>", UID: 9}
	assert.Equal(t, "msg_abc", withID.Identity())

	withHeader := Message{MessageID: "<x@mail.example>", UID: 9}
	assert.Equal(t, "x@mail.example", withHeader.Identity())

	withUID := Message{UID: 9}
	assert.Equal(t, "uid:9", withUID.Identity())

	empty := Message{}
	assert.Equal(t, "", empty.Identity())
}

func TestMessage_CacheKey(t *testing.T) {
	m := Message{ID: "msg_abc", AccountID: "acct-1"}
	assert.Equal(t, "acct-1:msg_abc", m.CacheKey())
}

func TestMessage_FlagHelpers(t *testing.T) {
	unread := Message{}
	assert.True(t, unread.IsUnread())
	assert.False(t, unread.IsStarred())

	seen := Message{Flags: StringList{"\\Seen", "\\Flagged"}}
	assert.False(t, seen.IsUnread())
	assert.True(t, seen.IsStarred())
}

func TestMessage_MetadataComplete(t *testing.T) {
	now := time.Now()
	complete := Message{Subject: "hi", FromAddress: "a@b.c", SentAt: &now}
	assert.True(t, complete.MetadataComplete())

	assert.False(t, (&Message{Subject: "hi", FromAddress: "a@b.c"}).MetadataComplete())
	assert.False(t, (&Message{Subject: "hi", SentAt: &now}).MetadataComplete())
	assert.False(t, (&Message{FromAddress: "a@b.c", SentAt: &now}).MetadataComplete())
}

func TestMessageBody_Complete(t *testing.T) {
	var nilBody *MessageBody
	assert.False(t, nilBody.Complete())
	assert.False(t, (&MessageBody{}).Complete())
	assert.True(t, (&MessageBody{Body: "<p>rendered</p>"}).Complete())

	// An armored body is a decrypt input, never a final render.
	armored := &MessageBody{Body: "-----BEGIN PGP MESSAGE-----\n...\n-----END PGP MESSAGE-----"}
	assert.False(t, armored.Complete())
}

func TestMessageBody_EncryptedSource(t *testing.T) {
	armored := "-----BEGIN PGP MESSAGE-----\n...\n-----END PGP MESSAGE-----"

	// A cache miss hands callers a nil entry.
	var nilBody *MessageBody
	assert.Equal(t, "", nilBody.EncryptedSource())

	rawOnly := &MessageBody{RawSource: armored, Body: "<p>stale render</p>"}
	assert.Equal(t, armored, rawOnly.EncryptedSource())

	bodyOnly := &MessageBody{Body: armored}
	assert.Equal(t, armored, bodyOnly.EncryptedSource())

	bothArmored := &MessageBody{RawSource: armored, Body: "other " + armored}
	assert.Equal(t, armored, bothArmored.EncryptedSource())

	plain := &MessageBody{RawSource: "raw mime", Body: "<p>rendered</p>"}
	assert.Equal(t, "", plain.EncryptedSource())
}

func TestMessageBody_Corrupted(t *testing.T) {
	var nilBody *MessageBody
	assert.False(t, nilBody.Corrupted())
	assert.False(t, (&MessageBody{}).Corrupted())
	assert.False(t, (&MessageBody{Body: "<p>rendered</p>"}).Corrupted())
	assert.False(t, (&MessageBody{Body: `<p>she said "hi"</p>`}).Corrupted())

	// A render persisted through a second JSON encode survives as a quoted
	// string literal.
	assert.True(t, (&MessageBody{Body: `"<p>stale</p>"`}).Corrupted())
	assert.True(t, (&MessageBody{Body: `"<p class=\"x\">stale</p>"`}).Corrupted())

	// Entities escaped twice with no real markup left.
	assert.True(t, (&MessageBody{Body: "&amp;lt;p&amp;gt;stale&amp;lt;/p&amp;gt;"}).Corrupted())
	assert.False(t, (&MessageBody{Body: "<p>5 &amp;lt; 6</p>"}).Corrupted())
}

func TestListQuery_Keys(t *testing.T) {
	q := ListQuery{Folder: "INBOX", Page: 2, Limit: 50, Search: "invoice"}

	key := q.Key("acct-1")
	other := ListQuery{Folder: "INBOX", Page: 2, Limit: 50}.Key("acct-1")
	assert.NotEqual(t, key, other)
	assert.Equal(t, key, q.Key("acct-1"))
	assert.NotEqual(t, key, q.Key("acct-2"))

	assert.Equal(t, "acct-1:INBOX:2", q.PageKey("acct-1"))
}

func TestListQuery_DefaultFilters(t *testing.T) {
	assert.True(t, ListQuery{Folder: "INBOX", Page: 1, Limit: 50}.DefaultFilters())
	assert.False(t, ListQuery{Search: "x"}.DefaultFilters())
	assert.False(t, ListQuery{UnreadOnly: true}.DefaultFilters())
	assert.False(t, ListQuery{HasAttachment: true}.DefaultFilters())
}

func TestListQuery_Offset(t *testing.T) {
	assert.Equal(t, 0, ListQuery{Page: 1, Limit: 50}.Offset())
	assert.Equal(t, 50, ListQuery{Page: 2, Limit: 50}.Offset())
	assert.Equal(t, 0, ListQuery{Page: 0, Limit: 50}.Offset())
}

func TestFolder_IsInbox(t *testing.T) {
	assert.True(t, (&Folder{Path: "INBOX"}).IsInbox())
	assert.True(t, (&Folder{Path: "inbox"}).IsInbox())
	assert.False(t, (&Folder{Path: "INBOX/Receipts"}).IsInbox())
}
