// Package testutil builds small Messages and AddressBook SQLite fixtures.
package testutil

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Napageneral/recall/internal/timestamp"
	_ "modernc.org/sqlite"
)

const chatSchema = `
CREATE TABLE handle (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL,
	country TEXT,
	service TEXT NOT NULL,
	uncanonicalized_id TEXT
);
CREATE TABLE message (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
	guid TEXT UNIQUE NOT NULL,
	text TEXT,
	attributedBody BLOB,
	handle_id INTEGER DEFAULT 0,
	service TEXT,
	date INTEGER,
	is_from_me INTEGER DEFAULT 0
);
CREATE TABLE chat (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
	guid TEXT UNIQUE NOT NULL,
	style INTEGER,
	chat_identifier TEXT,
	service_name TEXT,
	display_name TEXT
);
CREATE TABLE chat_message_join (
	chat_id INTEGER REFERENCES chat (ROWID) ON DELETE CASCADE,
	message_id INTEGER REFERENCES message (ROWID) ON DELETE CASCADE,
	message_date INTEGER DEFAULT 0,
	PRIMARY KEY (chat_id, message_id)
);
CREATE TABLE chat_handle_join (
	chat_id INTEGER REFERENCES chat (ROWID) ON DELETE CASCADE,
	handle_id INTEGER REFERENCES handle (ROWID) ON DELETE CASCADE,
	UNIQUE(chat_id, handle_id)
);
`

const addressBookSchema = `
CREATE TABLE ZABCDRECORD (
	Z_PK INTEGER PRIMARY KEY,
	ZFIRSTNAME VARCHAR,
	ZLASTNAME VARCHAR,
	ZNICKNAME VARCHAR,
	ZORGANIZATION VARCHAR
);
CREATE TABLE ZABCDPHONENUMBER (
	Z_PK INTEGER PRIMARY KEY,
	ZOWNER INTEGER,
	ZFULLNUMBER VARCHAR,
	ZLABEL VARCHAR
);
CREATE TABLE ZABCDEMAILADDRESS (
	Z_PK INTEGER PRIMARY KEY,
	ZOWNER INTEGER,
	ZADDRESS VARCHAR,
	ZADDRESSNORMALIZED VARCHAR
);
`

// GroupStyle is the chat.style value Messages uses for multi-party chats.
const GroupStyle = 43

// DirectStyle is the chat.style value for one-to-one chats.
const DirectStyle = 45

// ChatDB is a writable fixture of the Messages store.
type ChatDB struct {
	t    testing.TB
	db   *sql.DB
	path string
	seq  int
}

// NewChatDB creates an empty Messages store in a temp dir.
func NewChatDB(t testing.TB) *ChatDB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.db")
	db := openRW(t, path, chatSchema)
	c := &ChatDB{t: t, db: db, path: path}
	t.Cleanup(func() { c.db.Close() })
	return c
}

// Path returns the fixture file path.
func (c *ChatDB) Path() string { return c.path }

// Close flushes and closes the writer so read-only opens see a consistent file.
func (c *ChatDB) Close() { c.db.Close() }

// AddHandle inserts a handle row and returns its ROWID.
func (c *ChatDB) AddHandle(identifier, service, country string) int64 {
	c.t.Helper()
	return c.insert(`INSERT INTO handle (id, service, country, uncanonicalized_id) VALUES (?, ?, ?, ?)`,
		identifier, service, country, identifier)
}

// Message describes one fixture message.
type Message struct {
	Text           string
	AttributedBody []byte
	HandleID       int64
	Service        string
	Time           time.Time
	FromMe         bool
	ChatID         int64
}

// AddMessage inserts a message (and its chat join when ChatID is set).
func (c *ChatDB) AddMessage(m Message) int64 {
	c.t.Helper()
	c.seq++
	var text any
	if m.Text != "" {
		text = m.Text
	}
	var body any
	if m.AttributedBody != nil {
		body = m.AttributedBody
	}
	fromMe := 0
	if m.FromMe {
		fromMe = 1
	}
	service := m.Service
	if service == "" {
		service = "iMessage"
	}
	native := timestamp.FromTime(m.Time)
	id := c.insert(`INSERT INTO message (guid, text, attributedBody, handle_id, service, date, is_from_me) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fmt.Sprintf("msg-%d", c.seq), text, body, m.HandleID, service, native, fromMe)
	if m.ChatID != 0 {
		c.exec(`INSERT INTO chat_message_join (chat_id, message_id, message_date) VALUES (?, ?, ?)`, m.ChatID, id, native)
	}
	return id
}

// AddChat inserts a chat row and joins the given handles to it.
func (c *ChatDB) AddChat(identifier, displayName string, style int, handleIDs ...int64) int64 {
	c.t.Helper()
	c.seq++
	var name any
	if displayName != "" {
		name = displayName
	}
	id := c.insert(`INSERT INTO chat (guid, style, chat_identifier, service_name, display_name) VALUES (?, ?, ?, 'iMessage', ?)`,
		fmt.Sprintf("iMessage;+;%s-%d", identifier, c.seq), style, identifier, name)
	for _, h := range handleIDs {
		c.exec(`INSERT INTO chat_handle_join (chat_id, handle_id) VALUES (?, ?)`, id, h)
	}
	return id
}

func (c *ChatDB) insert(query string, args ...any) int64 {
	c.t.Helper()
	res, err := c.db.Exec(query, args...)
	if err != nil {
		c.t.Fatalf("fixture insert: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		c.t.Fatalf("fixture last insert id: %v", err)
	}
	return id
}

func (c *ChatDB) exec(query string, args ...any) {
	c.t.Helper()
	if _, err := c.db.Exec(query, args...); err != nil {
		c.t.Fatalf("fixture exec: %v", err)
	}
}

// AddressBook is a writable fixture of one AddressBook source database.
type AddressBook struct {
	t    testing.TB
	db   *sql.DB
	path string
	pk   int64
}

// AddressBookFile is the database file name inside an AddressBook directory.
const AddressBookFile = "AddressBook-v22.abcddb"

// NewAddressBook creates dir/AddressBook-v22.abcddb (dir is created if needed).
func NewAddressBook(t testing.TB, dir string) *AddressBook {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, AddressBookFile)
	db := openRW(t, path, addressBookSchema)
	a := &AddressBook{t: t, db: db, path: path}
	t.Cleanup(func() { a.db.Close() })
	return a
}

// Path returns the fixture file path.
func (a *AddressBook) Path() string { return a.path }

// Close closes the writer.
func (a *AddressBook) Close() { a.db.Close() }

// Person describes one AddressBook record.
type Person struct {
	First, Last, Nickname, Organization string
	Phones                              []string
	Emails                              []string
}

// AddPerson inserts a record with its phones and emails.
func (a *AddressBook) AddPerson(p Person) int64 {
	a.t.Helper()
	a.pk++
	owner := a.pk
	a.exec(`INSERT INTO ZABCDRECORD (Z_PK, ZFIRSTNAME, ZLASTNAME, ZNICKNAME, ZORGANIZATION) VALUES (?, ?, ?, ?, ?)`,
		owner, nullable(p.First), nullable(p.Last), nullable(p.Nickname), nullable(p.Organization))
	for _, ph := range p.Phones {
		a.pk++
		a.exec(`INSERT INTO ZABCDPHONENUMBER (Z_PK, ZOWNER, ZFULLNUMBER, ZLABEL) VALUES (?, ?, ?, '_$!<Mobile>!$_')`, a.pk, owner, ph)
	}
	for _, em := range p.Emails {
		a.pk++
		a.exec(`INSERT INTO ZABCDEMAILADDRESS (Z_PK, ZOWNER, ZADDRESS, ZADDRESSNORMALIZED) VALUES (?, ?, ?, LOWER(?))`, a.pk, owner, em, em)
	}
	return owner
}

func (a *AddressBook) exec(query string, args ...any) {
	a.t.Helper()
	if _, err := a.db.Exec(query, args...); err != nil {
		a.t.Fatalf("fixture exec: %v", err)
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func openRW(t testing.TB, path, schema string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open fixture %s: %v", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("create fixture schema: %v", err)
	}
	return db
}
