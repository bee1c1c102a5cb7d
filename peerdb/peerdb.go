// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package peerdb records the packets received over an infrared link and
// the peers that sent them, in a MySQL database.
//
// The DSN must enable time parsing, e.g.:
//
//	irlink:s3cr3t@tcp(localhost)/irlink?parseTime=true
package peerdb // import "github.com/go-lpc/irlink/peerdb"

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-lpc/irlink/packet"
	_ "github.com/go-sql-driver/mysql"
)

var (
	drvName = "mysql"

	// ErrNoPeer is returned when a peer was never seen.
	ErrNoPeer = errors.New("peerdb: no such peer")
)

const schema = `
CREATE TABLE IF NOT EXISTS packets (
	identifier INT AUTO_INCREMENT PRIMARY KEY,
	id         SMALLINT UNSIGNED NOT NULL,
	status     TINYINT UNSIGNED NOT NULL,
	command    TINYINT UNSIGNED NOT NULL,
	value      TINYINT UNSIGNED NOT NULL,
	crc        TINYINT UNSIGNED NOT NULL,
	received   DATETIME(6) NOT NULL
);
CREATE TABLE IF NOT EXISTS peers (
	id        SMALLINT UNSIGNED PRIMARY KEY,
	status    TINYINT UNSIGNED NOT NULL,
	command   TINYINT UNSIGNED NOT NULL,
	value     TINYINT UNSIGNED NOT NULL,
	last_seen DATETIME(6) NOT NULL
);
`

// Peer is the last known state of a remote device.
type Peer struct {
	ID       uint16
	Status   packet.Status
	Command  packet.Command
	Value    uint8
	LastSeen time.Time
}

func (p Peer) String() string {
	return fmt.Sprintf(
		"Peer{ID: 0x%03x, Status: %v, Command: %v, Value: %d, LastSeen: %s}",
		p.ID, p.Status, p.Command, p.Value, p.LastSeen.Format(time.RFC3339),
	)
}

// DB is a handle to the peers database.
type DB struct {
	db *sql.DB
}

// Open opens a connection to the database described by dsn.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("peerdb: could not open db: %w", err)
	}

	err = ping(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

func ping(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("peerdb: could not ping db: %w", err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// CreateTables creates the packets and peers tables if needed.
func (db *DB) CreateTables(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for _, stmt := range splitStmts(schema) {
		_, err := db.db.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("peerdb: could not create tables: %w", err)
		}
	}
	return nil
}

func splitStmts(s string) []string {
	var (
		stmts []string
		beg   = 0
	)
	for i := 0; i < len(s); i++ {
		if s[i] != ';' {
			continue
		}
		stmts = append(stmts, s[beg:i])
		beg = i + 1
	}
	return stmts
}

// RecordPacket stores p, received at the given time, and updates the
// state of its sender.
func (db *DB) RecordPacket(ctx context.Context, p packet.Packet, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := db.db.ExecContext(
		ctx,
		"INSERT INTO packets (id, status, command, value, crc, received) VALUES (?, ?, ?, ?, ?, ?)",
		p.ID, uint8(p.Status), uint8(p.Command), p.Value, p.CRC, at,
	)
	if err != nil {
		return fmt.Errorf("peerdb: could not insert packet %v: %w", p, err)
	}

	_, err = db.db.ExecContext(
		ctx,
		`
INSERT INTO peers (id, status, command, value, last_seen) VALUES (?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
	status=VALUES(status), command=VALUES(command),
	value=VALUES(value), last_seen=VALUES(last_seen)
`,
		p.ID, uint8(p.Status), uint8(p.Command), p.Value, at,
	)
	if err != nil {
		return fmt.Errorf("peerdb: could not update peer 0x%03x: %w", p.ID, err)
	}

	return nil
}

// Peers returns all known peers, ordered by id.
func (db *DB) Peers(ctx context.Context) ([]Peer, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := db.db.QueryContext(
		ctx,
		"SELECT id, status, command, value, last_seen FROM peers ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("peerdb: could not query peers: %w", err)
	}
	defer rows.Close()

	var peers []Peer
	for rows.Next() {
		var peer Peer
		err = scanPeer(rows, &peer)
		if err != nil {
			return nil, fmt.Errorf("peerdb: could not get peer: %w", err)
		}
		peers = append(peers, peer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("peerdb: could not scan db for peers: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("peerdb: context error while retrieving peers: %w", err)
	}

	return peers, nil
}

// Peer returns the last known state of the peer with the given id.
func (db *DB) Peer(ctx context.Context, id uint16) (Peer, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var peer Peer
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT id, status, command, value, last_seen FROM peers WHERE id=?",
		id,
	)
	if err != nil {
		return peer, fmt.Errorf("peerdb: could not query peer 0x%03x: %w", id, err)
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		err = scanPeer(rows, &peer)
		if err != nil {
			return peer, fmt.Errorf("peerdb: could not get peer 0x%03x: %w", id, err)
		}
		found = true
	}

	if err := rows.Err(); err != nil {
		return peer, fmt.Errorf("peerdb: could not scan db for peer 0x%03x: %w", id, err)
	}

	if !found {
		return peer, fmt.Errorf("peerdb: peer 0x%03x: %w", id, ErrNoPeer)
	}

	return peer, nil
}

func scanPeer(rows *sql.Rows, peer *Peer) error {
	var st, cmd uint8
	err := rows.Scan(&peer.ID, &st, &cmd, &peer.Value, &peer.LastSeen)
	if err != nil {
		return err
	}
	peer.Status = packet.Status(st)
	peer.Command = packet.Command(cmd)
	return nil
}
