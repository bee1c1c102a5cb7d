// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package peerdb

import (
	"context"
	"database/sql/driver"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-lpc/irlink/internal/fakedb"
	"github.com/go-lpc/irlink/packet"
)

func init() {
	drvName = "fakedb"
}

func TestOpen(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open peerdb: %+v", err)
	}
	defer db.Close()
}

func TestCreateTables(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open peerdb: %+v", err)
	}
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Rows{}, func(ctx context.Context) error {
		err := db.CreateTables(ctx)
		if err != nil {
			t.Fatalf("could not create tables: %+v", err)
		}

		execs := fakedb.Execs()
		if got, want := len(execs), 2; got != want {
			t.Fatalf("invalid number of statements: got=%d, want=%d", got, want)
		}
		for i, name := range []string{"packets", "peers"} {
			if !strings.Contains(execs[i].Query, "CREATE TABLE IF NOT EXISTS "+name) {
				t.Fatalf("statement %d does not create %q:\n%s", i, name, execs[i].Query)
			}
		}
		return nil
	})
}

func TestRecordPacket(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open peerdb: %+v", err)
	}
	defer db.Close()

	var (
		at = time.Date(2020, 9, 1, 12, 0, 0, 0, time.UTC)
		p  = packet.Packet{ID: 0x123, Status: packet.Request, Command: packet.Pair, Value: 6, CRC: 0x73}
	)

	_ = fakedb.Run(context.Background(), fakedb.Rows{}, func(ctx context.Context) error {
		err := db.RecordPacket(ctx, p, at)
		if err != nil {
			t.Fatalf("could not record packet: %+v", err)
		}

		execs := fakedb.Execs()
		if got, want := len(execs), 2; got != want {
			t.Fatalf("invalid number of statements: got=%d, want=%d", got, want)
		}

		if !strings.HasPrefix(execs[0].Query, "INSERT INTO packets") {
			t.Fatalf("invalid packet statement: %q", execs[0].Query)
		}
		want := []driver.Value{int64(0x123), int64(1), int64(0), int64(6), int64(0x73), at}
		if got := execs[0].Args; !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid packet args:\ngot= %v\nwant=%v", got, want)
		}

		if !strings.Contains(execs[1].Query, "ON DUPLICATE KEY UPDATE") {
			t.Fatalf("invalid peer statement: %q", execs[1].Query)
		}
		want = []driver.Value{int64(0x123), int64(1), int64(0), int64(6), at}
		if got := execs[1].Args; !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid peer args:\ngot= %v\nwant=%v", got, want)
		}
		return nil
	})
}

func TestPeers(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open peerdb: %+v", err)
	}
	defer db.Close()

	var (
		t1 = time.Date(2020, 9, 1, 12, 0, 0, 0, time.UTC)
		t2 = time.Date(2020, 9, 1, 12, 0, 5, 0, time.UTC)
	)

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"id", "status", "command", "value", "last_seen"},
		Values: [][]driver.Value{
			{int64(0x042), int64(2), int64(1), int64(0), t1},
			{int64(0xabc), int64(1), int64(0), int64(3), t2},
		},
	}, func(ctx context.Context) error {
		peers, err := db.Peers(ctx)
		if err != nil {
			t.Fatalf("could not retrieve peers: %+v", err)
		}

		want := []Peer{
			{ID: 0x042, Status: packet.Ack, Command: packet.IAM, Value: 0, LastSeen: t1},
			{ID: 0xabc, Status: packet.Request, Command: packet.Pair, Value: 3, LastSeen: t2},
		}
		if !reflect.DeepEqual(peers, want) {
			t.Fatalf("invalid peers:\ngot= %v\nwant=%v", peers, want)
		}
		return nil
	})
}

func TestPeer(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open peerdb: %+v", err)
	}
	defer db.Close()

	at := time.Date(2020, 9, 1, 12, 0, 0, 0, time.UTC)

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"id", "status", "command", "value", "last_seen"},
		Values: [][]driver.Value{
			{int64(0x042), int64(2), int64(1), int64(0), at},
		},
	}, func(ctx context.Context) error {
		peer, err := db.Peer(ctx, 0x042)
		if err != nil {
			t.Fatalf("could not retrieve peer: %+v", err)
		}
		want := Peer{ID: 0x042, Status: packet.Ack, Command: packet.IAM, LastSeen: at}
		if peer != want {
			t.Fatalf("invalid peer:\ngot= %v\nwant=%v", peer, want)
		}
		if got, want := peer.String(), "Peer{ID: 0x042, Status: ack, Command: iam, Value: 0, LastSeen: 2020-09-01T12:00:00Z}"; got != want {
			t.Fatalf("invalid peer string:\ngot= %s\nwant=%s", got, want)
		}
		return nil
	})

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"id", "status", "command", "value", "last_seen"},
	}, func(ctx context.Context) error {
		_, err := db.Peer(ctx, 0x043)
		if !errors.Is(err, ErrNoPeer) {
			t.Fatalf("invalid error: got=%+v, want=%+v", err, ErrNoPeer)
		}
		if got, want := err.Error(), "peerdb: peer 0x043: peerdb: no such peer"; got != want {
			t.Fatalf("invalid error message:\ngot= %s\nwant=%s", got, want)
		}
		return nil
	})
}
