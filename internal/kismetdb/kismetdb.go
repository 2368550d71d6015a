/**
 * Kismetdb Replay Store.
 *
 * A narrow slice of the kismetdb on-disk format: the `packets` and
 * `datasources` tables needed to replay a prior capture through the
 * packet chain again. The entity-tracker database and the rest of the
 * kismetdb schema are a larger project; only replay semantics are
 * implemented here. Not a full kismetdb implementation -- no
 * devices/alerts/snapshots tables, no indices beyond what replay needs.
 *
 * Uses database/sql with mattn/go-sqlite3, and follows
 * original_source/capture_kismetdb.c's query text, which the v9
 * schema copies verbatim from v5 -- followed here faithfully rather
 * than guessing at a v9 extension.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package kismetdb

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// schema mirrors the v5 kismetdb packets/datasources tables (the
// portion capture_kismetdb.c and the v9 data query both still use
// verbatim, per the source's own SQL strings).
const schema = `
CREATE TABLE IF NOT EXISTS datasources (
	uuid TEXT PRIMARY KEY,
	typestring TEXT,
	definition TEXT,
	name TEXT,
	interface TEXT,
	json TEXT
);

CREATE TABLE IF NOT EXISTS packets (
	ts_sec INTEGER,
	ts_usec INTEGER,
	phynum INTEGER,
	sourceuuid TEXT,
	origlen INTEGER,
	dlt INTEGER,
	packet BLOB,
	error INTEGER,
	datasource_id INTEGER
);
CREATE INDEX IF NOT EXISTS packets_ts ON packets(ts_sec, ts_usec);
CREATE INDEX IF NOT EXISTS packets_source ON packets(sourceuuid);
`

// Record is one stored packet, enough to replay it through the packet
// chain's POSTCAP stage again (LinkFrame.DLT + raw bytes, plus the
// originating source's UUID and the original capture's error flag).
type Record struct {
	Ts         time.Time
	SourceUUID string
	DLT        int
	OriginalLen int
	Data       []byte
	Error      bool
}

// Store is a kismetdb-replay datastore: one sqlite file, opened either
// for appending (a live server logging what it captures) or read-only
// replay (feeding a prior capture back through the chain).
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the kismetdb file at path and
// ensures the replay schema is present.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("kismetdb: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("kismetdb: ping %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("kismetdb: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RegisterDatasource upserts a datasource row, mirroring what a live
// server writes on OPENRESP before the first packet from that source.
func (s *Store) RegisterDatasource(uuid, typestring, definition, name, iface string) error {
	_, err := s.db.Exec(`
		INSERT INTO datasources (uuid, typestring, definition, name, interface, json)
		VALUES (?, ?, ?, ?, ?, '{}')
		ON CONFLICT(uuid) DO UPDATE SET
			typestring = excluded.typestring,
			definition = excluded.definition,
			name = excluded.name,
			interface = excluded.interface
	`, uuid, typestring, definition, name, iface)
	if err != nil {
		return fmt.Errorf("kismetdb: register datasource %s: %w", uuid, err)
	}
	return nil
}

// InsertPacket appends r to the packets table; packets sharing a
// timestamp and source are all kept. A live server calls this
// from the LOGGING stage alongside the pcap-ng logger.
func (s *Store) InsertPacket(r Record) error {
	errFlag := 0
	if r.Error {
		errFlag = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO packets (ts_sec, ts_usec, phynum, sourceuuid, origlen, dlt, packet, error, datasource_id)
		VALUES (?, ?, 0, ?, ?, ?, ?, ?, 0)
	`, r.Ts.Unix(), int64(r.Ts.Nanosecond())/1000, r.SourceUUID, r.OriginalLen, r.DLT, r.Data, errFlag)
	if err != nil {
		return fmt.Errorf("kismetdb: insert packet: %w", err)
	}
	return nil
}

// Replay streams every stored packet in capture order, invoking fn for
// each. Replay stops at the first error fn returns.
func (s *Store) Replay(fn func(Record) error) error {
	rows, err := s.db.Query(`
		SELECT ts_sec, ts_usec, sourceuuid, origlen, dlt, packet, error
		FROM packets
		ORDER BY ts_sec ASC, ts_usec ASC
	`)
	if err != nil {
		return fmt.Errorf("kismetdb: query packets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tsSec, tsUsec int64
		var sourceUUID string
		var origLen, dlt int
		var data []byte
		var errFlag int
		if err := rows.Scan(&tsSec, &tsUsec, &sourceUUID, &origLen, &dlt, &data, &errFlag); err != nil {
			return fmt.Errorf("kismetdb: scan packet row: %w", err)
		}
		r := Record{
			Ts:          time.Unix(tsSec, tsUsec*1000),
			SourceUUID:  sourceUUID,
			DLT:         dlt,
			OriginalLen: origLen,
			Data:        data,
			Error:       errFlag != 0,
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}
