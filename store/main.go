// Package store persists interlocking machine snapshots in a buntdb database.
//
// Each element is one JSON value:
//
//	track:<id>
//	lever:<id>
//	button:<id>
//	route:<uuid>
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/buntdb"
	"go.uber.org/zap"
	"nyiyui.ca/hato/interlocking/interlock"
	"nyiyui.ca/hato/interlocking/layout"
)

var prefixes = []string{"track:", "lever:", "button:", "route:"}

// routeRecord keeps the order routes were added in, which uuid keys don't.
type routeRecord struct {
	Seq int `json:"seq"`
	interlock.Route
}

type Store struct {
	db *buntdb.DB
}

// Open opens the database at path. ":memory:" opens an in-memory database.
func Open(path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	var conf buntdb.Config
	err = db.ReadConfig(&conf)
	if err == nil {
		conf.SyncPolicy = buntdb.Always
		err = db.SetConfig(conf)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("config: %w", err)
	}
	err = db.CreateIndex("routes", "route:*", buntdb.IndexJSON("seq"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("index: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces the stored snapshot.
func (s *Store) Save(snap interlock.Snapshot) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		var stale []string
		for _, prefix := range prefixes {
			err := tx.AscendKeys(prefix+"*", func(key, _ string) bool {
				stale = append(stale, key)
				return true
			})
			if err != nil {
				return err
			}
		}
		for _, key := range stale {
			if _, err := tx.Delete(key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		set := func(key string, v any) error {
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("marshal %s: %w", key, err)
			}
			_, _, err = tx.Set(key, string(data), nil)
			return err
		}
		for _, t := range snap.Tracks {
			if err := set(fmt.Sprintf("track:%d", t.ID), t); err != nil {
				return err
			}
		}
		for _, l := range snap.Levers {
			if err := set(fmt.Sprintf("lever:%d", l.ID), l); err != nil {
				return err
			}
		}
		for _, b := range snap.Buttons {
			if err := set(fmt.Sprintf("button:%d", b.ID), b); err != nil {
				return err
			}
		}
		for i, r := range snap.Routes {
			if err := set(fmt.Sprintf("route:%s", r.ID), routeRecord{Seq: i, Route: r}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load reads the stored snapshot. ok is false if nothing is stored.
func (s *Store) Load() (snap interlock.Snapshot, ok bool, err error) {
	err = s.db.View(func(tx *buntdb.Tx) error {
		var iterErr error
		decode := func(key, value string, v any) bool {
			if err := json.Unmarshal([]byte(value), v); err != nil {
				iterErr = fmt.Errorf("unmarshal %s: %w", key, err)
				return false
			}
			return true
		}
		err := tx.AscendKeys("track:*", func(key, value string) bool {
			var t layout.TrackRecord
			if !decode(key, value, &t) {
				return false
			}
			snap.Tracks = append(snap.Tracks, t)
			return true
		})
		if err != nil {
			return err
		}
		err = tx.AscendKeys("lever:*", func(key, value string) bool {
			var l interlock.Lever
			if !decode(key, value, &l) {
				return false
			}
			snap.Levers = append(snap.Levers, l)
			return true
		})
		if err != nil {
			return err
		}
		err = tx.AscendKeys("button:*", func(key, value string) bool {
			var b interlock.Button
			if !decode(key, value, &b) {
				return false
			}
			snap.Buttons = append(snap.Buttons, b)
			return true
		})
		if err != nil {
			return err
		}
		err = tx.Ascend("routes", func(key, value string) bool {
			if !strings.HasPrefix(key, "route:") {
				return true
			}
			var r routeRecord
			if !decode(key, value, &r) {
				return false
			}
			snap.Routes = append(snap.Routes, r.Route)
			return true
		})
		if err != nil {
			return err
		}
		return iterErr
	})
	if err != nil {
		return interlock.Snapshot{}, false, err
	}
	layout.SortRecords(snap.Tracks)
	sort.Slice(snap.Levers, func(i, j int) bool { return snap.Levers[i].ID < snap.Levers[j].ID })
	sort.Slice(snap.Buttons, func(i, j int) bool { return snap.Buttons[i].ID < snap.Buttons[j].ID })
	ok = len(snap.Tracks) != 0 || len(snap.Levers) != 0 || len(snap.Buttons) != 0 || len(snap.Routes) != 0
	return snap, ok, nil
}

// Follow saves the machine after every event it emits, until ctx is done.
func (s *Store) Follow(ctx context.Context, m *interlock.Machine) {
	ch := make(chan interlock.Event, 16)
	m.Events.Subscribe("store", ch)
	defer m.Events.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ch:
			if err := s.Save(m.Export()); err != nil {
				zap.S().Errorw("store: save failed", "event", e, "err", err)
				continue
			}
			zap.S().Debugw("store: saved", "event", e)
		}
	}
}
