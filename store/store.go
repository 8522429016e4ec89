// This file is part of meshbus, a peer-to-peer publish/subscribe broker.
//
// Coordinator is the per-endpoint table of store masters and clones,
// grounded on gnunet-go's service/store.go generic Store[K,V] shape
// (Put/Get/List), adapted from a standalone DHT/KV backend interface
// into a pub/sub-routed replication protocol: store commands are
// ordinary PUBLISH messages whose topic is the store id, dispatched
// through the same core.Core a normal subscriber uses.

package store

import (
	"bytes"
	"encoding/gob"
	"errors"
	"sync"
	"time"

	"meshbus/core"
	"meshbus/message"

	"github.com/bfix/gospel/logger"
)

// Errors returned by coordinator operations.
var (
	ErrStoreIDInUse = errors.New("store_id_in_use")
	ErrNoSuchMaster = errors.New("no_such_master")
	ErrTypeClash    = errors.New("type_clash")
)

const eventTopicSuffix = "$events"

func eventsTopic(id string) string {
	return id + "/" + eventTopicSuffix
}

// Role distinguishes an authoritative store replica from a mirror.
type Role int

const (
	RoleMaster Role = iota
	RoleClone
)

func (r Role) String() string {
	if r == RoleMaster {
		return "master"
	}
	return "clone"
}

// op identifies the kind of store mutation, mirrored on the wire by the
// op field of both commands and events.
type op string

const (
	opAdd   op = "add"
	opPut   op = "put"
	opErase op = "erase"
)

// command is the payload published on a store id's own topic to
// request a mutation.
type command struct {
	Op     op
	Key    string
	Value  []byte
	Expiry time.Duration
}

// event is the payload published on a store's derived events topic
// once the master has applied a command.
type event struct {
	Op     op
	Key    string
	Value  []byte
	Expiry time.Duration
}

func encode(v any) []byte {
	var buf bytes.Buffer
	// ignored: gob only fails here on unsupported types, and command/
	// event are both plain exported-field structs.
	_ = gob.NewEncoder(&buf).Encode(v)
	return buf.Bytes()
}

func decode(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// entry is one key's value plus its optional expiry.
type entry struct {
	value   []byte
	expires time.Time
	hasTTL  bool
}

func (e *entry) expired(now time.Time) bool {
	return e.hasTTL && now.After(e.expires)
}

// Replica is a store's local state, authoritative (master) or mirrored
// (clone).
type Replica struct {
	ID   string
	Role Role

	mu   sync.Mutex
	data map[string]*entry
}

func newReplica(id string, role Role) *Replica {
	return &Replica{ID: id, Role: role, data: make(map[string]*entry)}
}

// Get reads key from the replica's local view, regardless of role.
func (r *Replica) Get(key string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.data[key]
	if !ok || e.expired(time.Now()) {
		return nil, false
	}
	return e.value, true
}

// Keys lists every non-expired key currently held.
func (r *Replica) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var out []string
	for k, e := range r.data {
		if !e.expired(now) {
			out = append(out, k)
		}
	}
	return out
}

// apply mutates the master's authoritative map for cmd and returns the
// event to disseminate. Master-only: clones never call this directly.
func (r *Replica) apply(cmd command) (event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch cmd.Op {
	case opPut:
		_, existed := r.data[cmd.Key]
		r.set(cmd.Key, cmd.Value, cmd.Expiry)
		kind := opPut
		if !existed {
			kind = opAdd
		}
		return event{Op: kind, Key: cmd.Key, Value: cmd.Value, Expiry: cmd.Expiry}, nil

	case opErase:
		delete(r.data, cmd.Key)
		return event{Op: opErase, Key: cmd.Key}, nil

	default:
		return event{}, ErrTypeClash
	}
}

func (r *Replica) set(key string, value []byte, ttl time.Duration) {
	e := &entry{value: value}
	if ttl > 0 {
		e.hasTTL = true
		e.expires = time.Now().Add(ttl)
	}
	r.data[key] = e
}

// applyEvent mirrors an event received from a master onto a clone's map.
func (r *Replica) applyEvent(ev event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch ev.Op {
	case opAdd, opPut:
		r.set(ev.Key, ev.Value, ev.Expiry)
	case opErase:
		delete(r.data, ev.Key)
	}
}

// SinkEvent is the store-level view of a mutation handed to a
// persistence sink: op, key, and value (empty on erase).
type SinkEvent struct {
	Op    string
	Key   string
	Value []byte
}

// Sink is an optional at-rest mirror attached to a master replica (C12).
type Sink interface {
	Apply(id string, ev SinkEvent) error
	Close() error
}

// Coordinator is the per-endpoint store table.
type Coordinator struct {
	core *core.Core

	mu       sync.Mutex
	replicas map[string]*Replica
	cmdSubs  map[string]*core.Subscriber
	evtSubs  map[string]*core.Subscriber
	sinks    map[string]Sink
}

// NewCoordinator creates an empty store coordinator bound to c.
func NewCoordinator(c *core.Core) *Coordinator {
	return &Coordinator{
		core:     c,
		replicas: make(map[string]*Replica),
		cmdSubs:  make(map[string]*core.Subscriber),
		evtSubs:  make(map[string]*core.Subscriber),
		sinks:    make(map[string]Sink),
	}
}

// AttachMaster creates an authoritative replica for id and advertises
// it as a topic so C3 can route commands to it from anywhere in the
// overlay. sink may be nil.
func (co *Coordinator) AttachMaster(id string, sink Sink) (*Replica, error) {
	co.mu.Lock()
	if _, exists := co.replicas[id]; exists {
		co.mu.Unlock()
		return nil, ErrStoreIDInUse
	}
	rep := newReplica(id, RoleMaster)
	co.replicas[id] = rep
	if sink != nil {
		co.sinks[id] = sink
	}
	co.mu.Unlock()

	sub := co.core.Subscribe([]string{id})
	co.mu.Lock()
	co.cmdSubs[id] = sub
	co.mu.Unlock()

	go co.runMaster(rep, sub)
	logger.Printf(logger.INFO, "[store] attached master %s", id)
	return rep, nil
}

// AttachClone creates a local mirror of id and subscribes to its events
// topic; local writes issued against the clone are forwarded to the
// master via the ordinary publish/dispatch path.
func (co *Coordinator) AttachClone(id string) (*Replica, error) {
	co.mu.Lock()
	if _, exists := co.replicas[id]; exists {
		co.mu.Unlock()
		return nil, ErrStoreIDInUse
	}
	rep := newReplica(id, RoleClone)
	co.replicas[id] = rep
	co.mu.Unlock()

	evtSub := co.core.Subscribe([]string{eventsTopic(id)})
	co.mu.Lock()
	co.evtSubs[id] = evtSub
	co.mu.Unlock()
	go co.runClone(rep, evtSub)

	// Advertise the command topic too, so a clone can act as a relay
	// hop for peers routed through it toward the master.
	cmdSub := co.core.Subscribe([]string{id})
	co.mu.Lock()
	co.cmdSubs[id] = cmdSub
	co.mu.Unlock()
	go co.drainRelay(cmdSub)

	logger.Printf(logger.INFO, "[store] attached clone %s", id)
	return rep, nil
}

// FindMaster reports whether id's master replica is local, and failing
// that, whether some remote peer advertises a forwarder for it.
func (co *Coordinator) FindMaster(id string) (local bool, reachable bool) {
	co.mu.Lock()
	rep, ok := co.replicas[id]
	co.mu.Unlock()
	if ok && rep.Role == RoleMaster {
		return true, true
	}
	return false, len(co.core.Table().ForwardersForTopic(id)) > 0
}

// Find returns the local replica for id, if attached as master or
// clone on this endpoint.
func (co *Coordinator) Find(id string) (*Replica, bool) {
	co.mu.Lock()
	defer co.mu.Unlock()
	rep, ok := co.replicas[id]
	return rep, ok
}

// List returns the id and role of every locally attached replica, for
// the admin API's store listing (C13).
func (co *Coordinator) List() map[string]Role {
	co.mu.Lock()
	defer co.mu.Unlock()
	out := make(map[string]Role, len(co.replicas))
	for id, rep := range co.replicas {
		out[id] = rep.Role
	}
	return out
}

// Detach withdraws a locally attached replica (master or clone),
// unsubscribing from its topics.
func (co *Coordinator) Detach(id string) {
	co.mu.Lock()
	delete(co.replicas, id)
	cmdSub, hasCmd := co.cmdSubs[id]
	delete(co.cmdSubs, id)
	evtSub, hasEvt := co.evtSubs[id]
	delete(co.evtSubs, id)
	if sink, ok := co.sinks[id]; ok {
		_ = sink.Close()
		delete(co.sinks, id)
	}
	co.mu.Unlock()
	if hasCmd {
		co.core.Unsubscribe(cmdSub)
	}
	if hasEvt {
		co.core.Unsubscribe(evtSub)
	}
}

// Put upserts key on id. On a master this applies and disseminates
// immediately; on a clone it forwards the command toward the master.
func (co *Coordinator) Put(id, key string, value []byte, ttl time.Duration) error {
	return co.write(id, command{Op: opPut, Key: key, Value: value, Expiry: ttl})
}

// Erase removes key on id.
func (co *Coordinator) Erase(id, key string) error {
	return co.write(id, command{Op: opErase, Key: key})
}

// Get reads key from id's local replica. Returns ErrNoSuchMaster if the
// store isn't attached on this endpoint at all.
func (co *Coordinator) Get(id, key string) ([]byte, error) {
	co.mu.Lock()
	rep, ok := co.replicas[id]
	co.mu.Unlock()
	if !ok {
		return nil, ErrNoSuchMaster
	}
	val, found := rep.Get(key)
	if !found {
		return nil, nil
	}
	return val, nil
}

func (co *Coordinator) write(id string, cmd command) error {
	co.mu.Lock()
	rep, ok := co.replicas[id]
	co.mu.Unlock()
	if !ok {
		local, reachable := co.FindMaster(id)
		if local || reachable {
			co.core.Publish(id, encode(cmd), message.FlagPeers)
			return nil
		}
		return ErrNoSuchMaster
	}
	if rep.Role == RoleMaster {
		ev, err := rep.apply(cmd)
		if err != nil {
			return err
		}
		co.applySink(id, ev)
		co.core.Publish(eventsTopic(id), encode(ev), message.FlagPeers)
		return nil
	}
	// clone: forward toward master, do not apply locally (we wait for
	// the resulting event to come back on the events topic).
	co.core.Publish(id, encode(cmd), message.FlagPeers)
	return nil
}

func (co *Coordinator) applySink(id string, ev event) {
	co.mu.Lock()
	sink, ok := co.sinks[id]
	co.mu.Unlock()
	if !ok {
		return
	}
	go func() {
		if err := sink.Apply(id, SinkEvent{Op: string(ev.Op), Key: ev.Key, Value: ev.Value}); err != nil {
			logger.Printf(logger.WARN, "[store] sink write failed for %s: %s", id, err.Error())
		}
	}()
}

// runMaster pumps commands delivered on id's command topic, applying
// each and disseminating the resulting event.
func (co *Coordinator) runMaster(rep *Replica, sub *core.Subscriber) {
	for d := range sub.Ch() {
		var cmd command
		if err := decode(d.Payload, &cmd); err != nil {
			logger.Printf(logger.WARN, "[store] malformed command on %s: %s", rep.ID, err.Error())
			continue
		}
		ev, err := rep.apply(cmd)
		if err != nil {
			logger.Printf(logger.WARN, "[store] command rejected on %s: %s", rep.ID, err.Error())
			continue
		}
		co.applySink(rep.ID, ev)
		co.core.Publish(eventsTopic(rep.ID), encode(ev), message.FlagPeers)
	}
}

// runClone pumps events delivered on id's events topic, mirroring each
// onto the clone's local map.
func (co *Coordinator) runClone(rep *Replica, sub *core.Subscriber) {
	for d := range sub.Ch() {
		var ev event
		if err := decode(d.Payload, &ev); err != nil {
			logger.Printf(logger.WARN, "[store] malformed event on %s: %s", rep.ID, err.Error())
			continue
		}
		rep.applyEvent(ev)
	}
}

// drainRelay discards commands delivered to a clone's command-topic
// subscription: the clone only holds this subscription so the overlay
// can route through it, not to apply commands itself.
func (co *Coordinator) drainRelay(sub *core.Subscriber) {
	for range sub.Ch() {
	}
}
