package medrec

import (
	"bytes"
	"strconv"
)

type serializer interface {
	serialize(buf *bytes.Buffer) error
}

type deserializer interface {
	deserialize(e *engine) error
}

// deleteCmd removes a record together with the deleting owner's own
// grant entry. Grants held by other users are intentionally left behind.
type deleteCmd struct {
	id    uint64
	owner string
}

func (cmd *deleteCmd) serialize(buf *bytes.Buffer) error {
	writeRespArray(3, buf)
	writeRespSimpleString([]byte(delCommand), buf)
	writeRespUint(cmd.id, buf)
	writeRespKeyString([]byte(cmd.owner), buf)
	return nil
}

func (cmd *deleteCmd) deserialize(e *engine) error {
	return e.removeEntryUnderLock(cmd.id, cmd.owner)
}

type grantCmd struct {
	id   uint64
	user string
}

func (cmd *grantCmd) serialize(buf *bytes.Buffer) error {
	writeRespArray(3, buf)
	writeRespSimpleString([]byte(grantCommand), buf)
	writeRespUint(cmd.id, buf)
	writeRespKeyString([]byte(cmd.user), buf)
	return nil
}

func (cmd *grantCmd) deserialize(e *engine) error {
	return e.putGrantUnderLock(cmd.id, cmd.user)
}

// counterCmd pins the id allocation counter. It is written at the head of
// every compaction so that ids of deleted records are never handed out
// again after a restart.
type counterCmd struct {
	n uint64
}

func (cmd *counterCmd) serialize(buf *bytes.Buffer) error {
	writeRespArray(2, buf)
	writeRespSimpleString([]byte(counterCommand), buf)
	writeRespUint(cmd.n, buf)
	return nil
}

func (cmd *counterCmd) deserialize(e *engine) error {
	e.advanceCounterUnderLock(cmd.n)
	return nil
}

func parseUintKey(b []byte) (uint64, error) {
	return strconv.ParseUint(string(b), 10, 64)
}
