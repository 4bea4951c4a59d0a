package medrec

import (
	"bufio"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

type parser struct {
	totalSize      int
	currentCmdSize int
	totalCommands  int
	currentLine    uint8
}

// parse replays the command log. It hands every decoded command to cb and
// returns the number of bytes that formed whole commands, so that a torn
// tail can be truncated away by the caller.
func (p *parser) parse(r *bufio.Reader, cb func(d deserializer) error) (int, error) {
	for {
		p.currentCmdSize = 0

		firstByte, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return p.totalSize, nil
			}

			return p.totalSize, errors.Wrap(ErrSourceFileReadFailed, err.Error())
		}

		if firstByte == 0 {
			continue
		}

		if err := r.UnreadByte(); err != nil {
			return p.totalSize, errors.Wrap(ErrSourceFileReadFailed, err.Error())
		}

		segments, err := p.resolveRespArrayFromLine(r)
		if err != nil {
			return p.totalSize, err
		}

		cmdCode, err := p.resolveRespCommandCode(r)
		if err != nil {
			return p.totalSize, err
		}

		switch cmdCode {
		case setCode:
			if err := p.parseSetCommand(r, cb); err != nil {
				return p.totalSize, err
			}
		case delCode:
			if err := p.parseDelCommand(r, cb); err != nil {
				return p.totalSize, err
			}
		case grantCode:
			if err := p.parseGrantCommand(r, cb); err != nil {
				return p.totalSize, err
			}
		case counterCode:
			if err := p.parseCounterCommand(r, cb); err != nil {
				return p.totalSize, err
			}
		default:
			return p.totalSize, errors.Wrapf(
				ErrCommandInvalid,
				"unknown command with %d segments at line #%d",
				segments, p.currentLine,
			)
		}

		p.totalCommands++
		p.totalSize += p.currentCmdSize
	}
}

func (p *parser) resolveRespArrayFromLine(r *bufio.Reader) (int, error) {
	p.currentLine++
	line, err := r.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.ErrUnexpectedEOF
		}

		return 0, errors.Wrap(ErrCommandInvalid, err.Error())
	}

	p.currentCmdSize += len(line)

	if len(line) < 4 || line[0] != '*' {
		return 0, errors.Wrapf(ErrCommandInvalid, "line #%d - %s is not a valid array", p.currentLine, string(line))
	}

	segments, err := strconv.Atoi(string(line[1 : len(line)-2]))
	if err != nil {
		return 0, errors.Wrap(ErrCommandInvalid, err.Error())
	}

	return segments, nil
}

func (p *parser) resolveRespCommandCode(r *bufio.Reader) (commandCode, error) {
	p.currentLine++
	line, err := r.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return invalidCode, io.ErrUnexpectedEOF
		}

		return invalidCode, errors.Wrap(ErrCommandInvalid, err.Error())
	}

	p.currentCmdSize += len(line)

	if len(line) < 4 || line[0] != '+' {
		return invalidCode, errors.Wrapf(ErrCommandInvalid, "line #%d - %s is not a valid command", p.currentLine, string(line))
	}

	switch string(line[1 : len(line)-2]) {
	case setCommand:
		return setCode, nil
	case delCommand:
		return delCode, nil
	case grantCommand:
		return grantCode, nil
	case counterCommand:
		return counterCode, nil
	default:
		return invalidCode, errors.Wrapf(ErrCommandInvalid, "line #%d - %s is an unknown command", p.currentLine, string(line))
	}
}

// parseSetCommand - parses a full record state from the serialization protocol
func (p *parser) parseSetCommand(r *bufio.Reader, cb func(d deserializer) error) error {
	key, err := p.resolveRespKey(r)
	if err != nil {
		return err
	}

	blob, err := p.resolveRespBlob(r)
	if err != nil {
		return err
	}

	ent, err := entryFromBlob(blob)
	if err != nil {
		return err
	}

	id, err := parseUintKey(key)
	if err != nil {
		return errors.Wrap(ErrCommandInvalid, err.Error())
	}

	if id != ent.ID {
		return errors.Wrapf(ErrCommandInvalid, "key %d does not match record id %d", id, ent.ID)
	}

	return cb(ent)
}

// parseDelCommand - parses a record removal from the serialization protocol
func (p *parser) parseDelCommand(r *bufio.Reader, cb func(d deserializer) error) error {
	key, err := p.resolveRespKey(r)
	if err != nil {
		return err
	}

	id, err := parseUintKey(key)
	if err != nil {
		return errors.Wrap(ErrCommandInvalid, err.Error())
	}

	owner, err := p.resolveRespKey(r)
	if err != nil {
		return err
	}

	return cb(&deleteCmd{id: id, owner: string(owner)})
}

// parseGrantCommand - parses an access grant from the serialization protocol
func (p *parser) parseGrantCommand(r *bufio.Reader, cb func(d deserializer) error) error {
	key, err := p.resolveRespKey(r)
	if err != nil {
		return err
	}

	id, err := parseUintKey(key)
	if err != nil {
		return errors.Wrap(ErrCommandInvalid, err.Error())
	}

	user, err := p.resolveRespKey(r)
	if err != nil {
		return err
	}

	return cb(&grantCmd{id: id, user: string(user)})
}

func (p *parser) parseCounterCommand(r *bufio.Reader, cb func(d deserializer) error) error {
	key, err := p.resolveRespKey(r)
	if err != nil {
		return err
	}

	n, err := parseUintKey(key)
	if err != nil {
		return errors.Wrap(ErrCommandInvalid, err.Error())
	}

	return cb(&counterCmd{n: n})
}

// resolveRespKey - resolves a key string from the serialization protocol
func (p *parser) resolveRespKey(r *bufio.Reader) ([]byte, error) {
	return p.resolveRespBlob(r)
}

// resolveRespBlob - resolves a length-prefixed blob from the serialization protocol
func (p *parser) resolveRespBlob(r *bufio.Reader) ([]byte, error) {
	p.currentLine++
	strInfoLine, err := r.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}

		return nil, errors.Wrapf(
			ErrCommandInvalid,
			"could not resolve blob at line #%d: %v",
			p.currentLine, err)
	}

	p.currentCmdSize += len(strInfoLine)

	if len(strInfoLine) == 0 || strInfoLine[0] != '$' {
		return nil, errors.Wrapf(ErrCommandInvalid, "line #%d - %s is invalid", p.currentLine, string(strInfoLine))
	}

	blobLen, err := strconv.Atoi(string(strInfoLine[1 : len(strInfoLine)-2]))
	if err != nil {
		return nil, errors.Wrap(ErrCommandInvalid, err.Error())
	}

	blob := make([]byte, blobLen+2)
	n, err := io.ReadFull(r, blob)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}

		return nil, errors.Wrap(ErrCommandInvalid, err.Error())
	}

	p.currentCmdSize += n

	if n-2 != blobLen {
		return nil, errors.Wrapf(ErrCommandInvalid, "line #%d - %s blob is invalid", p.currentLine, string(strInfoLine))
	}

	return blob[:blobLen], nil
}
