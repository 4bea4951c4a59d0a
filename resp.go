package medrec

import (
	"bytes"
	"strconv"
)

const (
	setCommand     = "set"
	delCommand     = "del"
	grantCommand   = "grt"
	counterCommand = "cnt"
)

type commandCode int8

const (
	invalidCode commandCode = iota
	setCode
	delCode
	grantCode
	counterCode
)

func writeRespArray(segments int, buf *bytes.Buffer) int {
	buf.WriteRune('*')
	s := strconv.FormatInt(int64(segments), 10)
	buf.WriteString(s)
	buf.WriteRune('\r')
	buf.WriteRune('\n')

	return 3 + len(s)
}

func writeRespSimpleString(b []byte, buf *bytes.Buffer) int {
	buf.WriteRune('+')
	buf.Write(b)
	buf.WriteRune('\r')
	buf.WriteRune('\n')
	return 3 + len(b)
}

func writeRespKeyString(b []byte, buf *bytes.Buffer) int {
	buf.WriteRune('$')
	l, _ := buf.Write([]byte(strconv.FormatInt(int64(len(b)), 10)))
	buf.WriteRune('\r')
	buf.WriteRune('\n')
	n, _ := buf.Write(b)
	buf.WriteRune('\r')
	buf.WriteRune('\n')
	return 4 + l + n
}

func writeRespBlob(blob []byte, buf *bytes.Buffer) int {
	buf.WriteRune('$')
	l := []byte(strconv.FormatInt(int64(len(blob)), 10))
	buf.Write(l)
	buf.WriteRune('\r')
	buf.WriteRune('\n')
	buf.Write(blob)
	buf.WriteRune('\r')
	buf.WriteRune('\n')

	return 4 + len(l) + len(blob)
}

func writeRespUint(v uint64, buf *bytes.Buffer) int {
	return writeRespKeyString([]byte(strconv.FormatUint(v, 10)), buf)
}
