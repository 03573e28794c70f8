package cdx

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"
)

// fieldCount is the number of whitespace-separated tokens a CDX-11 line
// carries on the wire: a recomputed-on-ingest urlkey placeholder, a
// reserved legacy placeholder, timestamp, original URL, mimetype,
// status, digest, redirecturl, a reserved robotflags-style placeholder,
// length, compressedoffset, and filename.
const fieldCount = 12

const timestampDigits = 14

// FromCDXLine parses one space-delimited CDX-11 record. The urlkey
// carried on the wire (token 0) is ignored: callers are expected to
// compute Capture.Urlkey themselves via the canonicalizer from the
// original URL (token 3), matching the ingestion pipeline's contract.
func FromCDXLine(line string) (Capture, error) {
	fields := strings.Fields(line)
	if len(fields) != fieldCount {
		return Capture{}, &MalformedRecord{Line: line, Reason: "expected 12 fields"}
	}

	ts, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Capture{}, &MalformedRecord{Line: line, Reason: "bad timestamp: " + err.Error()}
	}

	status := 0
	if fields[5] != "-" {
		status, err = strconv.Atoi(fields[5])
		if err != nil {
			return Capture{}, &MalformedRecord{Line: line, Reason: "bad status: " + err.Error()}
		}
	}

	redirect := fields[7]
	if redirect == "-" {
		redirect = ""
	}

	length, err := strconv.ParseInt(fields[9], 10, 64)
	if err != nil {
		return Capture{}, &MalformedRecord{Line: line, Reason: "bad length: " + err.Error()}
	}
	offset, err := strconv.ParseInt(fields[10], 10, 64)
	if err != nil {
		return Capture{}, &MalformedRecord{Line: line, Reason: "bad compressedoffset: " + err.Error()}
	}

	file := fields[11]
	if file == "-" {
		file = ""
	}

	return Capture{
		Timestamp:        ts,
		Original:         fields[3],
		Mimetype:         fields[4],
		Status:           status,
		Digest:           fields[6],
		RedirectURL:      redirect,
		Length:           length,
		CompressedOffset: offset,
		File:             file,
	}, nil
}

// ToCDXLine formats c as the inverse of FromCDXLine. Unlike
// FromCDXLine, the leading token is the real canonical urlkey: once a
// capture has gone through ingestion, Urlkey is known and worth
// reporting back to the client on query.
func ToCDXLine(c Capture) string {
	status := "-"
	if c.Status != 0 {
		status = strconv.Itoa(c.Status)
	}
	redirect := c.RedirectURL
	if redirect == "" {
		redirect = "-"
	}
	file := c.File
	if file == "" {
		file = "-"
	}
	fields := []string{
		c.Urlkey,
		"-",
		formatTimestamp(c.Timestamp),
		c.Original,
		c.Mimetype,
		status,
		c.Digest,
		redirect,
		"-",
		strconv.FormatInt(c.Length, 10),
		strconv.FormatInt(c.CompressedOffset, 10),
		file,
	}
	return strings.Join(fields, " ")
}

func formatTimestamp(ts int64) string {
	s := strconv.FormatInt(ts, 10)
	for len(s) < timestampDigits {
		s = "0" + s
	}
	return s
}

// EncodeKey returns the canonical ordered key for c: urlkey bytes, a
// single ASCII space, the 14-digit timestamp, a space, the filename, a
// space, and the 8-byte big-endian compressedoffset. Lexicographic
// comparison of these keys is equivalent to comparing
// (urlkey, timestamp, file, compressedoffset) as a tuple, which is the
// ordering captures within a urlkey must be returned in.
func EncodeKey(c Capture) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, len(c.Urlkey)+1+timestampDigits+1+len(c.File)+1+8))
	buf.WriteString(c.Urlkey)
	buf.WriteByte(' ')
	buf.WriteString(formatTimestamp(c.Timestamp))
	buf.WriteByte(' ')
	buf.WriteString(c.File)
	buf.WriteByte(' ')
	var off [8]byte
	binary.BigEndian.PutUint64(off[:], uint64(c.CompressedOffset))
	buf.Write(off[:])
	return buf.Bytes()
}

// PrefixKey returns the first key that could belong to urlkey: the same
// layout as EncodeKey with timestamp, file, and offset all zeroed, i.e.
// the smallest key with that urlkey.
func PrefixKey(urlkey string) []byte {
	return EncodeKey(Capture{Urlkey: urlkey})
}

// SplitKey is the inverse of EncodeKey.
func SplitKey(key []byte) (urlkey string, timestamp int64, file string, offset int64, ok bool) {
	i := bytes.IndexByte(key, ' ')
	if i < 0 || len(key) < i+1+timestampDigits+1+1+8 {
		return "", 0, "", 0, false
	}
	urlkey = string(key[:i])
	rest := key[i+1:]

	tsBytes := rest[:timestampDigits]
	ts, err := strconv.ParseInt(string(tsBytes), 10, 64)
	if err != nil {
		return "", 0, "", 0, false
	}
	rest = rest[timestampDigits:]
	if len(rest) < 1 || rest[0] != ' ' {
		return "", 0, "", 0, false
	}
	rest = rest[1:]

	if len(rest) < 8+1 {
		return "", 0, "", 0, false
	}
	offBytes := rest[len(rest)-8:]
	sep := rest[len(rest)-8-1]
	if sep != ' ' {
		return "", 0, "", 0, false
	}
	file = string(rest[:len(rest)-8-1])
	offset = int64(binary.BigEndian.Uint64(offBytes))
	return urlkey, ts, file, offset, true
}

// EncodeValue is the compact representation of every Capture field NOT
// carried in the key: Original, Mimetype, Status, Digest, RedirectURL,
// Length. Each string is length-prefixed (uvarint) rather than
// delimited, so arbitrary bytes (including spaces) round-trip exactly.
func EncodeValue(c Capture) []byte {
	var buf bytes.Buffer
	writeString(&buf, c.Original)
	writeString(&buf, c.Mimetype)
	writeUvarint(&buf, uint64(c.Status))
	writeString(&buf, c.Digest)
	writeString(&buf, c.RedirectURL)
	writeUvarint(&buf, uint64(c.Length))
	return buf.Bytes()
}

// DecodeRow reconstructs a Capture from a key produced by EncodeKey and
// a value produced by EncodeValue. It is the exact inverse of the pair:
// DecodeRow(EncodeKey(c), EncodeValue(c)) == c for any valid c.
func DecodeRow(key, value []byte) (Capture, error) {
	urlkey, ts, file, offset, ok := SplitKey(key)
	if !ok {
		return Capture{}, &MalformedRecord{Reason: "bad key"}
	}
	r := bytes.NewReader(value)
	original, err := readString(r)
	if err != nil {
		return Capture{}, err
	}
	mimetype, err := readString(r)
	if err != nil {
		return Capture{}, err
	}
	status, err := readUvarint(r)
	if err != nil {
		return Capture{}, err
	}
	digest, err := readString(r)
	if err != nil {
		return Capture{}, err
	}
	redirect, err := readString(r)
	if err != nil {
		return Capture{}, err
	}
	length, err := readUvarint(r)
	if err != nil {
		return Capture{}, err
	}
	return Capture{
		Urlkey:           urlkey,
		Timestamp:        ts,
		Original:         original,
		Mimetype:         mimetype,
		Status:           int(status),
		Digest:           digest,
		RedirectURL:      redirect,
		Length:           int64(length),
		CompressedOffset: offset,
		File:             file,
	}, nil
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func readUvarint(r *bytes.Reader) (uint64, error) {
	return binary.ReadUvarint(r)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil && n > 0 {
		return "", err
	}
	return string(b), nil
}
