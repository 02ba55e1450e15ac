package fuse

import (
	"encoding/base64"
	"sort"
	"strings"
	"syscall"
)

// xattrMetaKey is the single user-metadata key all xattrs for an
// object are serialized under.
const xattrMetaKey = "bosfs-xattr"

// xattrRecord is one decoded name/value pair.
type xattrRecord struct {
	Name  string
	Value []byte
}

// decodeXattrs parses "name1:base64(value1);name2:base64(value2);..."
// Records are expected (and, via encodeXattrs, maintained) in ascending
// name order.
func decodeXattrs(raw string) []xattrRecord {
	if raw == "" {
		return nil
	}
	var out []xattrRecord
	for _, part := range strings.Split(raw, ";") {
		if part == "" {
			continue
		}
		idx := strings.IndexByte(part, ':')
		if idx < 0 {
			continue
		}
		name := part[:idx]
		val, err := base64.StdEncoding.DecodeString(part[idx+1:])
		if err != nil {
			continue
		}
		out = append(out, xattrRecord{Name: name, Value: val})
	}
	return out
}

// encodeXattrs serializes records back to the bosfs-xattr wire format,
// in ascending name order.
func encodeXattrs(records []xattrRecord) string {
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	parts := make([]string, 0, len(records))
	for _, r := range records {
		parts = append(parts, r.Name+":"+base64.StdEncoding.EncodeToString(r.Value))
	}
	return strings.Join(parts, ";")
}

// locateXattr returns the index of name in a sorted record slice, or
// -1. Sorted order lets lookup terminate as soon as it passes the
// target name.
func locateXattr(records []xattrRecord, name string) int {
	for i, r := range records {
		if r.Name == name {
			return i
		}
		if r.Name > name {
			break
		}
	}
	return -1
}

const (
	xattrCreate  = 0x1 // XATTR_CREATE
	xattrReplace = 0x2 // XATTR_REPLACE
)

// setXattr inserts or replaces name in the encoded raw string,
// honoring XATTR_CREATE/XATTR_REPLACE flags, keeping records in sorted
// order by binary-search insertion point.
func setXattr(raw, name string, value []byte, flags int) (string, syscall.Errno) {
	records := decodeXattrs(raw)
	idx := locateXattr(records, name)

	if flags&xattrCreate != 0 && idx >= 0 {
		return raw, syscall.EEXIST
	}
	if flags&xattrReplace != 0 && idx < 0 {
		return raw, syscall.ENODATA
	}

	if idx >= 0 {
		records[idx].Value = value
	} else {
		pos := sort.Search(len(records), func(i int) bool { return records[i].Name >= name })
		records = append(records, xattrRecord{})
		copy(records[pos+1:], records[pos:])
		records[pos] = xattrRecord{Name: name, Value: value}
	}
	return encodeXattrs(records), 0
}

// getXattr returns the raw decoded bytes for name, or ENODATA if
// absent.
func getXattr(raw, name string) ([]byte, syscall.Errno) {
	records := decodeXattrs(raw)
	idx := locateXattr(records, name)
	if idx < 0 {
		return nil, syscall.ENODATA
	}
	return records[idx].Value, 0
}

// removeXattr deletes name from the encoded raw string.
func removeXattr(raw, name string) (string, syscall.Errno) {
	records := decodeXattrs(raw)
	idx := locateXattr(records, name)
	if idx < 0 {
		return raw, syscall.ENODATA
	}
	records = append(records[:idx], records[idx+1:]...)
	return encodeXattrs(records), 0
}

// listXattrNames concatenates every record's name, zero-terminated,
// matching the FUSE listxattr wire format.
func listXattrNames(raw string) []byte {
	records := decodeXattrs(raw)
	var out []byte
	for _, r := range records {
		out = append(out, r.Name...)
		out = append(out, 0)
	}
	return out
}
