package fuse

import (
	"bufio"
	"os"
	"strings"
	"sync"
)

// mimeTable is the global, lazily initialized mime.types table, loaded
// once from /etc/mime.types under a single-writer guard. Ported from
// the original bosfs_util.cpp's static mime-type table.
var (
	mimeOnce  sync.Once
	mimeTable map[string]string
)

func loadMimeTable() {
	mimeTable = make(map[string]string)
	f, err := os.Open("/etc/mime.types")
	if err != nil {
		return
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		contentType := fields[0]
		for _, ext := range fields[1:] {
			mimeTable[strings.ToLower(ext)] = contentType
		}
	}
}

// contentTypeForName returns the mime.types-derived content type for a
// file name's extension, or "application/octet-stream" if unknown.
func contentTypeForName(name string) string {
	mimeOnce.Do(loadMimeTable)
	ext := name
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		ext = name[i+1:]
	} else {
		return "application/octet-stream"
	}
	if ct, ok := mimeTable[strings.ToLower(ext)]; ok {
		return ct
	}
	return "application/octet-stream"
}
