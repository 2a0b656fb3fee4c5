// Copyright 2024 The Parca Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hash

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"io/fs"

	"github.com/minio/highwayhash"
)

// Checksums are only compared between runs of this tool, so any fixed key
// works.
var key = mustDecode("000102030405060708090A0B0C0D0E0FF0E0D0C0B0A090807060504030201000")

func mustDecode(key string) []byte {
	keyBytes, err := hex.DecodeString(key)
	if err != nil {
		panic("Cannot decode hex key: " + err.Error())
	}
	return keyBytes
}

// New returns a 64-bit HighwayHash.
func New() (hash.Hash64, error) {
	hash, err := highwayhash.New64(key)
	if err != nil {
		return nil, err
	}

	return hash, nil
}

// File hashes the named file of fsys.
func File(fsys fs.FS, file string) (uint64, error) {
	f, err := fsys.Open(file)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return Reader(f)
}

// Reader hashes everything read from r.
func Reader(r io.Reader) (uint64, error) {
	h, err := New()
	if err != nil {
		return 0, err
	}

	if _, err := io.Copy(h, r); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// Bytes hashes b.
func Bytes(b []byte) (uint64, error) {
	h, err := New()
	if err != nil {
		return 0, err
	}
	_, _ = h.Write(b)
	return h.Sum64(), nil
}

// Hex formats a checksum the way it is reported.
func Hex(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}
