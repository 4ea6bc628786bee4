// Copyright 2018 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dicom

import (
	"io"
)

// chunkReader is a wrapper around io.Reader, returning the stream in chunks of bounded size
// and counting how many bytes were read
type chunkReader struct {
	r         io.Reader
	buf       []byte
	bytesRead int64
	err       error
}

func newChunkReader(r io.Reader, size int) *chunkReader {
	return &chunkReader{r: r, buf: make([]byte, size)}
}

// Next returns the next chunk of the stream. The chunk is only valid until the next call. Once
// the stream is exhausted, Next returns io.EOF.
func (cr *chunkReader) Next() ([]byte, error) {
	for cr.err == nil {
		n, err := cr.r.Read(cr.buf)
		cr.bytesRead += int64(n)
		cr.err = err
		if n > 0 {
			return cr.buf[:n], nil
		}
	}
	return nil, cr.err
}
